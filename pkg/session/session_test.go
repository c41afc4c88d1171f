//nolint:funlen // readability
package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/touge-service-manager-go/pkg/model"
	"github.com/mpapenbr/touge-service-manager-go/pkg/race"
	"github.com/mpapenbr/touge-service-manager-go/pkg/rating"
	"github.com/mpapenbr/touge-service-manager-go/testsupport/sim"
)

type stateUpdate struct {
	to        string
	standings model.Standings
	state     model.SessionState
}

type recordingSink struct {
	mu      sync.Mutex
	updates []stateUpdate
	ratings map[string]int
}

//nolint:whitespace // can't make both editor and linter happy
func (r *recordingSink) SendSessionState(
	c model.Competitor, standings model.Standings, state model.SessionState,
) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, stateUpdate{c.ID(), standings, state})
}

func (r *recordingSink) RatingChanged(c model.Competitor, rating int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ratings == nil {
		r.ratings = map[string]int{}
	}
	r.ratings[c.ID()] = rating
}

func (r *recordingSink) last(id string) stateUpdate {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.updates) - 1; i >= 0; i-- {
		if r.updates[i].to == id {
			return r.updates[i]
		}
	}
	return stateUpdate{}
}

func (r *recordingSink) find(id string, state model.SessionState) (stateUpdate, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.updates {
		if u.to == id && u.state == state {
			return u, true
		}
	}
	return stateUpdate{}, false
}

type recordingAnnouncer struct {
	mu      sync.Mutex
	results []model.MatchResult
}

func (a *recordingAnnouncer) Announce(_ context.Context, r model.MatchResult) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.results = append(a.results, r)
}

type memStore struct {
	mu      sync.Mutex
	records map[string]rating.Record
	matches []model.MatchRecord
}

func newMemStore(ids ...string) *memStore {
	m := &memStore{records: map[string]rating.Record{}}
	for _, id := range ids {
		m.records[id] = rating.Record{PlayerID: id, Rating: 1000, RacesCompleted: 50}
	}
	return m
}

func (m *memStore) GetPlayerRating(_ context.Context, id string) (rating.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[id]
	if !ok {
		return rating.Record{}, rating.ErrPlayerNotFound
	}
	return r, nil
}

func (m *memStore) UpdatePlayerRating(_ context.Context, id string, value int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.records[id]
	r.Rating = value
	r.RacesCompleted++
	m.records[id] = r
	return nil
}

func (m *memStore) RecordMatch(_ context.Context, rec model.MatchRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.matches = append(m.matches, rec)
	return nil
}

func (m *memStore) rating(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[id].Rating
}

type env struct {
	hub        *sim.Hub
	challenger *sim.Car
	challenged *sim.Car
	sink       *recordingSink
	announcer  *recordingAnnouncer
	store      *memStore
	manager    *Manager
}

func newEnv(ruleset model.RulesetType) *env {
	a := sim.NewCar("a", "Alice")
	b := sim.NewCar("b", "Bob")
	hub := sim.NewHub(a, b)
	settings := race.DefaultSettings()
	settings.OutrunTime = 20 * time.Millisecond
	engine := race.NewEngine(
		race.WithRoster(hub),
		race.WithNotifier(hub),
		race.WithEventSource(hub),
		race.WithSettings(settings),
		race.WithTimings(race.Timings{
			SlotRetry:       time.Millisecond,
			SlotMaxRetries:  2,
			TeleportPoll:    time.Millisecond,
			TeleportTimeout: 100 * time.Millisecond,
			PreStart:        time.Millisecond,
			CountdownStep:   time.Millisecond,
			Restart:         time.Millisecond,
			OutrunPoll:      time.Millisecond,
		}),
	)
	e := &env{
		hub:        hub,
		challenger: a,
		challenged: b,
		sink:       &recordingSink{},
		announcer:  &recordingAnnouncer{},
		store:      newMemStore("a", "b"),
	}
	e.manager = NewManager(
		WithEngine(engine),
		WithRatings(rating.NewService(e.store)),
		WithStateSink(e.sink),
		WithAnnouncer(e.announcer),
		WithMatchRecorder(e.store),
		WithRuleset(ruleset),
		WithRaceType(model.RaceTypeCourse),
		WithCourse(&model.Course{
			Name: "test",
			StartingSlots: []model.StartingSlot{{
				Leader:   model.CarSpawn{Position: model.Vec3{}},
				Follower: model.CarSpawn{Position: model.Vec3{Z: -8}},
			}},
		}),
		WithCooldown(time.Millisecond),
	)
	return e
}

// leaderAlwaysWins lets the leader of every race cross the finish line
// until the session is done.
func leaderAlwaysWins(s *Session) {
	go func() {
		for {
			select {
			case <-s.Done():
				return
			case <-time.After(time.Millisecond):
			}
			if r := s.ActiveRace(); r != nil && r.Phase() == race.PhaseRacing {
				s.LapCompleted(r.Leader())
			}
		}
	}()
}

func waitDone(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(10 * time.Second):
		require.FailNow(t, "session did not finish")
	}
}

func TestSession_BattleStageDecisive(t *testing.T) {
	e := newEnv(model.RulesetBattleStage)
	detached := 0
	s, err := e.manager.NewSession(e.challenger, e.challenged,
		OnFinish(func(*Session) { detached++ }))
	require.NoError(t, err)

	leaderAlwaysWins(s)
	require.True(t, s.Start(context.Background()))
	assert.False(t, s.Start(context.Background()), "second start must be ignored")
	assert.Len(t, e.manager.Sessions(), 1)
	waitDone(t, s)

	// each competitor wins as leader, sudden death is led by the challenger
	assert.Equal(t, model.Win(e.challenger), s.Result())
	assert.Equal(t, 1, detached)
	assert.Empty(t, e.manager.Sessions())

	finished, ok := e.sink.find("a", model.SessionFinished)
	require.True(t, ok)
	assert.Equal(t,
		model.Standings{model.ResultWin, model.ResultLoss, model.ResultWin},
		finished.standings)
	_, ok = e.sink.find("b", model.SessionSuddenDeath)
	assert.True(t, ok)

	for _, id := range []string{"a", "b"} {
		last := e.sink.last(id)
		assert.Equal(t, model.SessionOff, last.state)
		assert.Equal(t, model.Standings{}, last.standings)
	}

	assert.Equal(t, 1016, e.store.rating("a"))
	assert.Equal(t, 984, e.store.rating("b"))
	assert.Equal(t, map[string]int{"a": 1016, "b": 984}, e.sink.ratings)

	require.Len(t, e.announcer.results, 1)
	assert.Equal(t, "Alice beat Bob", e.announcer.results[0].String())
	assert.Equal(t, 1016, e.announcer.results[0].WinnerRating)

	require.Len(t, e.store.matches, 1)
	rec := e.store.matches[0]
	assert.Equal(t, "a", rec.WinnerID)
	assert.Equal(t, model.OutcomeWin, rec.Outcome)
	assert.Equal(t, 3, rec.Races)
	assert.Equal(t, "test", rec.Course)
}

func TestSession_CatAndMouse(t *testing.T) {
	e := newEnv(model.RulesetCatAndMouse)
	s, err := e.manager.NewSession(e.challenger, e.challenged)
	require.NoError(t, err)
	// leaders alternate, so the leader wins 1-1 and then the challenger
	// takes the third race as leader
	leaderAlwaysWins(s)
	s.Start(context.Background())
	waitDone(t, s)

	assert.Equal(t, model.Win(e.challenger), s.Result())
	finished, ok := e.sink.find("b", model.SessionFinished)
	require.True(t, ok)
	assert.Equal(t,
		model.Standings{model.ResultLoss, model.ResultWin, model.ResultLoss},
		finished.standings)
}

func TestSession_Disconnect(t *testing.T) {
	e := newEnv(model.RulesetBattleStage)
	s, err := e.manager.NewSession(e.challenger, e.challenged)
	require.NoError(t, err)
	s.Start(context.Background())
	require.Eventually(t, func() bool {
		r := s.ActiveRace()
		return r != nil && r.Phase() == race.PhaseRacing
	}, 5*time.Second, time.Millisecond)
	e.hub.Disconnect(e.challenged)
	waitDone(t, s)

	assert.Equal(t, model.Disconnected(e.challenged), s.Result())
	assert.Equal(t, 1000, e.store.rating("a"))
	assert.Equal(t, 1000, e.store.rating("b"))
	assert.Empty(t, e.announcer.results)
	_, ok := e.sink.find("a", model.SessionFinished)
	assert.False(t, ok)
	assert.Equal(t, model.SessionOff, e.sink.last("a").state)

	require.Len(t, e.store.matches, 1)
	assert.Equal(t, model.OutcomeDisconnected, e.store.matches[0].Outcome)
	assert.Empty(t, e.store.matches[0].WinnerID)
}

func TestSession_ForfeitBeforeFirstRace(t *testing.T) {
	e := newEnv(model.RulesetCatAndMouse)
	s, err := e.manager.NewSession(e.challenger, e.challenged)
	require.NoError(t, err)
	s.Forfeit(e.challenger)
	s.Start(context.Background())
	waitDone(t, s)

	assert.Equal(t, model.Disconnected(e.challenger), s.Result())
	assert.Equal(t, 0, e.store.matches[0].Races)
}

func TestSession_ForfeitByOutsiderIgnored(t *testing.T) {
	e := newEnv(model.RulesetCatAndMouse)
	s, err := e.manager.NewSession(e.challenger, e.challenged)
	require.NoError(t, err)
	s.Forfeit(sim.NewCar("x", "Other"))
	assert.False(t, s.forfeit.IsSet())
}

func TestSession_ApplyRaceResultToStandings(t *testing.T) {
	e := newEnv(model.RulesetBattleStage)
	s, err := e.manager.NewSession(e.challenger, e.challenged)
	require.NoError(t, err)

	s.ApplyRaceResultToStandings(model.Win(e.challenged), 0)
	s.ApplyRaceResultToStandings(model.Tie(), 1)
	s.ApplyRaceResultToStandings(model.Win(e.challenger), 7)

	challenger, challenged, _ := s.Snapshot()
	assert.Equal(t, model.Standings{model.ResultLoss, model.ResultTie, model.ResultTBD}, challenger)
	assert.Equal(t, model.Standings{model.ResultWin, model.ResultTie, model.ResultTBD}, challenged)
	assert.Equal(t, model.SessionNoUpdate, e.sink.last("a").state)
}

func TestSinks(t *testing.T) {
	first, second := &recordingSink{}, &recordingSink{}
	sinks := Sinks{first, second}
	c := sim.NewCar("a", "A")

	sinks.SendSessionState(c, model.Standings{model.ResultWin}, model.SessionFirstTwo)
	sinks.RatingChanged(c, 1016)

	for _, s := range []*recordingSink{first, second} {
		assert.Equal(t, stateUpdate{"a", model.Standings{model.ResultWin}, model.SessionFirstTwo},
			s.last("a"))
		assert.Equal(t, 1016, s.ratings["a"])
	}
}
