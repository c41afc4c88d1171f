//nolint:funlen // readability
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/touge-service-manager-go/pkg/model"
	"github.com/mpapenbr/touge-service-manager-go/pkg/rating"
	"github.com/mpapenbr/touge-service-manager-go/pkg/session"
	"github.com/mpapenbr/touge-service-manager-go/pkg/utils/broadcast"
	"github.com/mpapenbr/touge-service-manager-go/testsupport/sim"
)

var finished = time.Date(2024, 5, 1, 20, 0, 0, 0, time.UTC)

type reader struct {
	err    error
	limits []int
}

func (r *reader) GetPlayerRating(_ context.Context, id string) (rating.Record, error) {
	if id == "a" {
		return rating.Record{PlayerID: "a", Name: "Takumi", Rating: 1200, RacesCompleted: 25}, nil
	}
	return rating.Record{}, rating.ErrPlayerNotFound
}

func (r *reader) TopPlayers(_ context.Context, limit int) ([]rating.Record, error) {
	r.limits = append(r.limits, limit)
	if r.err != nil {
		return nil, r.err
	}
	return []rating.Record{
		{PlayerID: "a", Name: "Takumi", Rating: 1200, RacesCompleted: 25},
		{PlayerID: "b", Name: "Keisuke", Rating: 1100, RacesCompleted: 3},
	}, nil
}

func (r *reader) RecentMatches(_ context.Context, limit int) ([]model.MatchRecord, error) {
	r.limits = append(r.limits, limit)
	return []model.MatchRecord{{
		ID: "m1", ChallengerID: "a", ChallengedID: "b", WinnerID: "a",
		Outcome: model.OutcomeWin, Ruleset: model.RulesetBattleStage,
		RaceType: model.RaceTypeCourse, Course: "Downhill", Races: 2,
		FinishedAt: finished,
	}}, nil
}

//nolint:whitespace // can't make both editor and linter happy
func (r *reader) PlayerMatches(
	_ context.Context, id string, limit int,
) ([]model.MatchRecord, error) {
	r.limits = append(r.limits, limit)
	return []model.MatchRecord{{
		ID: "m2", ChallengerID: id, ChallengedID: "c",
		Outcome: model.OutcomeDisconnected, RaceType: model.RaceTypeOutrun,
		StartedAt: finished.Add(-time.Minute), FinishedAt: finished,
	}}, nil
}

type sessions []*session.Session

func (s sessions) Sessions() []*session.Session { return s }

func get(t *testing.T, s *Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var ret T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ret))
	return ret
}

func TestLeaderboard(t *testing.T) {
	r := &reader{}
	s := New(WithStore(r))

	rec := get(t, s, "/api/v1/leaderboard")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []Player{
		{ID: "a", Name: "Takumi", Rating: 1200, RacesCompleted: 25},
		{ID: "b", Name: "Keisuke", Rating: 1100, RacesCompleted: 3, Provisional: true},
	}, decode[[]Player](t, rec))

	assert.Equal(t, http.StatusOK, get(t, s, "/api/v1/leaderboard?limit=500").Code)
	assert.Equal(t, []int{defaultLimit, maxLimit}, r.limits)

	assert.Equal(t, http.StatusBadRequest, get(t, s, "/api/v1/leaderboard?limit=x").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, s, "/api/v1/leaderboard?limit=0").Code)

	r.err = errors.New("db down")
	assert.Equal(t, http.StatusInternalServerError, get(t, s, "/api/v1/leaderboard").Code)
}

func TestLeaderboard_Cached(t *testing.T) {
	r := &reader{}
	s := New(WithStore(r), WithLeaderboardTTL(time.Minute))

	for range 3 {
		require.Equal(t, http.StatusOK, get(t, s, "/api/v1/leaderboard").Code)
	}
	require.Equal(t, http.StatusOK, get(t, s, "/api/v1/leaderboard?limit=5").Code)
	assert.Equal(t, []int{defaultLimit, 5}, r.limits)
}

func TestPlayer(t *testing.T) {
	s := New(WithStore(&reader{}), WithProvisionalRaces(30))

	rec := get(t, s, "/api/v1/players/a")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, Player{
		ID: "a", Name: "Takumi", Rating: 1200, RacesCompleted: 25, Provisional: true,
	}, decode[Player](t, rec))

	assert.Equal(t, http.StatusNotFound, get(t, s, "/api/v1/players/nobody").Code)
}

func TestMatches(t *testing.T) {
	r := &reader{}
	s := New(WithStore(r))

	rec := get(t, s, "/api/v1/matches?limit=5")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []Match{{
		ID: "m1", ChallengerID: "a", ChallengedID: "b", WinnerID: "a",
		Outcome: "win", Ruleset: "BattleStage", RaceType: "Course",
		Course: "Downhill", Races: 2, FinishedAt: finished,
	}}, decode[[]Match](t, rec))

	rec = get(t, s, "/api/v1/players/a/matches")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[[]Match](t, rec)
	require.Len(t, got, 1)
	assert.Equal(t, "disconnected", got[0].Outcome)
	assert.Equal(t, "Outrun", got[0].RaceType)
	require.NotNil(t, got[0].StartedAt)
	assert.Equal(t, finished.Add(-time.Minute), *got[0].StartedAt)
	assert.Equal(t, []int{5, defaultLimit}, r.limits)
}

func TestNoStore(t *testing.T) {
	s := New()
	assert.Equal(t, http.StatusServiceUnavailable, get(t, s, "/api/v1/leaderboard").Code)
	assert.Equal(t, http.StatusOK, get(t, s, "/healthz").Code)
	assert.Equal(t, "[]\n", get(t, s, "/api/v1/sessions").Body.String())
}

func TestLiveSessions(t *testing.T) {
	m := session.NewManager(session.WithCourse(&model.Course{Name: "Downhill"}))
	x, err := m.NewSession(sim.NewCar("a", "Takumi"), sim.NewCar("b", "Keisuke"))
	require.NoError(t, err)
	x.ApplyRaceResultToStandings(model.Win(x.Challenger()), 0)
	s := New(WithSessions(sessions{x}))

	rec := get(t, s, "/api/v1/sessions")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []LiveSession{{
		ID: x.ID().String(),
		Challenger: Participant{
			ID: "a", Name: "Takumi", Standings: model.Standings{model.ResultWin},
		},
		Challenged: Participant{
			ID: "b", Name: "Keisuke", Standings: model.Standings{model.ResultLoss},
		},
		Course: "Downhill",
	}}, decode[[]LiveSession](t, rec))
}

func TestSessionFeed(t *testing.T) {
	feed := NewFeed(16)
	b := broadcast.NewServer("feed", feed.Source())
	defer b.Close()
	srv := httptest.NewServer(New(WithFeed(b)).Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/sessions/feed"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	//nolint:errcheck // test
	resp.Body.Close()
	defer conn.Close()

	// the subscription is registered asynchronously
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		car := sim.NewCar("a", "Takumi")
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				feed.SendSessionState(car, model.Standings{model.ResultTie},
					model.SessionFirstTwo)
			}
		}
	}()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var u Update
	require.NoError(t, conn.ReadJSON(&u))
	assert.Equal(t, UpdateSessionState, u.Kind)
	assert.Equal(t, "a", u.PlayerID)
	require.NotNil(t, u.Standings)
	assert.Equal(t, model.Standings{model.ResultTie}, *u.Standings)
	assert.Equal(t, model.SessionFirstTwo, u.State)
}

func TestFeed_DropsWhenFull(t *testing.T) {
	feed := NewFeed(1)
	car := sim.NewCar("a", "Takumi")
	feed.RatingChanged(car, 1010)
	feed.RatingChanged(car, 1020)

	u := <-feed.Source()
	assert.Equal(t, 1010, u.Rating)
	select {
	case <-feed.Source():
		assert.Fail(t, "second update should have been dropped")
	default:
	}
}
