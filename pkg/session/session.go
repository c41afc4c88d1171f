package session

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mpapenbr/touge-service-manager-go/log"
	"github.com/mpapenbr/touge-service-manager-go/pkg/await"
	"github.com/mpapenbr/touge-service-manager-go/pkg/model"
	"github.com/mpapenbr/touge-service-manager-go/pkg/race"
	"github.com/mpapenbr/touge-service-manager-go/pkg/rating"
)

const (
	challengerIdx = 0
	challengedIdx = 1
)

// Session is a match between a challenger and a challenged competitor.
// At most one race of a session runs at any time.
type Session struct {
	id         uuid.UUID
	m          *Manager
	challenger model.Competitor
	challenged model.Competitor
	ruleset    Ruleset
	course     *model.Course
	onFinish   []func(*Session)

	started atomic.Bool
	done    chan struct{}
	// forfeit given while no race was running
	forfeit *await.Signal[model.Competitor]

	mu        sync.Mutex
	standings [2]model.Standings
	state     model.SessionState
	active    *race.Race
	races     int
	result    model.Outcome
	startedAt time.Time

	log *log.Logger
}

type SessionOption func(*Session)

// OnFinish registers fn to be called when the match is over, before the
// final cooldown.
func OnFinish(fn func(*Session)) SessionOption {
	return func(s *Session) {
		s.onFinish = append(s.onFinish, fn)
	}
}

func WithSessionCourse(c *model.Course) SessionOption {
	return func(s *Session) {
		s.course = c
	}
}

func (s *Session) ID() uuid.UUID { return s.id }

func (s *Session) Challenger() model.Competitor { return s.challenger }

func (s *Session) Challenged() model.Competitor { return s.challenged }

func (s *Session) Course() *model.Course { return s.course }

// IsActive reports whether the session was started.
func (s *Session) IsActive() bool { return s.started.Load() }

// Done is closed after the session finished including the final cooldown.
func (s *Session) Done() <-chan struct{} { return s.done }

// Result is valid after Done is closed.
func (s *Session) Result() model.Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// Participant reports whether c is one of the two competitors.
func (s *Session) Participant(c model.Competitor) bool {
	return sameCompetitor(c, s.challenger) || sameCompetitor(c, s.challenged)
}

func (s *Session) ActiveRace() *race.Race {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Snapshot returns the standings of challenger and challenged and the HUD state.
func (s *Session) Snapshot() (challenger, challenged model.Standings, state model.SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.standings[challengerIdx], s.standings[challengedIdx], s.state
}

// Start runs the session in the background until the match is over or ctx
// is done. Only the first call starts the session; it returns false on
// every further call.
func (s *Session) Start(ctx context.Context) bool {
	if !s.started.CompareAndSwap(false, true) {
		return false
	}
	s.mu.Lock()
	s.startedAt = time.Now()
	s.mu.Unlock()
	s.m.register(s)
	go s.run(ctx)
	return true
}

// Forfeit ends the running race in favour of nobody. A forfeit between
// races prevents the next race.
func (s *Session) Forfeit(c model.Competitor) {
	if !s.Participant(c) {
		return
	}
	s.forfeit.Set(c)
	if r := s.ActiveRace(); r != nil {
		r.Forfeit(c)
	}
}

// LapCompleted forwards a client reported finish to the running race.
func (s *Session) LapCompleted(c model.Competitor) {
	if r := s.ActiveRace(); r != nil {
		r.LapCompleted(c)
	}
}

// RunRace runs a single race and returns its outcome.
//
//nolint:whitespace // can't make both editor and linter happy
func (s *Session) RunRace(
	ctx context.Context,
	leader, follower model.Competitor,
) model.Outcome {
	if ctx.Err() != nil {
		return model.Disconnected(nil)
	}
	if c, ok := s.forfeit.Value(); ok {
		return model.Disconnected(c)
	}
	for _, c := range []model.Competitor{leader, follower} {
		if !c.Connected() {
			return model.Disconnected(c)
		}
	}
	rt, err := race.NewType(s.m.raceType)
	if err != nil {
		s.log.Error("cannot create race", log.ErrorField(err))
		return model.Disconnected(nil)
	}
	r := s.m.engine.NewRace(leader, follower, rt, s.course)
	s.mu.Lock()
	s.active = r
	s.races++
	s.mu.Unlock()
	if c, ok := s.forfeit.Value(); ok {
		r.Forfeit(c)
	}

	outcome := r.Run(ctx)

	s.mu.Lock()
	s.active = nil
	s.mu.Unlock()
	s.log.Debug("race done", log.String("outcome", outcome.String()))
	return outcome
}

// ApplyRaceResultToStandings records a race at the given standings index.
// A race without winner counts as tie for both.
func (s *Session) ApplyRaceResultToStandings(o model.Outcome, idx int) {
	var winner model.Competitor
	if o.IsWin() {
		winner = o.Car
	}
	s.updateStandings(winner, idx, model.SessionNoUpdate)
}

// Cooldown keeps the standings visible between races.
func (s *Session) Cooldown(ctx context.Context) {
	await.Sleep(ctx, s.m.cooldown, s.forfeit.Done())
}

// SendSessionState pushes the current standings with the given HUD state to
// both competitors.
func (s *Session) SendSessionState(state model.SessionState) {
	s.mu.Lock()
	if state != model.SessionNoUpdate {
		s.state = state
	}
	challenger, challenged := s.standings[challengerIdx], s.standings[challengedIdx]
	s.mu.Unlock()
	if s.m.sink == nil {
		return
	}
	s.m.sink.SendSessionState(s.challenger, challenger, state)
	s.m.sink.SendSessionState(s.challenged, challenged, state)
}

//nolint:whitespace // can't make both editor and linter happy
func (s *Session) updateStandings(
	winner model.Competitor, idx int, state model.SessionState,
) {
	if idx < 0 || idx >= model.StandingsSize {
		s.log.Warn("standings index out of range", log.Int("idx", idx))
		return
	}
	s.mu.Lock()
	switch {
	case winner == nil:
		s.standings[challengerIdx][idx] = model.ResultTie
		s.standings[challengedIdx][idx] = model.ResultTie
	case sameCompetitor(winner, s.challenger):
		s.standings[challengerIdx][idx] = model.ResultWin
		s.standings[challengedIdx][idx] = model.ResultLoss
	default:
		s.standings[challengerIdx][idx] = model.ResultLoss
		s.standings[challengedIdx][idx] = model.ResultWin
	}
	s.mu.Unlock()
	s.SendSessionState(state)
}

func (s *Session) run(ctx context.Context) {
	defer close(s.done)
	defer s.m.unregister(s)

	ctx, span := s.m.tracer.Start(ctx, "session",
		trace.WithAttributes(
			attribute.String("session.id", s.id.String()),
			attribute.String("session.challenger", s.challenger.ID()),
			attribute.String("session.challenged", s.challenged.ID()),
			attribute.String("session.ruleset", s.m.ruleset.String()),
		))
	defer span.End()

	s.log.Info("session started")
	result := s.runRuleset(ctx, span)
	s.mu.Lock()
	s.result = result
	s.mu.Unlock()
	span.SetAttributes(attribute.String("session.outcome", result.Kind.String()))
	s.log.Info("session finished", log.String("outcome", result.String()))

	if result.IsWin() {
		s.updateStandings(result.Car, model.StandingsSize-1, model.SessionFinished)
		s.finalizeMatch(ctx, result.Car)
	}
	s.record(ctx, result)
	s.finish(ctx)
}

func (s *Session) runRuleset(ctx context.Context, span trace.Span) (result model.Outcome) {
	defer func() {
		if p := recover(); p != nil {
			s.log.Error("session failed",
				log.Any("panic", p),
				log.String("stack", string(debug.Stack())))
			span.SetStatus(codes.Error, fmt.Sprint(p))
			result = model.Disconnected(nil)
		}
	}()
	return s.ruleset.RunSession(ctx, s)
}

// finalizeMatch updates ratings and announces the winner.
func (s *Session) finalizeMatch(ctx context.Context, winner model.Competitor) {
	loser := s.opponent(winner)
	result := model.MatchResult{Winner: winner, Loser: loser}
	if s.course != nil {
		result.Course = s.course.Name
	}
	if s.m.ratings != nil {
		w, l, err := s.m.ratings.ApplyMatch(ctx,
			rating.Player{ID: winner.ID(), CarModel: winner.CarModel()},
			rating.Player{ID: loser.ID(), CarModel: loser.CarModel()})
		if err != nil {
			s.log.Error("could not update ratings", log.ErrorField(err))
		} else {
			result.WinnerRating, result.LoserRating = w, l
			if s.m.sink != nil {
				s.m.sink.RatingChanged(winner, w)
				s.m.sink.RatingChanged(loser, l)
			}
		}
	}
	if s.m.announcer != nil {
		s.m.announcer.Announce(ctx, result)
	}
}

func (s *Session) record(ctx context.Context, result model.Outcome) {
	if s.m.recorder == nil {
		return
	}
	s.mu.Lock()
	rec := model.MatchRecord{
		ID:           s.id.String(),
		ChallengerID: s.challenger.ID(),
		ChallengedID: s.challenged.ID(),
		Outcome:      result.Kind,
		Ruleset:      s.m.ruleset,
		RaceType:     s.m.raceType,
		Races:        s.races,
		StartedAt:    s.startedAt,
		FinishedAt:   time.Now(),
	}
	s.mu.Unlock()
	if s.course != nil {
		rec.Course = s.course.Name
	}
	if result.IsWin() {
		rec.WinnerID = result.Car.ID()
	}
	if err := s.m.recorder.RecordMatch(ctx, rec); err != nil {
		s.log.Error("could not record match", log.ErrorField(err))
	}
}

// finish detaches the session, keeps the final standings visible for the
// cooldown and then resets the HUD.
func (s *Session) finish(ctx context.Context) {
	for _, fn := range s.onFinish {
		fn(s)
	}
	await.Sleep(ctx, s.m.cooldown, nil)
	s.mu.Lock()
	s.standings[challengerIdx].Reset()
	s.standings[challengedIdx].Reset()
	s.mu.Unlock()
	s.SendSessionState(model.SessionOff)
}

func (s *Session) opponent(c model.Competitor) model.Competitor {
	if sameCompetitor(c, s.challenger) {
		return s.challenged
	}
	return s.challenger
}

func sameCompetitor(a, b model.Competitor) bool {
	return a != nil && b != nil && a.ID() == b.ID()
}
