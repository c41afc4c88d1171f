// Package session runs a match between two competitors. A ruleset decides
// which races are run and when the match is over.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/mpapenbr/touge-service-manager-go/log"
	"github.com/mpapenbr/touge-service-manager-go/pkg/await"
	"github.com/mpapenbr/touge-service-manager-go/pkg/model"
	"github.com/mpapenbr/touge-service-manager-go/pkg/race"
	"github.com/mpapenbr/touge-service-manager-go/pkg/rating"
)

const DefaultCooldown = 6 * time.Second

// StateSink updates the HUD of a competitor.
type StateSink interface {
	SendSessionState(c model.Competitor, standings model.Standings, state model.SessionState)
	RatingChanged(c model.Competitor, rating int)
}

// Sinks forwards HUD updates to several sinks.
type Sinks []StateSink

//nolint:whitespace // can't make both editor and linter happy
func (s Sinks) SendSessionState(
	c model.Competitor, st model.Standings, state model.SessionState,
) {
	for _, sink := range s {
		sink.SendSessionState(c, st, state)
	}
}

func (s Sinks) RatingChanged(c model.Competitor, rating int) {
	for _, sink := range s {
		sink.RatingChanged(c, rating)
	}
}

// Announcer publishes the result of a decisive match. Implementations must
// not block.
type Announcer interface {
	Announce(ctx context.Context, result model.MatchResult)
}

type MatchRecorder interface {
	RecordMatch(ctx context.Context, rec model.MatchRecord) error
}

// Manager creates sessions and keeps track of the running ones.
type Manager struct {
	engine    *race.Engine
	ratings   *rating.Service
	sink      StateSink
	announcer Announcer
	recorder  MatchRecorder
	ruleset   model.RulesetType
	raceType  model.RaceType
	course    *model.Course
	cooldown  time.Duration
	log       *log.Logger
	tracer    trace.Tracer

	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
}

type Option func(*Manager)

func WithEngine(e *race.Engine) Option {
	return func(m *Manager) {
		m.engine = e
	}
}

func WithRatings(s *rating.Service) Option {
	return func(m *Manager) {
		m.ratings = s
	}
}

func WithStateSink(s StateSink) Option {
	return func(m *Manager) {
		m.sink = s
	}
}

func WithAnnouncer(a Announcer) Option {
	return func(m *Manager) {
		m.announcer = a
	}
}

func WithMatchRecorder(r MatchRecorder) Option {
	return func(m *Manager) {
		m.recorder = r
	}
}

func WithRuleset(t model.RulesetType) Option {
	return func(m *Manager) {
		m.ruleset = t
	}
}

func WithRaceType(t model.RaceType) Option {
	return func(m *Manager) {
		m.raceType = t
	}
}

func WithCourse(c *model.Course) Option {
	return func(m *Manager) {
		m.course = c
	}
}

func WithCooldown(d time.Duration) Option {
	return func(m *Manager) {
		m.cooldown = d
	}
}

func WithLogger(l *log.Logger) Option {
	return func(m *Manager) {
		m.log = l
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(m *Manager) {
		m.tracer = t
	}
}

func NewManager(opts ...Option) *Manager {
	ret := &Manager{
		ruleset:  model.RulesetBattleStage,
		raceType: model.RaceTypeCourse,
		cooldown: DefaultCooldown,
		log:      log.Default().Named("session"),
		sessions: map[uuid.UUID]*Session{},
	}
	for _, opt := range opts {
		opt(ret)
	}
	if ret.engine == nil {
		ret.engine = race.NewEngine()
	}
	if ret.tracer == nil {
		ret.tracer = otel.Tracer("tsm")
	}
	ret.setupMetrics()
	return ret
}

func (m *Manager) setupMetrics() {
	meter := otel.GetMeterProvider().Meter("tsm.session")
	if _, err := meter.Int64ObservableGauge("tsm.session.active",
		metric.WithDescription("Number of running sessions"),
		metric.WithUnit("{count}"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(len(m.Sessions())))
			return nil
		})); err != nil {
		m.log.Error("failed to register metric", log.ErrorField(err))
	}
}

func (m *Manager) Ruleset() model.RulesetType { return m.ruleset }

func (m *Manager) RaceType() model.RaceType { return m.raceType }

// Sessions returns the started sessions that are not finished yet.
func (m *Manager) Sessions() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return lo.Values(m.sessions)
}

// NewSession creates a session that is not started yet.
//
//nolint:whitespace // can't make both editor and linter happy
func (m *Manager) NewSession(
	challenger, challenged model.Competitor,
	opts ...SessionOption,
) (*Session, error) {
	rs, err := NewRuleset(m.ruleset)
	if err != nil {
		return nil, err
	}
	id := uuid.New()
	s := &Session{
		id:         id,
		m:          m,
		challenger: challenger,
		challenged: challenged,
		ruleset:    rs,
		course:     m.course,
		forfeit:    await.NewSignal[model.Competitor](),
		done:       make(chan struct{}),
		log: m.log.With(
			log.String("session", id.String()),
			log.String("challenger", challenger.Name()),
			log.String("challenged", challenged.Name())),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (m *Manager) register(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.id] = s
}

func (m *Manager) unregister(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, s.id)
}
