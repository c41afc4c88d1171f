// Package race runs a single head-to-head race between a leader and a
// follower: starting slot search, teleport, countdown and the race itself.
package race

import (
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/mpapenbr/touge-service-manager-go/log"
	"github.com/mpapenbr/touge-service-manager-go/pkg/await"
	"github.com/mpapenbr/touge-service-manager-go/pkg/model"
)

// Roster provides a snapshot of all connected competitors.
// The snapshot may be slightly stale.
type Roster interface {
	Competitors() []model.Competitor
}

// Notifier delivers commands and messages to a competitor's client.
type Notifier interface {
	Notify(c model.Competitor, msg string, countdown bool)
	Teleport(c model.Competitor, spawn model.CarSpawn)
	LockControls(c model.Competitor, locked bool)
	// FinishDisplay toggles client side finish detection. A non-nil line
	// replaces the finish line known to the client.
	FinishDisplay(c model.Competitor, lookForFinish bool, line *model.FinishLine)
}

// EventSource registers callbacks for competitor events.
// The returned function removes the registration.
type EventSource interface {
	OnLapCompleted(c model.Competitor, fn func()) (cancel func())
	OnDisconnected(c model.Competitor, fn func()) (cancel func())
}

type Settings struct {
	RollingStart   bool
	UseTrackFinish bool
	// time the leader has to stay ahead after crossing the finish line
	OutrunTime         time.Duration
	OutrunLeadDistance float64
	OutrunLeadTimeout  time.Duration
}

func DefaultSettings() Settings {
	return Settings{
		OutrunTime:         1500 * time.Millisecond,
		OutrunLeadDistance: 750,
		OutrunLeadTimeout:  120 * time.Second,
	}
}

// Timings holds every delay used by a race.
type Timings struct {
	SlotRetry       time.Duration
	SlotMaxRetries  int
	TeleportPoll    time.Duration
	TeleportTimeout time.Duration
	PreStart        time.Duration
	CountdownStep   time.Duration
	Restart         time.Duration
	OutrunPoll      time.Duration
}

func DefaultTimings() Timings {
	return Timings{
		SlotRetry:       250 * time.Millisecond,
		SlotMaxRetries:  40,
		TeleportPoll:    250 * time.Millisecond,
		TeleportTimeout: 10 * time.Second,
		PreStart:        3 * time.Second,
		CountdownStep:   time.Second,
		Restart:         3 * time.Second,
		OutrunPoll:      250 * time.Millisecond,
	}
}

type Engine struct {
	roster   Roster
	notifier Notifier
	events   EventSource
	settings Settings
	timings  Timings
	now      func() time.Time
	log      *log.Logger
	tracer   trace.Tracer
	outcomes metric.Int64Counter
}

type Option func(*Engine)

func WithRoster(r Roster) Option {
	return func(e *Engine) {
		e.roster = r
	}
}

func WithNotifier(n Notifier) Option {
	return func(e *Engine) {
		e.notifier = n
	}
}

func WithEventSource(s EventSource) Option {
	return func(e *Engine) {
		e.events = s
	}
}

func WithSettings(s Settings) Option {
	return func(e *Engine) {
		e.settings = s
	}
}

func WithTimings(t Timings) Option {
	return func(e *Engine) {
		e.timings = t
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

func WithLogger(l *log.Logger) Option {
	return func(e *Engine) {
		e.log = l
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = t
	}
}

func NewEngine(opts ...Option) *Engine {
	ret := &Engine{
		settings: DefaultSettings(),
		timings:  DefaultTimings(),
		now:      time.Now,
		log:      log.Default().Named("race"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	if ret.tracer == nil {
		ret.tracer = otel.Tracer("tsm")
	}
	if ret.roster == nil {
		ret.roster = emptyRoster{}
	}
	if ret.notifier == nil {
		ret.notifier = discardNotifier{}
	}
	meter := otel.GetMeterProvider().Meter("tsm.race")
	var err error
	if ret.outcomes, err = meter.Int64Counter("tsm.race.outcome",
		metric.WithDescription("Number of finished races by outcome"),
		metric.WithUnit("{count}")); err != nil {
		ret.log.Error("failed to register metric", log.ErrorField(err))
	}
	return ret
}

func (e *Engine) Settings() Settings {
	return e.settings
}

func (e *Engine) Timings() Timings {
	return e.timings
}

// NewRace prepares a race. Nothing happens until Run is called.
//
//nolint:whitespace // can't make both editor and linter happy
func (e *Engine) NewRace(
	leader, follower model.Competitor,
	raceType Type,
	course *model.Course,
) *Race {
	if course == nil {
		// fails during setup for lack of starting slots
		course = &model.Course{}
	}
	id := uuid.New()
	return &Race{
		id:        id,
		engine:    e,
		leader:    leader,
		follower:  follower,
		raceType:  raceType,
		course:    course,
		abort:     await.NewSignal[model.Competitor](),
		firstLap:  await.NewSignal[model.Competitor](),
		secondLap: await.NewSignal[model.Competitor](),
		log: e.log.With(
			log.String("race", id.String()),
			log.String("leader", leader.Name()),
			log.String("follower", follower.Name())),
	}
}

type emptyRoster struct{}

func (emptyRoster) Competitors() []model.Competitor { return nil }

type discardNotifier struct{}

func (discardNotifier) Notify(model.Competitor, string, bool)                    {}
func (discardNotifier) Teleport(model.Competitor, model.CarSpawn)                {}
func (discardNotifier) LockControls(model.Competitor, bool)                      {}
func (discardNotifier) FinishDisplay(model.Competitor, bool, *model.FinishLine) {}
