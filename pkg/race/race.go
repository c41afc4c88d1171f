package race

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
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/mpapenbr/touge-service-manager-go/log"
	"github.com/mpapenbr/touge-service-manager-go/pkg/await"
	"github.com/mpapenbr/touge-service-manager-go/pkg/model"
)

type Phase int32

const (
	PhaseCreated Phase = iota
	PhaseSetup
	PhasePreStart
	PhaseCountdown
	PhaseRacing
	PhaseFinished
)

func (p Phase) String() string {
	switch p {
	case PhaseCreated:
		return "created"
	case PhaseSetup:
		return "setup"
	case PhasePreStart:
		return "prestart"
	case PhaseCountdown:
		return "countdown"
	case PhaseRacing:
		return "racing"
	case PhaseFinished:
		return "finished"
	}
	return fmt.Sprintf("Phase(%d)", int32(p))
}

// Race is a single race attempt. A Race is run once and then discarded.
type Race struct {
	id       uuid.UUID
	engine   *Engine
	leader   model.Competitor
	follower model.Competitor
	raceType Type
	course   *model.Course
	slot     model.StartingSlot
	phase    atomic.Int32

	// set by forfeit or disconnect, never reset
	abort *await.Signal[model.Competitor]

	lapMu     sync.Mutex
	firstLap  *await.Signal[model.Competitor]
	secondLap *await.Signal[model.Competitor]

	wg  sync.WaitGroup
	log *log.Logger
}

func (r *Race) ID() uuid.UUID { return r.id }

func (r *Race) Leader() model.Competitor { return r.leader }

func (r *Race) Follower() model.Competitor { return r.follower }

func (r *Race) Course() *model.Course { return r.course }

func (r *Race) Phase() Phase { return Phase(r.phase.Load()) }

func (r *Race) Settings() Settings { return r.engine.settings }

func (r *Race) Timings() Timings { return r.engine.timings }

func (r *Race) Logger() *log.Logger { return r.log }

// Abort is closed once a competitor forfeits or disconnects.
func (r *Race) Abort() <-chan struct{} { return r.abort.Done() }

func (r *Race) AbortedBy() (model.Competitor, bool) { return r.abort.Value() }

// Participant reports whether c takes part in this race.
func (r *Race) Participant(c model.Competitor) bool {
	return sameCompetitor(c, r.leader) || sameCompetitor(c, r.follower)
}

// Run executes the race and always returns exactly one outcome.
// A panic inside the race is reported to both competitors and results in a tie.
func (r *Race) Run(ctx context.Context) (outcome model.Outcome) {
	ctx, span := r.engine.tracer.Start(ctx, "race",
		trace.WithAttributes(
			attribute.String("race.id", r.id.String()),
			attribute.String("race.leader", r.leader.ID()),
			attribute.String("race.follower", r.follower.ID()),
			attribute.String("race.course", r.course.Name),
		))
	defer span.End()

	unsubscribe := r.subscribe()
	defer func() {
		unsubscribe()
		r.finish()
		r.log.Info("race finished", log.String("outcome", outcome.String()))
		span.SetAttributes(attribute.String("race.outcome", outcome.Kind.String()))
		if r.engine.outcomes != nil {
			r.engine.outcomes.Add(ctx, 1,
				metric.WithAttributes(attribute.String("outcome", outcome.Kind.String())))
		}
	}()
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("race failed",
				log.Any("panic", p),
				log.String("stack", string(debug.Stack())))
			span.SetStatus(codes.Error, fmt.Sprint(p))
			r.NotifyBoth("There was an error while running the race.")
			outcome = model.Tie()
		}
	}()
	return r.run(ctx)
}

func (r *Race) run(ctx context.Context) model.Outcome {
	if o, ok := r.setup(ctx); !ok {
		return o
	}

	r.setPhase(PhasePreStart)
	r.NotifyBoth("Race starting soon...")
	if !r.sleep(ctx, r.engine.timings.PreStart) {
		return r.aborted("Race cancelled due to player forfeit.")
	}

	r.setPhase(PhaseCountdown)
	if o, decided := r.countdown(ctx); decided {
		return o
	}

	r.setPhase(PhaseRacing)
	return r.raceType.Run(ctx, r)
}

// Forfeit ends the race in favour of nobody. The forfeiting competitor is
// reported as disconnected.
func (r *Race) Forfeit(c model.Competitor) {
	if !r.Participant(c) {
		return
	}
	if r.abort.Set(c) {
		r.log.Info("forfeit", log.String("competitor", c.Name()))
	}
	if !r.engine.settings.UseTrackFinish {
		r.engine.notifier.FinishDisplay(c, false, nil)
	}
	r.unlockControls()
}

// LapCompleted records a finish line crossing. Crossings outside the racing
// phase are ignored.
func (r *Race) LapCompleted(c model.Competitor) {
	if r.Phase() != PhaseRacing || !r.Participant(c) {
		return
	}
	r.lapMu.Lock()
	defer r.lapMu.Unlock()
	first, ok := r.firstLap.Value()
	if !ok {
		r.firstLap.Set(c)
		return
	}
	if !sameCompetitor(first, c) {
		r.secondLap.Set(c)
	}
}

// NotifyBoth sends msg to the follower and then to the leader.
func (r *Race) NotifyBoth(msg string) {
	r.engine.notifier.Notify(r.follower, msg, false)
	r.engine.notifier.Notify(r.leader, msg, false)
}

func (r *Race) now() time.Time {
	return r.engine.now()
}

func (r *Race) subscribe() func() {
	if r.engine.events == nil {
		return func() {}
	}
	var cancels []func()
	for _, car := range []model.Competitor{r.leader, r.follower} {
		cancels = append(cancels, r.engine.events.OnDisconnected(car, func() {
			if r.abort.Set(car) {
				r.log.Info("disconnected", log.String("competitor", car.Name()))
			}
		}))
		if r.engine.settings.UseTrackFinish {
			cancels = append(cancels, r.engine.events.OnLapCompleted(car, func() {
				r.LapCompleted(car)
			}))
		}
	}
	return func() {
		for _, cancel := range cancels {
			cancel()
		}
	}
}

func (r *Race) finish() {
	r.wg.Wait()
	r.unlockControls()
	r.engine.notifier.FinishDisplay(r.leader, false, nil)
	r.engine.notifier.FinishDisplay(r.follower, false, nil)
	r.setPhase(PhaseFinished)
}

func (r *Race) unlockControls() {
	r.engine.notifier.LockControls(r.leader, false)
	r.engine.notifier.LockControls(r.follower, false)
}

func (r *Race) setPhase(p Phase) {
	r.phase.Store(int32(p))
	r.log.Debug("phase", log.String("phase", p.String()))
}

// sleep waits d unless the race is aborted or ctx is done.
func (r *Race) sleep(ctx context.Context, d time.Duration) bool {
	return await.Sleep(ctx, d, r.abort.Done())
}

// aborted builds the outcome for an interrupted phase. A cancelled context
// without forfeit has nobody to blame.
func (r *Race) aborted(msg string) model.Outcome {
	r.NotifyBoth(msg)
	c, _ := r.abort.Value()
	return model.Disconnected(c)
}

func sameCompetitor(a, b model.Competitor) bool {
	return a != nil && b != nil && a.ID() == b.ID()
}
