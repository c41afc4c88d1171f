package race

import (
	"context"

	"github.com/samber/lo"

	"github.com/mpapenbr/touge-service-manager-go/log"
	"github.com/mpapenbr/touge-service-manager-go/pkg/model"
)

const (
	// squared radius around a spawn point that must be free of other cars
	clearAreaSq = 50.0
	// squared distance to the spawn point that counts as teleported
	teleportedSq = 50.0
)

type teleportResult int

const (
	teleportDone teleportResult = iota
	teleportAborted
	teleportTimeout
)

// setup moves both competitors to a starting slot. On failure the returned
// outcome ends the race.
func (r *Race) setup(ctx context.Context) (model.Outcome, bool) {
	r.setPhase(PhaseSetup)
	if len(r.course.StartingSlots) == 0 {
		r.log.Error("course has no starting slots", log.String("course", r.course.Name))
		r.NotifyBoth("Race setup failed.")
		return model.Disconnected(nil), false
	}
	slot, ok := r.findStartingSlot(ctx)
	if !ok {
		return r.aborted("Race cancelled due to player forfeit."), false
	}
	r.slot = slot

	if !r.engine.settings.UseTrackFinish && r.course.FinishLine != nil {
		r.engine.notifier.FinishDisplay(r.leader, false, r.course.FinishLine)
		r.engine.notifier.FinishDisplay(r.follower, false, r.course.FinishLine)
	}

	switch r.teleport(ctx, slot) {
	case teleportAborted:
		return r.aborted("Race cancelled due to player forfeit."), false
	case teleportTimeout:
		r.log.Warn("teleport timed out")
		r.NotifyBoth("Teleportation failed. Race setup timed out.")
		return model.Disconnected(nil), false
	case teleportDone:
	}
	return model.Outcome{}, true
}

// findStartingSlot returns the first slot of the course with both spawn
// points clear. After SlotMaxRetries unsuccessful retries the first slot is
// used anyway. Returns false if the race was aborted while waiting.
func (r *Race) findStartingSlot(ctx context.Context) (model.StartingSlot, bool) {
	for attempt := 0; ; attempt++ {
		if slot, ok := r.clearStartingSlot(); ok {
			return slot, true
		}
		if attempt >= r.engine.timings.SlotMaxRetries {
			r.log.Warn("no clear starting slot, using first slot",
				log.Int("attempts", attempt+1))
			return r.course.StartingSlots[0], true
		}
		if !r.sleep(ctx, r.engine.timings.SlotRetry) {
			return model.StartingSlot{}, false
		}
	}
}

func (r *Race) clearStartingSlot() (model.StartingSlot, bool) {
	others := lo.Filter(r.engine.roster.Competitors(),
		func(c model.Competitor, _ int) bool {
			return c.Connected() && !r.Participant(c)
		})
	positions := lo.Map(others, func(c model.Competitor, _ int) model.Vec3 {
		return c.Status().Position
	})
	isClear := func(spawn model.Vec3) bool {
		return lo.NoneBy(positions, func(p model.Vec3) bool {
			return model.DistanceSquared(p, spawn) < clearAreaSq
		})
	}
	return lo.Find(r.course.StartingSlots, func(s model.StartingSlot) bool {
		return isClear(s.Leader.Position) && isClear(s.Follower.Position)
	})
}

// teleport commands both competitors to the slot and waits until both
// arrived. Controls are unlocked on every exit.
func (r *Race) teleport(ctx context.Context, slot model.StartingSlot) teleportResult {
	defer r.unlockControls()
	r.engine.notifier.Teleport(r.leader, slot.Leader)
	r.engine.notifier.Teleport(r.follower, slot.Follower)

	tctx, cancel := context.WithTimeout(ctx, r.engine.timings.TeleportTimeout)
	defer cancel()
	leaderDone, followerDone := false, false
	for {
		leaderDone = leaderDone ||
			model.DistanceSquared(r.leader.Status().Position, slot.Leader.Position) < teleportedSq
		followerDone = followerDone ||
			model.DistanceSquared(r.follower.Status().Position, slot.Follower.Position) < teleportedSq
		if leaderDone && followerDone {
			return teleportDone
		}
		if !r.sleep(tctx, r.engine.timings.TeleportPoll) {
			if r.abort.IsSet() || ctx.Err() != nil {
				return teleportAborted
			}
			return teleportTimeout
		}
	}
}
