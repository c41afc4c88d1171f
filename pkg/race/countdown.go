package race

import (
	"context"
	"fmt"

	"github.com/mpapenbr/touge-service-manager-go/pkg/await"
	"github.com/mpapenbr/touge-service-manager-go/pkg/model"
)

const (
	// squared distance a car may move away from its spawn during countdown
	jumpstartSq = 20.0
	// max squared distance between both cars for a rolling start
	rollingStartSq = 30.0
)

var countdownStages = [...]string{"Ready...", "Set...", "Go!"}

type jumpstart int

const (
	jumpstartNone jumpstart = iota
	jumpstartLeader
	jumpstartFollower
	jumpstartBoth
)

type countdownResult int

const (
	countdownGo countdownResult = iota
	countdownRestart
	countdownDecided
)

// countdown runs the start sequence until the Go signal was sent.
// Returns true with an outcome if the race was decided before the start.
func (r *Race) countdown(ctx context.Context) (model.Outcome, bool) {
	for {
		res, o := r.countdownOnce(ctx)
		switch res {
		case countdownGo:
			return model.Outcome{}, false
		case countdownDecided:
			return o, true
		case countdownRestart:
		}

		r.NotifyBoth("Returning both players to their starting positions.")
		r.NotifyBoth("Race restarting soon...")
		if !r.sleep(ctx, r.engine.timings.Restart) {
			return r.aborted("Race cancelled due to player forfeit."), true
		}
		if o, ok := r.setup(ctx); !ok {
			return o, true
		}
		r.setPhase(PhaseCountdown)
	}
}

//nolint:whitespace // can't make both editor and linter happy
func (r *Race) countdownOnce(ctx context.Context) (
	countdownResult, model.Outcome,
) {
	for i, msg := range countdownStages {
		if !r.engine.settings.RollingStart {
			switch r.checkJumpstart() {
			case jumpstartBoth:
				r.NotifyBoth("Both players made a jumpstart.")
				return countdownRestart, model.Outcome{}
			case jumpstartFollower:
				r.NotifyBoth(fmt.Sprintf("%s made a jumpstart. %s wins this race.",
					r.follower.Name(), r.leader.Name()))
				return countdownDecided, model.Win(r.leader)
			case jumpstartLeader:
				r.NotifyBoth(fmt.Sprintf("%s made a jumpstart. %s wins this race.",
					r.leader.Name(), r.follower.Name()))
				return countdownDecided, model.Win(r.follower)
			case jumpstartNone:
			}
		}

		last := i == len(countdownStages)-1
		if last && r.engine.settings.RollingStart && !r.validRollingStart() {
			r.NotifyBoth("Players are not close enough for a fair rolling start.")
			return countdownRestart, model.Outcome{}
		}
		r.sendTimed(ctx, msg)
		if last {
			return countdownGo, model.Outcome{}
		}
		if !r.sleep(ctx, r.engine.timings.CountdownStep) {
			return countdownDecided, r.aborted("Race cancelled due to player forfeit.")
		}
	}
	return countdownGo, model.Outcome{}
}

func (r *Race) checkJumpstart() jumpstart {
	leaderMoved := model.DistanceSquared(r.leader.Status().Position,
		r.slot.Leader.Position) > jumpstartSq
	followerMoved := model.DistanceSquared(r.follower.Status().Position,
		r.slot.Follower.Position) > jumpstartSq
	switch {
	case leaderMoved && followerMoved:
		return jumpstartBoth
	case leaderMoved:
		return jumpstartLeader
	case followerMoved:
		return jumpstartFollower
	default:
		return jumpstartNone
	}
}

func (r *Race) validRollingStart() bool {
	return model.DistanceSquared(r.leader.Status().Position,
		r.follower.Status().Position) <= rollingStartSq
}

// sendTimed delivers a countdown cue so both competitors see it at about the
// same time: the competitor with the higher ping gets it first, the other one
// after the ping difference.
func (r *Race) sendTimed(ctx context.Context, msg string) {
	high, low := r.follower, r.leader
	if r.leader.Ping() > r.follower.Ping() {
		high, low = r.leader, r.follower
	}
	delay := high.Ping() - low.Ping()
	r.engine.notifier.Notify(high, msg, true)
	r.wg.Go(func() {
		if delay > 0 && !await.Sleep(ctx, delay, nil) {
			return
		}
		r.engine.notifier.Notify(low, msg, true)
	})
}
