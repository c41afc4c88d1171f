package race

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/mpapenbr/touge-service-manager-go/log"
	"github.com/mpapenbr/touge-service-manager-go/pkg/model"
)

const (
	// squared distance below which an overtake is possible
	overtakeRangeSq = 2500.0
	// squared movement of the leader within one poll that counts as teleport
	teleportJumpSq = 40000.0
	// lower bound for the squared speed, roughly 1 km/h
	minSpeedSq = 0.07716061728
)

// OutrunRace is a chase without a finish line. The current leader wins by
// opening a gap or by holding the lead long enough. An OutrunRace keeps
// state and must not be reused.
type OutrunRace struct {
	leader       model.Competitor
	chaser       model.Competitor
	lastOvertake time.Time
	lastPos      model.Vec3
}

func (o *OutrunRace) Run(ctx context.Context, r *Race) model.Outcome {
	o.init(r)
	for {
		if ctx.Err() != nil {
			return r.aborted("Race cancelled.")
		}
		if c, ok := r.AbortedBy(); ok {
			r.NotifyBoth("Session ended due to forfeit.")
			return model.Disconnected(c)
		}
		if res, done := o.step(r); done {
			return res
		}
		r.sleep(ctx, r.Timings().OutrunPoll)
	}
}

func (o *OutrunRace) init(r *Race) {
	o.leader, o.chaser = r.leader, r.follower
	o.lastPos = o.leader.Status().Position
	o.lastOvertake = r.now()
}

// step evaluates one poll. Returns true if the race is decided.
func (o *OutrunRace) step(r *Race) (model.Outcome, bool) {
	for _, c := range []model.Competitor{r.leader, r.follower} {
		if !c.Connected() {
			r.log.Debug("competitor disconnected", log.String("competitor", c.Name()))
			return model.Disconnected(c), true
		}
	}

	o.updateLeader(r)

	pos := o.leader.Status().Position
	if model.DistanceSquared(o.lastPos, pos) > teleportJumpSq {
		r.log.Debug("leader teleported, chaser wins")
		r.NotifyBoth(fmt.Sprintf("%s teleported. %s wins!", o.leader.Name(), o.chaser.Name()))
		return model.Win(o.chaser), true
	}
	o.lastPos = pos

	gap := r.Settings().OutrunLeadDistance
	if model.DistanceSquared(pos, o.chaser.Status().Position) > gap*gap {
		r.log.Debug("leader has outrun the chaser")
		r.NotifyBoth(fmt.Sprintf("%s outran %s!", o.leader.Name(), o.chaser.Name()))
		return model.Win(o.leader), true
	}

	if r.now().Sub(o.lastOvertake) > r.Settings().OutrunLeadTimeout {
		r.log.Debug("leader kept the lead long enough")
		r.NotifyBoth(fmt.Sprintf("%s kept the lead long enough and wins!", o.leader.Name()))
		return model.Win(o.leader), true
	}
	return model.Outcome{}, false
}

// updateLeader hands the lead to the trailing car if it is close, faster and
// the other car is ahead of it.
func (o *OutrunRace) updateLeader(r *Race) {
	ls, fs := r.leader.Status(), r.follower.Status()
	leaderAngle := math.Mod(model.Bearing(ls.Position, fs.Position)+ls.Heading, 360)
	followerAngle := math.Mod(model.Bearing(fs.Position, ls.Position)+fs.Heading, 360)
	leaderSpeed := math.Max(minSpeedSq, ls.Velocity.LengthSquared())
	followerSpeed := math.Max(minSpeedSq, fs.Velocity.LengthSquared())
	inRange := model.DistanceSquared(ls.Position, fs.Position) < overtakeRangeSq

	old := o.leader
	switch {
	case inOvertakeCone(leaderAngle) && !sameCompetitor(o.leader, r.leader) &&
		leaderSpeed > followerSpeed && inRange:
		o.leader, o.chaser = r.leader, r.follower
	case inOvertakeCone(followerAngle) && !sameCompetitor(o.leader, r.follower) &&
		followerSpeed > leaderSpeed && inRange:
		o.leader, o.chaser = r.follower, r.leader
	}
	if !sameCompetitor(old, o.leader) {
		r.NotifyBoth(fmt.Sprintf("%s has overtaken %s!", o.leader.Name(), old.Name()))
		o.lastOvertake = r.now()
		o.lastPos = o.leader.Status().Position
	}
}

func inOvertakeCone(angle float64) bool {
	return angle > 90 && angle < 275
}
