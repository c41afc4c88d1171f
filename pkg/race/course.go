package race

import (
	"context"
	"fmt"

	"github.com/mpapenbr/touge-service-manager-go/pkg/await"
	"github.com/mpapenbr/touge-service-manager-go/pkg/model"
)

// CourseRace is won by the follower if it crosses the finish line first.
// The leader wins if the follower does not cross within the outrun time
// after the leader did. Otherwise the race is a tie.
type CourseRace struct{}

func (c *CourseRace) Run(ctx context.Context, r *Race) model.Outcome {
	if !r.Settings().UseTrackFinish {
		r.engine.notifier.FinishDisplay(r.leader, true, nil)
		r.engine.notifier.FinishDisplay(r.follower, true, nil)
	}

	if _, err := await.First(ctx, r.Abort(), r.firstLap.Done()); err != nil {
		return r.aborted("Race cancelled.")
	}
	if r.abort.IsSet() {
		return r.aborted("Race cancelled due to disconnection or forfeit.")
	}
	first, _ := r.firstLap.Value()
	if sameCompetitor(first, r.follower) {
		r.NotifyBoth(fmt.Sprintf("%s overtook %s. %s wins!",
			r.follower.Name(), r.leader.Name(), r.follower.Name()))
		return model.Win(r.follower)
	}

	tctx, cancel := context.WithTimeout(ctx, r.Settings().OutrunTime)
	defer cancel()
	idx, _ := await.First(tctx, r.Abort(), r.secondLap.Done())
	switch {
	case idx == 0:
		return r.aborted("Race cancelled due to disconnection or forfeit.")
	case idx == 1:
		r.NotifyBoth(fmt.Sprintf("%s did not pull away. It's a tie!", r.leader.Name()))
		return model.Tie()
	case ctx.Err() != nil:
		return r.aborted("Race cancelled.")
	default:
		r.NotifyBoth(fmt.Sprintf("%s did not finish in time. %s wins!",
			r.follower.Name(), r.leader.Name()))
		return model.Win(r.leader)
	}
}
