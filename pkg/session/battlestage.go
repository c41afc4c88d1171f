package session

import (
	"context"

	"github.com/mpapenbr/touge-service-manager-go/pkg/model"
)

// BattleStage runs two races with swapped roles. If these end even, sudden
// death races with alternating leader follow until one race has a winner.
type BattleStage struct{}

func (b BattleStage) RunSession(ctx context.Context, m Match) model.Outcome {
	m.SendSessionState(model.SessionFirstTwo)
	result := b.firstTwo(ctx, m)
	if result.IsTie() {
		m.SendSessionState(model.SessionSuddenDeath)
		result = b.suddenDeath(ctx, m)
	}
	return result
}

func (b BattleStage) firstTwo(ctx context.Context, m Match) model.Outcome {
	r1 := m.RunRace(ctx, m.Challenger(), m.Challenged())
	if r1.IsDisconnected() {
		return model.Disconnected(r1.Car)
	}
	m.ApplyRaceResultToStandings(r1, 0)
	m.Cooldown(ctx)

	r2 := m.RunRace(ctx, m.Challenged(), m.Challenger())
	if r2.IsDisconnected() {
		// leaving after losing the first race does not avoid the loss
		if r2.Car != nil && r1.IsWin() && !sameCompetitor(r1.Car, r2.Car) {
			return model.Win(r1.Car)
		}
		return model.Disconnected(r2.Car)
	}
	m.ApplyRaceResultToStandings(r2, 1)
	m.Cooldown(ctx)

	if evenSplit(r1, r2) {
		return model.Tie()
	}
	if r1.IsWin() {
		return model.Win(r1.Car)
	}
	return model.Win(r2.Car)
}

func (b BattleStage) suddenDeath(ctx context.Context, m Match) model.Outcome {
	challengerLeads := true
	for first := true; ; first = false {
		// the first two races already ended with a cooldown
		if !first {
			m.Cooldown(ctx)
		}
		leader, follower := m.Challenger(), m.Challenged()
		if !challengerLeads {
			leader, follower = follower, leader
		}
		result := m.RunRace(ctx, leader, follower)
		challengerLeads = !challengerLeads
		if !result.IsTie() {
			return result
		}
	}
}

// evenSplit reports whether two races leave both competitors level: either
// both races were tied or each competitor won one race.
func evenSplit(r1, r2 model.Outcome) bool {
	if r1.IsTie() && r2.IsTie() {
		return true
	}
	return r1.IsWin() && r2.IsWin() && !sameCompetitor(r1.Car, r2.Car)
}
