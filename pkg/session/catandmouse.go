package session

import (
	"context"

	"github.com/mpapenbr/touge-service-manager-go/pkg/model"
)

const catAndMouseWins = 2

// CatAndMouse alternates the leader every race. The first competitor with
// two won races wins the match. Tied races do not count.
type CatAndMouse struct{}

func (CatAndMouse) RunSession(ctx context.Context, m Match) model.Outcome {
	m.SendSessionState(model.SessionCatAndMouse)

	challengerPoints, challengedPoints := 0, 0
	decisive := 0
	for round := 0; challengerPoints < catAndMouseWins &&
		challengedPoints < catAndMouseWins; round++ {
		leader, follower := m.Challenger(), m.Challenged()
		if round%2 == 1 {
			leader, follower = follower, leader
		}
		result := m.RunRace(ctx, leader, follower)
		if result.IsDisconnected() {
			return model.Disconnected(result.Car)
		}
		if result.IsWin() {
			m.ApplyRaceResultToStandings(result, decisive)
			decisive++
			if sameCompetitor(result.Car, m.Challenger()) {
				challengerPoints++
			} else {
				challengedPoints++
			}
		}
		m.Cooldown(ctx)
	}

	if challengerPoints == catAndMouseWins {
		return model.Win(m.Challenger())
	}
	return model.Win(m.Challenged())
}
