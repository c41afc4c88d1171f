package session

import (
	"context"
	"fmt"

	"github.com/mpapenbr/touge-service-manager-go/pkg/model"
)

// Match is the view of a session a ruleset works with.
type Match interface {
	Challenger() model.Competitor
	Challenged() model.Competitor
	RunRace(ctx context.Context, leader, follower model.Competitor) model.Outcome
	ApplyRaceResultToStandings(o model.Outcome, idx int)
	Cooldown(ctx context.Context)
	SendSessionState(state model.SessionState)
}

// Ruleset decides the sequence of races and the winner of a match.
type Ruleset interface {
	RunSession(ctx context.Context, m Match) model.Outcome
}

func NewRuleset(t model.RulesetType) (Ruleset, error) {
	switch t {
	case model.RulesetBattleStage:
		return BattleStage{}, nil
	case model.RulesetCatAndMouse:
		return CatAndMouse{}, nil
	}
	return nil, fmt.Errorf("unsupported ruleset %s", t)
}
