package model

import "time"

// MatchRecord is the persisted summary of a finished session.
type MatchRecord struct {
	ID           string
	ChallengerID string
	ChallengedID string
	// empty unless Outcome is OutcomeWin
	WinnerID   string
	Outcome    OutcomeKind
	Ruleset    RulesetType
	RaceType   RaceType
	Course     string
	Races      int
	StartedAt  time.Time
	FinishedAt time.Time
}

// MatchResult describes a decisive match for announcements.
type MatchResult struct {
	Winner       Competitor
	Loser        Competitor
	WinnerRating int
	LoserRating  int
	Course       string
}

func (m MatchResult) String() string {
	return m.Winner.Name() + " beat " + m.Loser.Name()
}
