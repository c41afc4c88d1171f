package api

import (
	"time"

	"github.com/samber/lo"

	"github.com/mpapenbr/touge-service-manager-go/pkg/model"
	"github.com/mpapenbr/touge-service-manager-go/pkg/rating"
	"github.com/mpapenbr/touge-service-manager-go/pkg/session"
)

type Player struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Rating         int    `json:"rating"`
	RacesCompleted int    `json:"racesCompleted"`
	Provisional    bool   `json:"provisional"`
}

type Match struct {
	ID           string     `json:"id"`
	ChallengerID string     `json:"challengerId"`
	ChallengedID string     `json:"challengedId"`
	WinnerID     string     `json:"winnerId,omitempty"`
	Outcome      string     `json:"outcome"`
	Ruleset      string     `json:"ruleset"`
	RaceType     string     `json:"raceType"`
	Course       string     `json:"course,omitempty"`
	Races        int        `json:"races"`
	StartedAt    *time.Time `json:"startedAt,omitempty"`
	FinishedAt   time.Time  `json:"finishedAt"`
}

type Participant struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Standings model.Standings `json:"standings"`
}

type LiveSession struct {
	ID         string             `json:"id"`
	Challenger Participant        `json:"challenger"`
	Challenged Participant        `json:"challenged"`
	State      model.SessionState `json:"state"`
	Course     string             `json:"course,omitempty"`
	// phase of the running race, empty between races
	RacePhase string `json:"racePhase,omitempty"`
}

func toPlayer(r rating.Record, provisionalRaces int) Player {
	return Player{
		ID:             r.PlayerID,
		Name:           r.Name,
		Rating:         r.Rating,
		RacesCompleted: r.RacesCompleted,
		Provisional:    r.RacesCompleted < provisionalRaces,
	}
}

func toMatch(m model.MatchRecord) Match {
	ret := Match{
		ID:           m.ID,
		ChallengerID: m.ChallengerID,
		ChallengedID: m.ChallengedID,
		WinnerID:     m.WinnerID,
		Outcome:      m.Outcome.String(),
		Ruleset:      m.Ruleset.String(),
		RaceType:     m.RaceType.String(),
		Course:       m.Course,
		Races:        m.Races,
		FinishedAt:   m.FinishedAt,
	}
	if !m.StartedAt.IsZero() {
		ret.StartedAt = lo.ToPtr(m.StartedAt)
	}
	return ret
}

func toMatches(list []model.MatchRecord) []Match {
	return lo.Map(list, func(m model.MatchRecord, _ int) Match { return toMatch(m) })
}

func toLiveSession(s *session.Session) LiveSession {
	challenger, challenged, state := s.Snapshot()
	ret := LiveSession{
		ID: s.ID().String(),
		Challenger: Participant{
			ID: s.Challenger().ID(), Name: s.Challenger().Name(), Standings: challenger,
		},
		Challenged: Participant{
			ID: s.Challenged().ID(), Name: s.Challenged().Name(), Standings: challenged,
		},
		State: state,
	}
	if c := s.Course(); c != nil {
		ret.Course = c.Name
	}
	if r := s.ActiveRace(); r != nil {
		ret.RacePhase = r.Phase().String()
	}
	return ret
}
