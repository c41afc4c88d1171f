//nolint:funlen // readability
package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/touge-service-manager-go/pkg/model"
	"github.com/mpapenbr/touge-service-manager-go/testsupport/sim"
)

type raceCall struct {
	leader, follower string
}

type applied struct {
	outcome model.Outcome
	idx     int
}

// scriptedMatch returns the scripted outcomes in order. An exhausted script
// fails the test.
type scriptedMatch struct {
	t          *testing.T
	challenger *sim.Car
	challenged *sim.Car
	script     []func(leader, follower model.Competitor) model.Outcome
	calls      []raceCall
	applied    []applied
	states     []model.SessionState
	cooldowns  int
}

func newScriptedMatch(t *testing.T) *scriptedMatch {
	return &scriptedMatch{
		t:          t,
		challenger: sim.NewCar("a", "Alice"),
		challenged: sim.NewCar("b", "Bob"),
	}
}

func (m *scriptedMatch) Challenger() model.Competitor { return m.challenger }
func (m *scriptedMatch) Challenged() model.Competitor { return m.challenged }

//nolint:whitespace // can't make both editor and linter happy
func (m *scriptedMatch) RunRace(
	_ context.Context, leader, follower model.Competitor,
) model.Outcome {
	m.calls = append(m.calls, raceCall{leader.ID(), follower.ID()})
	require.LessOrEqual(m.t, len(m.calls), len(m.script), "unexpected race")
	return m.script[len(m.calls)-1](leader, follower)
}

func (m *scriptedMatch) ApplyRaceResultToStandings(o model.Outcome, idx int) {
	m.applied = append(m.applied, applied{o, idx})
}

func (m *scriptedMatch) Cooldown(context.Context) { m.cooldowns++ }

func (m *scriptedMatch) SendSessionState(state model.SessionState) {
	m.states = append(m.states, state)
}

func leaderWins(l, _ model.Competitor) model.Outcome   { return model.Win(l) }
func followerWins(_, f model.Competitor) model.Outcome { return model.Win(f) }
func tie(_, _ model.Competitor) model.Outcome          { return model.Tie() }

func (m *scriptedMatch) winBy(c model.Competitor) func(_, _ model.Competitor) model.Outcome {
	return func(_, _ model.Competitor) model.Outcome { return model.Win(c) }
}

//nolint:whitespace // can't make both editor and linter happy
func (m *scriptedMatch) disconnect(
	c model.Competitor,
) func(_, _ model.Competitor) model.Outcome {
	return func(_, _ model.Competitor) model.Outcome { return model.Disconnected(c) }
}

func TestBattleStage(t *testing.T) {
	tests := []struct {
		name      string
		script    func(m *scriptedMatch)
		want      func(m *scriptedMatch) model.Outcome
		races     []raceCall
		states    []model.SessionState
		standings []int
	}{
		{
			name: "challenger wins both",
			script: func(m *scriptedMatch) {
				m.script = append(m.script, m.winBy(m.challenger), m.winBy(m.challenger))
			},
			want:      func(m *scriptedMatch) model.Outcome { return model.Win(m.challenger) },
			races:     []raceCall{{"a", "b"}, {"b", "a"}},
			states:    []model.SessionState{model.SessionFirstTwo},
			standings: []int{0, 1},
		},
		{
			name: "split goes to sudden death",
			script: func(m *scriptedMatch) {
				m.script = append(m.script, leaderWins, leaderWins, tie, tie, leaderWins)
			},
			want:  func(m *scriptedMatch) model.Outcome { return model.Win(m.challenger) },
			races: []raceCall{{"a", "b"}, {"b", "a"}, {"a", "b"}, {"b", "a"}, {"a", "b"}},
			states: []model.SessionState{
				model.SessionFirstTwo, model.SessionSuddenDeath,
			},
			standings: []int{0, 1},
		},
		{
			name: "two ties go to sudden death",
			script: func(m *scriptedMatch) {
				m.script = append(m.script, tie, tie, followerWins)
			},
			want:  func(m *scriptedMatch) model.Outcome { return model.Win(m.challenged) },
			races: []raceCall{{"a", "b"}, {"b", "a"}, {"a", "b"}},
			states: []model.SessionState{
				model.SessionFirstTwo, model.SessionSuddenDeath,
			},
			standings: []int{0, 1},
		},
		{
			name: "tie and win",
			script: func(m *scriptedMatch) {
				m.script = append(m.script, tie, m.winBy(m.challenged))
			},
			want:      func(m *scriptedMatch) model.Outcome { return model.Win(m.challenged) },
			races:     []raceCall{{"a", "b"}, {"b", "a"}},
			states:    []model.SessionState{model.SessionFirstTwo},
			standings: []int{0, 1},
		},
		{
			name: "disconnect in first race",
			script: func(m *scriptedMatch) {
				m.script = append(m.script, m.disconnect(m.challenger))
			},
			want:   func(m *scriptedMatch) model.Outcome { return model.Disconnected(m.challenger) },
			races:  []raceCall{{"a", "b"}},
			states: []model.SessionState{model.SessionFirstTwo},
		},
		{
			name: "loser of first race leaves",
			script: func(m *scriptedMatch) {
				m.script = append(m.script, m.winBy(m.challenger), m.disconnect(m.challenged))
			},
			want:      func(m *scriptedMatch) model.Outcome { return model.Win(m.challenger) },
			races:     []raceCall{{"a", "b"}, {"b", "a"}},
			states:    []model.SessionState{model.SessionFirstTwo},
			standings: []int{0},
		},
		{
			name: "winner of first race leaves",
			script: func(m *scriptedMatch) {
				m.script = append(m.script, m.winBy(m.challenger), m.disconnect(m.challenger))
			},
			want:      func(m *scriptedMatch) model.Outcome { return model.Disconnected(m.challenger) },
			races:     []raceCall{{"a", "b"}, {"b", "a"}},
			states:    []model.SessionState{model.SessionFirstTwo},
			standings: []int{0},
		},
		{
			name: "leaving after a tie",
			script: func(m *scriptedMatch) {
				m.script = append(m.script, tie, m.disconnect(m.challenged))
			},
			want:      func(m *scriptedMatch) model.Outcome { return model.Disconnected(m.challenged) },
			races:     []raceCall{{"a", "b"}, {"b", "a"}},
			states:    []model.SessionState{model.SessionFirstTwo},
			standings: []int{0},
		},
		{
			name: "failed setup in second race",
			script: func(m *scriptedMatch) {
				m.script = append(m.script, m.winBy(m.challenger), m.disconnect(nil))
			},
			want:      func(m *scriptedMatch) model.Outcome { return model.Disconnected(nil) },
			races:     []raceCall{{"a", "b"}, {"b", "a"}},
			states:    []model.SessionState{model.SessionFirstTwo},
			standings: []int{0},
		},
		{
			name: "disconnect in sudden death",
			script: func(m *scriptedMatch) {
				m.script = append(m.script, tie, tie, tie, m.disconnect(m.challenger))
			},
			want:  func(m *scriptedMatch) model.Outcome { return model.Disconnected(m.challenger) },
			races: []raceCall{{"a", "b"}, {"b", "a"}, {"a", "b"}, {"b", "a"}},
			states: []model.SessionState{
				model.SessionFirstTwo, model.SessionSuddenDeath,
			},
			standings: []int{0, 1},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newScriptedMatch(t)
			tt.script(m)
			got := BattleStage{}.RunSession(context.Background(), m)

			assert.Equal(t, tt.want(m), got)
			assert.Equal(t, tt.races, m.calls)
			assert.Equal(t, tt.states, m.states)
			idx := []int{}
			for _, a := range m.applied {
				idx = append(idx, a.idx)
			}
			if tt.standings == nil {
				tt.standings = []int{}
			}
			assert.Equal(t, tt.standings, idx)
			assert.False(t, got.IsTie(), "battle stage never ends with a tie")
		})
	}
}

func TestCatAndMouse(t *testing.T) {
	tests := []struct {
		name      string
		script    func(m *scriptedMatch)
		want      func(m *scriptedMatch) model.Outcome
		races     []raceCall
		standings []int
	}{
		{
			name: "two straight wins",
			script: func(m *scriptedMatch) {
				m.script = append(m.script, m.winBy(m.challenger), m.winBy(m.challenger))
			},
			want:      func(m *scriptedMatch) model.Outcome { return model.Win(m.challenger) },
			races:     []raceCall{{"a", "b"}, {"b", "a"}},
			standings: []int{0, 1},
		},
		{
			name: "ties do not count",
			script: func(m *scriptedMatch) {
				m.script = append(m.script,
					m.winBy(m.challenger), tie, m.winBy(m.challenged), m.winBy(m.challenged))
			},
			want:      func(m *scriptedMatch) model.Outcome { return model.Win(m.challenged) },
			races:     []raceCall{{"a", "b"}, {"b", "a"}, {"a", "b"}, {"b", "a"}},
			standings: []int{0, 1, 2},
		},
		{
			name: "disconnect ends immediately",
			script: func(m *scriptedMatch) {
				m.script = append(m.script, m.winBy(m.challenger), m.disconnect(m.challenged))
			},
			want:      func(m *scriptedMatch) model.Outcome { return model.Disconnected(m.challenged) },
			races:     []raceCall{{"a", "b"}, {"b", "a"}},
			standings: []int{0},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newScriptedMatch(t)
			tt.script(m)
			got := CatAndMouse{}.RunSession(context.Background(), m)

			assert.Equal(t, tt.want(m), got)
			assert.Equal(t, tt.races, m.calls)
			assert.Equal(t, []model.SessionState{model.SessionCatAndMouse}, m.states)
			idx := []int{}
			for _, a := range m.applied {
				idx = append(idx, a.idx)
				assert.True(t, a.outcome.IsWin())
			}
			assert.Equal(t, tt.standings, idx)
		})
	}
}

func TestNewRuleset(t *testing.T) {
	r, err := NewRuleset(model.RulesetBattleStage)
	require.NoError(t, err)
	assert.IsType(t, BattleStage{}, r)

	r, err = NewRuleset(model.RulesetCatAndMouse)
	require.NoError(t, err)
	assert.IsType(t, CatAndMouse{}, r)

	_, err = NewRuleset(model.RulesetType(9))
	assert.Error(t, err)
}
