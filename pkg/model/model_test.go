package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBearing(t *testing.T) {
	tests := []struct {
		name string
		to   Vec3
		want float64
	}{
		{name: "ahead", to: Vec3{Z: 10}, want: 0},
		{name: "right", to: Vec3{X: 10}, want: 90},
		{name: "behind", to: Vec3{Z: -10}, want: 180},
		{name: "left", to: Vec3{X: -10}, want: 270},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Bearing(Vec3{}, tt.to), 1e-9)
		})
	}
}

func TestParseTypes(t *testing.T) {
	rs, err := ParseRulesetType("CatAndMouse")
	assert.NoError(t, err)
	assert.Equal(t, RulesetCatAndMouse, rs)

	rt, err := ParseRaceType("outrun")
	assert.NoError(t, err)
	assert.Equal(t, RaceTypeOutrun, rt)

	_, err = ParseRaceType("drag")
	assert.Error(t, err)

	for _, k := range []OutcomeKind{OutcomeWin, OutcomeTie, OutcomeDisconnected} {
		got, err := ParseOutcomeKind(k.String())
		assert.NoError(t, err)
		assert.Equal(t, k, got)
	}
	_, err = ParseOutcomeKind("draw")
	assert.Error(t, err)
}

func TestStandings_Reset(t *testing.T) {
	s := Standings{ResultWin, ResultLoss, ResultTie}
	s.Reset()
	assert.Equal(t, Standings{}, s)
}
