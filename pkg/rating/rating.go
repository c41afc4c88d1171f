// Package rating computes skill rating changes after a decisive match.
package rating

import "math"

const (
	DefaultCarRating = 500
	// InitialRating is assigned to players without a completed match.
	InitialRating = 1000
)

// Params controls how much a single match may move a rating.
type Params struct {
	StandardGain         int // K factor for established players
	ProvisionalGain      int // K factor while racesCompleted < ProvisionalThreshold
	ProvisionalThreshold int
}

func DefaultParams() Params {
	return Params{StandardGain: 32, ProvisionalGain: 50, ProvisionalThreshold: 20}
}

// UpdateRating returns the new rating of a player after a match against an
// opponent. Car ratings compensate for a performance gap between the cars:
// a better car lowers the effective rating and dampens the change.
// The result is never negative.
//
//nolint:whitespace // can't make both editor and linter happy
func UpdateRating(
	p Params,
	playerRating, opponentRating int,
	playerCarRating, opponentCarRating int,
	hasWon bool,
	racesCompleted int,
) int {
	// integer division on purpose, car advantage moves in steps of 100 points
	carAdvantage := float64((playerCarRating - opponentCarRating) / 100)
	effective := float64(playerRating) - carAdvantage*100
	expected := 1.0 / (1.0 + math.Pow(10, (float64(opponentRating)-effective)/400.0))

	k := p.StandardGain
	if racesCompleted < p.ProvisionalThreshold {
		k = p.ProvisionalGain
	}
	actual := 0.0
	if hasWon {
		actual = 1.0
	}
	rawChange := float64(k) * (actual - expected)
	carFactor := math.Max(0.5, math.Min(1.5, 1-carAdvantage*0.5))

	newRating := playerRating + int(math.RoundToEven(rawChange*carFactor))
	return max(0, newRating)
}

// CarRatings maps a car model to its performance rating.
type CarRatings map[string]int

func (c CarRatings) Of(carModel string) int {
	if v, ok := c[carModel]; ok {
		return v
	}
	return DefaultCarRating
}
