package model

import "fmt"

type OutcomeKind int

const (
	OutcomeWin OutcomeKind = iota
	OutcomeTie
	OutcomeDisconnected
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeWin:
		return "win"
	case OutcomeTie:
		return "tie"
	case OutcomeDisconnected:
		return "disconnected"
	}
	return fmt.Sprintf("unknown(%d)", int(k))
}

func ParseOutcomeKind(s string) (OutcomeKind, error) {
	switch s {
	case "win":
		return OutcomeWin, nil
	case "tie":
		return OutcomeTie, nil
	case "disconnected":
		return OutcomeDisconnected, nil
	}
	return 0, fmt.Errorf("unknown outcome %q", s)
}

// Outcome is the result of a race or a whole session.
// Car is the winner for OutcomeWin, the competitor that dropped out for
// OutcomeDisconnected (nil if no one is to blame, e.g. a failed setup)
// and nil for OutcomeTie.
type Outcome struct {
	Kind OutcomeKind
	Car  Competitor
}

func Win(c Competitor) Outcome {
	return Outcome{Kind: OutcomeWin, Car: c}
}

func Tie() Outcome {
	return Outcome{Kind: OutcomeTie}
}

func Disconnected(c Competitor) Outcome {
	return Outcome{Kind: OutcomeDisconnected, Car: c}
}

func (o Outcome) IsWin() bool          { return o.Kind == OutcomeWin }
func (o Outcome) IsTie() bool          { return o.Kind == OutcomeTie }
func (o Outcome) IsDisconnected() bool { return o.Kind == OutcomeDisconnected }

func (o Outcome) String() string {
	if o.Car == nil {
		return o.Kind.String()
	}
	return fmt.Sprintf("%s(%s)", o.Kind, o.Car.Name())
}
