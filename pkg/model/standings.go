package model

// ResultCounter is a single entry of the standings shown on the HUD.
type ResultCounter int

const (
	ResultTBD ResultCounter = iota
	ResultWin
	ResultLoss
	ResultTie
)

const StandingsSize = 3

type Standings [StandingsSize]ResultCounter

func (s *Standings) Reset() {
	for i := range s {
		s[i] = ResultTBD
	}
}

// SessionState controls what the HUD shows. Values are part of the client protocol.
type SessionState int

const (
	SessionOff SessionState = iota
	SessionFirstTwo
	SessionSuddenDeath
	SessionFinished
	SessionCatAndMouse
	SessionNoUpdate
)
