package client

import (
	"encoding/json"

	"github.com/mpapenbr/touge-service-manager-go/pkg/lobby"
	"github.com/mpapenbr/touge-service-manager-go/pkg/model"
)

// Every frame is a json object {"type": ..., "body": {...}}.
type Message struct {
	Type string          `json:"type"`
	Body json.RawMessage `json:"body,omitempty"`
}

// client to server
const (
	MsgHello        = "hello"
	MsgStatus       = "status"
	MsgLapCompleted = "lapCompleted"
	MsgFinish       = "finish"
	MsgInvite       = "invite"
	MsgAccept       = "accept"
	MsgForfeit      = "forfeit"
	MsgNearby       = "nearby"
)

// server to client
const (
	MsgInit            = "init"
	MsgVersionMismatch = "versionMismatch"
	MsgNotify          = "notify"
	MsgChat            = "chat"
	MsgInvitation      = "invitation"
	MsgTeleport        = "teleport"
	MsgLockControls    = "lockControls"
	MsgFinishDisplay   = "finishDisplay"
	MsgSessionState    = "sessionState"
	MsgRating          = "rating"
	MsgNearbyPlayers   = "nearbyPlayers"
)

// NearbyListSize is the number of entries of the nearby players list. The
// list is padded with empty entries.
const NearbyListSize = 5

type Hello struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	CarModel string `json:"carModel"`
	Version  string `json:"version"`
}

type Status struct {
	Position model.Vec3 `json:"position"`
	Velocity model.Vec3 `json:"velocity"`
	Heading  float64    `json:"heading"`
}

// InviteRequest targets the nearest car if ID is empty.
type InviteRequest struct {
	ID string `json:"id,omitempty"`
}

type Init struct {
	Rating         int    `json:"rating"`
	RacesCompleted int    `json:"racesCompleted"`
	UseTrackFinish bool   `json:"useTrackFinish"`
	DiscreteMode   bool   `json:"discreteMode"`
	ServerVersion  string `json:"serverVersion"`
}

type VersionMismatch struct {
	Required string `json:"required"`
	Actual   string `json:"actual"`
}

type Notification struct {
	Message   string `json:"message"`
	Countdown bool   `json:"countdown,omitempty"`
}

type Invitation struct {
	FromID   string `json:"fromId"`
	FromName string `json:"fromName"`
	Rating   int    `json:"rating"`
}

type Teleport struct {
	Position model.Vec3 `json:"position"`
	Heading  float64    `json:"heading"`
}

type LockControls struct {
	Locked bool `json:"locked"`
}

type FinishDisplay struct {
	LookForFinish bool              `json:"lookForFinish"`
	FinishLine    *model.FinishLine `json:"finishLine,omitempty"`
}

type SessionState struct {
	Standings model.Standings    `json:"standings"`
	State     model.SessionState `json:"state"`
}

type RatingUpdate struct {
	Rating int `json:"rating"`
}

type NearbyPlayers struct {
	Players []lobby.NearbyPlayer `json:"players"`
}

func encode(msgType string, body any) ([]byte, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Message{Type: msgType, Body: raw})
}
