package api

import (
	"time"

	"github.com/mpapenbr/touge-service-manager-go/log"
	"github.com/mpapenbr/touge-service-manager-go/pkg/model"
)

const (
	UpdateSessionState = "sessionState"
	UpdateRating       = "rating"
)

// Update is a single entry of the spectator feed.
type Update struct {
	Kind      string             `json:"kind"`
	PlayerID  string             `json:"playerId"`
	Name      string             `json:"name"`
	Standings *model.Standings   `json:"standings,omitempty"`
	State     model.SessionState `json:"state,omitempty"`
	Rating    int                `json:"rating,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
}

// Feed collects the HUD updates of all sessions for spectators. It is used
// as session.StateSink next to the client hub. Updates are dropped while the
// feed is congested.
type Feed struct {
	out chan Update
	now func() time.Time
	l   *log.Logger
}

func NewFeed(size int) *Feed {
	return &Feed{
		out: make(chan Update, size),
		now: time.Now,
		l:   log.Default().Named("api.feed"),
	}
}

// Source is the channel to be served by a broadcast server.
func (f *Feed) Source() <-chan Update {
	return f.out
}

//nolint:whitespace // can't make both editor and linter happy
func (f *Feed) SendSessionState(
	c model.Competitor, standings model.Standings, state model.SessionState,
) {
	f.push(Update{
		Kind:      UpdateSessionState,
		PlayerID:  c.ID(),
		Name:      c.Name(),
		Standings: &standings,
		State:     state,
	})
}

func (f *Feed) RatingChanged(c model.Competitor, rating int) {
	f.push(Update{
		Kind:     UpdateRating,
		PlayerID: c.ID(),
		Name:     c.Name(),
		Rating:   rating,
	})
}

func (f *Feed) push(u Update) {
	u.Timestamp = f.now()
	select {
	case f.out <- u:
	default:
		f.l.Debug("feed congested, dropping update", log.String("kind", u.Kind))
	}
}
