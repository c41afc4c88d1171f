// Package announce publishes the results of decisive matches.
package announce

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mpapenbr/touge-service-manager-go/log"
	"github.com/mpapenbr/touge-service-manager-go/pkg/model"
)

const DefaultSubject = "touge.match.result"

// Publisher is satisfied by *nats.Conn.
type Publisher interface {
	Publish(subj string, data []byte) error
}

// Broadcaster sends a chat message to every connected client.
type Broadcaster interface {
	ChatAll(msg string)
}

// Result is the wire format of a match result.
type Result struct {
	WinnerID     string    `json:"winnerId"`
	WinnerName   string    `json:"winnerName"`
	WinnerRating int       `json:"winnerRating"`
	LoserID      string    `json:"loserId"`
	LoserName    string    `json:"loserName"`
	LoserRating  int       `json:"loserRating"`
	Course       string    `json:"course,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

func NewResult(r model.MatchResult, ts time.Time) Result {
	return Result{
		WinnerID:     r.Winner.ID(),
		WinnerName:   r.Winner.Name(),
		WinnerRating: r.WinnerRating,
		LoserID:      r.Loser.ID(),
		LoserName:    r.Loser.Name(),
		LoserRating:  r.LoserRating,
		Course:       r.Course,
		Timestamp:    ts,
	}
}

type NatsAnnouncer struct {
	pub     Publisher
	subject string
	now     func() time.Time
	l       *log.Logger
}

type NatsOption func(*NatsAnnouncer)

func WithSubject(s string) NatsOption {
	return func(n *NatsAnnouncer) {
		n.subject = s
	}
}

func WithLogger(l *log.Logger) NatsOption {
	return func(n *NatsAnnouncer) {
		n.l = l
	}
}

func WithClock(now func() time.Time) NatsOption {
	return func(n *NatsAnnouncer) {
		n.now = now
	}
}

func NewNats(pub Publisher, opts ...NatsOption) *NatsAnnouncer {
	ret := &NatsAnnouncer{
		pub:     pub,
		subject: DefaultSubject,
		now:     time.Now,
		l:       log.Default().Named("announce"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

// Announce publishes the result as json. The nats client buffers outgoing
// messages, so this does not wait for the server.
func (n *NatsAnnouncer) Announce(ctx context.Context, r model.MatchResult) {
	data, err := json.Marshal(NewResult(r, n.now()))
	if err != nil {
		n.l.Error("could not marshal result", log.ErrorField(err))
		return
	}
	if err := n.pub.Publish(n.subject, data); err != nil {
		n.l.Warn("could not publish result",
			log.String("subject", n.subject), log.ErrorField(err))
		return
	}
	n.l.Debug("published result", log.String("result", r.String()))
}

// ChatAnnouncer tells everybody on the server who won.
type ChatAnnouncer struct {
	b Broadcaster
}

func NewChat(b Broadcaster) *ChatAnnouncer {
	return &ChatAnnouncer{b: b}
}

func (c *ChatAnnouncer) Announce(ctx context.Context, r model.MatchResult) {
	c.b.ChatAll(r.String())
}

type Announcer interface {
	Announce(ctx context.Context, r model.MatchResult)
}

// Multi forwards results to all announcers in order.
type Multi []Announcer

func (m Multi) Announce(ctx context.Context, r model.MatchResult) {
	for _, a := range m {
		a.Announce(ctx, r)
	}
}
