package announce

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/touge-service-manager-go/pkg/model"
	"github.com/mpapenbr/touge-service-manager-go/testsupport/sim"
)

type published struct {
	subj string
	data []byte
}

type publisher struct {
	msgs []published
	err  error
}

func (p *publisher) Publish(subj string, data []byte) error {
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, published{subj, data})
	return nil
}

type chatAll []string

func (c *chatAll) ChatAll(msg string) { *c = append(*c, msg) }

func sampleResult() model.MatchResult {
	return model.MatchResult{
		Winner:       sim.NewCar("1", "Takumi"),
		Loser:        sim.NewCar("2", "Keisuke"),
		WinnerRating: 1016,
		LoserRating:  984,
		Course:       "Downhill",
	}
}

func TestNatsAnnouncer(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	p := &publisher{}
	a := NewNats(p, WithSubject("touge.test"), WithClock(func() time.Time { return ts }))

	a.Announce(context.Background(), sampleResult())

	require.Len(t, p.msgs, 1)
	assert.Equal(t, "touge.test", p.msgs[0].subj)
	var got Result
	require.NoError(t, json.Unmarshal(p.msgs[0].data, &got))
	assert.Equal(t, Result{
		WinnerID: "1", WinnerName: "Takumi", WinnerRating: 1016,
		LoserID: "2", LoserName: "Keisuke", LoserRating: 984,
		Course: "Downhill", Timestamp: ts,
	}, got)
}

func TestNatsAnnouncer_PublishError(t *testing.T) {
	p := &publisher{err: errors.New("nats: connection closed")}
	a := NewNats(p)
	assert.NotPanics(t, func() { a.Announce(context.Background(), sampleResult()) })
	assert.Empty(t, p.msgs)
}

func TestMulti(t *testing.T) {
	p := &publisher{}
	var chat chatAll
	m := Multi{NewChat(&chat), NewNats(p)}

	m.Announce(context.Background(), sampleResult())

	assert.Equal(t, chatAll{"Takumi beat Keisuke"}, chat)
	assert.Len(t, p.msgs, 1)
	assert.Equal(t, DefaultSubject, p.msgs[0].subj)
}
