package rating

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	records   map[string]Record
	updateErr error
}

func (m *memStore) GetPlayerRating(_ context.Context, id string) (Record, error) {
	r, ok := m.records[id]
	if !ok {
		return Record{}, ErrPlayerNotFound
	}
	return r, nil
}

func (m *memStore) UpdatePlayerRating(_ context.Context, id string, rating int) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	r := m.records[id]
	r.Rating = rating
	r.RacesCompleted++
	m.records[id] = r
	return nil
}

func TestService_ApplyMatch(t *testing.T) {
	store := &memStore{records: map[string]Record{
		"a": {PlayerID: "a", Rating: 1000, RacesCompleted: 30},
		"b": {PlayerID: "b", Rating: 1000, RacesCompleted: 3},
	}}
	svc := NewService(store, WithCarRatings(CarRatings{"fast": 700, "slow": 500}))

	w, l, err := svc.ApplyMatch(context.Background(),
		Player{ID: "a", CarModel: "slow"},
		Player{ID: "b", CarModel: "slow"})
	require.NoError(t, err)
	assert.Equal(t, 1016, w)
	assert.Equal(t, 975, l) // provisional loser
	assert.Equal(t, 31, store.records["a"].RacesCompleted)
	assert.Equal(t, 4, store.records["b"].RacesCompleted)
}

func TestService_ApplyMatch_UnknownPlayer(t *testing.T) {
	store := &memStore{records: map[string]Record{"a": {PlayerID: "a", Rating: 1000}}}
	svc := NewService(store)
	_, _, err := svc.ApplyMatch(context.Background(), Player{ID: "a"}, Player{ID: "x"})
	assert.ErrorIs(t, err, ErrPlayerNotFound)
	assert.Equal(t, 1000, store.records["a"].Rating)
}

func TestService_ApplyMatch_UpdateError(t *testing.T) {
	boom := errors.New("boom")
	store := &memStore{
		records: map[string]Record{
			"a": {PlayerID: "a", Rating: 1000},
			"b": {PlayerID: "b", Rating: 1000},
		},
		updateErr: boom,
	}
	_, _, err := NewService(store).ApplyMatch(context.Background(),
		Player{ID: "a"}, Player{ID: "b"})
	assert.ErrorIs(t, err, boom)
}
