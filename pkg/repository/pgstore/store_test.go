package pgstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/touge-service-manager-go/pkg/model"
	"github.com/mpapenbr/touge-service-manager-go/pkg/rating"
	"github.com/mpapenbr/touge-service-manager-go/testsupport/testdb"
)

func TestStore_ApplyMatch(t *testing.T) {
	s := New(testdb.InitTestDb())
	ctx := context.Background()
	require.NoError(t, s.EnsurePlayer(ctx, "a", "Alice"))
	require.NoError(t, s.EnsurePlayer(ctx, "b", "Bob"))

	svc := rating.NewService(s)
	w, l, err := svc.ApplyMatch(ctx,
		rating.Player{ID: "a", CarModel: "ks_toyota_ae86"},
		rating.Player{ID: "b", CarModel: "ks_toyota_ae86"})
	require.NoError(t, err)
	// both are provisional
	assert.Equal(t, 1025, w)
	assert.Equal(t, 975, l)

	top, err := s.TopPlayers(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []rating.Record{
		{PlayerID: "a", Name: "Alice", Rating: 1025, RacesCompleted: 1},
		{PlayerID: "b", Name: "Bob", Rating: 975, RacesCompleted: 1},
	}, top)

	require.ErrorIs(t, s.UpdatePlayerRating(ctx, "zz", 1), rating.ErrPlayerNotFound)
}

func TestStore_RecordMatch(t *testing.T) {
	s := New(testdb.InitTestDb())
	ctx := context.Background()
	require.NoError(t, s.EnsurePlayer(ctx, "a", "Alice"))
	require.NoError(t, s.EnsurePlayer(ctx, "b", "Bob"))

	rec := model.MatchRecord{
		ID:           "0196a0f4-3c1e-7d2a-9a51-2b7c0e4f1a11",
		ChallengerID: "a",
		ChallengedID: "b",
		WinnerID:     "b",
		Outcome:      model.OutcomeWin,
		Races:        3,
		FinishedAt:   time.Now().UTC().Truncate(time.Millisecond),
	}
	require.NoError(t, s.RecordMatch(ctx, rec))

	got, err := s.PlayerMatches(ctx, "b", 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, rec.ID, got[0].ID)
	assert.Equal(t, "b", got[0].WinnerID)

	recent, err := s.RecentMatches(ctx, 5)
	require.NoError(t, err)
	assert.Len(t, recent, 1)
}
