//nolint:funlen //ok for this test code
package match

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/touge-service-manager-go/pkg/model"
	"github.com/mpapenbr/touge-service-manager-go/pkg/repository/player"
	"github.com/mpapenbr/touge-service-manager-go/testsupport/testdb"
)

func initTestDb(t *testing.T) *pgxpool.Pool {
	t.Helper()
	pool := testdb.InitTestDb()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, player.Ensure(context.Background(), pool, id, id))
	}
	return pool
}

func sample(challenger, challenged, winner string, finished time.Time) *model.MatchRecord {
	rec := &model.MatchRecord{
		ChallengerID: challenger,
		ChallengedID: challenged,
		WinnerID:     winner,
		Outcome:      model.OutcomeWin,
		Ruleset:      model.RulesetCatAndMouse,
		RaceType:     model.RaceTypeOutrun,
		Course:       "Downhill",
		Races:        3,
		StartedAt:    finished.Add(-5 * time.Minute),
		FinishedAt:   finished,
	}
	if winner == "" {
		rec.Outcome = model.OutcomeDisconnected
	}
	return rec
}

func TestCreate(t *testing.T) {
	pool := initTestDb(t)
	ctx := context.Background()
	finished := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

	rec := sample("a", "b", "a", finished)
	require.NoError(t, Create(ctx, pool, rec))
	assert.NotEmpty(t, rec.ID, "id is generated")

	got, err := ListRecent(ctx, pool, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, rec.ID, got[0].ID)
	assert.Equal(t, "a", got[0].WinnerID)
	assert.Equal(t, model.RulesetCatAndMouse, got[0].Ruleset)
	assert.Equal(t, model.RaceTypeOutrun, got[0].RaceType)
	assert.True(t, finished.Equal(got[0].FinishedAt))

	// the same id must not be stored twice
	dup := *rec
	assert.Error(t, Create(ctx, pool, &dup))

	unknown := sample("a", "zz", "", finished)
	assert.Error(t, Create(ctx, pool, unknown), "players must exist")
}

func TestListByPlayer(t *testing.T) {
	pool := initTestDb(t)
	ctx := context.Background()
	base := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, Create(ctx, pool, sample("a", "b", "a", base)))
	require.NoError(t, Create(ctx, pool, sample("c", "a", "", base.Add(time.Hour))))
	require.NoError(t, Create(ctx, pool, sample("b", "c", "c", base.Add(2*time.Hour))))

	got, err := ListByPlayer(ctx, pool, "a", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].ChallengerID, "latest first")
	assert.Equal(t, model.OutcomeDisconnected, got[0].Outcome)
	assert.Empty(t, got[0].WinnerID)
	assert.Equal(t, "a", got[1].WinnerID)

	got, err = ListRecent(ctx, pool, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "c", got[0].WinnerID)
}
