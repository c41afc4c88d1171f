// Package pgstore implements repository.Store on postgres.
package pgstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mpapenbr/touge-service-manager-go/pkg/model"
	"github.com/mpapenbr/touge-service-manager-go/pkg/rating"
	"github.com/mpapenbr/touge-service-manager-go/pkg/repository"
	"github.com/mpapenbr/touge-service-manager-go/pkg/repository/match"
	"github.com/mpapenbr/touge-service-manager-go/pkg/repository/player"
)

type Store struct {
	pool *pgxpool.Pool
}

var _ repository.Store = (*Store)(nil)

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) GetPlayerRating(ctx context.Context, id string) (rating.Record, error) {
	rec, err := player.LoadByID(ctx, s.pool, id)
	if err != nil {
		return rating.Record{}, err
	}
	return *rec, nil
}

func (s *Store) UpdatePlayerRating(ctx context.Context, id string, value int) error {
	n, err := player.UpdateRating(ctx, s.pool, id, value)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", rating.ErrPlayerNotFound, id)
	}
	return nil
}

func (s *Store) EnsurePlayer(ctx context.Context, id, name string) error {
	return player.Ensure(ctx, s.pool, id, name)
}

func (s *Store) RecordMatch(ctx context.Context, rec model.MatchRecord) error {
	return match.Create(ctx, s.pool, &rec)
}

func (s *Store) TopPlayers(ctx context.Context, limit int) ([]rating.Record, error) {
	return player.ListTop(ctx, s.pool, limit)
}

func (s *Store) RecentMatches(ctx context.Context, limit int) ([]model.MatchRecord, error) {
	return match.ListRecent(ctx, s.pool, limit)
}

//nolint:whitespace // can't make both editor and linter happy
func (s *Store) PlayerMatches(
	ctx context.Context, playerID string, limit int,
) ([]model.MatchRecord, error) {
	return match.ListByPlayer(ctx, s.pool, playerID, limit)
}

func (s *Store) Close() {
	s.pool.Close()
}
