// Package repository holds the persistence of players and matches.
package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mpapenbr/touge-service-manager-go/pkg/model"
	"github.com/mpapenbr/touge-service-manager-go/pkg/rating"
)

// Querier is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is the persistence used by the server. Implementations exist for
// postgres and sqlite.
type Store interface {
	rating.Store
	// EnsurePlayer creates the player with the initial rating if needed and
	// keeps the name up to date.
	EnsurePlayer(ctx context.Context, id, name string) error
	RecordMatch(ctx context.Context, rec model.MatchRecord) error
	TopPlayers(ctx context.Context, limit int) ([]rating.Record, error)
	RecentMatches(ctx context.Context, limit int) ([]model.MatchRecord, error)
	PlayerMatches(ctx context.Context, playerID string, limit int) ([]model.MatchRecord, error)
	Close()
}
