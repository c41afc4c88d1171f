// Package sqlite implements repository.Store on a local sqlite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/gofrs/uuid/v5"
	_ "modernc.org/sqlite" // registers the sqlite driver

	"github.com/mpapenbr/touge-service-manager-go/pkg/db/migrate"
	"github.com/mpapenbr/touge-service-manager-go/pkg/model"
	"github.com/mpapenbr/touge-service-manager-go/pkg/rating"
	"github.com/mpapenbr/touge-service-manager-go/pkg/repository"
)

type Store struct {
	db *sql.DB
}

var _ repository.Store = (*Store)(nil)

// Open migrates and opens the database file at path.
func Open(path string) (*Store, error) {
	if err := migrate.MigrateSqlite(path); err != nil {
		return nil, fmt.Errorf("migrate %s: %w", path, err)
	}
	db, err := sql.Open("sqlite",
		fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_time_format=sqlite", path))
	if err != nil {
		return nil, err
	}
	// sqlite allows a single writer
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() {
	s.db.Close()
}

func (s *Store) GetPlayerRating(ctx context.Context, id string) (rating.Record, error) {
	var rec rating.Record
	err := s.db.QueryRowContext(ctx,
		playerSelector+" where id=?", id).
		Scan(&rec.PlayerID, &rec.Name, &rec.Rating, &rec.RacesCompleted)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, rating.ErrPlayerNotFound
	}
	return rec, err
}

func (s *Store) UpdatePlayerRating(ctx context.Context, id string, value int) error {
	res, err := s.db.ExecContext(ctx, `
update player set rating=?, races_completed=races_completed+1,
  updated_at=current_timestamp
where id=?`, value, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", rating.ErrPlayerNotFound, id)
	}
	return nil
}

func (s *Store) EnsurePlayer(ctx context.Context, id, name string) error {
	_, err := s.db.ExecContext(ctx, `
insert into player (id, name, rating) values (?, ?, ?)
on conflict (id) do update set name=excluded.name, updated_at=current_timestamp`,
		id, name, rating.InitialRating)
	return err
}

func (s *Store) TopPlayers(ctx context.Context, limit int) ([]rating.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		playerSelector+" order by rating desc, races_completed desc, id limit ?", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ret := []rating.Record{}
	for rows.Next() {
		var rec rating.Record
		if err := rows.Scan(&rec.PlayerID, &rec.Name, &rec.Rating,
			&rec.RacesCompleted); err != nil {
			return nil, err
		}
		ret = append(ret, rec)
	}
	return ret, rows.Err()
}

func (s *Store) RecordMatch(ctx context.Context, rec model.MatchRecord) error {
	if rec.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		rec.ID = id.String()
	}
	winner := sql.NullString{String: rec.WinnerID, Valid: rec.WinnerID != ""}
	started := sql.NullTime{Time: rec.StartedAt, Valid: !rec.StartedAt.IsZero()}
	_, err := s.db.ExecContext(ctx, `
insert into match (id, challenger_id, challenged_id, winner_id, outcome, ruleset,
  race_type, course, races, started_at, finished_at)
values (?,?,?,?,?,?,?,?,?,?,?)`,
		rec.ID, rec.ChallengerID, rec.ChallengedID, winner,
		rec.Outcome.String(), rec.Ruleset.String(), rec.RaceType.String(),
		rec.Course, rec.Races, started, rec.FinishedAt)
	return err
}

func (s *Store) RecentMatches(ctx context.Context, limit int) ([]model.MatchRecord, error) {
	return s.queryMatches(ctx, matchSelector+" order by finished_at desc limit ?", limit)
}

//nolint:whitespace // can't make both editor and linter happy
func (s *Store) PlayerMatches(
	ctx context.Context, playerID string, limit int,
) ([]model.MatchRecord, error) {
	return s.queryMatches(ctx,
		matchSelector+" where challenger_id=? or challenged_id=? "+
			"order by finished_at desc limit ?",
		playerID, playerID, limit)
}

//nolint:whitespace // can't make both editor and linter happy
func (s *Store) queryMatches(
	ctx context.Context, query string, args ...any,
) ([]model.MatchRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ret := []model.MatchRecord{}
	for rows.Next() {
		rec, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		ret = append(ret, rec)
	}
	return ret, rows.Err()
}

func scanMatch(rows *sql.Rows) (model.MatchRecord, error) {
	var (
		item                       model.MatchRecord
		winner                     sql.NullString
		started                    sql.NullTime
		outcome, ruleset, raceType string
		err                        error
	)
	if err = rows.Scan(&item.ID, &item.ChallengerID, &item.ChallengedID, &winner,
		&outcome, &ruleset, &raceType, &item.Course, &item.Races,
		&started, &item.FinishedAt); err != nil {
		return item, err
	}
	item.WinnerID = winner.String
	item.StartedAt = started.Time
	if item.Outcome, err = model.ParseOutcomeKind(outcome); err != nil {
		return item, err
	}
	if item.Ruleset, err = model.ParseRulesetType(ruleset); err != nil {
		return item, err
	}
	if item.RaceType, err = model.ParseRaceType(raceType); err != nil {
		return item, err
	}
	return item, nil
}

const (
	playerSelector = `select id,name,rating,races_completed from player`
	matchSelector  = `select id,challenger_id,challenged_id,winner_id,outcome,
ruleset,race_type,course,races,started_at,finished_at from match`
)
