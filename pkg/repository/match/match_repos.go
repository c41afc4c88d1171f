//nolint:whitespace //can't make both the linter and editor happy :(
package match

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/mpapenbr/touge-service-manager-go/pkg/model"
	"github.com/mpapenbr/touge-service-manager-go/pkg/repository"
)

// Create stores a finished match. A missing id is generated.
func Create(ctx context.Context, conn repository.Querier, rec *model.MatchRecord) error {
	id, err := matchID(rec.ID)
	if err != nil {
		return err
	}
	_, err = conn.Exec(ctx, `
insert into match (id, challenger_id, challenged_id, winner_id, outcome, ruleset,
  race_type, course, races, started_at, finished_at)
values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		id, rec.ChallengerID, rec.ChallengedID, nullable(rec.WinnerID),
		rec.Outcome.String(), rec.Ruleset.String(), rec.RaceType.String(),
		rec.Course, rec.Races, nullableTime(rec.StartedAt), rec.FinishedAt)
	if err != nil {
		return err
	}
	rec.ID = id.String()
	return nil
}

// ListRecent returns the latest matches first.
func ListRecent(
	ctx context.Context,
	conn repository.Querier,
	limit int,
) ([]model.MatchRecord, error) {
	rows, err := conn.Query(ctx,
		fmt.Sprintf("%s order by finished_at desc limit $1", selector), limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, collect)
}

// ListByPlayer returns the latest matches of a player first.
func ListByPlayer(
	ctx context.Context,
	conn repository.Querier,
	playerID string,
	limit int,
) ([]model.MatchRecord, error) {
	rows, err := conn.Query(ctx,
		fmt.Sprintf("%s where challenger_id=$1 or challenged_id=$1 "+
			"order by finished_at desc limit $2", selector),
		playerID, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, collect)
}

func matchID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.NewV7()
	}
	return uuid.FromString(s)
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// little helper
const selector = string(`select id,challenger_id,challenged_id,winner_id,outcome,
ruleset,race_type,course,races,started_at,finished_at from match`)

func collect(row pgx.CollectableRow) (model.MatchRecord, error) {
	var (
		item      model.MatchRecord
		id        uuid.UUID
		winner    *string
		outcome   string
		ruleset   string
		raceType  string
		startedAt *time.Time
		err       error
	)
	if err = row.Scan(&id, &item.ChallengerID, &item.ChallengedID, &winner,
		&outcome, &ruleset, &raceType, &item.Course, &item.Races,
		&startedAt, &item.FinishedAt); err != nil {
		return item, err
	}
	item.ID = id.String()
	if winner != nil {
		item.WinnerID = *winner
	}
	if startedAt != nil {
		item.StartedAt = *startedAt
	}
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
