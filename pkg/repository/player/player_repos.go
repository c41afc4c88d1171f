//nolint:whitespace //can't make both the linter and editor happy :(
package player

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mpapenbr/touge-service-manager-go/pkg/rating"
	"github.com/mpapenbr/touge-service-manager-go/pkg/repository"
)

// Ensure creates the player if missing. An existing player only gets the
// name updated.
func Ensure(ctx context.Context, conn repository.Querier, id, name string) error {
	_, err := conn.Exec(ctx, `
insert into player (id, name, rating) values ($1, $2, $3)
on conflict (id) do update set name=excluded.name, updated_at=now()`,
		id, name, rating.InitialRating)
	return err
}

// LoadByID returns rating.ErrPlayerNotFound for unknown players.
func LoadByID(
	ctx context.Context,
	conn repository.Querier,
	id string,
) (*rating.Record, error) {
	row := conn.QueryRow(ctx, fmt.Sprintf("%s where id=$1", selector), id)
	var item rating.Record
	if err := scan(&item, row); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, rating.ErrPlayerNotFound
		}
		return nil, err
	}
	return &item, nil
}

// UpdateRating stores the rating and counts one more completed match.
// Returns the number of rows updated.
func UpdateRating(
	ctx context.Context,
	conn repository.Querier,
	id string,
	value int,
) (int, error) {
	cmdTag, err := conn.Exec(ctx, `
update player set rating=$1, races_completed=races_completed+1, updated_at=now()
where id=$2`, value, id)
	if err != nil {
		return 0, err
	}
	return int(cmdTag.RowsAffected()), nil
}

// ListTop returns the players ordered by rating.
func ListTop(
	ctx context.Context,
	conn repository.Querier,
	limit int,
) ([]rating.Record, error) {
	rows, err := conn.Query(ctx,
		fmt.Sprintf("%s order by rating desc, races_completed desc, id limit $1", selector),
		limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (rating.Record, error) {
		var item rating.Record
		err := scan(&item, row)
		return item, err
	})
}

// deletes an entry from the database, returns number of rows deleted.
func DeleteByID(ctx context.Context, conn repository.Querier, id string) (int, error) {
	cmdTag, err := conn.Exec(ctx, "delete from player where id=$1", id)
	if err != nil {
		return 0, err
	}
	return int(cmdTag.RowsAffected()), nil
}

// little helper
const selector = string(`select id,name,rating,races_completed from player`)

func scan(e *rating.Record, row pgx.Row) error {
	return row.Scan(&e.PlayerID, &e.Name, &e.Rating, &e.RacesCompleted)
}
