//nolint:errcheck // testsetup
package tcpostgres

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/mpapenbr/touge-service-manager-go/pkg/db/migrate"
	database "github.com/mpapenbr/touge-service-manager-go/pkg/db/postgres"
)

// SetupTestDb starts (or reuses) the test container and returns a pool on
// the migrated database.
func SetupTestDb() *pgxpool.Pool {
	ctx := context.Background()
	container, err := Start(ctx,
		WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(5*time.Second)),
		WithName("touge-service-manager-test"),
	)
	if err != nil {
		log.Fatal(err)
	}
	dbURL, err := container.ConnString(ctx)
	if err != nil {
		log.Fatal(err)
	}
	return migratedPool(dbURL)
}

// SetupExternalTestDb uses the database referenced by TESTDB_URL
func SetupExternalTestDb() *pgxpool.Pool {
	return migratedPool(os.Getenv("TESTDB_URL"))
}

func migratedPool(dbURL string) *pgxpool.Pool {
	if err := migrate.MigrateDb(dbURL); err != nil {
		log.Fatal(err)
	}
	pool, err := database.InitWithURL(dbURL)
	if err != nil {
		log.Fatal(err)
	}
	return pool
}

func ClearMatchTable(pool *pgxpool.Pool) {
	pool.Exec(context.Background(), "delete from match")
}

func ClearPlayerTable(pool *pgxpool.Pool) {
	pool.Exec(context.Background(), "delete from player")
}

func ClearAllTables(pool *pgxpool.Pool) {
	ClearMatchTable(pool)
	ClearPlayerTable(pool)
}
