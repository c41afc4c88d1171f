package migrate

import (
	"embed"
	"errors"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations
var migrations embed.FS

// MigrateDb applies the postgres migrations to the database at dbURI
// (postgresql://... or postgres://...).
func MigrateDb(dbURI string) error {
	for _, scheme := range []string{"postgresql://", "postgres://"} {
		if strings.HasPrefix(dbURI, scheme) {
			dbURI = "pgx5://" + strings.TrimPrefix(dbURI, scheme)
			break
		}
	}
	return up("migrations/postgres", dbURI)
}

// MigrateSqlite applies the sqlite migrations to the database file at path.
func MigrateSqlite(path string) error {
	return up("migrations/sqlite", "sqlite://"+path)
}

func up(dir, dbURI string) error {
	source, err := iofs.New(migrations, dir)
	if err != nil {
		return err
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, dbURI)
	if err != nil {
		return err
	}
	defer m.Close()

	err = m.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}

	return nil
}
