package migrate

import (
	"github.com/spf13/cobra"

	"github.com/mpapenbr/touge-service-manager-go/log"
	"github.com/mpapenbr/touge-service-manager-go/pkg/cmd/cmdutil"
	"github.com/mpapenbr/touge-service-manager-go/pkg/config"
	"github.com/mpapenbr/touge-service-manager-go/pkg/db/migrate"
)

var local bool

func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "performs database migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return startMigration(cmd)
		},
	}
	cmd.Flags().BoolVar(&local,
		"local",
		false,
		"migrate the local sqlite database instead of postgres")
	return cmd
}

func startMigration(cmd *cobra.Command) error {
	if _, err := cmdutil.SetupLogger(); err != nil {
		return err
	}
	if local {
		log.Info("Migrating local database", log.String("file", config.LocalDBFile))
		return migrate.MigrateSqlite(config.LocalDBFile)
	}
	if err := cmdutil.WaitForRequiredServices(cmd.Context()); err != nil {
		return err
	}
	log.Info("Migrating database")
	if err := migrate.MigrateDb(config.DB); err != nil {
		log.Error("migration failed", log.ErrorField(err))
		return err
	}
	log.Info("Database is up to date")
	return nil
}
