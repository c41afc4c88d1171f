// Package cmdutil holds the setup shared by the commands.
package cmdutil

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/mpapenbr/touge-service-manager-go/log"
	"github.com/mpapenbr/touge-service-manager-go/pkg/config"
	"github.com/mpapenbr/touge-service-manager-go/pkg/db/migrate"
	"github.com/mpapenbr/touge-service-manager-go/pkg/db/postgres"
	"github.com/mpapenbr/touge-service-manager-go/pkg/repository"
	"github.com/mpapenbr/touge-service-manager-go/pkg/repository/pgstore"
	"github.com/mpapenbr/touge-service-manager-go/pkg/repository/sqlite"
	"github.com/mpapenbr/touge-service-manager-go/pkg/utils"
)

const defaultWait = 60 * time.Second

func ParseLogLevel(l string, defaultVal log.Level) log.Level {
	level, err := log.ParseLevel(l)
	if err != nil {
		return defaultVal
	}
	return level
}

// SetupLogger creates the logger for the configured format and level and
// installs it as default.
func SetupLogger() (*log.Logger, error) {
	logger := NewLogger(config.LogLevel)
	if config.LogFilter != "" {
		filtered, err := logger.WithFilter(config.LogFilter)
		if err != nil {
			return nil, fmt.Errorf("invalid log filter: %w", err)
		}
		logger = filtered
	}
	log.ResetDefault(logger)
	return logger, nil
}

func NewLogger(level string) *log.Logger {
	switch config.LogFormat {
	case "json":
		return log.New(
			os.Stderr,
			ParseLogLevel(level, log.InfoLevel),
			log.WithCaller(true),
			log.AddCallerSkip(1))
	default:
		return log.DevLogger(
			os.Stderr,
			ParseLogLevel(level, log.DebugLevel),
			log.WithCaller(true),
			log.AddCallerSkip(1))
	}
}

// OpenStore opens the sqlite file in local mode, otherwise the postgres
// database. Migrations are applied in both cases.
//
//nolint:whitespace // can't make both editor and linter happy
func OpenStore(
	ctx context.Context, localMode bool, pgOpts ...postgres.PoolConfigOption,
) (repository.Store, error) {
	if localMode {
		log.Info("Using local database", log.String("file", config.LocalDBFile))
		return sqlite.Open(config.LocalDBFile)
	}
	if err := WaitForRequiredServices(ctx); err != nil {
		return nil, err
	}
	if err := migrate.MigrateDb(config.DB); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	pool, err := postgres.InitWithURL(config.DB, pgOpts...)
	if err != nil {
		return nil, err
	}
	return pgstore.New(pool), nil
}

// WaitForRequiredServices waits for the configured postgres and nats
// servers to accept connections.
func WaitForRequiredServices(ctx context.Context) error {
	timeout, err := config.ParseDuration(config.WaitForServices, defaultWait)
	if err != nil {
		log.Warn("Invalid duration value. Setting default 60s", log.ErrorField(err))
	}
	addrs := []string{}
	if addr := utils.ExtractFromDBURL(config.DB); addr != "" {
		addrs = append(addrs, addr)
	}
	if addr := utils.ExtractFromNatsURL(config.NatsURL); addr != "" {
		addrs = append(addrs, addr)
	}

	var wg sync.WaitGroup
	errs := make([]error, len(addrs))
	for i, addr := range addrs {
		wg.Go(func() {
			errs[i] = utils.WaitForTCP(ctx, addr, timeout)
		})
	}
	log.Debug("Waiting for connection checks to return")
	wg.Wait()
	if err := multierr.Combine(errs...); err != nil {
		return fmt.Errorf("required services not ready: %w", err)
	}
	log.Debug("Required services are available")
	return nil
}
