package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // by design
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/nats-io/nats.go"
	"github.com/rs/cors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	otlpruntime "go.opentelemetry.io/contrib/instrumentation/runtime"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/sync/errgroup"

	"github.com/mpapenbr/touge-service-manager-go/log"
	"github.com/mpapenbr/touge-service-manager-go/pkg/announce"
	"github.com/mpapenbr/touge-service-manager-go/pkg/cmd/cmdutil"
	"github.com/mpapenbr/touge-service-manager-go/pkg/config"
	"github.com/mpapenbr/touge-service-manager-go/pkg/course"
	"github.com/mpapenbr/touge-service-manager-go/pkg/db/postgres"
	"github.com/mpapenbr/touge-service-manager-go/pkg/endpoints/api"
	"github.com/mpapenbr/touge-service-manager-go/pkg/endpoints/client"
	"github.com/mpapenbr/touge-service-manager-go/pkg/lobby"
	"github.com/mpapenbr/touge-service-manager-go/pkg/model"
	"github.com/mpapenbr/touge-service-manager-go/pkg/race"
	"github.com/mpapenbr/touge-service-manager-go/pkg/rating"
	"github.com/mpapenbr/touge-service-manager-go/pkg/repository"
	"github.com/mpapenbr/touge-service-manager-go/pkg/session"
	"github.com/mpapenbr/touge-service-manager-go/pkg/utils/broadcast"
)

const (
	feedSize        = 256
	shutdownTimeout = 10 * time.Second
	leaderboardTTL  = 5 * time.Second
)

var appConfig config.Config // holds processed config values

//nolint:funlen // by design
func NewServerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "starts the touge service manager",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			appConfig = config.Default()
			if err := viper.Unmarshal(&appConfig); err != nil {
				return fmt.Errorf("read config: %w", err)
			}
			return appConfig.Validate()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return startServer(cmd.Context())
		},
	}
	cmd.Flags().StringVarP(&config.ServerAddr,
		"server-addr",
		"a",
		"localhost:8080",
		"listen address for the API and the game clients")
	cmd.Flags().StringVar(&config.LogLevel,
		"log-level",
		"info",
		"controls the log level (debug, info, warn, error, fatal)")
	cmd.Flags().StringVar(&config.SQLLogLevel,
		"sql-log-level",
		"debug",
		"controls the log level for sql methods")
	cmd.Flags().StringVar(&config.LogFormat,
		"log-format",
		"json",
		"controls the log output format")
	cmd.Flags().StringVar(&config.LogFilter,
		"log-filter",
		"",
		"zapfilter rules, e.g. '*:session* error:*'")
	cmd.Flags().BoolVar(&config.EnableTelemetry,
		"enable-telemetry",
		false,
		"enables telemetry")
	cmd.Flags().StringVar(&config.TelemetryEndpoint,
		"telemetry-endpoint",
		"localhost:4317",
		"Endpoint that receives open telemetry data")
	cmd.Flags().IntVar(&config.ProfilingPort,
		"profiling-port",
		0,
		"port to use for providing profiling data")
	cmd.Flags().StringVar(&config.NatsURL,
		"nats-url",
		"",
		"URL of the NATS server for match announcements")
	cmd.Flags().StringVar(&config.NatsSubject,
		"nats-subject",
		announce.DefaultSubject,
		"subject for match announcements")
	cmd.Flags().StringVar(&config.CourseFile,
		"course-file",
		"courses.yml",
		"file with the course definitions")
	cmd.Flags().StringVar(&config.TrackName,
		"track",
		"",
		"track name as reported by the game server")
	cmd.Flags().StringVar(&config.CourseName,
		"course",
		"",
		"course to use (default: first course of the track)")
	cmd.Flags().StringVar(&config.MinClientVersion,
		"min-client-version",
		"",
		"oldest supported client version")
	return cmd
}

//nolint:funlen,cyclop // by design
func startServer(ctx context.Context) error {
	logger, err := cmdutil.SetupLogger()
	if err != nil {
		return err
	}
	watchLogLevel(logger)

	if config.ProfilingPort > 0 {
		log.Info("Starting profiling server on port", log.Int("port", config.ProfilingPort))
		go func() {
			//nolint:gosec // by design
			err := http.ListenAndServe(
				fmt.Sprintf("localhost:%d", config.ProfilingPort),
				nil)
			if err != nil {
				log.Error("Profiling server stopped", log.ErrorField(err))
			}
		}()
	}

	pgTraceOption := postgres.WithTracer(
		cmdutil.NewLogger(config.SQLLogLevel).Named("sql"), log.DebugLevel)
	if config.EnableTelemetry {
		log.Info("Enabling telemetry")
		if telemetry, err := config.SetupTelemetry(ctx); err == nil {
			defer telemetry.Shutdown()
			pgTraceOption = postgres.WithOtlpTracer()
		} else {
			log.Warn("Could not setup telemetry", log.ErrorField(err))
		}
		err = otlpruntime.Start(otlpruntime.WithMinimumReadMemStatsInterval(time.Second))
		if err != nil {
			log.Warn("Could not start runtime metrics", log.ErrorField(err))
		}
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := loadCourse()
	if err != nil {
		return err
	}

	store, err := cmdutil.OpenStore(ctx, appConfig.LocalDBMode, pgTraceOption)
	if err != nil {
		log.Error("could not open the database", log.ErrorField(err))
		return err
	}
	defer store.Close()

	announcers := announce.Multi{}
	if config.NatsURL != "" {
		nc, err := nats.Connect(config.NatsURL, nats.Name("touge-service-manager"))
		if err != nil {
			return fmt.Errorf("connect to nats: %w", err)
		}
		defer func() {
			if err := nc.Drain(); err != nil {
				log.Warn("nats drain", log.ErrorField(err))
			}
		}()
		announcers = append(announcers,
			announce.NewNats(nc, announce.WithSubject(config.NatsSubject)))
	}

	feed := api.NewFeed(feedSize)
	feedServer := broadcast.NewServer("sessions", feed.Source())
	defer feedServer.Close()

	hub, manager := wireCore(ctx, store, c, feed, announcers)

	apiServer := api.New(
		api.WithStore(store),
		api.WithSessions(manager),
		api.WithFeed(feedServer),
		api.WithClientHandler(hub),
		api.WithProvisionalRaces(appConfig.ProvisionalRaces),
		api.WithLeaderboardTTL(leaderboardTTL),
	)
	//nolint:gosec // by design
	server := &http.Server{
		Addr:    config.ServerAddr,
		Handler: h2c.NewHandler(newCORS().Handler(apiServer.Handler()), &http2.Server{}),
	}
	setupGoRoutinesDump()

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("Starting server",
			log.String("addr", config.ServerAddr),
			log.String("ruleset", appConfig.Ruleset),
			log.String("raceType", appConfig.RaceType),
			log.String("course", c.Name))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		log.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		log.Error("server stopped", log.ErrorField(err))
		return err
	}
	log.Info("Server terminated")
	return nil
}

// wireCore connects client hub, race engine, sessions and lobby.
//
//nolint:whitespace // can't make both editor and linter happy
func wireCore(
	ctx context.Context,
	store repository.Store,
	c *model.Course,
	feed *api.Feed,
	announcers announce.Multi,
) (*client.Hub, *session.Manager) {
	hub := client.NewHub(
		client.WithContext(ctx),
		client.WithPlayerStore(store),
		client.WithMinVersion(config.MinClientVersion),
		client.WithUseTrackFinish(appConfig.UseTrackFinish),
		client.WithDiscreteMode(appConfig.DiscreteMode),
		client.WithCheckOrigin(func(*http.Request) bool { return true }),
	)
	engine := race.NewEngine(
		race.WithRoster(hub),
		race.WithNotifier(hub),
		race.WithEventSource(hub),
		race.WithSettings(appConfig.RaceSettings()),
	)
	ratings := rating.NewService(store,
		rating.WithParams(appConfig.RatingParams()),
		rating.WithCarRatings(appConfig.CarRatings()),
	)
	manager := session.NewManager(
		session.WithEngine(engine),
		session.WithRatings(ratings),
		session.WithStateSink(session.Sinks{hub, feed}),
		session.WithAnnouncer(append(announcers, announce.NewChat(hub))),
		session.WithMatchRecorder(store),
		session.WithRuleset(appConfig.RulesetType()),
		session.WithRaceType(appConfig.RaceTypeValue()),
		session.WithCourse(c),
	)
	hub.SetLobby(lobby.New(manager,
		lobby.WithRoster(hub),
		lobby.WithMessenger(hub),
		lobby.WithRatingStore(store),
	))
	return hub, manager
}

func loadCourse() (*model.Course, error) {
	track := course.TrackName(config.TrackName)
	courses, err := course.Load(config.CourseFile, track, appConfig.UseTrackFinish)
	if errors.Is(err, os.ErrNotExist) {
		if err := course.WriteSample(config.CourseFile); err != nil {
			return nil, fmt.Errorf("write sample course file: %w", err)
		}
		log.Warn("Course file not found, a sample was created",
			log.String("file", config.CourseFile))
		return nil, fmt.Errorf("no courses defined in %s", config.CourseFile)
	}
	if err != nil {
		return nil, err
	}
	if config.CourseName == "" {
		return courses.Default(), nil
	}
	if c := courses.Get(config.CourseName); c != nil {
		return c, nil
	}
	return nil, fmt.Errorf("course %q not found for track %s (available: %v)",
		config.CourseName, track, courses.Names())
}

// watchLogLevel applies log level changes of the config file.
func watchLogLevel(logger *log.Logger) {
	if viper.ConfigFileUsed() == "" {
		return
	}
	viper.OnConfigChange(func(e fsnotify.Event) {
		level := viper.GetString("log-level")
		if level == "" {
			return
		}
		l, err := log.ParseLevel(level)
		if err != nil {
			log.Warn("invalid log level", log.String("level", level))
			return
		}
		logger.SetLevel(l)
		log.Info("log level changed",
			log.String("level", level), log.String("file", e.Name))
	})
	viper.WatchConfig()
}

func setupGoRoutinesDump() {
	go func() {
		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGQUIT)
		buf := make([]byte, 1<<20)
		for {
			<-sigs
			stacklen := runtime.Stack(buf, true)
			fmt.Printf("=== received SIGQUIT ===\n*** goroutine dump...\n%s\n*** end\n",
				buf[:stacklen])
		}
	}()
}

func newCORS() *cors.Cors {
	return cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
		},
		AllowOriginFunc: func(origin string) bool {
			return true
		},
		AllowedHeaders: []string{"*"},
	})
}
