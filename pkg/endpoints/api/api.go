// Package api serves the public HTTP API: leaderboard, players, match
// history, live sessions and a websocket feed for spectators.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/samber/lo"

	"github.com/mpapenbr/touge-service-manager-go/log"
	"github.com/mpapenbr/touge-service-manager-go/pkg/model"
	"github.com/mpapenbr/touge-service-manager-go/pkg/rating"
	"github.com/mpapenbr/touge-service-manager-go/pkg/session"
	"github.com/mpapenbr/touge-service-manager-go/pkg/utils/broadcast"
	"github.com/mpapenbr/touge-service-manager-go/pkg/utils/cache"
	"github.com/mpapenbr/touge-service-manager-go/pkg/utils/cache/loadercache"
	"github.com/mpapenbr/touge-service-manager-go/version"
)

const (
	defaultLimit = 20
	maxLimit     = 100
	feedWait     = 10 * time.Second
)

// Reader is the read side of the store.
type Reader interface {
	GetPlayerRating(ctx context.Context, playerID string) (rating.Record, error)
	TopPlayers(ctx context.Context, limit int) ([]rating.Record, error)
	RecentMatches(ctx context.Context, limit int) ([]model.MatchRecord, error)
	PlayerMatches(ctx context.Context, playerID string, limit int) ([]model.MatchRecord, error)
}

// SessionLister is satisfied by *session.Manager.
type SessionLister interface {
	Sessions() []*session.Session
}

type Server struct {
	e                *echo.Echo
	store            Reader
	sessions         SessionLister
	feed             broadcast.Server[Update]
	clients          http.Handler
	provisionalRaces int
	leaderboardTTL   time.Duration
	top              cache.Cache[int, []rating.Record]
	upgrader         websocket.Upgrader
	l                *log.Logger
}

type Option func(*Server)

func WithStore(r Reader) Option {
	return func(s *Server) {
		s.store = r
	}
}

func WithSessions(l SessionLister) Option {
	return func(s *Server) {
		s.sessions = l
	}
}

func WithFeed(b broadcast.Server[Update]) Option {
	return func(s *Server) {
		s.feed = b
	}
}

// WithClientHandler mounts the websocket endpoint of the game clients at
// /ws/client.
func WithClientHandler(h http.Handler) Option {
	return func(s *Server) {
		s.clients = h
	}
}

func WithProvisionalRaces(n int) Option {
	return func(s *Server) {
		s.provisionalRaces = n
	}
}

// WithLeaderboardTTL caches leaderboard queries per limit for d.
func WithLeaderboardTTL(d time.Duration) Option {
	return func(s *Server) {
		s.leaderboardTTL = d
	}
}

func WithLogger(l *log.Logger) Option {
	return func(s *Server) {
		s.l = l
	}
}

func New(opts ...Option) *Server {
	ret := &Server{
		e:                echo.New(),
		provisionalRaces: rating.DefaultParams().ProvisionalThreshold,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		l: log.Default().Named("api"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	if ret.store != nil && ret.leaderboardTTL > 0 {
		ret.top = loadercache.New(
			loadercache.WithLoader[int, []rating.Record](ret.store.TopPlayers),
			loadercache.WithExpiration[int, []rating.Record](ret.leaderboardTTL),
			loadercache.WithLogger[int, []rating.Record](ret.l.Named("leaderboard")),
		)
	}
	ret.e.HideBanner = true
	ret.e.HidePort = true
	ret.e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod: true,
		LogURI:    true,
		LogStatus: true,
		LogError:  true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			fields := []log.Field{
				log.Int("status", v.Status),
				log.String("method", v.Method),
				log.String("uri", v.URI),
			}
			if v.Error != nil {
				fields = append(fields, log.ErrorField(v.Error))
			}
			switch {
			case v.Status >= 500:
				ret.l.Error("http request", fields...)
			case v.Status >= 400:
				ret.l.Warn("http request", fields...)
			default:
				ret.l.Debug("http request", fields...)
			}
			return nil
		},
	}))
	ret.e.Use(middleware.Recover())
	ret.routes()
	return ret
}

// Handler returns the root handler of the API.
func (s *Server) Handler() http.Handler {
	return s.e
}

func (s *Server) routes() {
	s.e.GET("/healthz", s.health)
	g := s.e.Group("/api/v1")
	g.GET("/leaderboard", s.leaderboard)
	g.GET("/players/:id", s.player)
	g.GET("/players/:id/matches", s.playerMatches)
	g.GET("/matches", s.recentMatches)
	g.GET("/sessions", s.liveSessions)
	g.GET("/sessions/feed", s.sessionFeed)
	if s.clients != nil {
		s.e.GET("/ws/client", echo.WrapHandler(s.clients))
	}
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Version,
	})
}

func (s *Server) leaderboard(c echo.Context) error {
	if s.store == nil {
		return echo.ErrServiceUnavailable
	}
	limit, err := limitParam(c)
	if err != nil {
		return err
	}
	var list []rating.Record
	if s.top != nil {
		list, err = s.top.Get(c.Request().Context(), limit)
	} else {
		list, err = s.store.TopPlayers(c.Request().Context(), limit)
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, lo.Map(list, func(r rating.Record, _ int) Player {
		return toPlayer(r, s.provisionalRaces)
	}))
}

func (s *Server) player(c echo.Context) error {
	if s.store == nil {
		return echo.ErrServiceUnavailable
	}
	rec, err := s.store.GetPlayerRating(c.Request().Context(), c.Param("id"))
	if errors.Is(err, rating.ErrPlayerNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "player not found")
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toPlayer(rec, s.provisionalRaces))
}

func (s *Server) playerMatches(c echo.Context) error {
	if s.store == nil {
		return echo.ErrServiceUnavailable
	}
	limit, err := limitParam(c)
	if err != nil {
		return err
	}
	list, err := s.store.PlayerMatches(c.Request().Context(), c.Param("id"), limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toMatches(list))
}

func (s *Server) recentMatches(c echo.Context) error {
	if s.store == nil {
		return echo.ErrServiceUnavailable
	}
	limit, err := limitParam(c)
	if err != nil {
		return err
	}
	list, err := s.store.RecentMatches(c.Request().Context(), limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toMatches(list))
}

func (s *Server) liveSessions(c echo.Context) error {
	ret := []LiveSession{}
	if s.sessions != nil {
		ret = lo.Map(s.sessions.Sessions(), func(x *session.Session, _ int) LiveSession {
			return toLiveSession(x)
		})
	}
	return c.JSON(http.StatusOK, ret)
}

// sessionFeed streams feed updates to a spectator until either side quits.
func (s *Server) sessionFeed(c echo.Context) error {
	if s.feed == nil {
		return echo.ErrServiceUnavailable
	}
	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	updates := s.feed.Subscribe()
	defer s.feed.CancelSubscription(updates)

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	for {
		select {
		case <-gone:
			return nil
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			//nolint:errcheck // checked by the write
			conn.SetWriteDeadline(time.Now().Add(feedWait))
			if err := conn.WriteJSON(u); err != nil {
				s.l.Debug("spectator gone", log.ErrorField(err))
				return nil
			}
		}
	}
}

func limitParam(c echo.Context) (int, error) {
	v := c.QueryParam("limit")
	if v == "" {
		return defaultLimit, nil
	}
	limit, err := strconv.Atoi(v)
	if err != nil || limit < 1 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive number")
	}
	return min(limit, maxLimit), nil
}
