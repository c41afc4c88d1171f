// Package client is the websocket endpoint of the game clients. The Hub
// implements the outbound interfaces used by races, sessions and the lobby.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/mod/semver"

	"github.com/mpapenbr/touge-service-manager-go/log"
	"github.com/mpapenbr/touge-service-manager-go/pkg/lobby"
	"github.com/mpapenbr/touge-service-manager-go/pkg/model"
	"github.com/mpapenbr/touge-service-manager-go/pkg/rating"
	"github.com/mpapenbr/touge-service-manager-go/version"
)

const helloTimeout = 10 * time.Second

var (
	ErrHelloExpected  = errors.New("hello expected")
	ErrInvalidHello   = errors.New("invalid hello")
	ErrClientOutdated = errors.New("client version not supported")
)

// PlayerStore provides the player records shown on connect.
type PlayerStore interface {
	EnsurePlayer(ctx context.Context, id, name string) error
	GetPlayerRating(ctx context.Context, playerID string) (rating.Record, error)
}

// Lobby handles the session related requests of a client.
type Lobby interface {
	ChallengeNearby(ctx context.Context, c model.Competitor) error
	ChallengeByID(ctx context.Context, c model.Competitor, id string) error
	Accept(ctx context.Context, c model.Competitor) bool
	Forfeit(c model.Competitor)
	LapCompleted(c model.Competitor)
	Release(c model.Competitor)
	Nearby(ctx context.Context, c model.Competitor, n int) []lobby.NearbyPlayer
}

type handler struct {
	id int
	fn func()
}

type Hub struct {
	ctx            context.Context
	upgrader       websocket.Upgrader
	store          PlayerStore
	minVersion     string
	useTrackFinish bool
	discreteMode   bool
	log            *log.Logger

	mu          sync.RWMutex
	lobby       Lobby
	clients     map[string]*Client
	nextHandler int
	laps        map[string][]handler
	disconnects map[string][]handler
}

type Option func(*Hub)

// WithContext bounds the lifetime of the sessions started by clients.
func WithContext(ctx context.Context) Option {
	return func(h *Hub) {
		h.ctx = ctx
	}
}

func WithPlayerStore(s PlayerStore) Option {
	return func(h *Hub) {
		h.store = s
	}
}

// WithMinVersion rejects clients older than v (semver, "v" prefix optional).
func WithMinVersion(v string) Option {
	return func(h *Hub) {
		h.minVersion = canonicalVersion(v)
	}
}

func WithUseTrackFinish(b bool) Option {
	return func(h *Hub) {
		h.useTrackFinish = b
	}
}

func WithDiscreteMode(b bool) Option {
	return func(h *Hub) {
		h.discreteMode = b
	}
}

func WithCheckOrigin(fn func(r *http.Request) bool) Option {
	return func(h *Hub) {
		h.upgrader.CheckOrigin = fn
	}
}

func WithLogger(l *log.Logger) Option {
	return func(h *Hub) {
		h.log = l
	}
}

func NewHub(opts ...Option) *Hub {
	ret := &Hub{
		ctx: context.Background(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		log:         log.Default().Named("client"),
		clients:     map[string]*Client{},
		laps:        map[string][]handler{},
		disconnects: map[string][]handler{},
	}
	for _, opt := range opts {
		opt(ret)
	}
	ret.setupMetrics()
	return ret
}

// SetLobby connects the hub with the lobby. The lobby itself needs the hub,
// so this cannot be an option.
func (h *Hub) SetLobby(l Lobby) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lobby = l
}

func (h *Hub) setupMetrics() {
	meter := otel.GetMeterProvider().Meter("tsm.client")
	if _, err := meter.Int64ObservableGauge("tsm.client.connected",
		metric.WithDescription("Number of connected game clients"),
		metric.WithUnit("{count}"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			h.mu.RLock()
			defer h.mu.RUnlock()
			o.Observe(int64(len(h.clients)))
			return nil
		})); err != nil {
		h.log.Error("failed to register metric", log.ErrorField(err))
	}
}

// ServeHTTP upgrades the connection and serves the client until it
// disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("upgrade failed", log.ErrorField(err))
		return
	}
	hello, err := h.readHello(conn)
	if err != nil {
		h.log.Info("handshake failed",
			log.String("remote", r.RemoteAddr), log.ErrorField(err))
		h.reject(conn, hello, err)
		return
	}
	c := h.connect(conn, hello)
	h.welcome(c)
	go c.writeLoop()
	c.readLoop(func(msg Message) { h.dispatch(c, msg) })
	h.disconnect(c)
}

func (h *Hub) readHello(conn *websocket.Conn) (Hello, error) {
	var hello Hello
	//nolint:errcheck // checked by the read
	conn.SetReadDeadline(time.Now().Add(helloTimeout))
	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		return hello, err
	}
	if msg.Type != MsgHello {
		return hello, ErrHelloExpected
	}
	if err := json.Unmarshal(msg.Body, &hello); err != nil || hello.ID == "" {
		return hello, ErrInvalidHello
	}
	if !h.versionSupported(hello.Version) {
		return hello, ErrClientOutdated
	}
	return hello, nil
}

func (h *Hub) versionSupported(v string) bool {
	if h.minVersion == "" {
		return true
	}
	actual := canonicalVersion(v)
	return semver.IsValid(actual) && semver.Compare(actual, h.minVersion) >= 0
}

func (h *Hub) reject(conn *websocket.Conn, hello Hello, err error) {
	if errors.Is(err, ErrClientOutdated) {
		if data, encErr := encode(MsgVersionMismatch, VersionMismatch{
			Required: h.minVersion,
			Actual:   hello.Version,
		}); encErr == nil {
			//nolint:errcheck // closing anyway
			conn.WriteMessage(websocket.TextMessage, data)
		}
	}
	//nolint:errcheck // closing anyway
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()),
		time.Now().Add(writeWait))
	//nolint:errcheck // closing anyway
	conn.Close()
}

// connect registers the client. An older connection of the same player is
// dropped.
func (h *Hub) connect(conn *websocket.Conn, hello Hello) *Client {
	c := &Client{
		id:       hello.ID,
		name:     hello.Name,
		carModel: hello.CarModel,
		version:  hello.Version,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		done:     make(chan struct{}),
		log: h.log.With(
			log.String("player", hello.ID),
			log.String("name", hello.Name)),
	}
	c.connected.Store(true)
	h.mu.Lock()
	old := h.clients[c.id]
	h.clients[c.id] = c
	h.mu.Unlock()
	if old != nil {
		c.log.Info("replacing previous connection")
		old.Close()
	}
	c.log.Info("client connected", log.String("car", c.carModel))
	return c
}

func (h *Hub) welcome(c *Client) {
	reply := Init{
		Rating:         rating.InitialRating,
		UseTrackFinish: h.useTrackFinish,
		DiscreteMode:   h.discreteMode,
		ServerVersion:  version.Version,
	}
	if h.store != nil {
		if err := h.store.EnsurePlayer(h.ctx, c.id, c.name); err != nil {
			c.log.Error("could not ensure player", log.ErrorField(err))
		}
		rec, err := h.store.GetPlayerRating(h.ctx, c.id)
		if err == nil {
			reply.Rating, reply.RacesCompleted = rec.Rating, rec.RacesCompleted
		} else if !errors.Is(err, rating.ErrPlayerNotFound) {
			c.log.Error("could not read rating", log.ErrorField(err))
		}
	}
	c.Send(MsgInit, reply)
}

func (h *Hub) disconnect(c *Client) {
	c.Close()
	h.mu.Lock()
	if h.clients[c.id] == c {
		delete(h.clients, c.id)
	}
	l := h.lobby
	h.mu.Unlock()
	c.log.Info("client disconnected")
	h.fire(h.disconnects, c.id)
	if l != nil {
		l.Release(c)
	}
}

//nolint:cyclop // dispatcher
func (h *Hub) dispatch(c *Client, msg Message) {
	h.mu.RLock()
	l := h.lobby
	h.mu.RUnlock()
	switch msg.Type {
	case MsgStatus:
		var s Status
		if err := json.Unmarshal(msg.Body, &s); err != nil {
			c.log.Debug("invalid status", log.ErrorField(err))
			return
		}
		c.setStatus(s)
	case MsgLapCompleted:
		h.fire(h.laps, c.id)
	case MsgFinish:
		if l != nil {
			l.LapCompleted(c)
		}
	case MsgInvite:
		if l == nil {
			return
		}
		var req InviteRequest
		if len(msg.Body) > 0 {
			if err := json.Unmarshal(msg.Body, &req); err != nil {
				c.log.Debug("invalid invite", log.ErrorField(err))
				return
			}
		}
		var err error
		if req.ID == "" {
			err = l.ChallengeNearby(h.ctx, c)
		} else {
			err = l.ChallengeByID(h.ctx, c, req.ID)
		}
		if err != nil {
			c.log.Debug("invite not sent", log.ErrorField(err))
		}
	case MsgAccept:
		if l != nil && !l.Accept(h.ctx, c) {
			c.log.Debug("nothing to accept")
		}
	case MsgForfeit:
		if l != nil {
			l.Forfeit(c)
		}
	case MsgNearby:
		if l == nil {
			return
		}
		c.Send(MsgNearbyPlayers, NearbyPlayers{
			Players: padNearby(l.Nearby(h.ctx, c, NearbyListSize)),
		})
	default:
		c.log.Debug("unknown message", log.String("type", msg.Type))
	}
}

// Competitors returns the connected clients.
func (h *Hub) Competitors() []model.Competitor {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return lo.MapToSlice(h.clients, func(_ string, c *Client) model.Competitor { return c })
}

// Client returns the connected client with the given id.
func (h *Hub) Client(id string) (*Client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[id]
	return c, ok
}

func (h *Hub) Notify(c model.Competitor, msg string, countdown bool) {
	h.send(c, MsgNotify, Notification{Message: msg, Countdown: countdown})
}

func (h *Hub) Chat(c model.Competitor, msg string) {
	h.send(c, MsgChat, Notification{Message: msg})
}

// ChatAll sends msg to every connected client.
func (h *Hub) ChatAll(msg string) {
	for _, c := range h.Competitors() {
		h.send(c, MsgChat, Notification{Message: msg})
	}
}

func (h *Hub) Invite(to, from model.Competitor, r int) {
	h.send(to, MsgInvitation, Invitation{FromID: from.ID(), FromName: from.Name(), Rating: r})
}

func (h *Hub) Teleport(c model.Competitor, spawn model.CarSpawn) {
	h.send(c, MsgTeleport, Teleport{Position: spawn.Position, Heading: spawn.Heading})
}

func (h *Hub) LockControls(c model.Competitor, locked bool) {
	h.send(c, MsgLockControls, LockControls{Locked: locked})
}

//nolint:whitespace // can't make both editor and linter happy
func (h *Hub) FinishDisplay(
	c model.Competitor, lookForFinish bool, line *model.FinishLine,
) {
	h.send(c, MsgFinishDisplay, FinishDisplay{LookForFinish: lookForFinish, FinishLine: line})
}

//nolint:whitespace // can't make both editor and linter happy
func (h *Hub) SendSessionState(
	c model.Competitor, standings model.Standings, state model.SessionState,
) {
	h.send(c, MsgSessionState, SessionState{Standings: standings, State: state})
}

func (h *Hub) RatingChanged(c model.Competitor, r int) {
	h.send(c, MsgRating, RatingUpdate{Rating: r})
}

func (h *Hub) OnLapCompleted(c model.Competitor, fn func()) func() {
	return h.register(h.laps, c.ID(), fn)
}

func (h *Hub) OnDisconnected(c model.Competitor, fn func()) func() {
	return h.register(h.disconnects, c.ID(), fn)
}

func (h *Hub) register(m map[string][]handler, id string, fn func()) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextHandler++
	hid := h.nextHandler
	m[id] = append(m[id], handler{id: hid, fn: fn})
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		m[id] = lo.Reject(m[id], func(x handler, _ int) bool { return x.id == hid })
		if len(m[id]) == 0 {
			delete(m, id)
		}
	}
}

func (h *Hub) fire(m map[string][]handler, id string) {
	h.mu.RLock()
	handlers := append([]handler(nil), m[id]...)
	h.mu.RUnlock()
	for _, x := range handlers {
		x.fn()
	}
}

func (h *Hub) send(c model.Competitor, msgType string, body any) {
	if cl, ok := c.(*Client); ok {
		cl.Send(msgType, body)
		return
	}
	if cl, ok := h.Client(c.ID()); ok {
		cl.Send(msgType, body)
	}
}

func padNearby(list []lobby.NearbyPlayer) []lobby.NearbyPlayer {
	for len(list) < NearbyListSize {
		list = append(list, lobby.NearbyPlayer{})
	}
	return list
}

func canonicalVersion(v string) string {
	if v == "" || strings.HasPrefix(v, "v") {
		return v
	}
	return "v" + v
}
