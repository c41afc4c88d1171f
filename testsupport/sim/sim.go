// Package sim provides in-memory competitors and a client hub for tests.
package sim

import (
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/mpapenbr/touge-service-manager-go/pkg/model"
)

type Car struct {
	id    string
	name  string
	model string

	mu        sync.Mutex
	status    model.CarStatus
	ping      time.Duration
	connected bool
}

func NewCar(id, name string) *Car {
	return &Car{id: id, name: name, model: "ks_toyota_ae86", connected: true}
}

func (c *Car) ID() string       { return c.id }
func (c *Car) Name() string     { return c.name }
func (c *Car) CarModel() string { return c.model }

func (c *Car) Status() model.CarStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Car) Ping() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ping
}

func (c *Car) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Car) WithModel(m string) *Car {
	c.model = m
	return c
}

func (c *Car) SetPosition(p model.Vec3) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status.Position = p
}

func (c *Car) SetHeading(h float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status.Heading = h
}

func (c *Car) SetVelocity(v model.Vec3) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status.Velocity = v
}

func (c *Car) SetPing(p time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ping = p
}

func (c *Car) SetConnected(b bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = b
}

// Message is a notification recorded by the Hub.
type Message struct {
	To        string
	Text      string
	Countdown bool
	At        time.Time
}

// Invite is a session invite recorded by the Hub.
type Invite struct {
	To     string
	From   string
	Rating int
}

type handler struct {
	id int
	fn func()
}

// Hub records everything sent to clients. Teleport commands move the car
// unless teleports are frozen.
type Hub struct {
	mu             sync.Mutex
	cars           []*Car
	messages       []Message
	chats          []Message
	invites        []Invite
	locked         map[string]bool
	lookForFinish  map[string]bool
	finishLines    map[string]*model.FinishLine
	teleports      map[string][]model.CarSpawn
	freezeTeleport bool
	onNotify       func(c model.Competitor, text string)
	nextID         int
	laps           map[string][]handler
	disconnects    map[string][]handler
}

func NewHub(cars ...*Car) *Hub {
	return &Hub{
		cars:          cars,
		locked:        map[string]bool{},
		lookForFinish: map[string]bool{},
		finishLines:   map[string]*model.FinishLine{},
		teleports:     map[string][]model.CarSpawn{},
		laps:          map[string][]handler{},
		disconnects:   map[string][]handler{},
	}
}

func (h *Hub) Add(c *Car) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cars = append(h.cars, c)
}

func (h *Hub) Competitors() []model.Competitor {
	h.mu.Lock()
	defer h.mu.Unlock()
	return lo.Map(h.cars, func(c *Car, _ int) model.Competitor { return c })
}

// FreezeTeleport makes Teleport commands ineffective.
func (h *Hub) FreezeTeleport(b bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.freezeTeleport = b
}

// OnNotify installs a hook called after each notification.
func (h *Hub) OnNotify(fn func(c model.Competitor, text string)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onNotify = fn
}

func (h *Hub) Notify(c model.Competitor, msg string, countdown bool) {
	h.mu.Lock()
	h.messages = append(h.messages, Message{
		To: c.ID(), Text: msg, Countdown: countdown, At: time.Now(),
	})
	hook := h.onNotify
	h.mu.Unlock()
	if hook != nil {
		hook(c, msg)
	}
}

func (h *Hub) Chat(c model.Competitor, msg string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.chats = append(h.chats, Message{To: c.ID(), Text: msg, At: time.Now()})
}

func (h *Hub) Invite(to, from model.Competitor, rating int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.invites = append(h.invites, Invite{To: to.ID(), From: from.ID(), Rating: rating})
}

func (h *Hub) Chats() []Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Message(nil), h.chats...)
}

func (h *Hub) Invites() []Invite {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Invite(nil), h.invites...)
}

func (h *Hub) Teleport(c model.Competitor, spawn model.CarSpawn) {
	h.mu.Lock()
	h.teleports[c.ID()] = append(h.teleports[c.ID()], spawn)
	h.locked[c.ID()] = true
	frozen := h.freezeTeleport
	h.mu.Unlock()
	if car, ok := c.(*Car); ok && !frozen {
		car.SetPosition(spawn.Position)
		car.SetHeading(spawn.Heading)
		car.SetVelocity(model.Vec3{})
	}
}

func (h *Hub) LockControls(c model.Competitor, locked bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.locked[c.ID()] = locked
}

//nolint:whitespace // can't make both editor and linter happy
func (h *Hub) FinishDisplay(
	c model.Competitor, lookForFinish bool, line *model.FinishLine,
) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lookForFinish[c.ID()] = lookForFinish
	if line != nil {
		h.finishLines[c.ID()] = line
	}
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
	h.nextID++
	hid := h.nextID
	m[id] = append(m[id], handler{id: hid, fn: fn})
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		m[id] = lo.Reject(m[id], func(x handler, _ int) bool { return x.id == hid })
	}
}

// FireLap simulates a lap completed event reported by the server.
func (h *Hub) FireLap(c model.Competitor) {
	h.fire(h.laps, c.ID())
}

// Disconnect marks the car as disconnected and fires the registered callbacks.
func (h *Hub) Disconnect(c *Car) {
	c.SetConnected(false)
	h.fire(h.disconnects, c.ID())
}

func (h *Hub) fire(m map[string][]handler, id string) {
	h.mu.Lock()
	handlers := append([]handler(nil), m[id]...)
	h.mu.Unlock()
	for _, x := range handlers {
		x.fn()
	}
}

// Subscriptions returns the number of active event registrations.
func (h *Hub) Subscriptions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, v := range h.laps {
		n += len(v)
	}
	for _, v := range h.disconnects {
		n += len(v)
	}
	return n
}

func (h *Hub) Messages() []Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Message(nil), h.messages...)
}

// Texts returns the texts sent to the competitor with the given id.
func (h *Hub) Texts(id string) []string {
	return lo.FilterMap(h.Messages(), func(m Message, _ int) (string, bool) {
		return m.Text, m.To == id
	})
}

// HasText reports whether any message contains s.
func (h *Hub) HasText(s string) bool {
	return lo.ContainsBy(h.Messages(), func(m Message) bool {
		return strings.Contains(m.Text, s)
	})
}

func (h *Hub) Locked(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.locked[id]
}

func (h *Hub) LookingForFinish(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lookForFinish[id]
}

func (h *Hub) FinishLine(id string) *model.FinishLine {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.finishLines[id]
}

func (h *Hub) Teleports(id string) []model.CarSpawn {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]model.CarSpawn(nil), h.teleports[id]...)
}
