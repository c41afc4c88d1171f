package client

import (
	"encoding/binary"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mpapenbr/touge-service-manager-go/log"
	"github.com/mpapenbr/touge-service-manager-go/pkg/model"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 64
)

// Client is a connected game client. It implements model.Competitor.
type Client struct {
	id        string
	name      string
	carModel  string
	version   string
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	mu        sync.RWMutex
	status    model.CarStatus
	ping      time.Duration
	connected atomic.Bool

	log *log.Logger
}

func (c *Client) ID() string       { return c.id }
func (c *Client) Name() string     { return c.name }
func (c *Client) CarModel() string { return c.carModel }
func (c *Client) Version() string  { return c.version }
func (c *Client) Connected() bool  { return c.connected.Load() }

func (c *Client) Status() model.CarStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Ping is the last measured round trip time.
func (c *Client) Ping() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ping
}

func (c *Client) setStatus(s Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = model.CarStatus{Position: s.Position, Velocity: s.Velocity, Heading: s.Heading}
}

// Send queues a message. Messages are dropped if the client does not keep
// up or is gone.
func (c *Client) Send(msgType string, body any) {
	data, err := encode(msgType, body)
	if err != nil {
		c.log.Error("could not encode message",
			log.String("type", msgType), log.ErrorField(err))
		return
	}
	select {
	case <-c.done:
	case c.send <- data:
	default:
		c.log.Warn("send buffer full, dropping message", log.String("type", msgType))
	}
}

// Close terminates the connection. The read loop takes care of the cleanup.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.connected.Store(false)
		close(c.done)
		//nolint:errcheck // closing anyway
		c.conn.Close()
	})
}

func (c *Client) readLoop(handle func(Message)) {
	c.conn.SetReadLimit(maxMessageSize)
	//nolint:errcheck // checked by the next read
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(data string) error {
		if len(data) == 8 {
			sent := int64(binary.BigEndian.Uint64([]byte(data)))
			c.mu.Lock()
			c.ping = time.Since(time.Unix(0, sent))
			c.mu.Unlock()
		}
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn("connection lost", log.ErrorField(err))
			}
			return
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.log.Debug("invalid message", log.ErrorField(err))
			continue
		}
		handle(msg)
	}
}

func (c *Client) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer c.Close()
	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			if err := c.write(websocket.TextMessage, data); err != nil {
				c.log.Debug("write failed", log.ErrorField(err))
				return
			}
		case <-ticker.C:
			payload := make([]byte, 8)
			binary.BigEndian.PutUint64(payload, uint64(time.Now().UnixNano()))
			if err := c.write(websocket.PingMessage, payload); err != nil {
				return
			}
		}
	}
}

func (c *Client) write(msgType int, data []byte) error {
	//nolint:errcheck // checked by the write
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(msgType, data)
}
