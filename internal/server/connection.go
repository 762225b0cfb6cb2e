package server

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/greenfelt/casino/internal/protocol"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 8192

	sendBufferSize = 256
)

var ErrConnectionClosed = errors.New("connection closed")

// Connection wraps one WebSocket session. Inbound messages are decoded
// and handed to the server; outbound envelopes go through a bounded
// send buffer so a slow client never blocks a broadcast.
type Connection struct {
	conn      *websocket.Conn
	send      chan *protocol.Envelope
	server    *Server
	logger    *log.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	mu        sync.RWMutex
	name      string
	closeOnce sync.Once
}

// NewConnection creates a connection wrapper around an upgraded socket
func NewConnection(conn *websocket.Conn, server *Server, logger *log.Logger) *Connection {
	ctx, cancel := context.WithCancel(context.Background())

	return &Connection{
		conn:   conn,
		send:   make(chan *protocol.Envelope, sendBufferSize),
		server: server,
		logger: logger.WithPrefix("conn"),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins handling the connection
func (c *Connection) Start() {
	go c.writePump()
	go c.readPump()
}

// Close shuts the connection down once
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		close(c.send)
		err = c.conn.Close()
	})
	return err
}

// Send queues an envelope for delivery. A full buffer drops the
// connection instead of blocking the caller.
func (c *Connection) Send(env *protocol.Envelope) error {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Debug("send on closed connection", "error", r)
		}
	}()

	select {
	case c.send <- env:
		return nil
	case <-c.ctx.Done():
		return c.ctx.Err()
	default:
		c.logger.Warn("send buffer full, dropping connection", "user", c.Name())
		_ = c.Close()
		return ErrConnectionClosed
	}
}

// SetName binds this connection to a user after a successful JOIN
func (c *Connection) SetName(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.name = name
}

// Name returns the bound user name, or "" before JOIN
func (c *Connection) Name() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.name
}

func (c *Connection) readPump() {
	defer func() { _ = c.Close() }()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("websocket error", "error", err)
			}
			break
		}

		c.handleRaw(data)
	}
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case env, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteJSON(env); err != nil {
				c.logger.Error("failed to write message", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// handleRaw decodes one inbound frame. Unparsable envelopes and
// unknown keys are dropped without a reply; everything else goes to
// the server's dispatcher.
func (c *Connection) handleRaw(data []byte) {
	env, err := protocol.Decode(data)
	if err != nil {
		if errors.Is(err, protocol.ErrUnknownKey) {
			c.logger.Debug("ignoring unknown key", "error", err)
		} else {
			c.logger.Warn("dropping malformed message", "error", err)
		}
		return
	}

	c.server.dispatch(c, env)
}

// sendError reports a rejected action back to this session only,
// echoing the request id of the message that caused it
func (c *Connection) sendError(requestID, code, message string) {
	env, err := protocol.New(protocol.KeyError, protocol.ErrorPayload{
		Code:    code,
		Message: message,
	})
	if err != nil {
		c.logger.Error("failed to build error message", "error", err)
		return
	}
	env.RequestID = requestID
	_ = c.Send(env)
}
