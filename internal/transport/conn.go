// Package transport implements the websocket transport: a connection
// wrapper with serialized writes, and a dialer for the engine side.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"studysync/pkg/types"
)

const (
	writeWait     = 5 * time.Second
	writeBufDepth = 100
)

var (
	ErrConnClosed   = errors.New("connection closed")
	ErrWriteTimeout = errors.New("write timeout")
)

// Conn wraps a websocket with a single writer goroutine so concurrent
// WriteEnvelope calls never race on the socket. Reads stay on the caller's
// goroutine; only the supervisor's read loop calls ReadEnvelope.
type Conn struct {
	ws        *websocket.Conn
	writeCh   chan []byte
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	log       *logrus.Entry
}

// NewConn wraps an established websocket and starts its write loop.
func NewConn(ws *websocket.Conn) *Conn {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Conn{
		ws:      ws,
		writeCh: make(chan []byte, writeBufDepth),
		ctx:     ctx,
		cancel:  cancel,
		log:     logrus.WithField("component", "transport"),
	}

	go c.writeLoop()
	return c
}

func (c *Conn) writeLoop() {
	for {
		select {
		case data, ok := <-c.writeCh:
			if !ok {
				return
			}
			if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// WriteEnvelope sends an envelope to the session channel (thread-safe).
func (c *Conn) WriteEnvelope(env *types.Envelope) error {
	select {
	case <-c.ctx.Done():
		return ErrConnClosed
	default:
	}

	data, err := json.Marshal(env)
	if err != nil {
		return err
	}

	select {
	case c.writeCh <- data:
		return nil
	case <-time.After(writeWait):
		return ErrWriteTimeout
	case <-c.ctx.Done():
		return ErrConnClosed
	}
}

// ReadEnvelope blocks until the next valid inbound envelope or a transport
// error. Frames with an unknown type discriminator are rejected at this
// boundary: logged and skipped, not surfaced as connection errors.
func (c *Conn) ReadEnvelope() (*types.Envelope, error) {
	for {
		select {
		case <-c.ctx.Done():
			return nil, ErrConnClosed
		default:
		}

		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return nil, err
		}

		var env types.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.log.WithError(err).Warn("dropping malformed frame")
			continue
		}
		if !types.IsValidEventType(env.Type) {
			c.log.WithField("type", env.Type).Warn("dropping frame with unknown type")
			continue
		}

		return &env, nil
	}
}

// Close terminates the connection. Safe to call more than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		err = c.ws.Close()
	})
	return err
}
