package relay

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"studysync/internal/transport"
	"studysync/pkg/types"
)

// inbound is one envelope received from a subscriber, tagged with its origin.
type inbound struct {
	envelope  *types.Envelope
	senderID  string
	sessionID string
	conn      *transport.Conn
}

// Hub fans every inbound envelope out to all subscribers of the sender's
// session channel. Pings are answered directly and never broadcast. A single
// processing goroutine keeps delivery order stable per channel.
type Hub struct {
	registry *Registry
	limiter  *RateLimiter
	inbound  chan inbound
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	started  bool
	mu       sync.Mutex
	log      *logrus.Entry
}

// NewHub creates a hub over the given registry.
func NewHub(registry *Registry) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		registry: registry,
		limiter:  NewRateLimiter(),
		inbound:  make(chan inbound, 256),
		ctx:      ctx,
		cancel:   cancel,
		log:      logrus.WithField("component", "relay.hub"),
	}
}

// Start launches the processing loop and the rate limiter janitor.
func (h *Hub) Start() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.started {
		return
	}
	h.started = true

	h.wg.Add(2)
	go h.processLoop()
	go h.cleanupLoop()
}

// Stop shuts down the processing loop and waits for it to drain.
func (h *Hub) Stop() {
	h.mu.Lock()
	if !h.started {
		h.mu.Unlock()
		return
	}
	h.started = false
	h.mu.Unlock()

	h.cancel()
	h.wg.Wait()
}

// Dispatch queues an inbound envelope for fan-out. Envelopes are dropped
// when the sender exceeds its rate limit or the hub queue is full.
func (h *Hub) Dispatch(env *types.Envelope, sessionID, senderID string, conn *transport.Conn) {
	if !h.limiter.Allow(senderID) {
		h.log.WithFields(logrus.Fields{
			"user_id":    senderID,
			"session_id": sessionID,
		}).Warn("rate limit exceeded, dropping envelope")
		return
	}

	select {
	case h.inbound <- inbound{envelope: env, senderID: senderID, sessionID: sessionID, conn: conn}:
	case <-h.ctx.Done():
	default:
		h.log.WithField("session_id", sessionID).Warn("hub queue full, dropping envelope")
	}
}

func (h *Hub) processLoop() {
	defer h.wg.Done()

	for {
		select {
		case in := <-h.inbound:
			h.handle(in)
		case <-h.ctx.Done():
			return
		}
	}
}

func (h *Hub) handle(in inbound) {
	if in.envelope.Type == types.EventTypePing {
		pong := &types.Envelope{Type: types.EventTypePong}
		if err := in.conn.WriteEnvelope(pong); err != nil {
			h.log.WithError(err).Debug("pong write failed")
		}
		return
	}

	conns := h.registry.ChannelConns(in.sessionID)
	for _, conn := range conns {
		if err := conn.WriteEnvelope(in.envelope); err != nil {
			h.log.WithFields(logrus.Fields{
				"session_id": in.sessionID,
				"type":       in.envelope.Type,
			}).WithError(err).Debug("fan-out write failed")
		}
	}
}

func (h *Hub) cleanupLoop() {
	defer h.wg.Done()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.limiter.Cleanup()
		case <-h.ctx.Done():
			return
		}
	}
}
