// Package supervisor owns one transport connection per joined session:
// establishment, heartbeat, bounded reconnect, and inbound dispatch.
package supervisor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"studysync/internal/events"
	"studysync/pkg/interfaces"
	"studysync/pkg/types"
)

// ErrNotConnected is returned for sends while no transport is established.
var ErrNotConnected = errors.New("no established connection")

// Config controls heartbeat and reconnect policy.
type Config struct {
	HeartbeatInterval    time.Duration
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
}

// DefaultConfig returns the production policy: 30s keep-alive, up to 5
// reconnect attempts with a 1s base delay.
func DefaultConfig() *Config {
	return &Config{
		HeartbeatInterval:    30 * time.Second,
		ReconnectDelay:       time.Second,
		MaxReconnectAttempts: 5,
	}
}

// Supervisor manages the lifetime of one session's transport connection.
// Heartbeat and reconnect timers are owned exclusively by this instance and
// torn down by Stop. The attempt counter resets only after a successful
// (re)establishment; exhausting the bound surfaces types.ErrConnectionLost
// once and halts further automatic retries.
type Supervisor struct {
	dialer    interfaces.Dialer
	sessionID string
	identity  *types.Identity
	registry  *events.Registry
	config    *Config

	mu       sync.RWMutex
	conn     interfaces.Transport
	attempts int
	onLost   func(error)

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	log     *logrus.Entry
}

// New creates a supervisor for one session. The registry is scoped to this
// session's lifetime.
func New(dialer interfaces.Dialer, sessionID string, identity *types.Identity, registry *events.Registry, config *Config) *Supervisor {
	if config == nil {
		config = DefaultConfig()
	}
	return &Supervisor{
		dialer:    dialer,
		sessionID: sessionID,
		identity:  identity,
		registry:  registry,
		config:    config,
		log: logrus.WithFields(logrus.Fields{
			"component": "supervisor",
			"session":   sessionID,
		}),
	}
}

// Events returns the session-scoped listener registry inbound frames are
// dispatched to.
func (s *Supervisor) Events() *events.Registry {
	return s.registry
}

// SetOnConnectionLost installs the callback invoked once when reconnect
// attempts are exhausted.
func (s *Supervisor) SetOnConnectionLost(fn func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onLost = fn
}

// Start establishes the transport and begins the read and heartbeat loops.
// A failed initial dial is returned directly; the reconnect budget applies
// only to connections that were once established.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("supervisor already started")
	}
	s.started = true
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.mu.Unlock()

	conn, err := s.dialer.Dial(ctx, s.sessionID, s.identity)
	if err != nil {
		s.mu.Lock()
		s.started = false
		s.cancel()
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.conn = conn
	s.attempts = 0
	s.mu.Unlock()

	s.wg.Add(2)
	go s.readLoop()
	go s.heartbeatLoop()

	s.log.WithField("user", s.identity.ID).Info("connection established")
	return nil
}

// Stop tears down the connection and both loops deterministically. Safe to
// call concurrently with an in-flight Start for the same session.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	cancel := s.cancel
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	cancel()
	if conn != nil {
		_ = conn.Close()
	}
	s.wg.Wait()
}

// Send writes an envelope on the current connection.
func (s *Supervisor) Send(env *types.Envelope) error {
	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()

	if conn == nil {
		return ErrNotConnected
	}
	return conn.WriteEnvelope(env)
}

// Connected reports whether a transport is currently established.
func (s *Supervisor) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn != nil
}

func (s *Supervisor) current() interfaces.Transport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn
}

func (s *Supervisor) stopping() bool {
	select {
	case <-s.ctx.Done():
		return true
	default:
		return false
	}
}

// readLoop reads inbound envelopes and dispatches them by type. Transport
// errors enter the reconnect path; exhaustion surfaces ErrConnectionLost
// and halts the loop.
func (s *Supervisor) readLoop() {
	defer s.wg.Done()

	for {
		conn := s.current()
		if conn == nil {
			return
		}

		env, err := conn.ReadEnvelope()
		if err != nil {
			if s.stopping() {
				return
			}
			s.log.WithError(err).Warn("transport error, entering reconnect")
			if !s.reconnect() {
				s.surfaceLost()
				return
			}
			continue
		}

		s.registry.Emit(env)
	}
}

// reconnect attempts to re-establish the transport, bounded by the attempt
// budget. Returns true after a successful re-establishment (which resets
// the counter to zero), false when the budget is exhausted.
func (s *Supervisor) reconnect() bool {
	for {
		s.mu.Lock()
		if s.attempts >= s.config.MaxReconnectAttempts {
			s.mu.Unlock()
			return false
		}
		s.attempts++
		attempt := s.attempts
		s.mu.Unlock()

		select {
		case <-time.After(time.Duration(attempt) * s.config.ReconnectDelay):
		case <-s.ctx.Done():
			return false
		}

		conn, err := s.dialer.Dial(s.ctx, s.sessionID, s.identity)
		if err != nil {
			s.log.WithError(err).WithField("attempt", attempt).Warn("reconnect attempt failed")
			continue
		}

		s.mu.Lock()
		if !s.started {
			// Stop raced the reconnect; discard the fresh connection.
			s.mu.Unlock()
			_ = conn.Close()
			return false
		}
		s.conn = conn
		s.attempts = 0
		s.mu.Unlock()

		s.log.WithField("attempt", attempt).Info("reconnected")
		return true
	}
}

// surfaceLost reports exhaustion exactly once and halts the supervisor:
// the context is cancelled so the heartbeat ticker stops with the read
// loop. Stop cannot be called from here (it waits on the loop invoking
// us), so the teardown is inlined. The caller must re-invoke join to
// recover; there is no automatic retry past this point.
func (s *Supervisor) surfaceLost() {
	s.mu.Lock()
	onLost := s.onLost
	conn := s.conn
	s.conn = nil
	s.started = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	if conn != nil {
		_ = conn.Close()
	}

	s.log.Error("reconnect attempts exhausted")
	if onLost != nil {
		onLost(types.ErrConnectionLost)
	}
}

// heartbeatLoop sends a keep-alive ping every interval while the connection
// reports itself open. A missed response does not count toward the
// reconnect budget; only transport errors observed by the read loop do.
func (s *Supervisor) heartbeatLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			conn := s.current()
			if conn == nil {
				continue
			}
			env := &types.Envelope{Type: types.EventTypePing}
			if err := conn.WriteEnvelope(env); err != nil {
				s.log.WithError(err).Debug("heartbeat write failed")
			}

		case <-s.ctx.Done():
			return
		}
	}
}
