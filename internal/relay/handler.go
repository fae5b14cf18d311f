package relay

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"studysync/internal/transport"
	"studysync/pkg/interfaces"
	"studysync/pkg/types"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// Trusted deployment behind a boundary proxy.
		return true
	},
}

// Handler upgrades HTTP requests to websocket subscriptions on a session
// channel. Callers identify themselves through query parameters; the session
// must exist and be active before the upgrade is performed.
type Handler struct {
	store    interfaces.Store
	registry *Registry
	hub      *Hub
	log      *logrus.Entry
}

// NewHandler creates a websocket handler over the given store, registry and hub.
func NewHandler(store interfaces.Store, registry *Registry, hub *Hub) *Handler {
	return &Handler{
		store:    store,
		registry: registry,
		hub:      hub,
		log:      logrus.WithField("component", "relay.handler"),
	}
}

// ServeHTTP validates the subscription request, upgrades the connection and
// pumps inbound envelopes into the hub until the client disconnects.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sessionID := q.Get("session_id")
	userID := q.Get("user_id")
	userName := q.Get("user_name")
	role := q.Get("role")

	if sessionID == "" || userID == "" {
		http.Error(w, "session_id and user_id are required", http.StatusBadRequest)
		return
	}
	if !types.IsValidUserID(userID) {
		http.Error(w, "invalid user_id", http.StatusBadRequest)
		return
	}
	if role != "" && !types.IsValidRole(role) {
		http.Error(w, "invalid role", http.StatusBadRequest)
		return
	}

	session, err := h.store.GetSession(r.Context(), sessionID)
	if err == types.ErrSessionNotFound {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.log.WithError(err).Error("session lookup failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if session.Status != types.SessionStatusActive {
		http.Error(w, "session is not active", http.StatusConflict)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Error("websocket upgrade failed")
		return
	}

	conn := transport.NewConn(ws)
	h.registry.Subscribe(sessionID, userID, conn)

	h.log.WithFields(logrus.Fields{
		"session_id": sessionID,
		"user_id":    userID,
		"user_name":  userName,
		"role":       role,
	}).Info("client subscribed")

	go h.readPump(sessionID, userID, conn)
}

// readPump forwards inbound envelopes to the hub until the connection dies,
// then unsubscribes and closes it.
func (h *Handler) readPump(sessionID, userID string, conn *transport.Conn) {
	defer func() {
		h.registry.Unsubscribe(userID, conn)
		_ = conn.Close()
		h.log.WithFields(logrus.Fields{
			"session_id": sessionID,
			"user_id":    userID,
		}).Info("client disconnected")
	}()

	for {
		env, err := conn.ReadEnvelope()
		if err != nil {
			return
		}
		h.hub.Dispatch(env, sessionID, userID, conn)
	}
}
