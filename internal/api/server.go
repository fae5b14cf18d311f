// Package api exposes the relay's HTTP surface: session administration,
// the websocket subscription endpoint and a health check.
package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"studysync/internal/relay"
	"studysync/internal/session"
	"studysync/pkg/interfaces"
	"studysync/pkg/permissions"
	"studysync/pkg/types"
)

// Server wires the gin router over the store and the relay components.
type Server struct {
	store    interfaces.Store
	registry *relay.Registry
	ws       *relay.Handler
	engine   *gin.Engine
	log      *logrus.Entry
}

type createSessionRequest struct {
	Title       string                  `json:"title" binding:"required"`
	SessionType string                  `json:"session_type" binding:"required"`
	CreatorID   string                  `json:"creator_id" binding:"required"`
	CreatorName string                  `json:"creator_name"`
	CreatorRole string                  `json:"creator_role"`
	Settings    *types.SettingsOverride `json:"settings"`
}

type sessionResponse struct {
	Session         *types.Session `json:"session"`
	ConnectionCount int            `json:"connection_count"`
}

// NewServer builds the router and registers all routes.
func NewServer(store interfaces.Store, registry *relay.Registry, ws *relay.Handler) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		store:    store,
		registry: registry,
		ws:       ws,
		engine:   gin.New(),
		log:      logrus.WithField("component", "api"),
	}

	s.engine.Use(gin.Recovery())

	s.engine.GET("/health", s.health)
	s.engine.GET("/ws", gin.WrapH(ws))

	sessions := s.engine.Group("/api/sessions")
	{
		sessions.POST("", s.createSession)
		sessions.GET("", s.listSessions)
		sessions.GET("/:id", s.getSession)
		sessions.POST("/:id/end", s.endSession)
	}

	return s
}

// Handler returns the underlying http.Handler for the HTTP server.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) createSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.CreatorRole == "" {
		req.CreatorRole = types.RoleTeacher
	}
	if !types.IsValidSessionType(req.SessionType) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session_type"})
		return
	}
	if !types.IsValidUserID(req.CreatorID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid creator_id"})
		return
	}

	now := time.Now()
	sess := &types.Session{
		ID:        uuid.New().String(),
		Title:     req.Title,
		Type:      req.SessionType,
		Status:    types.SessionStatusActive,
		CreatedBy: types.Identity{ID: req.CreatorID, Name: req.CreatorName, Role: req.CreatorRole},
		CreatedAt: now,
		UpdatedAt: now,
		Settings:  session.MergeSettings(session.DefaultSettings(req.SessionType), req.Settings),
	}
	if err := sess.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.store.CreateSession(c.Request.Context(), sess); err != nil {
		s.log.WithError(err).Error("session create failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session"})
		return
	}

	creator := &types.Participant{
		SessionID:   sess.ID,
		UserID:      req.CreatorID,
		UserName:    req.CreatorName,
		UserRole:    req.CreatorRole,
		JoinedAt:    now,
		Status:      types.ParticipantStatusActive,
		Permissions: permissions.Moderator(),
	}
	if err := s.store.CreateParticipant(c.Request.Context(), creator); err != nil {
		s.log.WithError(err).Error("creator participant create failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"session": sess})
}

func (s *Server) listSessions(c *gin.Context) {
	sessions, err := s.store.ListActiveSessions(c.Request.Context())
	if err != nil {
		s.log.WithError(err).Error("session list failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list sessions"})
		return
	}

	resp := make([]sessionResponse, 0, len(sessions))
	for _, sess := range sessions {
		resp = append(resp, sessionResponse{
			Session:         sess,
			ConnectionCount: len(s.registry.ChannelConns(sess.ID)),
		})
	}
	c.JSON(http.StatusOK, gin.H{"sessions": resp})
}

func (s *Server) getSession(c *gin.Context) {
	sess, err := s.store.GetSession(c.Request.Context(), c.Param("id"))
	if errors.Is(err, types.ErrSessionNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	if err != nil {
		s.log.WithError(err).Error("session lookup failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get session"})
		return
	}

	c.JSON(http.StatusOK, sessionResponse{
		Session:         sess,
		ConnectionCount: len(s.registry.ChannelConns(sess.ID)),
	})
}

func (s *Server) endSession(c *gin.Context) {
	id := c.Param("id")
	err := s.store.UpdateSessionStatus(c.Request.Context(), id, types.SessionStatusCompleted, time.Now())
	if errors.Is(err, types.ErrSessionNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	if err != nil {
		s.log.WithError(err).Error("session end failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to end session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": types.SessionStatusCompleted})
}

func (s *Server) health(c *gin.Context) {
	dbStatus := "healthy"
	if err := s.store.HealthCheck(c.Request.Context()); err != nil {
		dbStatus = "unhealthy"
	}

	status := http.StatusOK
	if dbStatus != "healthy" {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{
		"status":      dbStatus,
		"timestamp":   time.Now(),
		"connections": s.registry.Stats(),
	})
}
