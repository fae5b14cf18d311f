// Package app wires the relay server together: store, subscription
// registry, fan-out hub, HTTP API and listener lifecycle.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"studysync/internal/api"
	"studysync/internal/config"
	"studysync/internal/database"
	"studysync/internal/relay"
	dbconfig "studysync/pkg/database"
)

// Application coordinates the relay server components. Initialization
// order: store, registry, hub, websocket handler, API, HTTP server.
// Shutdown runs in reverse.
type Application struct {
	config     *config.Config
	store      *database.Store
	registry   *relay.Registry
	hub        *relay.Hub
	apiServer  *api.Server
	httpServer *http.Server
	log        *logrus.Entry
}

// NewApplication builds all components from the configuration.
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	configureLogging(cfg.Log)

	storeCfg := &dbconfig.Config{
		DatabasePath:    cfg.Database.Path,
		MaxConnections:  10,
		ConnMaxLifetime: cfg.Database.Timeout,
		ConnMaxIdleTime: cfg.Database.Timeout / 3,
	}
	store, err := database.NewStore(storeCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	registry := relay.NewRegistry()
	hub := relay.NewHub(registry)
	wsHandler := relay.NewHandler(store, registry, hub)
	apiServer := api.NewServer(store, registry, wsHandler)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      apiServer.Handler(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:     cfg,
		store:      store,
		registry:   registry,
		hub:        hub,
		apiServer:  apiServer,
		httpServer: httpServer,
		log:        logrus.WithField("component", "app"),
	}, nil
}

func configureLogging(cfg *config.LogConfig) {
	if level, err := logrus.ParseLevel(cfg.Level); err == nil {
		logrus.SetLevel(level)
	}
	if cfg.Format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}
}

// Start launches the hub and the HTTP listener. It returns once the
// listener is accepting connections or startup failed.
func (app *Application) Start(ctx context.Context) error {
	app.log.WithField("addr", app.httpServer.Addr).Info("starting relay server")

	app.hub.Start()

	serverErrCh := make(chan error, 1)
	go func() {
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case err := <-serverErrCh:
		app.hub.Stop()
		return err
	case <-time.After(100 * time.Millisecond):
		app.log.Info("relay server started")
		return nil
	case <-ctx.Done():
		app.hub.Stop()
		return ctx.Err()
	}
}

// Stop shuts components down in reverse order: listener, hub, store.
func (app *Application) Stop(ctx context.Context) error {
	app.log.Info("shutting down relay server")

	if err := app.httpServer.Shutdown(ctx); err != nil {
		app.log.WithError(err).Error("HTTP server shutdown error")
	}

	app.hub.Stop()

	if err := app.store.Close(); err != nil {
		app.log.WithError(err).Error("store shutdown error")
	}

	app.log.Info("relay server shutdown complete")
	return nil
}

// Addr returns the listener address.
func (app *Application) Addr() string {
	return app.httpServer.Addr
}
