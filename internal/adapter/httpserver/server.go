// Package httpserver exposes the pet over HTTP: JSON endpoints for state and
// actions, and SSE and WebSocket streams of snapshots.
package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alessandrobessi/tamagotchi/internal/adapter/metrics"
	"github.com/alessandrobessi/tamagotchi/internal/broadcast"
	"github.com/alessandrobessi/tamagotchi/internal/domain"
	"github.com/alessandrobessi/tamagotchi/internal/platform/config"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

type petService interface {
	State(ctx context.Context, current *domain.Pet) domain.Pet
	Feed(ctx context.Context, current *domain.Pet) domain.Pet
	Play(ctx context.Context, current *domain.Pet) domain.Pet
	Heal(ctx context.Context, current *domain.Pet) domain.Pet
	Rebirth(ctx context.Context, name string) domain.Pet
}

type snapshotHub interface {
	Subscribe() (*broadcast.Subscriber, error)
	Unregister(sub *broadcast.Subscriber)
}

type Server struct {
	echo   *echo.Echo
	config *config.Config
	clock  clockwork.Clock

	app petService
	hub snapshotHub

	registry      *prometheus.Registry
	httpMetrics   *metrics.HTTPMetrics
	streamMetrics *metrics.StreamMetrics

	upgrader     websocket.Upgrader
	healthChecks []HealthCheck
	startTime    time.Time
}

// NewServer builds the echo server and registers every route. reg may be nil,
// in which case no metrics are recorded and /metrics is not served.
func NewServer(cfg *config.Config, app petService, hub snapshotHub, clock clockwork.Clock, reg *prometheus.Registry, healthChecks []HealthCheck) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:         e,
		config:       cfg,
		clock:        clock,
		app:          app,
		hub:          hub,
		registry:     reg,
		upgrader:     newUpgrader(!cfg.IsProduction()),
		healthChecks: healthChecks,
		startTime:    clock.Now(),
	}
	if reg != nil {
		srv.httpMetrics = metrics.NewHTTPMetrics(reg)
		srv.streamMetrics = metrics.NewStreamMetrics(reg)
	}

	srv.registerRoutes()
	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

// OnShutdown registers fn to run as soon as Shutdown begins, before it waits
// for open connections. Streams only end when their source closes, so the
// snapshot hub must be stopped here or Shutdown runs into its deadline.
func (s *Server) OnShutdown(fn func()) {
	s.echo.Server.RegisterOnShutdown(fn)
}

// ServeHTTP lets the server be mounted in tests or behind another mux.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}
