// Package server exposes the recognizer and budget evaluation over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/haskel/foodia/internal/artifact"
	"github.com/haskel/foodia/internal/config"
	"github.com/haskel/foodia/internal/monitor"
	"github.com/haskel/foodia/internal/recognizer"
	"github.com/haskel/foodia/internal/server/middleware"
)

type Server struct {
	httpServer *http.Server
	rt         atomic.Pointer[runtimeState]
	aggregator *monitor.Aggregator
	logger     *slog.Logger
	version    string
}

// runtimeState is the part of the server a reload replaces. Listener settings,
// rate limits and the body cap stay as they were at New.
type runtimeState struct {
	config     *config.Config
	recognizer *recognizer.Recognizer
	store      *artifact.Store
}

// New wires the HTTP handlers. agg may be nil, in which case /health omits
// host state.
func New(cfg *config.Config, rec *recognizer.Recognizer, store *artifact.Store, agg *monitor.Aggregator, logger *slog.Logger, version string) *Server {
	s := &Server{
		aggregator: agg,
		logger:     logger,
		version:    version,
	}
	s.rt.Store(&runtimeState{config: cfg, recognizer: rec, store: store})

	rl := cfg.Server.RateLimit
	handler := middleware.Chain(
		s.setupRoutes(),
		middleware.Logging(logger),
		middleware.Recovery(logger),
		middleware.SecurityHeaders(),
		middleware.RateLimit(middleware.RateLimitConfig{
			Enabled:           rl.Enabled,
			RequestsPerSecond: rl.RequestsPerSecond,
			Burst:             rl.Burst,
			PerIP:             rl.PerIP,
		}),
		middleware.MaxBody(cfg.Server.MaxBodyBytes),
	)

	s.httpServer = &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, fmt.Sprint(cfg.Server.Port)),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return s
}

// Reload swaps in a new configuration and recognizer. Requests already in
// flight finish against the previous ones.
func (s *Server) Reload(cfg *config.Config, rec *recognizer.Recognizer, store *artifact.Store) {
	s.rt.Store(&runtimeState{config: cfg, recognizer: rec, store: store})
	s.logger.Info("runtime reloaded",
		"artifacts", store.Dir(),
		"model_ready", rec.Ready(),
		"top_k", cfg.Inference.TopK,
	)
}

func (s *Server) current() *runtimeState {
	return s.rt.Load()
}

func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start blocks until the server stops. A graceful Shutdown is not an error.
func (s *Server) Start() error {
	s.logger.Info("server starting", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server shutting down")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}
