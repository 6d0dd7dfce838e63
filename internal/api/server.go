// Package api hosts the admin HTTP surface: scheduled task administration and
// import session introspection.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/marketsync-ledger/internal/api/handler"
	"github.com/marketsync-ledger/internal/config"
	"github.com/marketsync-ledger/internal/domain/ledger"
	"github.com/marketsync-ledger/internal/domain/task"
	"github.com/marketsync-ledger/internal/progress"
	"github.com/marketsync-ledger/internal/scheduler"
	"github.com/marketsync-ledger/internal/sessionlog"
)

// Server handles HTTP requests and manages the admin API's lifecycle
type Server struct {
	logger     *slog.Logger
	httpServer *http.Server
}

// NewServer creates and configures the admin HTTP server
func NewServer(
	log *slog.Logger,
	cfg *config.Config,
	tasks task.Repository,
	registry *scheduler.Registry,
	worker *scheduler.Worker,
	tracker *progress.Tracker,
	sessionLog *sessionlog.Logger,
	ledgerRepo ledger.Repository,
) *Server {
	if cfg.Application.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	httpRouter := gin.New()

	taskHandler := handler.NewTaskHandler(log, tasks, registry, worker)
	sessionHandler := handler.NewSessionHandler(log, tracker, sessionLog)
	ledgerHandler := handler.NewLedgerHandler(log, ledgerRepo)

	setupRouter(log, httpRouter, taskHandler, sessionHandler, ledgerHandler)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpRouter,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return &Server{
		logger:     log,
		httpServer: httpServer,
	}
}

// Start begins listening for HTTP requests
func (s *Server) Start() error {
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping HTTP server")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to stop HTTP server: %w", err)
	}
	return nil
}
