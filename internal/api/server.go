// Package api exposes the HTTP surface: the ingestion webhook, a manual sync
// trigger, and the dashboard endpoints for actions, threads and the audit
// trail. Handlers stay thin; everything slow runs on the job queue.
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"

	"github.com/compass/internal/config"
	"github.com/compass/internal/models"
)

// Store is the persistence surface the handlers need.
type Store interface {
	CreateAuditLog(ctx context.Context, entry *models.IngestionAuditLog) error
	UpdateAuditStatus(ctx context.Context, id uuid.UUID, status, errorMessage string) error
	ListAuditLogs(ctx context.Context, status string, limit int) ([]models.IngestionAuditLog, error)
	ListPendingActions(ctx context.Context, status string, limit int) ([]models.PendingAction, error)
	GetAction(ctx context.Context, id uuid.UUID) (*models.PendingAction, error)
	UpdateActionStatus(ctx context.Context, id uuid.UUID, status string) error
	CreateEntity(ctx context.Context, entity *models.Entity) error
	ListThreads(ctx context.Context, limit int) ([]models.Thread, error)
	GetThread(ctx context.Context, id string) (*models.Thread, error)
}

// Queue enqueues background ingestion work.
type Queue interface {
	QueueIngestionJob(ctx context.Context, auditLogID uuid.UUID) error
}

// Server wires the echo instance, its routes and middleware.
type Server struct {
	echo  *echo.Echo
	store Store
	queue Queue
	cfg   *config.Config
}

// NewServer creates the HTTP server with all routes registered.
func NewServer(st Store, queue Queue, cfg *config.Config) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
	}))
	e.Use(requestLogger())

	s := &Server{echo: e, store: st, queue: queue, cfg: cfg}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.echo.GET("/healthz", s.handleHealth)

	// Webhook endpoint is provider-facing and authenticated by the shared
	// webhook secret, not by JWT.
	s.echo.POST("/ingest/webhook", s.handleWebhook)

	api := s.echo.Group("/api/v1")
	if s.cfg.Server.AuthSecret != "" {
		api.Use(requireJWT(s.cfg.Server.AuthSecret))
	}

	api.POST("/ingest/sync", s.handleManualSync)
	api.GET("/actions", s.handleListActions)
	api.PATCH("/actions/:id/status", s.handleActionStatus)
	api.GET("/audit", s.handleListAudit)
	api.GET("/threads", s.handleListThreads)
	api.GET("/threads/:id", s.handleGetThread)
}

// Start blocks serving HTTP until the context is cancelled, then shuts the
// server down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", s.cfg.Server.Port)
		log.Info().Str("addr", addr).Msg("http server listening")
		errCh <- s.echo.Start(addr)
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		return s.echo.Shutdown(context.Background())
	}
}

// Echo exposes the underlying echo instance for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:    true,
		LogStatus: true,
		LogMethod: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.Debug().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Msg("request")
			return nil
		},
	})
}
