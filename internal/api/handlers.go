package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/compass/internal/models"
)

// webhookPayload is the subset of Nango's webhook body we act on. The full
// body is preserved verbatim on the audit row.
type webhookPayload struct {
	ConnectionID      string `json:"connectionId"`
	ProviderConfigKey string `json:"providerConfigKey"`
}

// handleWebhook accepts a sync notification, records it and queues the
// processing job. The 202 goes out as soon as the audit row and job are
// durable; nothing provider-facing waits on the pipeline.
func (s *Server) handleWebhook(c echo.Context) error {
	if secret := s.cfg.Server.WebhookSecret; secret != "" {
		if c.Request().Header.Get("X-Webhook-Secret") != secret {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid webhook secret")
		}
	}

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable request body")
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid JSON payload")
	}
	if payload.ConnectionID == "" || payload.ProviderConfigKey == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "connectionId and providerConfigKey are required")
	}

	return s.acceptEvent(c, payload.ConnectionID, payload.ProviderConfigKey, body)
}

type manualSyncRequest struct {
	ConnectionID string `json:"connection_id"`
	Platform     string `json:"platform"`
}

// handleManualSync triggers ingestion for a connection without waiting for a
// provider webhook. It runs through the same audit and queue path.
func (s *Server) handleManualSync(c echo.Context) error {
	var req manualSyncRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid JSON payload")
	}
	if req.ConnectionID == "" || req.Platform == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "connection_id and platform are required")
	}

	return s.acceptEvent(c, req.ConnectionID, req.Platform, nil)
}

func (s *Server) acceptEvent(c echo.Context, connectionID, platform string, rawPayload []byte) error {
	ctx := c.Request().Context()

	entry := &models.IngestionAuditLog{
		SourceUUID:     connectionID,
		SourcePlatform: platform,
		RawPayload:     rawPayload,
	}
	if err := s.store.CreateAuditLog(ctx, entry); err != nil {
		log.Error().Err(err).Msg("failed to create audit log entry")
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to record event")
	}

	if err := s.queue.QueueIngestionJob(ctx, entry.ID); err != nil {
		log.Error().Err(err).Str("audit_id", entry.ID.String()).Msg("failed to queue ingestion job")
		if uerr := s.store.UpdateAuditStatus(ctx, entry.ID, models.AuditFailed, "failed to queue ingestion job"); uerr != nil {
			log.Error().Err(uerr).Str("audit_id", entry.ID.String()).Msg("failed to record queue failure")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to queue processing")
	}

	return c.JSON(http.StatusAccepted, map[string]any{
		"status": "audited",
		"id":     entry.ID,
	})
}

func (s *Server) handleListActions(c echo.Context) error {
	actions, err := s.store.ListPendingActions(c.Request().Context(),
		c.QueryParam("status"), queryLimit(c))
	if err != nil {
		log.Error().Err(err).Msg("failed to list actions")
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list actions")
	}
	if actions == nil {
		actions = []models.PendingAction{}
	}
	return c.JSON(http.StatusOK, map[string]any{"actions": actions})
}

type actionStatusRequest struct {
	Status string `json:"status"`
}

// handleActionStatus approves or rejects a pending action. Approving a
// create_profile materializes the entity; that is the only write path into
// the entities table.
func (s *Server) handleActionStatus(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid action id")
	}

	var req actionStatusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid JSON payload")
	}
	if req.Status != models.ActionApproved && req.Status != models.ActionRejected {
		return echo.NewHTTPError(http.StatusBadRequest, "status must be approved or rejected")
	}

	ctx := c.Request().Context()

	action, err := s.store.GetAction(ctx, id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "action not found")
	}

	if err := s.store.UpdateActionStatus(ctx, id, req.Status); err != nil {
		return echo.NewHTTPError(http.StatusConflict, "action is not pending")
	}

	if req.Status == models.ActionApproved && action.Type == models.ActionCreateProfile {
		if err := s.materializeProfile(c, action); err != nil {
			return err
		}
	}

	return c.JSON(http.StatusOK, map[string]string{"status": req.Status})
}

func (s *Server) materializeProfile(c echo.Context, action *models.PendingAction) error {
	name, _ := action.Data["name"].(string)
	email, _ := action.Data["email"].(string)
	if name == "" {
		name = email
	}

	entity := &models.Entity{Name: name, Email: email}
	if err := s.store.CreateEntity(c.Request().Context(), entity); err != nil {
		var pgErr *pgconn.PgError
		// 23505 = unique_violation
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			// Another approval already created this profile. The approval
			// itself stands; there is nothing left to materialize.
			log.Debug().
				Str("action_id", action.ID.String()).
				Str("email", email).
				Msg("profile already exists, skipping creation")
			return nil
		}
		log.Error().Err(err).Str("action_id", action.ID.String()).Msg("failed to materialize profile")
		return echo.NewHTTPError(http.StatusInternalServerError, "action approved but profile creation failed")
	}

	log.Info().
		Str("action_id", action.ID.String()).
		Str("entity_id", entity.ID.String()).
		Msg("profile materialized from approved action")
	return nil
}

func (s *Server) handleListAudit(c echo.Context) error {
	entries, err := s.store.ListAuditLogs(c.Request().Context(),
		c.QueryParam("status"), queryLimit(c))
	if err != nil {
		log.Error().Err(err).Msg("failed to list audit logs")
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list audit logs")
	}
	if entries == nil {
		entries = []models.IngestionAuditLog{}
	}
	return c.JSON(http.StatusOK, map[string]any{"audit": entries})
}

func (s *Server) handleListThreads(c echo.Context) error {
	threads, err := s.store.ListThreads(c.Request().Context(), queryLimit(c))
	if err != nil {
		log.Error().Err(err).Msg("failed to list threads")
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list threads")
	}
	if threads == nil {
		threads = []models.Thread{}
	}
	return c.JSON(http.StatusOK, map[string]any{"threads": threads})
}

func (s *Server) handleGetThread(c echo.Context) error {
	thread, err := s.store.GetThread(c.Request().Context(), c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "thread not found")
	}
	return c.JSON(http.StatusOK, thread)
}

func queryLimit(c echo.Context) int {
	limit, err := strconv.Atoi(c.QueryParam("limit"))
	if err != nil || limit <= 0 {
		return 100
	}
	return limit
}
