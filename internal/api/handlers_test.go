package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compass/internal/config"
	"github.com/compass/internal/models"
	"github.com/compass/internal/store"
)

type fakeStore struct {
	audits    []*models.IngestionAuditLog
	actions   map[uuid.UUID]*models.PendingAction
	entities  []*models.Entity
	entityErr error
	threads   map[string]*models.Thread
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		actions: make(map[uuid.UUID]*models.PendingAction),
		threads: make(map[string]*models.Thread),
	}
}

func (s *fakeStore) CreateAuditLog(_ context.Context, entry *models.IngestionAuditLog) error {
	entry.ID = uuid.New()
	entry.Status = models.AuditReceived
	entry.CreatedAt = time.Now().UTC()
	s.audits = append(s.audits, entry)
	return nil
}

func (s *fakeStore) UpdateAuditStatus(_ context.Context, id uuid.UUID, status, errorMessage string) error {
	for _, entry := range s.audits {
		if entry.ID == id {
			entry.Status = status
			entry.ErrorMessage = errorMessage
			return nil
		}
	}
	return errors.New("not found")
}

func (s *fakeStore) ListAuditLogs(context.Context, string, int) ([]models.IngestionAuditLog, error) {
	out := make([]models.IngestionAuditLog, 0, len(s.audits))
	for _, entry := range s.audits {
		out = append(out, *entry)
	}
	return out, nil
}

func (s *fakeStore) ListPendingActions(context.Context, string, int) ([]models.PendingAction, error) {
	out := make([]models.PendingAction, 0, len(s.actions))
	for _, action := range s.actions {
		out = append(out, *action)
	}
	return out, nil
}

func (s *fakeStore) GetAction(_ context.Context, id uuid.UUID) (*models.PendingAction, error) {
	action, ok := s.actions[id]
	if !ok {
		return nil, errors.New("not found")
	}
	copied := *action
	return &copied, nil
}

func (s *fakeStore) UpdateActionStatus(_ context.Context, id uuid.UUID, status string) error {
	action, ok := s.actions[id]
	if !ok {
		return errors.New("not found")
	}
	if action.Status != models.ActionPending {
		return fmt.Errorf("update action %s: %w", id, store.ErrInvalidTransition)
	}
	action.Status = status
	return nil
}

func (s *fakeStore) CreateEntity(_ context.Context, entity *models.Entity) error {
	if s.entityErr != nil {
		return s.entityErr
	}
	entity.ID = uuid.New()
	s.entities = append(s.entities, entity)
	return nil
}

func (s *fakeStore) ListThreads(context.Context, int) ([]models.Thread, error) {
	out := make([]models.Thread, 0, len(s.threads))
	for _, thread := range s.threads {
		out = append(out, *thread)
	}
	return out, nil
}

func (s *fakeStore) GetThread(_ context.Context, id string) (*models.Thread, error) {
	thread, ok := s.threads[id]
	if !ok {
		return nil, errors.New("not found")
	}
	copied := *thread
	return &copied, nil
}

type fakeQueue struct {
	queued []uuid.UUID
	err    error
}

func (q *fakeQueue) QueueIngestionJob(_ context.Context, id uuid.UUID) error {
	if q.err != nil {
		return q.err
	}
	q.queued = append(q.queued, id)
	return nil
}

func newTestServer(st Store, queue Queue, mutate func(*config.Config)) *Server {
	cfg := &config.Config{}
	cfg.Server.Port = 8000
	if mutate != nil {
		mutate(cfg)
	}
	return NewServer(st, queue, cfg)
}

func doRequest(s *Server, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)
	return rec
}

func TestWebhook_AcceptsAndQueues(t *testing.T) {
	st := newFakeStore()
	queue := &fakeQueue{}
	s := newTestServer(st, queue, nil)

	rec := doRequest(s, http.MethodPost, "/ingest/webhook",
		`{"connectionId":"conn-1","providerConfigKey":"google-gmail-oauth"}`, nil)

	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "audited", resp["status"])

	require.Len(t, st.audits, 1)
	assert.Equal(t, "conn-1", st.audits[0].SourceUUID)
	assert.Equal(t, "google-gmail-oauth", st.audits[0].SourcePlatform)
	assert.Equal(t, models.AuditReceived, st.audits[0].Status)
	assert.JSONEq(t, `{"connectionId":"conn-1","providerConfigKey":"google-gmail-oauth"}`,
		string(st.audits[0].RawPayload))

	require.Len(t, queue.queued, 1)
	assert.Equal(t, st.audits[0].ID, queue.queued[0])
}

func TestWebhook_MissingFieldsRejected(t *testing.T) {
	s := newTestServer(newFakeStore(), &fakeQueue{}, nil)

	rec := doRequest(s, http.MethodPost, "/ingest/webhook", `{"connectionId":"conn-1"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhook_SecretEnforced(t *testing.T) {
	st := newFakeStore()
	s := newTestServer(st, &fakeQueue{}, func(cfg *config.Config) {
		cfg.Server.WebhookSecret = "hush"
	})

	body := `{"connectionId":"conn-1","providerConfigKey":"slack"}`

	rec := doRequest(s, http.MethodPost, "/ingest/webhook", body, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, st.audits)

	rec = doRequest(s, http.MethodPost, "/ingest/webhook", body,
		map[string]string{"X-Webhook-Secret": "hush"})
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestWebhook_QueueFailureMarksAuditFailed(t *testing.T) {
	st := newFakeStore()
	queue := &fakeQueue{err: errors.New("river down")}
	s := newTestServer(st, queue, nil)

	rec := doRequest(s, http.MethodPost, "/ingest/webhook",
		`{"connectionId":"conn-1","providerConfigKey":"gmail"}`, nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Len(t, st.audits, 1)
	assert.Equal(t, models.AuditFailed, st.audits[0].Status)
}

func TestManualSync_QueuesJob(t *testing.T) {
	st := newFakeStore()
	queue := &fakeQueue{}
	s := newTestServer(st, queue, nil)

	rec := doRequest(s, http.MethodPost, "/api/v1/ingest/sync",
		`{"connection_id":"conn-2","platform":"slack"}`, nil)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, st.audits, 1)
	assert.Equal(t, "slack", st.audits[0].SourcePlatform)
	assert.Len(t, queue.queued, 1)
}

func TestActionStatus_ApproveCreateProfileMaterializesEntity(t *testing.T) {
	st := newFakeStore()
	actionID := uuid.New()
	st.actions[actionID] = &models.PendingAction{
		ID:     actionID,
		Type:   models.ActionCreateProfile,
		Status: models.ActionPending,
		Data:   map[string]any{"name": "New Prospect", "email": "new@prospect.com"},
	}
	s := newTestServer(st, &fakeQueue{}, nil)

	rec := doRequest(s, http.MethodPatch, "/api/v1/actions/"+actionID.String()+"/status",
		`{"status":"approved"}`, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.ActionApproved, st.actions[actionID].Status)
	require.Len(t, st.entities, 1)
	assert.Equal(t, "New Prospect", st.entities[0].Name)
	assert.Equal(t, "new@prospect.com", st.entities[0].Email)
}

func TestActionStatus_ApproveToleratesExistingProfile(t *testing.T) {
	st := newFakeStore()
	actionID := uuid.New()
	st.actions[actionID] = &models.PendingAction{
		ID:     actionID,
		Type:   models.ActionCreateProfile,
		Status: models.ActionPending,
		Data:   map[string]any{"name": "New Prospect", "email": "new@prospect.com"},
	}
	// Simulates the unique index on entities(email) rejecting the insert
	// because an earlier approval already created the profile.
	st.entityErr = fmt.Errorf("failed to create entity: %w", &pgconn.PgError{Code: "23505"})
	s := newTestServer(st, &fakeQueue{}, nil)

	rec := doRequest(s, http.MethodPatch, "/api/v1/actions/"+actionID.String()+"/status",
		`{"status":"approved"}`, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.ActionApproved, st.actions[actionID].Status)
	assert.Empty(t, st.entities)
}

func TestActionStatus_ApproveFailsOnOtherEntityErrors(t *testing.T) {
	st := newFakeStore()
	actionID := uuid.New()
	st.actions[actionID] = &models.PendingAction{
		ID:     actionID,
		Type:   models.ActionCreateProfile,
		Status: models.ActionPending,
		Data:   map[string]any{"email": "new@prospect.com"},
	}
	st.entityErr = errors.New("connection refused")
	s := newTestServer(st, &fakeQueue{}, nil)

	rec := doRequest(s, http.MethodPatch, "/api/v1/actions/"+actionID.String()+"/status",
		`{"status":"approved"}`, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestActionStatus_RejectLeavesEntitiesAlone(t *testing.T) {
	st := newFakeStore()
	actionID := uuid.New()
	st.actions[actionID] = &models.PendingAction{
		ID:     actionID,
		Type:   models.ActionCreateProfile,
		Status: models.ActionPending,
		Data:   map[string]any{"email": "new@prospect.com"},
	}
	s := newTestServer(st, &fakeQueue{}, nil)

	rec := doRequest(s, http.MethodPatch, "/api/v1/actions/"+actionID.String()+"/status",
		`{"status":"rejected"}`, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.ActionRejected, st.actions[actionID].Status)
	assert.Empty(t, st.entities)
}

func TestActionStatus_DoubleApprovalConflicts(t *testing.T) {
	st := newFakeStore()
	actionID := uuid.New()
	st.actions[actionID] = &models.PendingAction{
		ID:     actionID,
		Type:   models.ActionCalendarInvite,
		Status: models.ActionApproved,
	}
	s := newTestServer(st, &fakeQueue{}, nil)

	rec := doRequest(s, http.MethodPatch, "/api/v1/actions/"+actionID.String()+"/status",
		`{"status":"approved"}`, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestActionStatus_InvalidStatusRejected(t *testing.T) {
	s := newTestServer(newFakeStore(), &fakeQueue{}, nil)

	rec := doRequest(s, http.MethodPatch, "/api/v1/actions/"+uuid.NewString()+"/status",
		`{"status":"maybe"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestJWT_ProtectsDashboardEndpoints(t *testing.T) {
	s := newTestServer(newFakeStore(), &fakeQueue{}, func(cfg *config.Config) {
		cfg.Server.AuthSecret = "signing-secret"
	})

	rec := doRequest(s, http.MethodGet, "/api/v1/actions", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "operator",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte("signing-secret"))
	require.NoError(t, err)

	rec = doRequest(s, http.MethodGet, "/api/v1/actions", "",
		map[string]string{"Authorization": "Bearer " + signed})
	assert.Equal(t, http.StatusOK, rec.Code)

	// Webhook stays reachable without a JWT.
	rec = doRequest(s, http.MethodPost, "/ingest/webhook",
		`{"connectionId":"c","providerConfigKey":"gmail"}`, nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestGetThread(t *testing.T) {
	st := newFakeStore()
	st.threads["t1"] = &models.Thread{ID: "t1", Title: "Pilot kickoff"}
	s := newTestServer(st, &fakeQueue{}, nil)

	rec := doRequest(s, http.MethodGet, "/api/v1/threads/t1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var thread models.Thread
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &thread))
	assert.Equal(t, "Pilot kickoff", thread.Title)

	rec = doRequest(s, http.MethodGet, "/api/v1/threads/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
