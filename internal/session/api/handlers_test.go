package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hive-dev/hive/internal/common/logger"
	"github.com/hive-dev/hive/internal/engine"
	"github.com/hive-dev/hive/internal/session/approval"
	"github.com/hive-dev/hive/internal/session/manager"
	"github.com/hive-dev/hive/internal/session/models"
	"github.com/hive-dev/hive/internal/session/repository"
	"github.com/hive-dev/hive/pkg/agentwire"
)

// stubConversation ends immediately with a successful result unless hold
// is set, in which case it stays open until released.
type stubConversation struct {
	msgs chan *agentwire.Message
}

func (c *stubConversation) Messages() <-chan *agentwire.Message { return c.msgs }
func (c *stubConversation) SetPermissionMode(string) error      { return nil }
func (c *stubConversation) Interrupt(context.Context) error     { return nil }
func (c *stubConversation) Close() error                        { return nil }

type stubEngine struct {
	hold    chan struct{} // non-nil: conversations block until closed
	started chan struct{}
}

func (e *stubEngine) Open(_ context.Context, _ string, _ engine.OpenOptions) (engine.Conversation, error) {
	conv := &stubConversation{msgs: make(chan *agentwire.Message)}
	go func() {
		conv.msgs <- &agentwire.Message{Type: agentwire.MessageTypeSystem, ConversationID: "conv-1"}
		if e.started != nil {
			close(e.started)
			e.started = nil
		}
		if e.hold != nil {
			<-e.hold
		}
		conv.msgs <- &agentwire.Message{Type: agentwire.MessageTypeResult, Subtype: models.ResultSuccess}
		close(conv.msgs)
	}()
	return conv, nil
}

type testServer struct {
	router    *gin.Engine
	manager   *manager.Manager
	approvals approval.Store
	engine    *stubEngine
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log, err := logger.NewLogger(logger.LoggingConfig{Level: "error", Format: "json", OutputPath: "stderr"})
	require.NoError(t, err)

	eng := &stubEngine{}
	approvals := approval.NewMemoryStore()
	mgr := manager.New(repository.NewMemoryStore(), approvals, eng, nil, log)

	router := gin.New()
	SetupRoutes(router.Group("/api/v1"), mgr, log)
	return &testServer{router: router, manager: mgr, approvals: approvals, engine: eng}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) createSession(t *testing.T) SessionResponse {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/v1/sessions", gin.H{"cwd": "/tmp/proj"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var resp SessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestCreateSessionValidation(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/sessions", gin.H{"model": "sonnet"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	session := s.createSession(t)
	assert.NotEmpty(t, session.ID)
	assert.Equal(t, "/tmp/proj", session.Cwd)
	assert.Equal(t, "idle", session.Status)
	assert.Equal(t, models.PermissionModeDefault, session.PermissionMode)
}

func TestGetAndListSessions(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/v1/sessions/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	session := s.createSession(t)
	rec = s.do(t, http.MethodGet, "/api/v1/sessions/"+session.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/sessions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list SessionsListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Total)
}

func TestStartSessionRunsInBackground(t *testing.T) {
	s := newTestServer(t)
	session := s.createSession(t)

	rec := s.do(t, http.MethodPost, "/api/v1/sessions/"+session.ID+"/start", gin.H{"prompt": "hello"})
	require.Equal(t, http.StatusAccepted, rec.Code)

	require.Eventually(t, func() bool {
		got, err := s.manager.GetSession(context.Background(), session.ID)
		return err == nil && got.Status == models.StatusIdle && got.ConversationID == "conv-1"
	}, 2*time.Second, 10*time.Millisecond)

	rec = s.do(t, http.MethodGet, "/api/v1/sessions/"+session.ID+"/results", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var results ResultsListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
	assert.Equal(t, 1, results.Total)
}

func TestStartSessionConflictsWhileRunning(t *testing.T) {
	s := newTestServer(t)
	session := s.createSession(t)

	s.engine.hold = make(chan struct{})
	s.engine.started = make(chan struct{})
	started := s.engine.started

	rec := s.do(t, http.MethodPost, "/api/v1/sessions/"+session.ID+"/start", gin.H{"prompt": "slow"})
	require.Equal(t, http.StatusAccepted, rec.Code)
	<-started

	rec = s.do(t, http.MethodPost, "/api/v1/sessions/"+session.ID+"/start", gin.H{"prompt": "again"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	close(s.engine.hold)
	require.Eventually(t, func() bool {
		got, err := s.manager.GetSession(context.Background(), session.ID)
		return err == nil && got.Status == models.StatusIdle
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStartSessionValidation(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/sessions/nope/start", gin.H{"prompt": "x"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	session := s.createSession(t)
	rec = s.do(t, http.MethodPost, "/api/v1/sessions/"+session.ID+"/start", gin.H{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestApprovalEndpoints(t *testing.T) {
	s := newTestServer(t)
	session := s.createSession(t)
	ctx := context.Background()

	_, err := s.approvals.CreatePending(ctx, session.ID, "tu-1", "Bash",
		map[string]any{"command": "ls"}, "fp-1")
	require.NoError(t, err)

	rec := s.do(t, http.MethodGet, "/api/v1/sessions/"+session.ID+"/approvals", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list ApprovalsListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Equal(t, 1, list.Total)
	assert.Equal(t, "Bash", list.Approvals[0].ToolName)

	rec = s.do(t, http.MethodDelete, "/api/v1/sessions/"+session.ID+"/approvals", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	remaining, err := s.approvals.ListPending(ctx, session.ID)
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestApproveAndDenyAcknowledge(t *testing.T) {
	s := newTestServer(t)
	session := s.createSession(t)

	// Unknown approval ids are benign no-ops; the API still acknowledges.
	rec := s.do(t, http.MethodPost, "/api/v1/sessions/"+session.ID+"/approvals/gone/approve", nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/sessions/"+session.ID+"/approvals/gone/deny", gin.H{"reason": "no"})
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/sessions/"+session.ID+"/approve-all", nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/sessions/missing/approve-all", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSetPermissionMode(t *testing.T) {
	s := newTestServer(t)
	session := s.createSession(t)

	rec := s.do(t, http.MethodPut, "/api/v1/sessions/"+session.ID+"/permission-mode",
		gin.H{"mode": "yolo"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPut, "/api/v1/sessions/"+session.ID+"/permission-mode",
		gin.H{"mode": models.PermissionModeBypassAll, "ttl_seconds": 300})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp SessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, models.PermissionModeBypassAll, resp.PermissionMode)
	require.NotNil(t, resp.PermissionModeExpiresAt)
	assert.WithinDuration(t, time.Now().Add(300*time.Second), *resp.PermissionModeExpiresAt, 5*time.Second)
}

func TestDeleteSession(t *testing.T) {
	s := newTestServer(t)
	session := s.createSession(t)

	rec := s.do(t, http.MethodDelete, "/api/v1/sessions/"+session.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/sessions/"+session.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodDelete, "/api/v1/sessions/"+session.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
