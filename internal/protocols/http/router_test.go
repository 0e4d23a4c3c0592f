package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classhub/internal/collab"
	wsProtocol "classhub/internal/protocols/websocket"
	"classhub/internal/realtime"
	"classhub/pkg/models"
)

type stubDocStore struct{}

func (stubDocStore) Load(context.Context, string, string, string) (*models.CollabDocRecord, error) {
	return nil, models.ErrNotFound
}

func (stubDocStore) Save(context.Context, *models.CollabDocRecord) error { return nil }

type stubNamespaceRepo struct{}

func (stubNamespaceRepo) GetByTitle(context.Context, string) (*models.Namespace, error) {
	return &models.Namespace{ID: "ns-1"}, nil
}

func (stubNamespaceRepo) IsOwner(context.Context, string, string) (bool, error) {
	return false, nil
}

type stubAuth struct{}

func (stubAuth) ValidateToken(context.Context, string) (*models.User, error) {
	return nil, models.ErrInvalidToken
}

func (stubAuth) GetUserByID(context.Context, string) (*models.User, error) {
	return nil, models.ErrUserNotFound
}

func testServer() *Server {
	rooms := realtime.NewRoomRegistry(0)
	docs := collab.NewRegistry(stubDocStore{}, 0)
	dispatcher := wsProtocol.NewDispatcher(rooms, docs, stubNamespaceRepo{})
	ws := wsProtocol.NewHandler(dispatcher, stubAuth{}, rooms, nil, 0, 0)
	return NewServer(ws, docs)
}

func TestHealthEndpoint(t *testing.T) {
	s := testServer()
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestDocumentStatusEndpoint(t *testing.T) {
	s := testServer()
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/documents/status", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, float64(0), body["live_instances"])
	assert.Equal(t, float64(0), body["pending_saves"])
}

func TestCORSPreflight(t *testing.T) {
	s := testServer()
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/ws", nil))

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestWebSocketRouteRejectsAnonymous(t *testing.T) {
	s := testServer()
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ws", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	var appErr models.AppError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &appErr))
	assert.Equal(t, models.ErrCodeUnauthorized, appErr.Code)
	assert.Equal(t, "http", appErr.Protocol)
}
