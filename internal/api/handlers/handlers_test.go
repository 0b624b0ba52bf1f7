package handlers_test

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
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/iotguard/guardd/internal/api/routes"
	"github.com/iotguard/guardd/internal/config"
	"github.com/iotguard/guardd/internal/engine"
	"github.com/iotguard/guardd/internal/hook"
	"github.com/iotguard/guardd/internal/models"
	"github.com/iotguard/guardd/internal/services"
)

type testEnv struct {
	router  *gin.Engine
	store   *config.Store
	engine  *engine.Engine
	actions *services.ActionService
	auth    *services.AuthService
}

func setupEnv(t *testing.T, snap config.Snapshot, h hook.Hook) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.ActionRecord{}, &models.BlockedSource{}, &models.User{}))

	store := config.NewStore(snap)
	actions := services.NewActionService(db, nil)
	auth := services.NewAuthService(db, "test-secret")
	eng := engine.New(store, map[config.HookSelector]hook.Hook{config.HookPosix: h}, actions, 2)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	eng.Start(ctx)

	router := gin.New()
	routes.Register(router, routes.Deps{
		DB:      db,
		Store:   store,
		Engine:  eng,
		Actions: actions,
		Auth:    auth,
	})

	return &testEnv{router: router, store: store, engine: eng, actions: actions, auth: auth}
}

func blockingHook() hook.Hook {
	return hook.Func(func(_ context.Context, _ string) (hook.Outcome, error) {
		return hook.OutcomeBlocked, nil
	})
}

func armedSnapshot() config.Snapshot {
	snap := config.DefaultSnapshot()
	snap.Grace = 1
	snap.CooldownSec = 0
	snap.DryRun = false
	return snap
}

func (env *testEnv) do(t *testing.T, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	env := setupEnv(t, config.DefaultSnapshot(), blockingHook())

	w := env.do(t, http.MethodGet, "/api/v1/health", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
	assert.Contains(t, w.Body.String(), "guardd")
}

func TestStatusEndpoint(t *testing.T) {
	env := setupEnv(t, config.DefaultSnapshot(), blockingHook())

	w := env.do(t, http.MethodGet, "/api/v1/status", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Policy struct {
			Threshold float64 `json:"threshold"`
			DryRun    bool    `json:"dry_run"`
		} `json:"policy"`
		Engine engine.Stats `json:"engine"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 0.70, resp.Policy.Threshold)
	assert.True(t, resp.Policy.DryRun)
	assert.Equal(t, 0, resp.Engine.TrackedSources)
}

func TestIngestValidation(t *testing.T) {
	env := setupEnv(t, config.DefaultSnapshot(), blockingHook())

	w := env.do(t, http.MethodPost, "/api/v1/events", map[string]interface{}{"source_id": "10.0.0.1"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/events", map[string]interface{}{"source_id": "10.0.0.1", "score": 1.5}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/events", map[string]interface{}{"score": 0.5}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIngestToBlockFlow(t *testing.T) {
	env := setupEnv(t, armedSnapshot(), blockingHook())

	w := env.do(t, http.MethodPost, "/api/v1/events", map[string]interface{}{
		"source_id":    "203.0.113.9",
		"window_index": 1,
		"score":        0.92,
	}, nil)
	require.Equal(t, http.StatusAccepted, w.Code)

	require.Eventually(t, func() bool {
		return env.engine.Stats().BlockedSources == 1
	}, 2*time.Second, 10*time.Millisecond)

	// The decision shows up in the action log and the blocked registry.
	w = env.do(t, http.MethodGet, "/api/v1/decisions?limit=10", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"action":"block"`)

	w = env.do(t, http.MethodGet, "/api/v1/sources/blocked", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "203.0.113.9")

	w = env.do(t, http.MethodGet, "/api/v1/sources", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"state":"BLOCKED"`)
}

func TestDecisionsLimitValidation(t *testing.T) {
	env := setupEnv(t, config.DefaultSnapshot(), blockingHook())

	w := env.do(t, http.MethodGet, "/api/v1/decisions?limit=abc", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/decisions?limit=-1", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLoginEndpoint(t *testing.T) {
	env := setupEnv(t, config.DefaultSnapshot(), blockingHook())
	_, err := env.auth.Register("ops@example.com", "password123")
	require.NoError(t, err)

	w := env.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email": "ops@example.com", "password": "wrong",
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email": "ops@example.com", "password": "password123",
	}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "token")
}

func TestUnblockRequiresAuth(t *testing.T) {
	env := setupEnv(t, armedSnapshot(), blockingHook())

	w := env.do(t, http.MethodPost, "/api/v1/sources/203.0.113.10/unblock", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestUnblockFlow(t *testing.T) {
	env := setupEnv(t, armedSnapshot(), blockingHook())

	// Block a source first.
	env.engine.Process(engine.Event{SourceID: "203.0.113.11", WindowIndex: 0, Score: 0.9})
	require.Equal(t, 1, env.engine.Stats().BlockedSources)

	_, err := env.auth.Register("ops@example.com", "password123")
	require.NoError(t, err)
	token, err := env.auth.Login("ops@example.com", "password123")
	require.NoError(t, err)

	w := env.do(t, http.MethodPost, "/api/v1/sources/203.0.113.11/unblock", nil, map[string]string{
		"Authorization": "Bearer " + token,
	})
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, 0, env.engine.Stats().BlockedSources)
	blocked, err := env.actions.ListBlocked()
	require.NoError(t, err)
	assert.Empty(t, blocked)
}
