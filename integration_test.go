package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tasktree/backend/internal/config"
	"tasktree/backend/internal/middleware"
	"tasktree/backend/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const integrationSecret = "integration-secret"

func setupTestApp(t *testing.T, redisEnabled bool) (*App, *miniredis.Miniredis) {
	t.Helper()
	t.Setenv("ENVIRONMENT", "development")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_PATH", ":memory:")
	t.Setenv("JWT_SECRET", integrationSecret)
	t.Setenv("RATE_LIMIT_ENABLED", "false")
	t.Setenv("HOST", "127.0.0.1")
	t.Setenv("PORT", "0")

	var mr *miniredis.Miniredis
	if redisEnabled {
		mr = miniredis.RunT(t)
		host, port, _ := strings.Cut(mr.Addr(), ":")
		t.Setenv("REDIS_HOST", host)
		t.Setenv("REDIS_PORT", port)
	} else {
		t.Setenv("REDIS_ENABLED", "false")
	}

	cfg, err := config.LoadConfig()
	require.NoError(t, err)

	app, err := newApp(cfg, zerolog.New(io.Discard))
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		app.Shutdown(ctx)
	})
	return app, mr
}

func call(t *testing.T, app *App, subject, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, _ := http.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if subject != "" {
		token, err := middleware.SignToken(integrationSecret, "", subject, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	app.engine.ServeHTTP(w, req)
	return w
}

func createdID(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var body struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.ID
}

func TestApplicationStartup(t *testing.T) {
	app, _ := setupTestApp(t, true)

	w := call(t, app, "", "GET", "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"redis"`)
	assert.Contains(t, w.Body.String(), `"database"`)

	assert.Equal(t, http.StatusUnauthorized, call(t, app, "", "GET", "/api/v1/workspaces", nil).Code)
}

func TestCascadeOverHTTP(t *testing.T) {
	app, _ := setupTestApp(t, true)

	wsID := createdID(t, call(t, app, "user_1", "POST", "/api/v1/workspaces", map[string]string{"name": "Home"}))
	a := createdID(t, call(t, app, "user_1", "POST", "/api/v1/tasks", map[string]string{"title": "A", "workspace_id": wsID}))
	b := createdID(t, call(t, app, "user_1", "POST", "/api/v1/tasks", map[string]string{"title": "B", "workspace_id": wsID, "parent_id": a}))
	c := createdID(t, call(t, app, "user_1", "POST", "/api/v1/tasks", map[string]string{"title": "C", "workspace_id": wsID, "parent_id": b}))

	w := call(t, app, "user_1", "GET", "/api/v1/tasks/"+a+"/descendants", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `["`+b+`","`+c+`"]`, w.Body.String())

	// Prime the cache, then make sure the cascade invalidates it.
	require.Equal(t, http.StatusOK, call(t, app, "user_1", "GET", "/api/v1/workspaces/"+wsID+"/tasks", nil).Code)
	require.Equal(t, http.StatusOK, call(t, app, "user_1", "POST", "/api/v1/tasks/"+b+"/complete", nil).Code)

	w = call(t, app, "user_1", "GET", "/api/v1/workspaces/"+wsID+"/tasks", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var tasks []models.Task
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tasks))
	require.Len(t, tasks, 3)
	completed := map[string]bool{}
	for _, task := range tasks {
		completed[task.Title] = task.Completed
	}
	assert.Equal(t, map[string]bool{"A": false, "B": true, "C": true}, completed)

	assert.Equal(t, http.StatusNoContent, call(t, app, "user_1", "DELETE", "/api/v1/tasks/"+a, nil).Code)
	w = call(t, app, "user_1", "GET", "/api/v1/workspaces/"+wsID+"/tasks", nil)
	assert.Equal(t, "[]", w.Body.String())
}

func TestForeignAccessIsDeniedAndAudited(t *testing.T) {
	app, _ := setupTestApp(t, true)
	app.Start()

	wsID := createdID(t, call(t, app, "user_1", "POST", "/api/v1/workspaces", map[string]string{"name": "Home"}))
	taskID := createdID(t, call(t, app, "user_1", "POST", "/api/v1/tasks", map[string]string{"title": "A", "workspace_id": wsID}))

	w := call(t, app, "user_2", "PATCH", "/api/v1/tasks/"+taskID, map[string]string{"title": "pwned"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.JSONEq(t, `{"error":"unauthorized"}`, w.Body.String())

	w = call(t, app, "user_2", "GET", "/api/v1/workspaces/"+wsID, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "null", w.Body.String())

	assert.Eventually(t, func() bool {
		var count int64
		app.pool.DB.Model(&models.AuditLog{}).Where("user_id = ? AND action = ?", "user_2", "task.update").Count(&count)
		return count == 1
	}, 5*time.Second, 50*time.Millisecond)

	w = call(t, app, "user_1", "GET", "/api/v1/workspaces/"+wsID+"/tasks", nil)
	assert.Contains(t, w.Body.String(), `"title":"A"`)
}

func TestWorkspaceSelectionSurvivesWithRedis(t *testing.T) {
	app, mr := setupTestApp(t, true)

	wsID := createdID(t, call(t, app, "user_1", "POST", "/api/v1/workspaces", map[string]string{"name": "Home"}))

	w := call(t, app, "user_1", "PUT", "/api/v1/session/workspace", map[string]string{"workspace_id": wsID})
	require.Equal(t, http.StatusOK, w.Code)

	stored, err := mr.Get("selection:user_1")
	require.NoError(t, err)
	assert.Equal(t, wsID, stored)

	assert.Equal(t, http.StatusNoContent, call(t, app, "user_1", "DELETE", "/api/v1/workspaces/"+wsID, nil).Code)
	w = call(t, app, "user_1", "GET", "/api/v1/session/workspace", nil)
	assert.Equal(t, "null", w.Body.String())
}

func TestRunsWithoutRedis(t *testing.T) {
	app, _ := setupTestApp(t, false)

	wsID := createdID(t, call(t, app, "user_1", "POST", "/api/v1/workspaces", map[string]string{"name": "Solo"}))
	w := call(t, app, "user_1", "GET", "/api/v1/workspaces/"+wsID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"name":"Solo"`)

	assert.Equal(t, http.StatusForbidden, call(t, app, "user_2", "DELETE", "/api/v1/workspaces/"+wsID, nil).Code)

	w = call(t, app, "", "GET", "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), `"redis"`)
}

func TestProductionRequiresSecret(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("DB_DRIVER", "sqlite")

	_, err := config.LoadConfig()
	assert.Error(t, err)
}
