package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/odyssey-accounts/internal/users"
	_ "github.com/odyssey-erp/odyssey-accounts/testing"
)

func newTestRuntime(t *testing.T) *Runtime {
	t.Helper()
	cfg := &Config{
		AppEnv:            "test",
		AppRequestTimeout: 5 * time.Second,
		StoreDriver:       StoreMemory,
		LogFormat:         "pretty",
		TokenSecret:       "router-test-secret",
		TokenTTL:          time.Hour,
		BcryptCost:        bcrypt.MinCost,
		HashWorkers:       2,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rt, err := NewRuntime(context.Background(), cfg, logger)
	require.NoError(t, err)
	t.Cleanup(rt.Close)
	return rt
}

func send(t *testing.T, h http.Handler, method, path, bearer, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func tokenOf(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.NotEmpty(t, body.Token)
	return body.Token
}

func TestAccountLifecycle(t *testing.T) {
	h := newTestRuntime(t).Handler

	rr := send(t, h, http.MethodPost, "/register", "", `{"name":"Ann","email":"ann@x.com","password":"secret123"}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	tokenOf(t, rr)

	rr = send(t, h, http.MethodPost, "/login", "", `{"email":"ann@x.com","password":"wrong"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "Invalid email or password")

	rr = send(t, h, http.MethodPost, "/login", "", `{"email":"ann@x.com","password":"secret123"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	bearer := tokenOf(t, rr)

	rr = send(t, h, http.MethodGet, "/users", bearer, "")
	require.Equal(t, http.StatusOK, rr.Code)
	var list []users.PublicAccount
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	require.Len(t, list, 1)
	annID := list[0].ID
	assert.NotContains(t, rr.Body.String(), "$2a$")

	rr = send(t, h, http.MethodPut, "/users/"+annID, bearer, `{"name":"Annie"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"name":"Annie"`)

	rr = send(t, h, http.MethodDelete, "/users/"+annID, bearer, "")
	require.Equal(t, http.StatusNoContent, rr.Code)

	rr = send(t, h, http.MethodGet, "/users/"+annID, bearer, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), "User not found")
}

func TestRegisterDuplicateThroughRouter(t *testing.T) {
	h := newTestRuntime(t).Handler
	body := `{"name":"Ann","email":"ann@x.com","password":"secret123"}`

	require.Equal(t, http.StatusCreated, send(t, h, http.MethodPost, "/register", "", body).Code)
	rr := send(t, h, http.MethodPost, "/register", "", body)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "User already exists")
}

func TestUsersRoutesRequireBearer(t *testing.T) {
	h := newTestRuntime(t).Handler

	rr := send(t, h, http.MethodGet, "/users", "", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = send(t, h, http.MethodGet, "/users", "not.a.token", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestHealthzAndMetrics(t *testing.T) {
	rt := newTestRuntime(t)

	rr := send(t, rt.Handler, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"status":"ok"`)

	send(t, rt.Handler, http.MethodPost, "/login", "", `{"email":"ghost@x.com","password":"x"}`)

	rr = send(t, rt.Handler, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `odyssey_accounts_auth_attempts_total{operation="login",result="rejected"} 1`)
	assert.Contains(t, rr.Body.String(), `route="/login"`)
}

func TestHealthzReportsStoreFailure(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewRouter(RouterParams{
		Logger: logger,
		Ready:  func(*http.Request) error { return errors.New("store down") },
	})

	rr := send(t, h, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestSecurityHeaders(t *testing.T) {
	h := newTestRuntime(t).Handler

	rr := send(t, h, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
}
