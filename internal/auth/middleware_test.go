package auth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-accounts/internal/auth"
	"github.com/odyssey-erp/odyssey-accounts/internal/shared"
)

func protected(t *testing.T, f fixture) (http.Handler, *shared.Subject) {
	t.Helper()
	seen := &shared.Subject{}
	h := f.svc.RequireBearer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject, ok := shared.SubjectFromContext(r.Context())
		require.True(t, ok)
		*seen = subject
		w.WriteHeader(http.StatusOK)
	}))
	return h, seen
}

func call(h http.Handler, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/users", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRequireBearerAcceptsValidToken(t *testing.T) {
	f := newFixture(t)
	raw, err := f.svc.Register(context.Background(), auth.RegisterInput{Name: "Ann", Email: "ann@x.com", Password: "secret123"})
	require.NoError(t, err)
	h, seen := protected(t, f)

	rr := call(h, "Bearer "+raw)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ann@x.com", seen.Email)

	rr = call(h, "bearer "+raw)
	assert.Equal(t, http.StatusOK, rr.Code, "scheme is case-insensitive")
}

func TestRequireBearerRejects(t *testing.T) {
	f := newFixture(t)
	raw, err := f.svc.Register(context.Background(), auth.RegisterInput{Name: "Ann", Email: "ann@x.com", Password: "secret123"})
	require.NoError(t, err)
	h, _ := protected(t, f)

	parts := strings.Split(raw, ".")
	require.Len(t, parts, 3)
	tampered := parts[0] + "." + parts[1] + "x." + parts[2]

	cases := map[string]string{
		"missing header":   "",
		"wrong scheme":     "Basic " + raw,
		"empty token":      "Bearer ",
		"malformed token":  "Bearer not-a-token",
		"tampered payload": "Bearer " + tampered,
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			rr := call(h, header)
			assert.Equal(t, http.StatusUnauthorized, rr.Code)
			assert.Contains(t, rr.Header().Get("WWW-Authenticate"), "Bearer")
			assert.Contains(t, rr.Body.String(), `"code":"unauthorized"`)
		})
	}
}

func TestRequireBearerRejectsExpiredToken(t *testing.T) {
	f := newFixture(t)
	raw, err := f.svc.Register(context.Background(), auth.RegisterInput{Name: "Ann", Email: "ann@x.com", Password: "secret123"})
	require.NoError(t, err)
	h, _ := protected(t, f)

	f.clock.Advance(time.Hour + time.Second)
	rr := call(h, "Bearer "+raw)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}
