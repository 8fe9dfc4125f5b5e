// SPDX-License-Identifier: MIT

package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamsift/streamsift/internal/config"
)

func TestAuth_DisabledWithoutConfiguredToken(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	require.Equal(t, http.StatusOK, w.Code)
}

func TestAuth_EnforcesConfiguredToken(t *testing.T) {
	env := newTestEnv(t)
	env.settings.APIToken = "secret-token"

	w := env.do(t, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "missing bearer token")

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w = env.do(t, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "invalid token")

	req = httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	w = env.do(t, req)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestAuth_CoversIngestRoute(t *testing.T) {
	env := newTestEnv(t)
	env.settings.APIToken = "secret-token"

	w := env.do(t, jsonRequest(http.MethodPost, "/api/observations",
		`{"contextId":"tab-1","url":"https://a.test/v.m3u8"}`))

	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuth_HealthzStaysOpen(t *testing.T) {
	env := newTestEnv(t)
	env.settings.APIToken = "secret-token"

	w := env.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, w.Code)
}

func TestAuth_TokenChangeTakesEffectWithoutRebuild(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	require.Equal(t, http.StatusOK, w.Code)

	env.settings.APIToken = "rotated"
	w = env.do(t, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestBearerToken(t *testing.T) {
	cases := []struct {
		name string
		auth string
		want string
	}{
		{"plain bearer", "Bearer abc123", "abc123"},
		{"padded token", "Bearer   abc123  ", "abc123"},
		{"no prefix", "abc123", ""},
		{"wrong scheme", "Basic abc123", ""},
		{"lowercase scheme", "bearer abc123", ""},
		{"empty", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.auth != "" {
				req.Header.Set("Authorization", tc.auth)
			}
			assert.Equal(t, tc.want, bearerToken(req))
		})
	}
}

func TestSecurityHeaders_OnEveryResponse(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	h := w.Header()
	assert.Equal(t, "default-src 'none'; frame-ancestors 'none'", h.Get("Content-Security-Policy"))
	assert.Equal(t, "nosniff", h.Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", h.Get("X-Frame-Options"))
	assert.Equal(t, "no-referrer", h.Get("Referrer-Policy"))
}

func TestRequestID_GeneratedAndEchoed(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "ext-42")
	w = env.do(t, req)
	assert.Equal(t, "ext-42", w.Header().Get("X-Request-ID"))
}

func TestRequestID_ReplacesOverlongClientID(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	long := make([]byte, 65)
	for i := range long {
		long[i] = 'x'
	}
	req.Header.Set("X-Request-ID", string(long))
	w := env.do(t, req)

	got := w.Header().Get("X-Request-ID")
	assert.NotEmpty(t, got)
	assert.NotEqual(t, string(long), got)
}

func TestRecoverer_TurnsPanicsInto500(t *testing.T) {
	env := newTestEnv(t)
	srv, err := New(Options{
		Settings: func() config.Settings { return env.settings },
		Pipeline: env.pipeline,
	})
	require.NoError(t, err)

	handler := srv.recoverer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "internal error")
}
