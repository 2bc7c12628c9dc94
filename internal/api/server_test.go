package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cinepay/internal/config"
	"cinepay/internal/external"
	"cinepay/internal/testutil"
	"cinepay/internal/webhook"
)

func testConfig(backendURL string) *config.Config {
	return &config.Config{
		Port:    "0",
		GinMode: "test",
		Webhook: config.WebhookConfig{
			Secret: "whsec_test",
			Algo:   "sha256",
			Store:  config.StoreMemory,
		},
		Booking: external.BookingConfig{BaseURL: backendURL},
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	backend := testutil.NewBackend(t)
	cfg := testConfig(backend.URL())

	srv, err := NewServer(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Cleanup() })
	return srv
}

func TestServerRoutes(t *testing.T) {
	srv := newTestServer(t)

	for _, path := range []string{"/health", "/metrics", "/webhook/status"} {
		req, _ := http.NewRequest("GET", path, nil)
		w := httptest.NewRecorder()
		srv.GetRouter().ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}

func TestServerEchoesRequestID(t *testing.T) {
	srv := newTestServer(t)

	req, _ := http.NewRequest("GET", "/health", nil)
	req.Header.Set("X-Request-ID", "req-42")
	w := httptest.NewRecorder()
	srv.GetRouter().ServeHTTP(w, req)
	assert.Equal(t, "req-42", w.Header().Get("X-Request-ID"))

	req, _ = http.NewRequest("GET", "/health", nil)
	w = httptest.NewRecorder()
	srv.GetRouter().ServeHTTP(w, req)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestServerSelfTest(t *testing.T) {
	srv := newTestServer(t)

	res := srv.stack.Reconciler.TestWebhookConnection(context.Background())
	require.NoError(t, res.Err)
	assert.True(t, res.Ignored)

	req, _ := http.NewRequest("POST", "/webhook/rapikom", bytes.NewReader([]byte(`{}`)))
	req.Header.Set(webhook.SignatureHeader, "nope")
	w := httptest.NewRecorder()
	srv.GetRouter().ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
