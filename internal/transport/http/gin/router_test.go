package httpgin

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T, webhookSecret string) *gin.Engine {
	t.Helper()

	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	// handlers only touch their services when a request reaches them, so the
	// request-validation paths are testable without a database
	return NewRouter(nil, nil, webhookSecret, logger)
}

func TestHealthz(t *testing.T) {
	r := newTestRouter(t, "")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	r := newTestRouter(t, "")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestReserve_BadPayload(t *testing.T) {
	r := newTestRouter(t, "")

	tests := []struct {
		name string
		body string
	}{
		{"not json", "not-json"},
		{"missing items", `{"user_id":1,"event_id":1}`},
		{"zero quantity", `{"user_id":1,"event_id":1,"items":[{"ticket_type_id":10,"quantity":0}]}`},
		{"bad platform", `{"user_id":1,"event_id":1,"platform":"phone","items":[{"ticket_type_id":10,"quantity":1}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/checkout/reserve", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			r.ServeHTTP(w, req)

			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestReservationRoutes_InvalidID(t *testing.T) {
	r := newTestRouter(t, "")

	for _, path := range []string{
		"/reservations/not-a-uuid",
		"/orders/not-a-uuid",
	} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusBadRequest, w.Code, path)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/events/abc", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhook_SecretCheck(t *testing.T) {
	r := newTestRouter(t, "hunter2")

	t.Run("missing secret", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/payments/webhook",
			strings.NewReader(`{"session_id":"sess-1","result":"success"}`))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("wrong secret", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/payments/webhook",
			strings.NewReader(`{"session_id":"sess-1","result":"success"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Webhook-Secret", "wrong")
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("right secret but invalid result value", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/payments/webhook",
			strings.NewReader(`{"session_id":"sess-1","result":"maybe"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Webhook-Secret", "hunter2")
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestRequestIDMiddleware(t *testing.T) {
	r := newTestRouter(t, "")

	t.Run("generates an id", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

		assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	})

	t.Run("echoes the caller's id", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.Header.Set("X-Request-ID", "req-42")
		r.ServeHTTP(w, req)

		assert.Equal(t, "req-42", w.Header().Get("X-Request-ID"))
	})
}

func TestWriteJSONWithCache(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.GET("/cached", func(c *gin.Context) {
		writeJSONWithCache(c, http.StatusOK, gin.H{"n": 1}, "public, max-age=60", true)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/cached", nil))

	require.Equal(t, http.StatusOK, w.Code)
	etag := w.Header().Get("ETag")
	require.NotEmpty(t, etag)
	assert.True(t, strings.HasPrefix(etag, "W/"))
	assert.Equal(t, "public, max-age=60", w.Header().Get("Cache-Control"))

	// replay with If-None-Match
	w2 := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/cached", nil)
	req.Header.Set("If-None-Match", etag)
	r.ServeHTTP(w2, req)

	assert.Equal(t, http.StatusNotModified, w2.Code)
	assert.Empty(t, w2.Body.String())
}
