package payment

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_CreateSession(t *testing.T) {
	t.Run("posts the session request and decodes the response", func(t *testing.T) {
		var gotReq SessionRequest
		var gotAuth string

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodPost, r.Method)
			require.Equal(t, "/v1/sessions", r.URL.Path)
			gotAuth = r.Header.Get("Authorization")

			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(Session{
				SessionID:   "sess-1",
				RedirectURL: "https://pay.example.com/sess-1",
			})
		}))
		defer srv.Close()

		c := NewClient("fakepay", srv.URL, "secret-key", srv.Client())

		session, err := c.CreateSession(context.Background(), SessionRequest{
			ReservationID: "res-1",
			AmountCents:   15000,
			Currency:      "EUR",
			CustomerName:  "Ada Lovelace",
			CustomerEmail: "ada@example.com",
			ExpiresAt:     time.Date(2026, 6, 1, 12, 10, 0, 0, time.UTC),
		})
		require.NoError(t, err)

		assert.Equal(t, "sess-1", session.SessionID)
		assert.Equal(t, "https://pay.example.com/sess-1", session.RedirectURL)
		assert.Equal(t, "Bearer secret-key", gotAuth)
		assert.Equal(t, int64(15000), gotReq.AmountCents)
		assert.Equal(t, "res-1", gotReq.ReservationID)
	})

	t.Run("non-2xx is an error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error":"amount too small"}`, http.StatusUnprocessableEntity)
		}))
		defer srv.Close()

		c := NewClient("fakepay", srv.URL, "secret-key", srv.Client())

		_, err := c.CreateSession(context.Background(), SessionRequest{AmountCents: 1})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "422")
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// The server only detects the client disconnect (and cancels
			// r.Context()) once the request body has been drained.
			_, _ = io.Copy(io.Discard, r.Body)
			<-r.Context().Done()
		}))
		defer srv.Close()

		c := NewClient("fakepay", srv.URL, "secret-key", srv.Client())

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		_, err := c.CreateSession(ctx, SessionRequest{})
		require.Error(t, err)
	})
}
