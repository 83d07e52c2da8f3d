package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crm/internal/ratelimit/models"
	id "crm/pkg/domain"
	"crm/pkg/platform/httputil"
	"crm/pkg/testutil"
)

type stubLimiter struct {
	result *models.Result
	err    error
	calls  int
}

func (s *stubLimiter) CheckOrg(context.Context, id.OrgID) (*models.Result, error) {
	s.calls++
	return s.result, s.err
}

func serve(m *Middleware, org id.OrgID) (*httptest.ResponseRecorder, bool) {
	reached := false
	h := m.RateLimitOrg(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodGet, "/api/v1/dossiers", nil)
	if org != "" {
		req = testutil.WithOrg(req, org.String())
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec, reached
}

func TestRateLimitOrg(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("allowed request carries quota headers", func(t *testing.T) {
		limiter := &stubLimiter{result: &models.Result{Allowed: true, Limit: 600, Remaining: 599, ResetAt: time.Now().Add(time.Minute)}}
		rec, reached := serve(New(limiter, logger), "ORG-001")
		assert.True(t, reached)
		assert.Equal(t, "600", rec.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, "599", rec.Header().Get("X-RateLimit-Remaining"))
		assert.Empty(t, rec.Header().Get("X-RateLimit-Status"))
	})

	t.Run("exceeded quota answers 429 problem", func(t *testing.T) {
		limiter := &stubLimiter{result: &models.Result{Allowed: false, Limit: 600, ResetAt: time.Now().Add(30 * time.Second)}}
		rec, reached := serve(New(limiter, logger), "ORG-001")
		assert.False(t, reached)
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.NotEmpty(t, rec.Header().Get("Retry-After"))
		var p httputil.Problem
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
		assert.Equal(t, "rate_limited", p.Code)
	})

	t.Run("degraded mode is flagged", func(t *testing.T) {
		limiter := &stubLimiter{result: &models.Result{Allowed: true, Limit: 1, Degraded: true}}
		rec, _ := serve(New(limiter, logger), "ORG-001")
		assert.Equal(t, "degraded", rec.Header().Get("X-RateLimit-Status"))
	})

	t.Run("limiter errors fail open", func(t *testing.T) {
		limiter := &stubLimiter{err: errors.New("redis down")}
		rec, reached := serve(New(limiter, logger), "ORG-001")
		assert.True(t, reached)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("disabled or unresolved org skips the limiter", func(t *testing.T) {
		limiter := &stubLimiter{}
		_, reached := serve(New(limiter, logger, WithDisabled(true)), "ORG-001")
		assert.True(t, reached)
		_, reached = serve(New(limiter, logger), "")
		assert.True(t, reached)
		assert.Zero(t, limiter.calls)
	})
}
