package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"crm/internal/ratelimit/models"
	id "crm/pkg/domain"
	dErrors "crm/pkg/domain-errors"
	"crm/pkg/platform/httputil"
	"crm/pkg/requestcontext"
)

type RateLimiter interface {
	CheckOrg(ctx context.Context, orgID id.OrgID) (*models.Result, error)
}

type Middleware struct {
	limiter  RateLimiter
	logger   *slog.Logger
	disabled bool
}

type Option func(*Middleware)

// WithDisabled turns the middleware into a pass-through.
func WithDisabled(disabled bool) Option {
	return func(m *Middleware) {
		m.disabled = disabled
	}
}

func New(limiter RateLimiter, logger *slog.Logger, opts ...Option) *Middleware {
	m := &Middleware{
		limiter: limiter,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.disabled {
		logger.Info("rate limiting disabled")
	}
	return m
}

// RateLimitOrg limits requests per resolved organization. It must run after
// the tenant resolver. A limiter error lets the request through.
func (m *Middleware) RateLimitOrg(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		orgID := requestcontext.OrgID(ctx)
		if m.disabled || orgID.IsNil() {
			next.ServeHTTP(w, r)
			return
		}

		result, err := m.limiter.CheckOrg(ctx, orgID)
		if err != nil {
			m.logger.ErrorContext(ctx, "failed to check org rate limit",
				"org_id", orgID.String(),
				"request_id", requestcontext.RequestID(ctx),
				"error", err,
			)
			next.ServeHTTP(w, r)
			return
		}

		addRateLimitHeaders(w, result)
		if !result.Allowed {
			w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter(time.Now())))
			httputil.WriteProblem(w, r, http.StatusTooManyRequests, dErrors.CodeRateLimited,
				"Too many requests for this organization. Please try again later.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func addRateLimitHeaders(w http.ResponseWriter, result *models.Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
	if result.Degraded {
		w.Header().Set("X-RateLimit-Status", "degraded")
	}
}
