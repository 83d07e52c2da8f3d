// Package service enforces the per-organization request quota.
package service

import (
	"context"
	"log/slog"
	"time"

	"crm/internal/ratelimit/metrics"
	"crm/internal/ratelimit/models"
	id "crm/pkg/domain"
	"crm/pkg/platform/circuit"
)

// Store counts requests in fixed windows.
type Store interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.Result, error)
}

// Limiter checks organizations against a requests-per-window quota. When a
// fallback store is configured, repeated primary failures open a circuit and
// checks are served locally until the primary recovers.
type Limiter struct {
	primary  Store
	fallback Store
	breaker  *circuit.Breaker
	limit    int
	window   time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

type Option func(*Limiter)

func WithFallback(store Store) Option {
	return func(l *Limiter) {
		l.fallback = store
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(l *Limiter) {
		l.breaker = b
	}
}

func WithWindow(d time.Duration) Option {
	return func(l *Limiter) {
		if d > 0 {
			l.window = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) {
		l.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Limiter) {
		l.metrics = m
	}
}

// New builds a limiter allowing limit requests per window (one minute by default).
func New(primary Store, limit int, opts ...Option) *Limiter {
	l := &Limiter{
		primary: primary,
		limit:   limit,
		window:  time.Minute,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.fallback != nil && l.breaker == nil {
		l.breaker = circuit.New("ratelimit-store")
	}
	return l
}

// CheckOrg counts one request for orgID.
func (l *Limiter) CheckOrg(ctx context.Context, orgID id.OrgID) (*models.Result, error) {
	result, err := l.check(ctx, models.OrgKey(orgID))
	if err != nil {
		return nil, err
	}
	if l.metrics != nil {
		l.metrics.IncrementChecks()
		if !result.Allowed {
			l.metrics.IncrementRejections()
		}
	}
	if !result.Allowed {
		l.logger.WarnContext(ctx, "rate limit exceeded",
			"org_id", orgID.String(),
			"limit", result.Limit,
		)
	}
	return result, nil
}

func (l *Limiter) check(ctx context.Context, key string) (*models.Result, error) {
	result, err := l.primary.Allow(ctx, key, l.limit, l.window)
	if l.breaker == nil || l.fallback == nil {
		return result, err
	}

	if err == nil {
		if _, change := l.breaker.RecordSuccess(); change.Closed {
			l.logger.InfoContext(ctx, "rate limit store recovered", "circuit", l.breaker.Name())
			l.setCircuitMetric(false)
		}
		return result, nil
	}

	useFallback, change := l.breaker.RecordFailure()
	if change.Opened {
		l.logger.WarnContext(ctx, "rate limit store unavailable, using in-memory fallback",
			"circuit", l.breaker.Name(),
			"error", err,
		)
		l.setCircuitMetric(true)
	}
	if !useFallback {
		return nil, err
	}

	result, err = l.fallback.Allow(ctx, key, l.limit, l.window)
	if err != nil {
		return nil, err
	}
	result.Degraded = true
	if l.metrics != nil {
		l.metrics.IncrementFallbackChecks()
	}
	return result, nil
}

func (l *Limiter) setCircuitMetric(open bool) {
	if l.metrics != nil {
		l.metrics.SetCircuitOpen(open)
	}
}
