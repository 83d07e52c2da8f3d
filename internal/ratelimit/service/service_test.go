package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crm/internal/ratelimit/metrics"
	"crm/internal/ratelimit/models"
	"crm/internal/ratelimit/store/window"
	"crm/pkg/platform/circuit"
)

// switchableStore fails while down is set and delegates otherwise.
type switchableStore struct {
	inner *window.InMemoryStore
	down  bool
}

func (s *switchableStore) Allow(ctx context.Context, key string, limit int, w time.Duration) (*models.Result, error) {
	if s.down {
		return nil, errors.New("connection refused")
	}
	return s.inner.Allow(ctx, key, limit, w)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCheckOrg(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	limiter := New(window.NewInMemoryStore(), 2, WithMetrics(m), WithLogger(quietLogger()))
	ctx := context.Background()

	for range 2 {
		result, err := limiter.CheckOrg(ctx, "ORG-001")
		require.NoError(t, err)
		assert.True(t, result.Allowed)
	}
	result, err := limiter.CheckOrg(ctx, "ORG-001")
	require.NoError(t, err)
	assert.False(t, result.Allowed)

	result, err = limiter.CheckOrg(ctx, "ORG-002")
	require.NoError(t, err)
	assert.True(t, result.Allowed, "quotas are per organization")

	assert.Equal(t, 4.0, testutil.ToFloat64(m.Checks))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Rejections))
}

func TestPrimaryErrorWithoutFallbackIsReturned(t *testing.T) {
	limiter := New(&switchableStore{down: true}, 10, WithLogger(quietLogger()))
	_, err := limiter.CheckOrg(context.Background(), "ORG-001")
	assert.Error(t, err)
}

func TestFallbackAfterCircuitOpens(t *testing.T) {
	primary := &switchableStore{inner: window.NewInMemoryStore(), down: true}
	m := metrics.New(prometheus.NewRegistry())
	breaker := circuit.New("test", circuit.WithFailureThreshold(2), circuit.WithSuccessThreshold(1))
	limiter := New(primary, 10,
		WithFallback(window.NewInMemoryStore()),
		WithBreaker(breaker),
		WithMetrics(m),
		WithLogger(quietLogger()),
	)
	ctx := context.Background()

	_, err := limiter.CheckOrg(ctx, "ORG-001")
	require.Error(t, err, "first failure is below the threshold")

	result, err := limiter.CheckOrg(ctx, "ORG-001")
	require.NoError(t, err)
	assert.True(t, result.Degraded)
	assert.True(t, breaker.IsOpen())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CircuitOpen))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FallbackChecks))

	primary.down = false
	result, err = limiter.CheckOrg(ctx, "ORG-001")
	require.NoError(t, err)
	assert.False(t, result.Degraded)
	assert.False(t, breaker.IsOpen())
	assert.Equal(t, 0.0, testutil.ToFloat64(m.CircuitOpen))
}
