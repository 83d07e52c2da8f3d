package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveHTTPRequest(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())

	m.ObserveHTTPRequest("/api/v1/dossiers/{id}", "GET", 404, time.Now())
	m.ObserveHTTPRequest("/api/v1/dossiers/{id}", "GET", 404, time.Now())

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("/api/v1/dossiers/{id}", "GET", "404")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.RequestDuration))
}
