package window

import (
	"context"
	"sync"
	"time"

	"crm/internal/ratelimit/models"
)

// sweepThreshold is the map size above which expired windows are dropped.
const sweepThreshold = 10000

// InMemoryStore counts requests in fixed windows per key. It is local to the
// process; use RedisStore when several instances share a limit.
type InMemoryStore struct {
	mu      sync.Mutex
	windows map[string]*fixedWindow
	now     func() time.Time
}

type fixedWindow struct {
	count   int
	resetAt time.Time
}

type Option func(*InMemoryStore)

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *InMemoryStore) {
		s.now = now
	}
}

func NewInMemoryStore(opts ...Option) *InMemoryStore {
	s := &InMemoryStore{windows: make(map[string]*fixedWindow), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Allow counts one request against key and reports whether it fits in limit.
func (s *InMemoryStore) Allow(_ context.Context, key string, limit int, window time.Duration) (*models.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	w := s.windows[key]
	if w == nil || !now.Before(w.resetAt) {
		if len(s.windows) >= sweepThreshold {
			s.sweep(now)
		}
		w = &fixedWindow{resetAt: now.Add(window)}
		s.windows[key] = w
	}
	w.count++
	return models.NewResult(w.count, limit, w.resetAt), nil
}

// sweep drops expired windows. Must be called while holding s.mu.
func (s *InMemoryStore) sweep(now time.Time) {
	for key, w := range s.windows {
		if !now.Before(w.resetAt) {
			delete(s.windows, key)
		}
	}
}
