package window

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

const (
	testLimit  = 10
	testWindow = time.Minute
)

type InMemoryStoreSuite struct {
	suite.Suite
	store *InMemoryStore
	now   time.Time
	ctx   context.Context
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.now = time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	s.store = NewInMemoryStore(WithClock(func() time.Time { return s.now }))
	s.ctx = context.Background()
}

func (s *InMemoryStoreSuite) TestAllow() {
	s.Run("first request allowed", func() {
		result, err := s.store.Allow(s.ctx, "org:first", testLimit, testWindow)
		s.Require().NoError(err)
		s.True(result.Allowed)
		s.Equal(testLimit, result.Limit)
		s.Equal(testLimit-1, result.Remaining)
		s.Equal(s.now.Add(testWindow), result.ResetAt)
	})

	s.Run("request over limit denied", func() {
		for range testLimit {
			result, err := s.store.Allow(s.ctx, "org:over", testLimit, testWindow)
			s.Require().NoError(err)
			s.True(result.Allowed)
		}
		result, err := s.store.Allow(s.ctx, "org:over", testLimit, testWindow)
		s.Require().NoError(err)
		s.False(result.Allowed)
		s.Equal(0, result.Remaining)
		s.Equal(60, result.RetryAfter(s.now))
	})

	s.Run("window reset allows again", func() {
		for range testLimit + 1 {
			_, err := s.store.Allow(s.ctx, "org:reset", testLimit, testWindow)
			s.Require().NoError(err)
		}
		s.now = s.now.Add(testWindow)
		result, err := s.store.Allow(s.ctx, "org:reset", testLimit, testWindow)
		s.Require().NoError(err)
		s.True(result.Allowed)
		s.Equal(testLimit-1, result.Remaining)
	})

	s.Run("keys are independent", func() {
		for range testLimit + 1 {
			_, err := s.store.Allow(s.ctx, "org:a", testLimit, testWindow)
			s.Require().NoError(err)
		}
		result, err := s.store.Allow(s.ctx, "org:b", testLimit, testWindow)
		s.Require().NoError(err)
		s.True(result.Allowed)
	})
}

func (s *InMemoryStoreSuite) TestConcurrentAllowCountsEveryRequest() {
	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := s.store.Allow(s.ctx, "org:concurrent", testLimit, testWindow)
			s.NoError(err)
			if result.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	s.Equal(testLimit, allowed)
}

func (s *InMemoryStoreSuite) TestSweepDropsExpiredWindows() {
	for i := range sweepThreshold {
		_, err := s.store.Allow(s.ctx, "org:"+strconv.Itoa(i), testLimit, testWindow)
		s.Require().NoError(err)
	}
	s.now = s.now.Add(2 * testWindow)
	_, err := s.store.Allow(s.ctx, "org:fresh", testLimit, testWindow)
	s.Require().NoError(err)

	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	s.Len(s.store.windows, 1)
}
