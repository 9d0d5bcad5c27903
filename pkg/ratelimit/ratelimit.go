// Package ratelimit throttles step execution per session at the service
// boundary. The local store serves single-instance deployments; the Redis
// store shares buckets across replicas.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrLimited is returned by Check when a session has exhausted its budget.
var ErrLimited = errors.New("ratelimit: limit exceeded")

// Policy defines the per-session budget.
type Policy struct {
	// StepsPerMinute is the sustained rate.
	StepsPerMinute int
	// Burst is the instantaneous allowance.
	Burst int
}

// DefaultPolicy allows a full step budget per minute with a small burst.
func DefaultPolicy() Policy {
	return Policy{StepsPerMinute: 60, Burst: 10}
}

// LimiterStore abstracts the bucket storage.
type LimiterStore interface {
	// Allow reports whether the session may take one more step under the
	// policy. A denied session is not queued; the caller retries.
	Allow(ctx context.Context, sessionID string, policy Policy) (bool, error)
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// LocalStore keeps token buckets in process memory. Session ids arrive from
// the HTTP boundary, so stale buckets are evicted in the background to keep
// the map bounded.
type LocalStore struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

func NewLocalStore() *LocalStore {
	s := &LocalStore{
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
	go s.cleanupLoop()
	return s
}

func (s *LocalStore) Allow(ctx context.Context, sessionID string, policy Policy) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	b, ok := s.buckets[sessionID]
	if !ok {
		perSec := rate.Limit(float64(policy.StepsPerMinute) / 60.0)
		if perSec <= 0 {
			perSec = 1
		}
		burst := policy.Burst
		if burst <= 0 {
			burst = 1
		}
		b = &bucket{limiter: rate.NewLimiter(perSec, burst)}
		s.buckets[sessionID] = b
	}
	b.lastSeen = s.now()
	s.mu.Unlock()

	return b.limiter.Allow(), nil
}

// cleanupLoop removes stale buckets to prevent memory leaks. Checks every
// minute, removes entries idle for more than 3 minutes.
func (s *LocalStore) cleanupLoop() {
	for {
		time.Sleep(1 * time.Minute)
		s.evictStale(3 * time.Minute)
	}
}

func (s *LocalStore) evictStale(maxIdle time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Add(-maxIdle)
	for id, b := range s.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(s.buckets, id)
		}
	}
}

func (s *LocalStore) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets)
}

// Check is the boundary-level helper: nil store fails closed, an exhausted
// budget reports ErrLimited.
func Check(ctx context.Context, store LimiterStore, sessionID string, policy Policy) error {
	if store == nil {
		return fmt.Errorf("ratelimit: no limiter store configured")
	}
	allowed, err := store.Allow(ctx, sessionID, policy)
	if err != nil {
		return fmt.Errorf("ratelimit check failed: %w", err)
	}
	if !allowed {
		return fmt.Errorf("%w for session %s", ErrLimited, sessionID)
	}
	return nil
}
