package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter defines the interface for rate limiting
type Limiter interface {
	// Allow checks if a request is allowed under the current rate limit
	Allow() bool
	// Acquire blocks until the rate limit allows another request or the
	// context is cancelled. It cannot fail otherwise, only delay.
	Acquire(ctx context.Context) error
	// Reset resets the rate limiter state
	Reset()
}

// sleep waits for d or until ctx is cancelled
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// jitter returns a random duration in [0, max)
func jitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(max)))
}

// SlidingWindow enforces at most maxRequests grants per rolling window.
// Safe under concurrent Acquire calls.
type SlidingWindow struct {
	windowSize  time.Duration
	maxRequests int
	jitterRange time.Duration
	requests    []time.Time
	mu          sync.Mutex
}

// NewSlidingWindow creates a new sliding window rate limiter. A randomized
// delay up to jitterRange is added after each grant so back-to-back callers
// do not fire in synchronized bursts.
func NewSlidingWindow(maxRequests int, windowSize, jitterRange time.Duration) *SlidingWindow {
	return &SlidingWindow{
		windowSize:  windowSize,
		maxRequests: maxRequests,
		jitterRange: jitterRange,
		requests:    make([]time.Time, 0, maxRequests),
	}
}

// Allow checks if a request can proceed
func (sw *SlidingWindow) Allow() bool {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	now := time.Now()
	sw.cleanOldRequests(now)

	if len(sw.requests) < sw.maxRequests {
		sw.requests = append(sw.requests, now)
		return true
	}

	return false
}

// Acquire blocks until a slot is free within the budget
func (sw *SlidingWindow) Acquire(ctx context.Context) error {
	for !sw.Allow() {
		sw.mu.Lock()
		var timeToWait time.Duration
		if len(sw.requests) > 0 {
			oldestRequest := sw.requests[0]
			timeToWait = sw.windowSize - time.Since(oldestRequest)
		}
		sw.mu.Unlock()

		if timeToWait <= 0 {
			// Small sleep to prevent busy waiting
			timeToWait = 100 * time.Millisecond
		}
		if err := sleep(ctx, timeToWait); err != nil {
			return err
		}
	}

	return sleep(ctx, jitter(sw.jitterRange))
}

// Reset clears all recorded requests
func (sw *SlidingWindow) Reset() {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	sw.requests = sw.requests[:0]
}

// cleanOldRequests removes requests outside the sliding window
func (sw *SlidingWindow) cleanOldRequests(now time.Time) {
	cutoff := now.Add(-sw.windowSize)

	i := 0
	for i < len(sw.requests) && sw.requests[i].Before(cutoff) {
		i++
	}

	if i > 0 {
		copy(sw.requests, sw.requests[i:])
		sw.requests = sw.requests[:len(sw.requests)-i]
	}
}

// Smooth spreads the budget evenly over the window instead of allowing the
// whole budget to burst at the window edge
type Smooth struct {
	limiter     *rate.Limiter
	maxRequests int
	windowSize  time.Duration
	jitterRange time.Duration
}

// NewSmooth creates a smoothed limiter granting maxRequests per windowSize
func NewSmooth(maxRequests int, windowSize, jitterRange time.Duration) *Smooth {
	perSecond := float64(maxRequests) / windowSize.Seconds()
	return &Smooth{
		limiter:     rate.NewLimiter(rate.Limit(perSecond), 1),
		maxRequests: maxRequests,
		windowSize:  windowSize,
		jitterRange: jitterRange,
	}
}

// Allow checks if a request can proceed without waiting
func (s *Smooth) Allow() bool {
	return s.limiter.Allow()
}

// Acquire blocks until the smoothed rate allows another request
func (s *Smooth) Acquire(ctx context.Context) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	return sleep(ctx, jitter(s.jitterRange))
}

// Reset recreates the underlying limiter at full capacity
func (s *Smooth) Reset() {
	perSecond := float64(s.maxRequests) / s.windowSize.Seconds()
	s.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
}

// New builds a limiter for the given strategy name, defaulting to sliding
func New(strategy string, maxRequests int, windowSize, jitterRange time.Duration) Limiter {
	if strategy == "smooth" {
		return NewSmooth(maxRequests, windowSize, jitterRange)
	}
	return NewSlidingWindow(maxRequests, windowSize, jitterRange)
}
