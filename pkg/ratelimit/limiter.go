package ratelimit

import (
	"context"
	"sync"
	"time"
)

// SlidingWindow allows at most maxRequests acquisitions within any rolling
// window of windowSize. A zero window disables the limit.
type SlidingWindow struct {
	windowSize  time.Duration
	maxRequests int
	requests    []time.Time
	now         func() time.Time
	mu          sync.Mutex
}

// NewSlidingWindow creates a new sliding window rate limiter
func NewSlidingWindow(maxRequests int, windowSize time.Duration) *SlidingWindow {
	if maxRequests < 1 {
		maxRequests = 1
	}
	return &SlidingWindow{
		windowSize:  windowSize,
		maxRequests: maxRequests,
		requests:    make([]time.Time, 0, maxRequests),
		now:         time.Now,
	}
}

// Allow records an acquisition if one is available
func (sw *SlidingWindow) Allow() bool {
	ok, _ := sw.Reserve()
	return ok
}

// Reserve records an acquisition if one is available. Otherwise it reports
// how long until the oldest acquisition leaves the window.
func (sw *SlidingWindow) Reserve() (bool, time.Duration) {
	return sw.ReserveAt(sw.now())
}

// ReserveAt is Reserve with the acquisition time supplied by the caller
func (sw *SlidingWindow) ReserveAt(now time.Time) (bool, time.Duration) {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if sw.windowSize <= 0 {
		return true, 0
	}

	sw.cleanOldRequests(now)

	if len(sw.requests) < sw.maxRequests {
		sw.requests = append(sw.requests, now)
		return true, 0
	}

	wait := sw.requests[0].Add(sw.windowSize).Sub(now)
	if wait <= 0 {
		wait = time.Millisecond
	}
	return false, wait
}

// Wait blocks until an acquisition is recorded or ctx is done
func (sw *SlidingWindow) Wait(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		ok, wait := sw.Reserve()
		if ok {
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Reset clears all recorded requests
func (sw *SlidingWindow) Reset() {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	sw.requests = sw.requests[:0]
}

// InWindow returns the number of acquisitions inside the current window
func (sw *SlidingWindow) InWindow() int {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	sw.cleanOldRequests(sw.now())
	return len(sw.requests)
}

// cleanOldRequests removes requests that have left the window.
// A request exactly windowSize old no longer counts.
func (sw *SlidingWindow) cleanOldRequests(now time.Time) {
	cutoff := now.Add(-sw.windowSize)

	i := 0
	for i < len(sw.requests) && !sw.requests[i].After(cutoff) {
		i++
	}

	if i > 0 {
		copy(sw.requests, sw.requests[i:])
		sw.requests = sw.requests[:len(sw.requests)-i]
	}
}
