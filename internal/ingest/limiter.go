package ingest

import (
	"sync"
	"time"
)

// RateLimiter bounds accepted events to maxPerMinute in any rolling
// 60-second window. It keeps a fixed-size ring of the timestamps of the last
// N accepted events (newest first) plus a running count of events skipped
// since the last accepted one.
//
// State is private single-writer per ingestion session; Skipped is safe for
// concurrent readers.
type RateLimiter struct {
	mu      sync.Mutex
	window  time.Duration
	ring    []time.Time
	max     int
	skipped int
	now     func() time.Time
}

// NewRateLimiter creates a limiter for maxPerMinute accepted events.
func NewRateLimiter(maxPerMinute int) *RateLimiter {
	if maxPerMinute < 1 {
		maxPerMinute = 1
	}
	return &RateLimiter{
		window: time.Minute,
		ring:   make([]time.Time, 0, maxPerMinute),
		max:    maxPerMinute,
		now:    time.Now,
	}
}

// Allow reports whether an event may be ingested now. An accepted event is
// recorded in the ring and clears the skip streak; a rejected one only
// increments the skip counter and is never queued or retried.
func (l *RateLimiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if len(l.ring) == l.max {
		oldest := l.ring[len(l.ring)-1]
		if !oldest.Before(now.Add(-l.window)) {
			l.skipped++
			return false
		}
		l.ring = l.ring[:len(l.ring)-1]
	}

	// Prepend: ring stays newest first.
	l.ring = append([]time.Time{now}, l.ring...)
	l.skipped = 0
	return true
}

// Skipped returns the number of events dropped since the last accepted one.
func (l *RateLimiter) Skipped() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.skipped
}
