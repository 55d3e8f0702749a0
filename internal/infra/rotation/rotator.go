// Package rotation implements the endpoint-rotation state machine shared by
// chain providers: an ordered endpoint list, a current index, and an Attempt
// loop that walks the list round-robin until one endpoint serves the call or
// all are exhausted.
package rotation

import (
	"context"
	"fmt"
	"sync"

	"github.com/notescan/notescan/internal/core/domain"
)

// Rotator tracks the current position in an ordered endpoint list.
// Selection is round-robin by attempt count modulo list length.
type Rotator struct {
	mu        sync.Mutex
	endpoints []string
	index     int
	failures  map[string]int
}

// New creates a rotator over the given endpoints (order preserved).
func New(endpoints []string) (*Rotator, error) {
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("%w: no endpoints configured", domain.ErrConfiguration)
	}
	eps := make([]string, len(endpoints))
	copy(eps, endpoints)
	return &Rotator{endpoints: eps, failures: make(map[string]int)}, nil
}

// Current returns the endpoint the rotator currently points at.
func (r *Rotator) Current() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.endpoints[r.index]
}

// Next advances to the next endpoint and returns it.
func (r *Rotator) Next() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.index = (r.index + 1) % len(r.endpoints)
	return r.endpoints[r.index]
}

// Len returns the number of configured endpoints.
func (r *Rotator) Len() int {
	return len(r.endpoints)
}

// RecordFailure counts a failure against an endpoint.
func (r *Rotator) RecordFailure(endpoint string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[endpoint]++
}

// Failures returns the failure count recorded for an endpoint.
func (r *Rotator) Failures(endpoint string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failures[endpoint]
}

// Attempt runs fn against each endpoint in rotation order, starting from the
// current one, advancing on failure. Once every endpoint has failed the last
// error is wrapped in domain.ErrNetwork: terminal for the caller's session.
func (r *Rotator) Attempt(ctx context.Context, fn func(ctx context.Context, endpoint string) error) error {
	var lastErr error
	for i := 0; i < r.Len(); i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		endpoint := r.Current()
		if err := fn(ctx, endpoint); err != nil {
			lastErr = err
			r.RecordFailure(endpoint)
			r.Next()
			continue
		}
		return nil
	}
	return fmt.Errorf("%w: %d endpoints failed, last: %v", domain.ErrNetwork, r.Len(), lastErr)
}
