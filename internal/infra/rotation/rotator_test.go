package rotation

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/notescan/notescan/internal/core/domain"
)

func TestNewRequiresEndpoints(t *testing.T) {
	if _, err := New(nil); !errors.Is(err, domain.ErrConfiguration) {
		t.Errorf("want ErrConfiguration, got %v", err)
	}
}

func TestRoundRobinOrder(t *testing.T) {
	r, err := New([]string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if got := r.Current(); got != "a" {
		t.Errorf("Current() = %q, want a", got)
	}
	want := []string{"b", "c", "a", "b"}
	for i, w := range want {
		if got := r.Next(); got != w {
			t.Errorf("Next() #%d = %q, want %q", i, got, w)
		}
	}
}

func TestAttemptStopsAtFirstSuccess(t *testing.T) {
	r, _ := New([]string{"a", "b", "c"})
	var tried []string
	err := r.Attempt(context.Background(), func(_ context.Context, ep string) error {
		tried = append(tried, ep)
		if ep == "b" {
			return nil
		}
		return fmt.Errorf("boom on %s", ep)
	})
	if err != nil {
		t.Fatalf("Attempt failed: %v", err)
	}
	if len(tried) != 2 || tried[0] != "a" || tried[1] != "b" {
		t.Errorf("tried = %v, want [a b]", tried)
	}
	// Rotator stays on the endpoint that worked.
	if got := r.Current(); got != "b" {
		t.Errorf("Current() after success = %q, want b", got)
	}
}

func TestAttemptExhaustionIsNetworkError(t *testing.T) {
	r, _ := New([]string{"a", "b"})
	var tried int
	err := r.Attempt(context.Background(), func(_ context.Context, ep string) error {
		tried++
		return errors.New("down")
	})
	if !errors.Is(err, domain.ErrNetwork) {
		t.Fatalf("want ErrNetwork, got %v", err)
	}
	if tried != 2 {
		t.Errorf("tried %d endpoints, want 2", tried)
	}
	if r.Failures("a") != 1 || r.Failures("b") != 1 {
		t.Errorf("failure counts not recorded: a=%d b=%d", r.Failures("a"), r.Failures("b"))
	}
}

func TestAttemptHonorsContext(t *testing.T) {
	r, _ := New([]string{"a", "b"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := r.Attempt(ctx, func(context.Context, string) error { return nil })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("want context.Canceled, got %v", err)
	}
}
