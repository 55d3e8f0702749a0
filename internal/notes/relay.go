package notes

import (
	"context"

	"github.com/nbd-wtf/go-nostr"
)

// RelayConn is the slice of a relay connection the manager uses. The real
// implementation wraps nostr.Relay; tests substitute fakes.
type RelayConn interface {
	Subscribe(ctx context.Context, filters nostr.Filters) (NoteSub, error)
	Publish(ctx context.Context, ev nostr.Event) error
	Close() error
}

// NoteSub is one live subscription handle.
type NoteSub interface {
	Events() <-chan *nostr.Event
	Unsub()
}

// Dialer opens a relay connection.
type Dialer func(ctx context.Context, url string) (RelayConn, error)

// DialRelay is the production Dialer.
func DialRelay(ctx context.Context, url string) (RelayConn, error) {
	relay, err := nostr.RelayConnect(ctx, url)
	if err != nil {
		return nil, err
	}
	return &nostrRelay{relay: relay}, nil
}

type nostrRelay struct {
	relay *nostr.Relay
}

func (r *nostrRelay) Subscribe(ctx context.Context, filters nostr.Filters) (NoteSub, error) {
	sub, err := r.relay.Subscribe(ctx, filters)
	if err != nil {
		return nil, err
	}
	return &nostrSub{sub: sub}, nil
}

func (r *nostrRelay) Publish(ctx context.Context, ev nostr.Event) error {
	return r.relay.Publish(ctx, ev)
}

func (r *nostrRelay) Close() error {
	return r.relay.Close()
}

type nostrSub struct {
	sub *nostr.Subscription
}

func (s *nostrSub) Events() <-chan *nostr.Event { return s.sub.Events }

func (s *nostrSub) Unsub() { s.sub.Unsub() }
