package notes

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/notescan/notescan/internal/core/domain"
)

type fakeSub struct {
	ch       chan *nostr.Event
	unsubbed bool
}

func (s *fakeSub) Events() <-chan *nostr.Event { return s.ch }
func (s *fakeSub) Unsub() {
	if !s.unsubbed {
		s.unsubbed = true
		close(s.ch)
	}
}

type fakeRelay struct {
	mu         sync.Mutex
	subs       []*fakeSub
	filters    []nostr.Filters
	published  []nostr.Event
	publishErr error
}

func (r *fakeRelay) Subscribe(ctx context.Context, filters nostr.Filters) (NoteSub, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub := &fakeSub{ch: make(chan *nostr.Event, 8)}
	r.subs = append(r.subs, sub)
	r.filters = append(r.filters, filters)
	return sub, nil
}

func (r *fakeRelay) Publish(ctx context.Context, ev nostr.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.publishErr != nil {
		return r.publishErr
	}
	r.published = append(r.published, ev)
	return nil
}

func (r *fakeRelay) Close() error { return nil }

func (r *fakeRelay) lastFilter(t *testing.T) nostr.Filter {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.filters) == 0 {
		t.Fatal("no subscription was opened")
	}
	return r.filters[len(r.filters)-1][0]
}

func newTestManager(t *testing.T, relays ...*fakeRelay) (*Manager, []*fakeRelay) {
	t.Helper()
	if len(relays) == 0 {
		relays = []*fakeRelay{{}}
	}
	urls := make([]string, len(relays))
	for i := range relays {
		urls[i] = string(rune('a'+i)) + ".relay.test"
	}
	byURL := make(map[string]*fakeRelay, len(relays))
	for i, url := range urls {
		byURL[url] = relays[i]
	}
	m, err := NewManager(ManagerConfig{
		Relays:  urls,
		Kind:    1111,
		KeyFile: filepath.Join(t.TempDir(), "test.key"),
		Dial: func(ctx context.Context, url string) (RelayConn, error) {
			return byURL[url], nil
		},
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m, relays
}

func TestTrackURIsGrowsMonotonically(t *testing.T) {
	m, relays := newTestManager(t)
	relay := relays[0]
	ctx := context.Background()

	if err := m.TrackURIs(ctx, []string{"eip155:1:address:0xa"}); err != nil {
		t.Fatal(err)
	}
	if got := len(relay.filters); got != 1 {
		t.Fatalf("subscriptions = %d, want 1", got)
	}

	// Already-tracked URI: no new subscription.
	if err := m.TrackURIs(ctx, []string{"eip155:1:address:0xa"}); err != nil {
		t.Fatal(err)
	}
	if got := len(relay.filters); got != 1 {
		t.Errorf("re-tracking a known URI opened %d subscriptions, want 1", got)
	}

	// A new URI replaces the subscription with the superset filter.
	if err := m.TrackURIs(ctx, []string{"eip155:1:address:0xb"}); err != nil {
		t.Fatal(err)
	}
	if got := len(relay.filters); got != 2 {
		t.Fatalf("subscriptions = %d, want 2", got)
	}
	if !relay.subs[0].unsubbed {
		t.Error("previous subscription must be closed on growth")
	}

	filter := relay.lastFilter(t)
	uris := filter.Tags[domain.IdentityTag]
	if len(uris) != 2 {
		t.Errorf("superset filter covers %d URIs, want 2: %v", len(uris), uris)
	}
}

func TestTrackAuthorsFilter(t *testing.T) {
	m, relays := newTestManager(t)
	ctx := context.Background()

	if err := m.TrackAuthors(ctx, []string{"pk1", "pk2"}); err != nil {
		t.Fatal(err)
	}
	filter := relays[0].lastFilter(t)
	if len(filter.Kinds) != 1 || filter.Kinds[0] != 0 {
		t.Errorf("kinds = %v, want [0]", filter.Kinds)
	}
	if len(filter.Authors) != 2 {
		t.Errorf("authors = %v, want both tracked pubkeys", filter.Authors)
	}
}

func TestPublishSucceedsOnFirstAcknowledgment(t *testing.T) {
	good := &fakeRelay{}
	bad := &fakeRelay{publishErr: errors.New("relay full")}
	m, _ := newTestManager(t, bad, good)

	uri := "eip155:1:address:0xabc"
	err := m.Publish(context.Background(), uri, "a treasury wallet", [][]string{{"t", "dao"}})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(good.published) != 1 {
		t.Fatalf("good relay received %d events, want 1", len(good.published))
	}

	ev := good.published[0]
	if ev.Sig == "" || ev.ID == "" {
		t.Error("published event must be signed")
	}
	if got := ev.Tags.GetFirst([]string{domain.IdentityTag}); got == nil || (*got)[1] != uri {
		t.Errorf("identity tag = %v, want %s", got, uri)
	}

	// Optimistic local apply.
	latest, ok := m.Latest(uri)
	if !ok || latest.Content != "a treasury wallet" {
		t.Error("published note must be visible locally before confirmation")
	}
}

func TestPublishFailsWhenAllRelaysReject(t *testing.T) {
	r1 := &fakeRelay{publishErr: errors.New("nope")}
	r2 := &fakeRelay{publishErr: errors.New("also nope")}
	m, _ := newTestManager(t, r1, r2)

	err := m.Publish(context.Background(), "eip155:1:address:0xabc", "c", nil)
	if !errors.Is(err, domain.ErrPublish) {
		t.Errorf("err = %v, want ErrPublish", err)
	}
}

func TestPublishCreatesAndReusesKey(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	uri := "eip155:1:address:0xabc"

	if err := m.Publish(ctx, uri, "first", nil); err != nil {
		t.Fatal(err)
	}
	first, _ := m.Latest(uri)

	if err := m.Publish(ctx, uri, "second", nil); err != nil {
		t.Fatal(err)
	}
	second, _ := m.Latest(uri)

	if first.Pubkey != second.Pubkey {
		t.Error("successive publishes must reuse the persisted key")
	}
}

func TestIncomingEventsReachLocalState(t *testing.T) {
	m, relays := newTestManager(t)
	relay := relays[0]
	ctx := context.Background()
	uri := "eip155:1:address:0xabc"

	if err := m.TrackURIs(ctx, []string{uri}); err != nil {
		t.Fatal(err)
	}

	ev := &nostr.Event{
		ID:        "evt1",
		PubKey:    "pk",
		Kind:      1111,
		CreatedAt: 100,
		Content:   "from the network",
		Tags:      nostr.Tags{{domain.IdentityTag, uri}},
	}
	relay.subs[len(relay.subs)-1].ch <- ev

	var latest domain.Note
	found := false
	for i := 0; i < 200 && !found; i++ {
		latest, found = m.Latest(uri)
		if !found {
			time.Sleep(5 * time.Millisecond)
		}
	}
	if !found {
		t.Fatal("pushed event never reached local state")
	}
	if latest.Content != "from the network" {
		t.Errorf("content = %q", latest.Content)
	}
}
