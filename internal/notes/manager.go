package notes

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nbd-wtf/go-nostr"

	"github.com/notescan/notescan/internal/core/domain"
)

// NoteCache is the persistent side of the annotation state. Reads warm the
// in-memory store at subscribe time; writes mirror every new note.
type NoteCache interface {
	GetByURIs(ctx context.Context, uris []string) ([]domain.Note, error)
	Add(ctx context.Context, uri string, n domain.Note) error
}

// ManagerConfig parameterizes the annotation manager.
type ManagerConfig struct {
	Relays []string
	// Kind is the event kind used for annotation notes.
	Kind int
	// KeyFile holds the signing key, created on first publish.
	KeyFile string
	// Dial defaults to DialRelay.
	Dial Dialer
	// Cache may be nil; the manager then runs memory-only.
	Cache NoteCache
	Log   *slog.Logger
}

// Manager owns all annotation state for one process: the note store, the
// tracked URI and author sets, and the relay subscriptions covering them.
// Tracked sets only grow for the life of the manager; the relay-level filter
// is replaced wholesale on growth so no event between the old and new
// subscription is lost.
type Manager struct {
	mu    sync.Mutex
	cfg   ManagerConfig
	store *Store
	log   *slog.Logger

	relays map[string]RelayConn

	trackedURIs    map[string]struct{}
	trackedAuthors map[string]struct{}
	noteSubs       []NoteSub
	profileSubs    []NoteSub

	key string
}

// NewManager creates a manager with no subscriptions yet.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if len(cfg.Relays) == 0 {
		return nil, fmt.Errorf("%w: at least one relay is required", domain.ErrConfiguration)
	}
	if cfg.Kind == 0 {
		cfg.Kind = 1111
	}
	if cfg.Dial == nil {
		cfg.Dial = DialRelay
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	return &Manager{
		cfg:            cfg,
		store:          NewStore(),
		log:            cfg.Log.With("component", "notes"),
		relays:         make(map[string]RelayConn),
		trackedURIs:    make(map[string]struct{}),
		trackedAuthors: make(map[string]struct{}),
	}, nil
}

// Latest returns the newest note for a URI from local state.
func (m *Manager) Latest(uri string) (domain.Note, bool) { return m.store.Latest(uri) }

// History returns the full note history for a URI, newest first.
func (m *Manager) History(uri string) []domain.Note { return m.store.History(uri) }

// Profile returns the latest author profile document for a pubkey.
func (m *Manager) Profile(pubkey string) (domain.Note, bool) { return m.store.Profile(pubkey) }

// TrackURIs grows the tracked URI set. Already-tracked URIs are a no-op; new
// ones are warmed up from the persistent cache and the relay subscription is
// replaced with one covering the whole set.
func (m *Manager) TrackURIs(ctx context.Context, uris []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var fresh []string
	for _, uri := range uris {
		if uri == "" {
			continue
		}
		if _, ok := m.trackedURIs[uri]; !ok {
			m.trackedURIs[uri] = struct{}{}
			fresh = append(fresh, uri)
		}
	}
	if len(fresh) == 0 {
		return nil
	}

	m.warmup(ctx, fresh)

	all := make([]string, 0, len(m.trackedURIs))
	for uri := range m.trackedURIs {
		all = append(all, uri)
	}
	filter := nostr.Filter{
		Kinds: []int{m.cfg.Kind},
		Tags:  nostr.TagMap{domain.IdentityTag: all},
	}
	m.noteSubs = m.resubscribe(ctx, m.noteSubs, filter, m.consumeNote)
	return nil
}

// TrackAuthors grows the tracked author set, subscribing for their profile
// documents (kind 0) with the same incremental discipline as TrackURIs.
func (m *Manager) TrackAuthors(ctx context.Context, pubkeys []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	grew := false
	for _, pk := range pubkeys {
		if pk == "" {
			continue
		}
		if _, ok := m.trackedAuthors[pk]; !ok {
			m.trackedAuthors[pk] = struct{}{}
			grew = true
		}
	}
	if !grew {
		return nil
	}

	all := make([]string, 0, len(m.trackedAuthors))
	for pk := range m.trackedAuthors {
		all = append(all, pk)
	}
	filter := nostr.Filter{
		Kinds:   []int{0},
		Authors: all,
	}
	m.profileSubs = m.resubscribe(ctx, m.profileSubs, filter, m.consumeProfile)
	return nil
}

// Publish signs and broadcasts an annotation for uri. The signing key is
// created and persisted on first use. Tags replace same-kind tags of the
// previous note rather than accumulating. The note is applied to local state
// optimistically; broadcast succeeds on the first relay acknowledgment.
func (m *Manager) Publish(ctx context.Context, uri, content string, tags [][]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key, err := m.signingKey()
	if err != nil {
		return err
	}

	var prevTags [][]string
	if prev, ok := m.store.Latest(uri); ok {
		prevTags = prev.Tags
	}

	ev := nostr.Event{
		Kind:      m.cfg.Kind,
		CreatedAt: nostr.Now(),
		Content:   content,
		Tags:      toEventTags(MergeTags(prevTags, tags, uri)),
	}
	if err := ev.Sign(key); err != nil {
		return fmt.Errorf("%w: signing note: %v", domain.ErrNotAuthenticated, err)
	}

	note := fromEvent(&ev)
	m.store.AddNote(note)
	if m.cfg.Cache != nil {
		if err := m.cfg.Cache.Add(ctx, uri, note); err != nil {
			m.log.Warn("caching published note failed", "uri", uri, "error", err)
		}
	}

	conns := m.connections(ctx)
	if len(conns) == 0 {
		return fmt.Errorf("%w: no relay reachable", domain.ErrPublish)
	}
	var lastErr error
	accepted := 0
	for url, conn := range conns {
		if err := conn.Publish(ctx, ev); err != nil {
			m.log.Warn("relay rejected note", "relay", url, "error", err)
			lastErr = err
			continue
		}
		accepted++
	}
	if accepted == 0 {
		return fmt.Errorf("%w: every relay rejected the note: %v", domain.ErrPublish, lastErr)
	}
	m.log.Info("note published", "uri", uri, "relays", accepted)
	return nil
}

// Close tears down all subscriptions and relay connections.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sub := range m.noteSubs {
		sub.Unsub()
	}
	for _, sub := range m.profileSubs {
		sub.Unsub()
	}
	m.noteSubs, m.profileSubs = nil, nil
	for url, conn := range m.relays {
		if err := conn.Close(); err != nil {
			m.log.Warn("closing relay failed", "relay", url, "error", err)
		}
	}
	m.relays = make(map[string]RelayConn)
}

// warmup seeds the store from the persistent cache for newly tracked URIs.
func (m *Manager) warmup(ctx context.Context, uris []string) {
	if m.cfg.Cache == nil {
		return
	}
	cached, err := m.cfg.Cache.GetByURIs(ctx, uris)
	if err != nil {
		m.log.Warn("note cache warm-up failed", "error", err)
		return
	}
	for _, n := range cached {
		m.store.AddNote(n)
	}
}

// resubscribe closes the previous handles and opens one subscription per
// connected relay for the superset filter.
func (m *Manager) resubscribe(ctx context.Context, old []NoteSub, filter nostr.Filter, consume func(context.Context, *nostr.Event)) []NoteSub {
	for _, sub := range old {
		sub.Unsub()
	}

	var subs []NoteSub
	for url, conn := range m.connections(ctx) {
		sub, err := conn.Subscribe(ctx, nostr.Filters{filter})
		if err != nil {
			m.log.Warn("relay subscription failed", "relay", url, "error", err)
			continue
		}
		subs = append(subs, sub)
		go func() {
			for ev := range sub.Events() {
				if ev == nil {
					return
				}
				consume(ctx, ev)
			}
		}()
	}
	return subs
}

func (m *Manager) consumeNote(ctx context.Context, ev *nostr.Event) {
	note := fromEvent(ev)
	if !m.store.AddNote(note) {
		return
	}
	if m.cfg.Cache != nil {
		if err := m.cfg.Cache.Add(ctx, note.URIValue(), note); err != nil {
			m.log.Warn("caching note failed", "id", note.ID, "error", err)
		}
	}
}

func (m *Manager) consumeProfile(_ context.Context, ev *nostr.Event) {
	m.store.SetProfile(fromEvent(ev))
}

// connections dials not-yet-connected relays, tolerating partial failure.
func (m *Manager) connections(ctx context.Context) map[string]RelayConn {
	for _, url := range m.cfg.Relays {
		if _, ok := m.relays[url]; ok {
			continue
		}
		conn, err := m.cfg.Dial(ctx, url)
		if err != nil {
			m.log.Warn("relay unreachable", "relay", url, "error", err)
			continue
		}
		m.relays[url] = conn
	}
	return m.relays
}

func (m *Manager) signingKey() (string, error) {
	if m.key != "" {
		return m.key, nil
	}
	key, err := loadOrCreateKey(m.cfg.KeyFile)
	if err != nil {
		return "", err
	}
	m.key = key
	return key, nil
}

func fromEvent(ev *nostr.Event) domain.Note {
	tags := make([][]string, 0, len(ev.Tags))
	for _, tag := range ev.Tags {
		tags = append(tags, []string(tag))
	}
	return domain.Note{
		ID:        ev.ID,
		Pubkey:    ev.PubKey,
		Kind:      ev.Kind,
		CreatedAt: int64(ev.CreatedAt),
		Content:   ev.Content,
		Tags:      tags,
	}
}

func toEventTags(tags [][]string) nostr.Tags {
	out := make(nostr.Tags, 0, len(tags))
	for _, tag := range tags {
		out = append(out, nostr.Tag(tag))
	}
	return out
}
