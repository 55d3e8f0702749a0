// Package ingest implements the live ingestion engine: from a known block it
// continuously discovers new matching transfer events, either by polling
// advancing block windows or by a push-based socket subscription with
// endpoint rotation, throttled to a bounded rate with loss accounting.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/notescan/notescan/internal/core/domain"
	"github.com/notescan/notescan/internal/infra/chain"
)

// State is the engine lifecycle.
type State int32

const (
	StateIdle State = iota
	StateStarting
	StatePolling
	StateStreaming
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StatePolling:
		return "polling"
	case StateStreaming:
		return "streaming"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

// Config parameterizes one ingestion session.
type Config struct {
	ChainSlug string
	Provider  chain.Provider
	// Address is the watched account; both transfer legs are covered.
	Address string
	// Token narrows ingestion to one asset contract when non-empty.
	Token string
	// StartBlock is the last block already covered by the historical
	// snapshot; ingestion begins at StartBlock+1. Zero means no coverage:
	// the polling strategy then anchors one window behind the current head.
	StartBlock uint64

	PollInterval       time.Duration
	WindowSize         uint64
	MaxEventsPerMinute int
	BufferSize         int
	// PreferStreaming selects the socket strategy when the provider is
	// push-capable; polling otherwise.
	PreferStreaming bool
	// OnStreamState observes socket transitions, may be nil.
	OnStreamState chain.StateFunc

	Log *slog.Logger
}

// Engine is one live ingestion session. All mutable ingestion state
// (limiter ring, skip counter, buffer cursor) is private to the session.
type Engine struct {
	cfg           Config
	id            string
	state         atomic.Int32
	ticking       atomic.Bool
	lastProcessed atomic.Uint64

	limiter *RateLimiter
	buffer  *Buffer
	out     chan domain.Transaction
	stop    chan struct{}
	stopped atomic.Bool
	log     *slog.Logger
}

// New creates an idle engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Provider == nil {
		return nil, fmt.Errorf("%w: engine needs a provider", domain.ErrConfiguration)
	}
	if cfg.Address == "" && cfg.Token == "" {
		return nil, fmt.Errorf("%w: engine needs an address or token filter", domain.ErrConfiguration)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 20 * time.Second
	}
	if cfg.WindowSize == 0 {
		cfg.WindowSize = 500
	}
	if cfg.BufferSize == 0 {
		cfg.BufferSize = 50
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}

	e := &Engine{
		cfg:     cfg,
		id:      uuid.NewString(),
		limiter: NewRateLimiter(cfg.MaxEventsPerMinute),
		buffer:  NewBuffer(cfg.BufferSize),
		out:     make(chan domain.Transaction, cfg.BufferSize),
		stop:    make(chan struct{}),
	}
	e.log = cfg.Log.With("session", e.id[:8], "chain", cfg.ChainSlug)
	e.lastProcessed.Store(cfg.StartBlock)
	return e, nil
}

// ID returns the session identifier.
func (e *Engine) ID() string { return e.id }

// State returns the current lifecycle state.
func (e *Engine) State() State { return State(e.state.Load()) }

// Events delivers accepted, enriched transactions as they arrive.
func (e *Engine) Events() <-chan domain.Transaction { return e.out }

// Snapshot returns the buffered recent transactions (newest first) and the
// count of events skipped since the last accepted one.
func (e *Engine) Snapshot() ([]domain.Transaction, int) {
	return e.buffer.Snapshot(), e.limiter.Skipped()
}

// LastProcessedBlock returns the polling cursor.
func (e *Engine) LastProcessedBlock() uint64 { return e.lastProcessed.Load() }

// Stop ends the session. Idempotent.
func (e *Engine) Stop() {
	if e.stopped.CompareAndSwap(false, true) {
		close(e.stop)
	}
}

// Run drives the session until Stop, context cancellation, or terminal
// endpoint exhaustion (domain.ErrNetwork). It blocks; callers run it in a
// goroutine of their own.
func (e *Engine) Run(ctx context.Context) error {
	if !e.state.CompareAndSwap(int32(StateIdle), int32(StateStarting)) {
		return fmt.Errorf("engine already started")
	}
	defer e.state.Store(int32(StateStopped))

	if e.cfg.PreferStreaming {
		if streamer, ok := e.cfg.Provider.(chain.Streamer); ok {
			err := e.runStreaming(ctx, streamer)
			if err == nil || !errors.Is(err, domain.ErrConfiguration) {
				return err
			}
			// No streaming endpoints configured: fall back to polling.
			e.log.Info("streaming unavailable, falling back to polling", "error", err)
		}
	}
	return e.runPolling(ctx)
}

// filter builds the combined event filter; strategies split it into legs.
func (e *Engine) filter() chain.LogFilter {
	return chain.LogFilter{Token: e.cfg.Token, From: e.cfg.Address, To: e.cfg.Address}
}

func (e *Engine) runStreaming(ctx context.Context, streamer chain.Streamer) error {
	onState := func(endpoint string, state chain.StreamState) {
		if state == chain.StreamConnecting {
			StreamReconnects.WithLabelValues(e.cfg.ChainSlug).Inc()
		}
		if e.cfg.OnStreamState != nil {
			e.cfg.OnStreamState(endpoint, state)
		}
	}

	ch := make(chan chain.Log, 64)
	sub, err := streamer.Subscribe(ctx, e.filter(), ch, onState)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	e.state.Store(int32(StateStreaming))
	e.log.Info("live ingestion started", "strategy", "streaming")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-e.stop:
			return nil
		case err := <-sub.Err():
			return fmt.Errorf("streaming session ended: %w", err)
		case l := <-ch:
			e.dispatch(ctx, l, "streaming")
		}
	}
}

// dispatch runs every matched event through the rate limiter and, when
// accepted, resolves full detail and publishes it. A failure while resolving
// one event is logged and the event discarded; it never aborts the loop.
func (e *Engine) dispatch(ctx context.Context, l chain.Log, strategy string) {
	if !e.limiter.Allow() {
		EventsSkipped.WithLabelValues(e.cfg.ChainSlug, strategy).Inc()
		return
	}

	tx, err := e.cfg.Provider.Translate(ctx, l)
	if err != nil {
		e.log.Warn("discarding event after enrichment failure", "tx", l.TxHash, "error", err)
		EventsDiscarded.WithLabelValues(e.cfg.ChainSlug).Inc()
		return
	}

	e.buffer.Prepend(tx)
	EventsAccepted.WithLabelValues(e.cfg.ChainSlug, strategy).Inc()

	select {
	case e.out <- tx:
	default:
		// Consumer is behind; the buffer snapshot still carries the event.
	}
}
