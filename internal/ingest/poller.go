package ingest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/notescan/notescan/internal/core/domain"
	"github.com/notescan/notescan/internal/infra/chain"
)

// runPolling advances the block cursor on a fixed ticker. Each tick catches
// up from lastProcessedBlock+1 to the chain head in bounded windows; a window
// that fails leaves the cursor untouched so the next tick retries the same
// range. Overlapping ticks are skipped outright.
func (e *Engine) runPolling(ctx context.Context) error {
	e.state.Store(int32(StatePolling))
	e.log.Info("live ingestion started", "strategy", "polling",
		"interval", e.cfg.PollInterval, "from_block", e.lastProcessed.Load())

	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	// First catch-up runs immediately rather than waiting a full interval.
	if err := e.tick(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-e.stop:
			return nil
		case <-ticker.C:
			if err := e.tick(ctx); err != nil {
				return err
			}
		}
	}
}

// tick runs one catch-up pass. Transient upstream failures are absorbed (the
// cursor simply does not move); only endpoint exhaustion is terminal.
func (e *Engine) tick(ctx context.Context) error {
	if !e.ticking.CompareAndSwap(false, true) {
		e.log.Debug("previous tick still running, skipping")
		return nil
	}
	defer e.ticking.Store(false)

	head, err := e.cfg.Provider.BlockNumber(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrNetwork) {
			return fmt.Errorf("polling halted: %w", err)
		}
		e.log.Warn("head lookup failed, retrying next tick", "error", err)
		return nil
	}

	cursor := e.lastProcessed.Load()
	// A zero cursor means the historical snapshot was empty. Anchor one
	// window behind the head instead of replaying the chain from genesis;
	// deep history is the snapshot's job, not the live engine's.
	if cursor == 0 && head > e.cfg.WindowSize {
		cursor = head - e.cfg.WindowSize
		e.lastProcessed.Store(cursor)
	}
	for cursor < head {
		select {
		case <-ctx.Done():
			return nil
		case <-e.stop:
			return nil
		default:
		}

		from := cursor + 1
		to := from + e.cfg.WindowSize - 1
		if to > head {
			to = head
		}

		processed, err := e.processWindow(ctx, from, to)
		if err != nil {
			if errors.Is(err, domain.ErrNetwork) {
				return fmt.Errorf("polling halted: %w", err)
			}
			e.log.Warn("window failed, will retry next tick",
				"from", from, "to", to, "error", err)
			return nil
		}

		cursor = to
		e.lastProcessed.Store(cursor)
		LastProcessedBlock.WithLabelValues(e.cfg.ChainSlug).Set(float64(cursor))

		// Back-pressure between windows of a long catch-up: larger
		// bursts induce a longer pause.
		if cursor < head && processed > 0 {
			e.backoff(ctx, processed)
		}
	}
	return nil
}

// processWindow fetches both transfer legs for [from, to], deduplicates and
// dispatches the result oldest first so the buffer ends up newest first. It
// returns the number of matched logs.
func (e *Engine) processWindow(ctx context.Context, from, to uint64) (int, error) {
	legs := e.windowLegs(from, to)

	results := make([][]chain.Log, len(legs))
	g, gctx := errgroup.WithContext(ctx)
	for i, leg := range legs {
		g.Go(func() error {
			logs, err := e.cfg.Provider.Logs(gctx, leg)
			if err != nil {
				return err
			}
			results[i] = logs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	seen := make(map[string]struct{})
	var logs []chain.Log
	for _, part := range results {
		for _, l := range part {
			key := fmt.Sprintf("%s/%d", l.TxHash, l.LogIndex)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			logs = append(logs, l)
		}
	}

	sort.Slice(logs, func(i, j int) bool {
		if logs[i].BlockNumber != logs[j].BlockNumber {
			return logs[i].BlockNumber < logs[j].BlockNumber
		}
		if logs[i].TxIndex != logs[j].TxIndex {
			return logs[i].TxIndex < logs[j].TxIndex
		}
		return logs[i].LogIndex < logs[j].LogIndex
	})

	for _, l := range logs {
		e.dispatch(ctx, l, "polling")
	}
	return len(logs), nil
}

// windowLegs splits the combined filter into independent queries. Topic
// filters are conjunctive upstream, so from-leg and to-leg are fetched
// separately when an address is watched.
func (e *Engine) windowLegs(from, to uint64) []chain.LogFilter {
	base := chain.LogFilter{FromBlock: from, ToBlock: to, Token: e.cfg.Token}
	if e.cfg.Address == "" {
		return []chain.LogFilter{base}
	}
	sent, received := base, base
	sent.From = e.cfg.Address
	received.To = e.cfg.Address
	return []chain.LogFilter{sent, received}
}

// backoff pauses between catch-up windows, capped at the poll interval.
func (e *Engine) backoff(ctx context.Context, processed int) {
	pause := time.Duration(processed) * 50 * time.Millisecond
	if pause > e.cfg.PollInterval {
		pause = e.cfg.PollInterval
	}
	select {
	case <-time.After(pause):
	case <-ctx.Done():
	case <-e.stop:
	}
}
