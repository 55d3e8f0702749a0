package eip155

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/notescan/notescan/internal/core/domain"
	"github.com/notescan/notescan/internal/infra/chain"
)

const (
	dialTimeout    = 5 * time.Second
	reconnectDelay = time.Second
)

// streamClient is the slice of ethclient the streaming strategy needs, split
// out so the transport can be substituted.
type streamClient interface {
	SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error)
	Close()
}

func dialStream(ctx context.Context, endpoint string) (streamClient, error) {
	c, err := ethclient.DialContext(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	return c, nil
}

type streamSub struct {
	cancel context.CancelFunc
	errCh  chan error
	once   sync.Once
}

func (s *streamSub) Err() <-chan error { return s.errCh }

func (s *streamSub) Unsubscribe() {
	s.once.Do(s.cancel)
}

// Subscribe opens a persistent socket to one of the chain's streaming
// endpoints and registers the from-match and to-match filters with the
// transport. On connection error it rotates to the next endpoint (attempt
// count modulo list length) and reconnects; the subscription fails
// terminally only once every endpoint has failed in a row.
func (p *Provider) Subscribe(ctx context.Context, f chain.LogFilter, ch chan<- chain.Log, onState chain.StateFunc) (chain.Subscription, error) {
	if len(p.ws) == 0 {
		return nil, fmt.Errorf("%w: chain %s has no streaming endpoints", domain.ErrConfiguration, p.chainID)
	}
	sctx, cancel := context.WithCancel(ctx)
	sub := &streamSub{cancel: cancel, errCh: make(chan error, 1)}
	go p.streamLoop(sctx, f, ch, onState, sub.errCh)
	return sub, nil
}

func (p *Provider) streamLoop(ctx context.Context, f chain.LogFilter, ch chan<- chain.Log, onState chain.StateFunc, errCh chan<- error) {
	notify := func(endpoint string, state chain.StreamState) {
		if onState != nil {
			onState(endpoint, state)
		}
	}

	attempt := 0
	consecutiveFailures := 0
	for {
		if ctx.Err() != nil {
			return
		}
		endpoint := p.ws[attempt%len(p.ws)]
		attempt++

		notify(endpoint, chain.StreamConnecting)
		connected, err := p.streamOnce(ctx, endpoint, f, ch, notify)
		notify(endpoint, chain.StreamClosed)

		if ctx.Err() != nil {
			return
		}
		if connected {
			// The endpoint served us for a while; a drop is not an
			// exhaustion signal.
			consecutiveFailures = 0
		}
		if err != nil {
			p.log.Warn("stream endpoint failed, rotating", "endpoint", endpoint, "error", err)
			consecutiveFailures++
			if consecutiveFailures >= len(p.ws) {
				errCh <- fmt.Errorf("%w: %d streaming endpoints failed, last: %v", domain.ErrNetwork, len(p.ws), err)
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

// streamOnce dials one endpoint, subscribes both transfer legs, and fans
// matched logs into ch until the connection drops.
func (p *Provider) streamOnce(ctx context.Context, endpoint string, f chain.LogFilter, ch chan<- chain.Log, notify func(string, chain.StreamState)) (connected bool, err error) {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	client, err := p.dialWS(dialCtx, endpoint)
	cancel()
	if err != nil {
		return false, fmt.Errorf("dial %s: %w", endpoint, err)
	}
	defer client.Close()

	// Each counterparty leg is registered as its own filter so both sides
	// of the watched address are covered.
	legs := make([]chain.LogFilter, 0, 2)
	if f.From != "" {
		leg := f
		leg.To = ""
		legs = append(legs, leg)
	}
	if f.To != "" {
		leg := f
		leg.From = ""
		legs = append(legs, leg)
	}
	if len(legs) == 0 {
		legs = append(legs, f)
	}

	rawCh := make(chan types.Log, 16)
	subErr := make(chan error, len(legs))
	for _, leg := range legs {
		sub, err := client.SubscribeFilterLogs(ctx, query(leg), rawCh)
		if err != nil {
			return false, fmt.Errorf("subscribe filter: %w", err)
		}
		defer sub.Unsubscribe()
		go func() {
			if err, ok := <-sub.Err(); ok && err != nil {
				subErr <- err
			}
		}()
	}

	notify(endpoint, chain.StreamOpen)

	for {
		select {
		case <-ctx.Done():
			return true, nil
		case err := <-subErr:
			return true, fmt.Errorf("subscription dropped: %w", err)
		case raw := <-rawCh:
			parsed, ok := parseTransferLog(p.chainID, raw)
			if !ok {
				continue
			}
			select {
			case ch <- parsed:
			case <-ctx.Done():
				return true, nil
			}
		}
	}
}
