package eip155

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/notescan/notescan/internal/core/config"
	"github.com/notescan/notescan/internal/core/domain"
	"github.com/notescan/notescan/internal/infra/chain"
)

func newStreamProvider(t *testing.T, ws []string) *Provider {
	t.Helper()
	p, err := New(config.ChainConfig{
		Slug:      "ethereum",
		ID:        "1",
		Namespace: "eip155",
		RPC:       []string{"https://rpc.example"},
		WS:        ws,
	}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

type fakeWSClient struct {
	mu  sync.Mutex
	raw []chan<- types.Log
}

func (c *fakeWSClient) SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.raw = append(c.raw, ch)
	return &fakeEthSub{errCh: make(chan error)}, nil
}

func (c *fakeWSClient) Close() {}

func (c *fakeWSClient) channel() chan<- types.Log {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.raw) == 0 {
		return nil
	}
	return c.raw[0]
}

type fakeEthSub struct{ errCh chan error }

func (s *fakeEthSub) Unsubscribe()      {}
func (s *fakeEthSub) Err() <-chan error { return s.errCh }

func TestSubscribeWithoutEndpoints(t *testing.T) {
	p := newStreamProvider(t, nil)
	_, err := p.Subscribe(context.Background(), chain.LogFilter{From: testFrom}, make(chan chain.Log), nil)
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("want ErrConfiguration, got %v", err)
	}
}

func TestStreamRotatesThroughEndpointsBeforeFailing(t *testing.T) {
	p := newStreamProvider(t, []string{"ws://a", "ws://b"})

	var mu sync.Mutex
	var dialed []string
	p.dialWS = func(ctx context.Context, endpoint string) (streamClient, error) {
		mu.Lock()
		dialed = append(dialed, endpoint)
		mu.Unlock()
		return nil, errors.New("connection refused")
	}

	sub, err := p.Subscribe(context.Background(), chain.LogFilter{From: testFrom}, make(chan chain.Log, 1), nil)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	select {
	case err := <-sub.Err():
		if !errors.Is(err, domain.ErrNetwork) {
			t.Fatalf("want ErrNetwork after exhaustion, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("subscription did not fail after exhausting every endpoint")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(dialed) != 2 || dialed[0] != "ws://a" || dialed[1] != "ws://b" {
		t.Errorf("dial order = %v, want [ws://a ws://b]", dialed)
	}
}

func TestStreamRecoversOnNextEndpoint(t *testing.T) {
	p := newStreamProvider(t, []string{"ws://a", "ws://b"})
	client := &fakeWSClient{}

	p.dialWS = func(ctx context.Context, endpoint string) (streamClient, error) {
		if endpoint == "ws://a" {
			return nil, errors.New("connection refused")
		}
		return client, nil
	}

	var mu sync.Mutex
	var states []string
	onState := func(endpoint string, state chain.StreamState) {
		mu.Lock()
		states = append(states, endpoint+"/"+state.String())
		mu.Unlock()
	}

	ch := make(chan chain.Log, 1)
	sub, err := p.Subscribe(context.Background(), chain.LogFilter{From: testFrom}, ch, onState)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	var raw chan<- types.Log
	for i := 0; i < 600 && raw == nil; i++ {
		raw = client.channel()
		time.Sleep(5 * time.Millisecond)
	}
	if raw == nil {
		t.Fatal("second endpoint never subscribed")
	}

	raw <- transferLog(42)
	select {
	case got := <-ch:
		if got.From != strings.ToLower(testFrom) || got.Value != "42" {
			t.Errorf("fanned-in log = %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("matched log never reached the delivery channel")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(states) == 0 || states[0] != "ws://a/connecting" {
		t.Fatalf("states = %v, want the failing endpoint tried first", states)
	}
	var opened bool
	for _, s := range states {
		if s == "ws://b/open" {
			opened = true
		}
	}
	if !opened {
		t.Errorf("states = %v, want ws://b/open after rotation", states)
	}
}
