package feed

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/notescan/notescan/internal/core/config"
	"github.com/notescan/notescan/internal/core/domain"
	"github.com/notescan/notescan/internal/infra/chain"
	"github.com/notescan/notescan/internal/infra/explorer"
)

type stubProvider struct {
	head     uint64
	history  []domain.Transaction
	receipts map[string]*domain.TxReceipt
}

func (p *stubProvider) Namespace() domain.Namespace { return domain.NamespaceStacks }

func (p *stubProvider) BlockNumber(ctx context.Context) (uint64, error) { return p.head, nil }

func (p *stubProvider) Logs(ctx context.Context, f chain.LogFilter) ([]chain.Log, error) {
	return nil, nil
}

func (p *stubProvider) TokenDetails(ctx context.Context, address string) domain.Token {
	return domain.UnknownToken(address)
}

func (p *stubProvider) TxReceipt(ctx context.Context, txID string) (*domain.TxReceipt, error) {
	return p.receipts[txID], nil
}

func (p *stubProvider) BlockRange(ctx context.Context, address string, fromBlock, toBlock uint64) ([]domain.Transaction, error) {
	return p.history, nil
}

func (p *stubProvider) Translate(ctx context.Context, l chain.Log) (domain.Transaction, error) {
	return domain.Transaction{TxHash: l.TxHash}, nil
}

func newTestService(t *testing.T, p chain.Provider) *Service {
	t.Helper()
	registry, err := config.NewRegistry([]config.ChainConfig{
		{Slug: "stacks", ID: "stacks-mainnet", Namespace: "stacks", RPC: []string{"https://api.test"}},
	})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}

	svc, err := NewService(ServiceConfig{
		Registry:  registry,
		Explorer:  explorer.NewClient(registry, config.ExplorerConfig{}, slog.Default()),
		Providers: map[string]chain.Provider{"stacks": p},
		Ingest:    config.IngestConfig{MaxEventsPerMinute: 12},
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	t.Cleanup(svc.Close)
	return svc
}

func TestFeedServesProviderSnapshotWithoutExplorer(t *testing.T) {
	p := &stubProvider{
		head: 1000,
		history: []domain.Transaction{
			{ChainID: "stacks-mainnet", TxHash: "0xb", BlockNumber: 999},
			{ChainID: "stacks-mainnet", TxHash: "0xa", BlockNumber: 998},
		},
	}
	svc := newTestService(t, p)

	result, err := svc.Feed(context.Background(), "stacks", "sp000", "", 1, 10)
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if result.Total != 2 || len(result.Items) != 2 {
		t.Fatalf("total = %d, items = %d, want 2/2", result.Total, len(result.Items))
	}
	if result.Items[0].Transaction.TxHash != "0xb" {
		t.Errorf("first item = %s, want newest first", result.Items[0].Transaction.TxHash)
	}
	if result.Items[0].URI == "" {
		t.Error("feed items must carry annotation URIs")
	}
}

func TestFeedUnknownChain(t *testing.T) {
	svc := newTestService(t, &stubProvider{})
	_, err := svc.Feed(context.Background(), "nope", "sp000", "", 1, 10)
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Errorf("err = %v, want ErrConfiguration", err)
	}
}

func TestReceipt(t *testing.T) {
	p := &stubProvider{receipts: map[string]*domain.TxReceipt{
		"0xgood": {TxHash: "0xgood", BlockNumber: 12, Success: true},
	}}
	svc := newTestService(t, p)

	receipt, err := svc.Receipt(context.Background(), "stacks", "0xgood")
	if err != nil {
		t.Fatalf("Receipt: %v", err)
	}
	if receipt == nil || !receipt.Success {
		t.Fatalf("receipt = %+v, want confirmed success", receipt)
	}

	missing, err := svc.Receipt(context.Background(), "stacks", "0xmissing")
	if err != nil {
		t.Fatalf("Receipt: %v", err)
	}
	if missing != nil {
		t.Error("unknown transaction must resolve to a nil receipt")
	}
}
