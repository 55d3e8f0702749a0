package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/notescan/notescan/internal/core/config"
	"github.com/notescan/notescan/internal/core/domain"
	"github.com/notescan/notescan/internal/infra/chain"
	"github.com/notescan/notescan/internal/infra/explorer"
	"github.com/notescan/notescan/internal/infra/storage"
	"github.com/notescan/notescan/internal/ingest"
	"github.com/notescan/notescan/internal/notes"
)

// Item is one annotated feed row.
type Item struct {
	Transaction domain.Transaction `json:"transaction"`
	URI         string             `json:"uri"`
	Note        *domain.Note       `json:"note,omitempty"`
}

// PageResult is one page of the merged, annotated feed.
type PageResult struct {
	Items    []Item `json:"items"`
	Page     int    `json:"page"`
	PageSize int    `json:"page_size"`
	Total    int    `json:"total"`
	// Skipped is the number of live events dropped by rate limiting since
	// the last accepted one.
	Skipped int `json:"skipped"`
}

// ServiceConfig wires the feed service.
type ServiceConfig struct {
	Registry  *config.Registry
	Explorer  *explorer.Client
	Providers map[string]chain.Provider
	// TxRepo may be nil; history then lives only in memory.
	TxRepo storage.TransactionRepository
	// Notes may be nil; rows then carry no annotations.
	Notes  *notes.Manager
	Ingest config.IngestConfig
	// OnLive observes every accepted live transaction, e.g. for socket
	// push. May be nil.
	OnLive func(domain.Transaction)
	Log    *slog.Logger
}

// Service composes the historical snapshot, the live ingestion engines and
// the annotation layer into one paginated feed per (chain, address, token).
// One engine runs per distinct key; repeated requests reuse it.
type Service struct {
	cfg config.IngestConfig

	registry  *config.Registry
	explorer  *explorer.Client
	providers map[string]chain.Provider
	txRepo    storage.TransactionRepository
	notes     *notes.Manager
	onLive    func(domain.Transaction)
	log       *slog.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

type session struct {
	engine *ingest.Engine
	cancel context.CancelFunc
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Registry == nil || cfg.Explorer == nil {
		return nil, fmt.Errorf("%w: feed service needs a registry and an explorer client", domain.ErrConfiguration)
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	return &Service{
		cfg:       cfg.Ingest,
		registry:  cfg.Registry,
		explorer:  cfg.Explorer,
		providers: cfg.Providers,
		txRepo:    cfg.TxRepo,
		notes:     cfg.Notes,
		onLive:    cfg.OnLive,
		log:       cfg.Log.With("component", "feed"),
		sessions:  make(map[string]*session),
	}, nil
}

// Feed returns one page of the merged, annotated transaction feed and makes
// sure a live ingestion session covers the requested key.
func (s *Service) Feed(ctx context.Context, chainSlug, address, token string, page, size int) (*PageResult, error) {
	chainCfg, err := s.registry.Chain(chainSlug)
	if err != nil {
		return nil, err
	}
	address = strings.ToLower(address)
	token = strings.ToLower(token)

	historical, err := s.snapshot(ctx, chainCfg, address, token)
	if err != nil {
		return nil, err
	}

	live, skipped := s.liveWindow(ctx, chainCfg, address, token, historical)

	merged := Merge(historical, live)
	rows := Page(merged, page, size)

	items := s.annotate(ctx, chainCfg, address, rows)

	return &PageResult{
		Items:    items,
		Page:     page,
		PageSize: size,
		Total:    len(merged),
		Skipped:  skipped,
	}, nil
}

// snapshot fetches the historical history from the explorer, mirroring it
// into the persistent cache. Chains without an explorer API are served a
// recent window straight from the provider; when the explorer is unreachable
// the cache serves a stale snapshot instead of failing the request.
func (s *Service) snapshot(ctx context.Context, chainCfg config.ChainConfig, address, token string) ([]domain.Transaction, error) {
	if chainCfg.ExplorerAPI == "" {
		return s.providerSnapshot(ctx, chainCfg, address, token)
	}

	historical, err := s.explorer.FetchAll(ctx, chainCfg.Slug, address, token)
	if err != nil {
		if errors.Is(err, domain.ErrConfiguration) {
			return nil, err
		}
		if s.txRepo == nil || address == "" {
			return nil, err
		}
		s.log.Warn("explorer fetch failed, serving cached history",
			"chain", chainCfg.Slug, "address", address, "error", err)
		cached, cacheErr := s.txRepo.GetByAddress(ctx, chainCfg.ID, address)
		if cacheErr != nil {
			return nil, err
		}
		return filterByToken(cached, token), nil
	}

	if s.txRepo != nil && len(historical) > 0 {
		if err := s.txRepo.BulkUpsert(ctx, historical); err != nil {
			s.log.Warn("caching history failed", "chain", chainCfg.Slug, "error", err)
		}
	}
	return historical, nil
}

// providerSnapshotBlocks bounds how far back the provider-served snapshot
// reaches when a chain has no explorer API.
const providerSnapshotBlocks = 5000

// providerSnapshot serves the historical leg from the chain provider itself.
func (s *Service) providerSnapshot(ctx context.Context, chainCfg config.ChainConfig, address, token string) ([]domain.Transaction, error) {
	provider, ok := s.providers[chainCfg.Slug]
	if !ok {
		return nil, fmt.Errorf("%w: chain %s has neither an explorer api nor a provider", domain.ErrConfiguration, chainCfg.Slug)
	}
	if address == "" {
		return nil, fmt.Errorf("%w: provider-served history needs an address", domain.ErrConfiguration)
	}

	head, err := provider.BlockNumber(ctx)
	if err != nil {
		return nil, err
	}
	from := uint64(0)
	if head > providerSnapshotBlocks {
		from = head - providerSnapshotBlocks
	}
	txs, err := provider.BlockRange(ctx, address, from, head)
	if err != nil {
		return nil, err
	}
	if s.txRepo != nil && len(txs) > 0 {
		if err := s.txRepo.BulkUpsert(ctx, txs); err != nil {
			s.log.Warn("caching history failed", "chain", chainCfg.Slug, "error", err)
		}
	}
	return filterByToken(txs, token), nil
}

// Receipt resolves a confirmed transaction's decoded transfers and tracks
// its annotation URI. A nil receipt means unknown, pending, or terminally
// failed.
func (s *Service) Receipt(ctx context.Context, chainSlug, txHash string) (*domain.TxReceipt, error) {
	chainCfg, err := s.registry.Chain(chainSlug)
	if err != nil {
		return nil, err
	}
	provider, ok := s.providers[chainCfg.Slug]
	if !ok {
		return nil, fmt.Errorf("%w: no provider for chain %s", domain.ErrConfiguration, chainSlug)
	}

	receipt, err := provider.TxReceipt(ctx, txHash)
	if err != nil {
		return nil, err
	}
	if receipt != nil && s.notes != nil {
		uri := domain.TxURI(domain.Namespace(chainCfg.Namespace), chainCfg.ID, txHash).String()
		if err := s.notes.TrackURIs(ctx, []string{uri}); err != nil {
			s.log.Warn("tracking receipt uri failed", "error", err)
		}
	}
	return receipt, nil
}

// liveWindow returns the buffered live transactions and the skip count,
// starting an ingestion engine for the key when none runs yet.
func (s *Service) liveWindow(ctx context.Context, chainCfg config.ChainConfig, address, token string, historical []domain.Transaction) ([]domain.Transaction, int) {
	provider, ok := s.providers[chainCfg.Slug]
	if !ok {
		return nil, 0
	}

	key := fmt.Sprintf("%s|%s|%s", chainCfg.Slug, address, token)

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[key]
	if !ok {
		engine, err := ingest.New(ingest.Config{
			ChainSlug:          chainCfg.Slug,
			Provider:           provider,
			Address:            address,
			Token:              token,
			StartBlock:         newestBlock(historical),
			PollInterval:       s.cfg.PollInterval,
			WindowSize:         s.cfg.WindowSize,
			MaxEventsPerMinute: s.cfg.MaxEventsPerMinute,
			BufferSize:         s.cfg.BufferSize,
			PreferStreaming:    s.cfg.PreferStreaming,
			Log:                s.log,
		})
		if err != nil {
			s.log.Warn("live ingestion unavailable", "chain", chainCfg.Slug, "error", err)
			return nil, 0
		}

		runCtx, cancel := context.WithCancel(context.Background())
		sess = &session{engine: engine, cancel: cancel}
		s.sessions[key] = sess

		go s.consume(runCtx, engine)
		go func() {
			if err := engine.Run(runCtx); err != nil {
				s.log.Error("live ingestion ended", "chain", chainCfg.Slug, "error", err)
			}
			s.mu.Lock()
			if s.sessions[key] == sess {
				delete(s.sessions, key)
			}
			s.mu.Unlock()
			cancel()
		}()
	}

	return sess.engine.Snapshot()
}

// consume mirrors accepted live events into the persistent cache and the
// push callback.
func (s *Service) consume(ctx context.Context, engine *ingest.Engine) {
	for {
		select {
		case <-ctx.Done():
			return
		case tx := <-engine.Events():
			if s.txRepo != nil {
				if err := s.txRepo.BulkUpsert(ctx, []domain.Transaction{tx}); err != nil {
					s.log.Warn("caching live transaction failed", "tx", tx.TxHash, "error", err)
				}
			}
			if s.onLive != nil {
				s.onLive(tx)
			}
		}
	}
}

// annotate tracks the visible rows' URIs at the annotation layer and joins
// the latest note onto each row.
func (s *Service) annotate(ctx context.Context, chainCfg config.ChainConfig, address string, rows []domain.Transaction) []Item {
	ns := domain.Namespace(chainCfg.Namespace)

	items := make([]Item, 0, len(rows))
	uris := make([]string, 0, len(rows)+1)
	if address != "" {
		uris = append(uris, domain.AddressURI(ns, chainCfg.ID, address).String())
	}
	for _, tx := range rows {
		uri := domain.TxURI(ns, chainCfg.ID, tx.TxHash).String()
		uris = append(uris, uri)
		items = append(items, Item{Transaction: tx, URI: uri})
	}

	if s.notes == nil {
		return items
	}
	if err := s.notes.TrackURIs(ctx, uris); err != nil {
		s.log.Warn("tracking annotation uris failed", "error", err)
	}

	var authors []string
	for i := range items {
		if note, ok := s.notes.Latest(items[i].URI); ok {
			n := note
			items[i].Note = &n
			authors = append(authors, note.Pubkey)
		}
	}
	if len(authors) > 0 {
		if err := s.notes.TrackAuthors(ctx, authors); err != nil {
			s.log.Warn("tracking note authors failed", "error", err)
		}
	}
	return items
}

// Close stops every live session.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, sess := range s.sessions {
		sess.engine.Stop()
		sess.cancel()
		delete(s.sessions, key)
	}
}

func newestBlock(txs []domain.Transaction) uint64 {
	var max uint64
	for _, tx := range txs {
		if tx.BlockNumber > max {
			max = tx.BlockNumber
		}
	}
	return max
}

func filterByToken(txs []domain.Transaction, token string) []domain.Transaction {
	if token == "" {
		return txs
	}
	var out []domain.Transaction
	for _, tx := range txs {
		if strings.EqualFold(tx.Token.Address, token) {
			out = append(out, tx)
		}
	}
	return out
}
