// Package control assembles the application: configuration, storage, chain
// providers, the annotation manager, the feed service and the HTTP server.
package control

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/notescan/notescan/internal/api"
	"github.com/notescan/notescan/internal/core/config"
	"github.com/notescan/notescan/internal/core/domain"
	"github.com/notescan/notescan/internal/feed"
	"github.com/notescan/notescan/internal/infra/chain"
	"github.com/notescan/notescan/internal/infra/chain/eip155"
	"github.com/notescan/notescan/internal/infra/chain/stacks"
	"github.com/notescan/notescan/internal/infra/explorer"
	redisclient "github.com/notescan/notescan/internal/infra/redis"
	"github.com/notescan/notescan/internal/infra/storage/postgres"
	"github.com/notescan/notescan/internal/notes"
)

// Service is the assembled application.
type Service struct {
	cfg config.AppConfig
	log *slog.Logger

	db     *postgres.DB
	redis  *redisclient.Client
	notes  *notes.Manager
	feed   *feed.Service
	hub    *api.Hub
	server *api.Server
	errCh  chan error
}

// NewService wires all components from the loaded configuration.
func NewService(cfg config.AppConfig, log *slog.Logger) (*Service, error) {
	if log == nil {
		log = slog.Default()
	}

	registry, err := config.NewRegistry(cfg.Chains)
	if err != nil {
		return nil, err
	}

	s := &Service{cfg: cfg, log: log, errCh: make(chan error, 1)}

	// Persistent cache is optional: without a database URL the service
	// runs memory-only, like a development sandbox.
	if cfg.Database.URL != "" {
		db, err := postgres.NewDB(context.Background(), postgres.Config{
			URL:      cfg.Database.URL,
			MaxConns: cfg.Database.MaxConns,
			MinConns: cfg.Database.MinConns,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := db.Migrate("migrations"); err != nil {
			return nil, err
		}
		s.db = db
		log.Info("using PostgreSQL cache")
	} else {
		log.Info("no database configured, running memory-only")
	}

	if cfg.Redis.URL != "" {
		rdb, err := redisclient.NewClient(redisclient.Config{
			URL:      cfg.Redis.URL,
			Password: cfg.Redis.Password,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to init redis: %w", err)
		}
		s.redis = rdb
	}

	providers, err := buildProviders(registry, log)
	if err != nil {
		return nil, err
	}

	if len(cfg.Notes.Relays) > 0 {
		mgrCfg := notes.ManagerConfig{
			Relays:  cfg.Notes.Relays,
			Kind:    cfg.Notes.Kind,
			KeyFile: cfg.Notes.KeyFile,
			Log:     log,
		}
		if s.db != nil {
			mgrCfg.Cache = postgres.NewNoteRepo(s.db)
		}
		mgr, err := notes.NewManager(mgrCfg)
		if err != nil {
			return nil, err
		}
		s.notes = mgr
	} else {
		log.Info("no relays configured, annotations disabled")
	}

	s.hub = api.NewHub(log)

	feedCfg := feed.ServiceConfig{
		Registry:  registry,
		Explorer:  explorer.NewClient(registry, cfg.Explorer, log),
		Providers: providers,
		Notes:     s.notes,
		Ingest:    cfg.Ingest,
		OnLive: func(tx domain.Transaction) {
			s.hub.Broadcast(tx)
		},
		Log: log,
	}
	if s.db != nil {
		feedCfg.TxRepo = postgres.NewTxRepo(s.db)
	}
	feedSvc, err := feed.NewService(feedCfg)
	if err != nil {
		return nil, err
	}
	s.feed = feedSvc

	s.server = api.NewServer(api.ServerConfig{
		Port:           cfg.Server.Port,
		Registry:       registry,
		Feed:           feedSvc,
		Notes:          s.notes,
		Cache:          s.redis,
		ExplorerAPIKey: cfg.Explorer.APIKey,
		CacheTTL:       cfg.Explorer.CacheTTL,
		Hub:            s.hub,
		Health:         s.health,
		Log:            log,
	})

	return s, nil
}

// buildProviders constructs one chain provider per configured chain,
// selected by namespace.
func buildProviders(registry *config.Registry, log *slog.Logger) (map[string]chain.Provider, error) {
	providers := make(map[string]chain.Provider)
	for _, slug := range registry.Slugs() {
		chainCfg, err := registry.Chain(slug)
		if err != nil {
			return nil, err
		}
		ns, err := registry.Namespace(slug)
		if err != nil {
			return nil, err
		}

		var provider chain.Provider
		switch ns {
		case domain.NamespaceEIP155:
			provider, err = eip155.New(chainCfg, log)
		case domain.NamespaceStacks:
			provider, err = stacks.New(chainCfg, log)
		case domain.NamespaceBIP122:
			return nil, fmt.Errorf("%w: namespace %s is reserved but not yet supported (chain %s)",
				domain.ErrConfiguration, ns, slug)
		default:
			return nil, fmt.Errorf("%w: no provider for namespace %s (chain %s)",
				domain.ErrConfiguration, ns, slug)
		}
		if err != nil {
			return nil, fmt.Errorf("building provider for chain %s: %w", slug, err)
		}
		providers[slug] = provider
	}
	return providers, nil
}

// Start launches the hub and the HTTP server. It returns immediately; fatal
// server errors surface via Wait.
func (s *Service) Start(ctx context.Context) error {
	go s.hub.Run()
	go func() {
		if err := s.server.Start(); err != nil {
			s.errCh <- err
		}
	}()
	s.log.Info("service started", "port", s.cfg.Server.Port, "chains", len(s.cfg.Chains))
	return nil
}

// Wait blocks until a fatal error occurs or ctx is done.
func (s *Service) Wait(ctx context.Context) error {
	select {
	case err := <-s.errCh:
		return err
	case <-ctx.Done():
		return nil
	}
}

// Stop shuts the service down in dependency order.
func (s *Service) Stop(ctx context.Context) error {
	var firstErr error

	if err := s.server.Shutdown(ctx); err != nil {
		firstErr = err
	}
	s.hub.Stop()
	s.feed.Close()
	if s.notes != nil {
		s.notes.Close()
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// health reports readiness of the backing stores.
func (s *Service) health(ctx context.Context) error {
	if s.db != nil {
		if err := s.db.Health(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
	}
	if s.redis != nil {
		if err := s.redis.Health(ctx); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}
