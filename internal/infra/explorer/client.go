// Package explorer implements the historical transaction fetcher against an
// Etherscan-v2-compatible REST API: complete, paginated transfer history for
// an (address, token) pair, normalized into the canonical transaction shape.
package explorer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/notescan/notescan/internal/core/config"
	"github.com/notescan/notescan/internal/core/domain"
)

const requestTimeout = 20 * time.Second

// Client fetches transfer history from the explorer API. Outgoing requests
// are paced client-side so paging a deep history does not trip the
// provider's rate limits.
type Client struct {
	registry *config.Registry
	apiKey   string
	pageSize int
	http     *http.Client
	limiter  *rate.Limiter
	log      *slog.Logger
}

// NewClient builds an explorer client from config.
func NewClient(registry *config.Registry, cfg config.ExplorerConfig, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	// Mirror the loader defaults so a directly built client cannot page
	// forever or stall its limiter on a zero config.
	if cfg.PageSize <= 0 {
		cfg.PageSize = 1000
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 4
	}
	return &Client{
		registry: registry,
		apiKey:   cfg.APIKey,
		pageSize: cfg.PageSize,
		http:     &http.Client{Timeout: requestTimeout},
		limiter:  rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		log:      log.With("component", "explorer"),
	}
}

// apiResponse is the explorer envelope. Status "1" is success; "0" with the
// no-transactions message is an empty result, anything else is upstream
// failure.
type apiResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

// FetchAll returns the complete transfer history for the filters, newest
// first. At least a chain is required; address and token narrow the result.
func (c *Client) FetchAll(ctx context.Context, chainSlug, address, token string) ([]domain.Transaction, error) {
	chain, err := c.registry.Chain(chainSlug)
	if err != nil {
		return nil, err
	}
	if chain.ExplorerAPI == "" {
		return nil, fmt.Errorf("%w: chain %s has no explorer api", domain.ErrConfiguration, chainSlug)
	}
	if c.apiKey == "" {
		return nil, fmt.Errorf("%w: explorer api key not set", domain.ErrConfiguration)
	}
	if address == "" && token == "" {
		return nil, fmt.Errorf("%w: history fetch needs an address or token filter", domain.ErrConfiguration)
	}

	var all []domain.Transaction
	for page := 1; ; page++ {
		records, err := c.fetchPage(ctx, chain, address, token, page)
		if err != nil {
			return nil, err
		}
		for _, rec := range records {
			tx, err := rec.normalize(chain.ID)
			if err != nil {
				c.log.Warn("skipping malformed transfer record", "tx", rec.Hash, "error", err)
				continue
			}
			all = append(all, tx)
		}
		if len(records) < c.pageSize {
			break
		}
	}
	return all, nil
}

func (c *Client) fetchPage(ctx context.Context, chain config.ChainConfig, address, token string, page int) ([]transferRecord, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	q := url.Values{
		"module":     {"account"},
		"action":     {"tokentx"},
		"chainid":    {chain.ID},
		"startblock": {"0"},
		"endblock":   {"99999999"},
		"sort":       {"desc"},
		"page":       {fmt.Sprintf("%d", page)},
		"offset":     {fmt.Sprintf("%d", c.pageSize)},
		"apikey":     {c.apiKey},
	}
	if address != "" {
		q.Set("address", address)
	}
	if token != "" {
		q.Set("contractaddress", token)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, chain.ExplorerAPI+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.log.Error("explorer returned http failure", "status", resp.StatusCode, "body", string(body))
		return nil, fmt.Errorf("%w: explorer http status %d", domain.ErrUpstream, resp.StatusCode)
	}

	var envelope apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("%w: decode explorer response: %v", domain.ErrUpstream, err)
	}
	if envelope.Status != "1" {
		if strings.Contains(strings.ToLower(envelope.Message), "no transactions found") {
			return nil, nil
		}
		// Raw upstream message is logged, never surfaced to callers.
		c.log.Error("explorer reported failure", "message", envelope.Message, "result", string(envelope.Result))
		return nil, fmt.Errorf("%w: explorer rejected the request", domain.ErrUpstream)
	}

	var records []transferRecord
	if err := json.Unmarshal(envelope.Result, &records); err != nil {
		return nil, fmt.Errorf("%w: decode transfer records: %v", domain.ErrUpstream, err)
	}
	return records, nil
}
