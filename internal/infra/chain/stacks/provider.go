// Package stacks implements the contract-principal provider variant against
// a Hiro-style REST transaction-events API. The external contract matches
// the eip155 variant; only the wire encoding differs.
package stacks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/notescan/notescan/internal/core/config"
	"github.com/notescan/notescan/internal/core/domain"
	"github.com/notescan/notescan/internal/infra/chain"
	"github.com/notescan/notescan/internal/infra/rotation"
)

const (
	requestTimeout = 15 * time.Second
	pageLimit      = 50
	// maxPages bounds one range scan; the polling engine advances in small
	// windows so deep history never goes through this path.
	maxPages = 40
)

// Provider serves the stacks namespace over rotating REST base URLs.
type Provider struct {
	chainID string
	rotator *rotation.Rotator
	http    *http.Client
	log     *slog.Logger

	tokenMu sync.RWMutex
	tokens  map[string]domain.Token
}

// New builds a stacks provider from a registry entry.
func New(cfg config.ChainConfig, log *slog.Logger) (*Provider, error) {
	rot, err := rotation.New(cfg.RPC)
	if err != nil {
		return nil, fmt.Errorf("chain %s: %w", cfg.Slug, err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Provider{
		chainID: cfg.ID,
		rotator: rot,
		http:    &http.Client{Timeout: requestTimeout},
		log:     log.With("chain", cfg.Slug, "namespace", "stacks"),
		tokens:  make(map[string]domain.Token),
	}, nil
}

func (p *Provider) Namespace() domain.Namespace {
	return domain.NamespaceStacks
}

// get performs one GET against a rotating base URL and decodes into out.
// found is false when the resource does not exist (HTTP 404), which is a
// successful lookup, not an endpoint failure.
func (p *Provider) get(ctx context.Context, path string, query url.Values, out any) (found bool, err error) {
	found = true
	err = p.rotator.Attempt(ctx, func(ctx context.Context, base string) error {
		u := strings.TrimRight(base, "/") + path
		if len(query) > 0 {
			u += "?" + query.Encode()
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return err
		}
		resp, err := p.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusNotFound {
			found = false
			return nil
		}
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			p.log.Warn("stacks api returned failure status", "status", resp.StatusCode, "body", string(body))
			return fmt.Errorf("%w: status %d from %s", domain.ErrUpstream, resp.StatusCode, base)
		}
		return json.NewDecoder(resp.Body).Decode(out)
	})
	return found, err
}

func (p *Provider) BlockNumber(ctx context.Context) (uint64, error) {
	var resp blockListResponse
	q := url.Values{"limit": {"1"}}
	if _, err := p.get(ctx, "/extended/v2/blocks", q, &resp); err != nil {
		return 0, err
	}
	if len(resp.Results) == 0 {
		return 0, fmt.Errorf("%w: empty block list", domain.ErrUpstream)
	}
	return resp.Results[0].Height, nil
}

// addressTransfers pages the transactions-with-transfers endpoint for one
// principal until the block window is covered.
func (p *Provider) addressTransfers(ctx context.Context, principal string, fromBlock, toBlock uint64) ([]chain.Log, error) {
	var logs []chain.Log
	for page := 0; page < maxPages; page++ {
		var resp addressTransfersResponse
		q := url.Values{
			"limit":  {fmt.Sprintf("%d", pageLimit)},
			"offset": {fmt.Sprintf("%d", page * pageLimit)},
		}
		path := fmt.Sprintf("/extended/v1/address/%s/transactions_with_transfers", url.PathEscape(principal))
		found, err := p.get(ctx, path, q, &resp)
		if err != nil {
			return nil, err
		}
		if !found || len(resp.Results) == 0 {
			break
		}

		pastWindow := false
		for _, r := range resp.Results {
			if r.Tx.BlockHeight < fromBlock {
				// Results are newest first; everything after this is
				// older than the window.
				pastWindow = true
				break
			}
			if r.Tx.BlockHeight > toBlock || r.Tx.TxStatus != "success" {
				continue
			}
			for i, t := range r.FtTransfers {
				logs = append(logs, chain.Log{
					ChainID:     p.chainID,
					TxHash:      strings.ToLower(r.Tx.TxID),
					BlockNumber: r.Tx.BlockHeight,
					TxIndex:     r.Tx.TxIndex,
					LogIndex:    uint(i),
					Token:       strings.ToLower(t.AssetIdentifier),
					From:        strings.ToLower(t.Sender),
					To:          strings.ToLower(t.Recipient),
					Value:       t.Amount,
				})
			}
		}
		if pastWindow || len(resp.Results) < pageLimit {
			break
		}
	}
	return logs, nil
}

func (p *Provider) Logs(ctx context.Context, f chain.LogFilter) ([]chain.Log, error) {
	principal := f.From
	if principal == "" {
		principal = f.To
	}
	if principal == "" {
		return nil, fmt.Errorf("%w: stacks log filter requires a principal", domain.ErrConfiguration)
	}
	logs, err := p.addressTransfers(ctx, principal, f.FromBlock, f.ToBlock)
	if err != nil {
		return nil, err
	}

	filtered := logs[:0]
	for _, l := range logs {
		if f.Token != "" && l.Token != strings.ToLower(f.Token) {
			continue
		}
		if f.From != "" && l.From != strings.ToLower(f.From) {
			continue
		}
		if f.To != "" && l.To != strings.ToLower(f.To) {
			continue
		}
		filtered = append(filtered, l)
	}
	return filtered, nil
}

// TokenDetails resolves fungible-token metadata by contract principal.
// Best-effort with the unknown-token sentinel on any failure; cached.
func (p *Provider) TokenDetails(ctx context.Context, address string) domain.Token {
	address = strings.ToLower(address)

	p.tokenMu.RLock()
	tok, ok := p.tokens[address]
	p.tokenMu.RUnlock()
	if ok {
		return tok
	}

	tok = domain.UnknownToken(address)
	var meta ftMetadataResponse
	path := fmt.Sprintf("/metadata/v1/ft/%s", url.PathEscape(address))
	if found, err := p.get(ctx, path, nil, &meta); err != nil || !found {
		p.log.Warn("token metadata lookup degraded to sentinel", "token", address, "error", err)
	} else {
		if meta.Name != "" {
			tok.Name = meta.Name
		}
		if meta.Symbol != "" {
			tok.Symbol = meta.Symbol
		}
		tok.Decimals = meta.Decimals
	}

	p.tokenMu.Lock()
	p.tokens[address] = tok
	p.tokenMu.Unlock()
	return tok
}

func (p *Provider) TxReceipt(ctx context.Context, txID string) (*domain.TxReceipt, error) {
	var resp txResponse
	path := fmt.Sprintf("/extended/v1/tx/%s", url.PathEscape(strings.ToLower(txID)))
	found, err := p.get(ctx, path, nil, &resp)
	if err != nil {
		return nil, err
	}
	// Unconfirmed or terminally failed transactions are "not found".
	if !found || resp.TxStatus == "pending" || terminalStatuses[resp.TxStatus] {
		return nil, nil
	}

	out := &domain.TxReceipt{
		TxHash:      strings.ToLower(resp.TxID),
		BlockNumber: resp.BlockHeight,
		Success:     resp.TxStatus == "success",
	}
	for _, ev := range resp.Events {
		if ev.EventType != "fungible_token_asset" {
			continue
		}
		out.Transfers = append(out.Transfers, domain.Transaction{
			ChainID:     p.chainID,
			TxHash:      strings.ToLower(resp.TxID),
			BlockNumber: resp.BlockHeight,
			TxIndex:     resp.TxIndex,
			LogIndex:    ev.EventIndex,
			Timestamp:   resp.BurnBlockTime,
			From:        strings.ToLower(ev.Asset.Sender),
			To:          strings.ToLower(ev.Asset.Recipient),
			Value:       ev.Asset.Amount,
			Token:       p.TokenDetails(ctx, ev.Asset.AssetID),
		})
	}
	return out, nil
}

func (p *Provider) Translate(ctx context.Context, l chain.Log) (domain.Transaction, error) {
	// The transfers endpoint already carries block times, but a log that
	// arrived without one is resolved through the tx lookup.
	ts := uint64(0)
	var resp txResponse
	path := fmt.Sprintf("/extended/v1/tx/%s", url.PathEscape(l.TxHash))
	if found, err := p.get(ctx, path, nil, &resp); err == nil && found {
		ts = resp.BurnBlockTime
	} else if err != nil {
		p.log.Warn("timestamp lookup failed", "tx", l.TxHash, "error", err)
	}
	return domain.Transaction{
		ChainID:     p.chainID,
		TxHash:      l.TxHash,
		BlockNumber: l.BlockNumber,
		TxIndex:     l.TxIndex,
		LogIndex:    l.LogIndex,
		Timestamp:   ts,
		From:        l.From,
		To:          l.To,
		Value:       l.Value,
		Token:       p.TokenDetails(ctx, l.Token),
	}, nil
}

func (p *Provider) BlockRange(ctx context.Context, address string, fromBlock, toBlock uint64) ([]domain.Transaction, error) {
	logs, err := p.addressTransfers(ctx, address, fromBlock, toBlock)
	if err != nil {
		return nil, err
	}
	txs := make([]domain.Transaction, 0, len(logs))
	for _, l := range logs {
		tx, err := p.Translate(ctx, l)
		if err != nil {
			p.log.Warn("dropping untranslatable transfer", "tx", l.TxHash, "error", err)
			continue
		}
		txs = append(txs, tx)
	}
	sort.Slice(txs, func(i, j int) bool { return txs[i].Before(&txs[j]) })
	return txs, nil
}
