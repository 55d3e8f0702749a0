// Package eip155 implements the account-based EVM provider variant on top of
// go-ethereum JSON-RPC clients with endpoint rotation.
package eip155

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"golang.org/x/sync/errgroup"

	"github.com/notescan/notescan/internal/core/config"
	"github.com/notescan/notescan/internal/core/domain"
	"github.com/notescan/notescan/internal/infra/chain"
	"github.com/notescan/notescan/internal/infra/rotation"
)

// transferTopic is the fixed selector of the canonical ERC-20 transfer event.
var transferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// Provider serves the eip155 namespace. RPC calls rotate across the chain's
// configured HTTP endpoints; streaming rotates across WS endpoints.
type Provider struct {
	chainID string
	rotator *rotation.Rotator
	ws      []string
	dialWS  func(ctx context.Context, endpoint string) (streamClient, error)
	log     *slog.Logger

	clientMu sync.Mutex
	clients  map[string]*ethclient.Client

	tokenMu sync.RWMutex
	tokens  map[string]domain.Token

	tsMu       sync.RWMutex
	timestamps map[uint64]uint64
}

// New builds an eip155 provider from a registry entry.
func New(cfg config.ChainConfig, log *slog.Logger) (*Provider, error) {
	rot, err := rotation.New(cfg.RPC)
	if err != nil {
		return nil, fmt.Errorf("chain %s: %w", cfg.Slug, err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Provider{
		chainID:    cfg.ID,
		rotator:    rot,
		ws:         append([]string(nil), cfg.WS...),
		dialWS:     dialStream,
		log:        log.With("chain", cfg.Slug, "namespace", "eip155"),
		clients:    make(map[string]*ethclient.Client),
		tokens:     make(map[string]domain.Token),
		timestamps: make(map[uint64]uint64),
	}, nil
}

func (p *Provider) Namespace() domain.Namespace {
	return domain.NamespaceEIP155
}

// client returns a cached ethclient for an endpoint, dialing lazily.
func (p *Provider) client(ctx context.Context, endpoint string) (*ethclient.Client, error) {
	p.clientMu.Lock()
	defer p.clientMu.Unlock()
	if c, ok := p.clients[endpoint]; ok {
		return c, nil
	}
	c, err := ethclient.DialContext(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}
	p.clients[endpoint] = c
	return c, nil
}

func (p *Provider) BlockNumber(ctx context.Context) (uint64, error) {
	var head uint64
	err := p.rotator.Attempt(ctx, func(ctx context.Context, ep string) error {
		c, err := p.client(ctx, ep)
		if err != nil {
			return err
		}
		head, err = c.BlockNumber(ctx)
		return err
	})
	return head, err
}

// query builds the eth_getLogs topic filter: Transfer selector in position 0,
// zero-padded counterparty addresses in the indexed from/to positions.
func query(f chain.LogFilter) ethereum.FilterQuery {
	q := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(f.FromBlock),
		ToBlock:   new(big.Int).SetUint64(f.ToBlock),
		Topics:    [][]common.Hash{{transferTopic}},
	}
	if f.Token != "" {
		q.Addresses = []common.Address{common.HexToAddress(f.Token)}
	}
	if f.From != "" || f.To != "" {
		fromMatch := []common.Hash(nil)
		if f.From != "" {
			fromMatch = []common.Hash{addressTopic(f.From)}
		}
		q.Topics = append(q.Topics, fromMatch)
		if f.To != "" {
			q.Topics = append(q.Topics, []common.Hash{addressTopic(f.To)})
		}
	}
	return q
}

func addressTopic(addr string) common.Hash {
	return common.BytesToHash(common.LeftPadBytes(common.HexToAddress(addr).Bytes(), 32))
}

func (p *Provider) Logs(ctx context.Context, f chain.LogFilter) ([]chain.Log, error) {
	var raw []types.Log
	err := p.rotator.Attempt(ctx, func(ctx context.Context, ep string) error {
		c, err := p.client(ctx, ep)
		if err != nil {
			return err
		}
		raw, err = c.FilterLogs(ctx, query(f))
		return err
	})
	if err != nil {
		return nil, err
	}

	logs := make([]chain.Log, 0, len(raw))
	for _, l := range raw {
		parsed, ok := parseTransferLog(p.chainID, l)
		if !ok {
			continue
		}
		logs = append(logs, parsed)
	}
	return logs, nil
}

// parseTransferLog decodes one Transfer log. Malformed logs are skipped, not
// fatal: one bad event must never abort the enclosing fetch.
func parseTransferLog(chainID string, l types.Log) (chain.Log, bool) {
	if len(l.Topics) < 3 || l.Topics[0] != transferTopic {
		return chain.Log{}, false
	}
	return chain.Log{
		ChainID:     chainID,
		TxHash:      strings.ToLower(l.TxHash.Hex()),
		BlockNumber: l.BlockNumber,
		TxIndex:     l.TxIndex,
		LogIndex:    l.Index,
		Token:       strings.ToLower(l.Address.Hex()),
		From:        strings.ToLower(common.BytesToAddress(l.Topics[1].Bytes()).Hex()),
		To:          strings.ToLower(common.BytesToAddress(l.Topics[2].Bytes()).Hex()),
		Value:       new(big.Int).SetBytes(l.Data).String(),
	}, true
}

// blockTimestamp resolves a block's timestamp with a per-provider cache.
func (p *Provider) blockTimestamp(ctx context.Context, number uint64) (uint64, error) {
	p.tsMu.RLock()
	ts, ok := p.timestamps[number]
	p.tsMu.RUnlock()
	if ok {
		return ts, nil
	}

	err := p.rotator.Attempt(ctx, func(ctx context.Context, ep string) error {
		c, err := p.client(ctx, ep)
		if err != nil {
			return err
		}
		header, err := c.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
		if err != nil {
			return err
		}
		ts = header.Time
		return nil
	})
	if err != nil {
		return 0, err
	}

	p.tsMu.Lock()
	p.timestamps[number] = ts
	p.tsMu.Unlock()
	return ts, nil
}

func (p *Provider) Translate(ctx context.Context, l chain.Log) (domain.Transaction, error) {
	ts, err := p.blockTimestamp(ctx, l.BlockNumber)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("resolve timestamp for block %d: %w", l.BlockNumber, err)
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

func (p *Provider) TxReceipt(ctx context.Context, txID string) (*domain.TxReceipt, error) {
	var receipt *types.Receipt
	err := p.rotator.Attempt(ctx, func(ctx context.Context, ep string) error {
		c, err := p.client(ctx, ep)
		if err != nil {
			return err
		}
		r, err := c.TransactionReceipt(ctx, common.HexToHash(txID))
		if errors.Is(err, ethereum.NotFound) {
			// Pending, dropped, or replaced: not found, not an error.
			receipt = nil
			return nil
		}
		if err != nil {
			return err
		}
		receipt = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	if receipt == nil {
		return nil, nil
	}

	out := &domain.TxReceipt{
		TxHash:      strings.ToLower(receipt.TxHash.Hex()),
		BlockNumber: receipt.BlockNumber.Uint64(),
		Success:     receipt.Status == types.ReceiptStatusSuccessful,
	}
	for _, l := range receipt.Logs {
		parsed, ok := parseTransferLog(p.chainID, *l)
		if !ok {
			continue
		}
		tx, err := p.Translate(ctx, parsed)
		if err != nil {
			p.log.Warn("skipping untranslatable receipt log", "tx", txID, "log_index", parsed.LogIndex, "error", err)
			continue
		}
		out.Transfers = append(out.Transfers, tx)
	}
	return out, nil
}

// BlockRange fetches both legs of the window independently (from-match and
// to-match filters) and returns the union newest first.
func (p *Provider) BlockRange(ctx context.Context, address string, fromBlock, toBlock uint64) ([]domain.Transaction, error) {
	var outgoing, incoming []chain.Log
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		outgoing, err = p.Logs(gctx, chain.LogFilter{FromBlock: fromBlock, ToBlock: toBlock, From: address})
		return err
	})
	g.Go(func() error {
		var err error
		incoming, err = p.Logs(gctx, chain.LogFilter{FromBlock: fromBlock, ToBlock: toBlock, To: address})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	txs := make([]domain.Transaction, 0, len(outgoing)+len(incoming))
	for _, l := range append(outgoing, incoming...) {
		key := fmt.Sprintf("%s/%d", l.TxHash, l.LogIndex)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		tx, err := p.Translate(ctx, l)
		if err != nil {
			p.log.Warn("dropping untranslatable log", "tx", l.TxHash, "error", err)
			continue
		}
		txs = append(txs, tx)
	}
	sort.Slice(txs, func(i, j int) bool { return txs[i].Before(&txs[j]) })
	return txs, nil
}
