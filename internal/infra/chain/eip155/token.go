package eip155

import (
	"context"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/notescan/notescan/internal/core/domain"
)

const erc20MetadataABI = `[
  {"inputs": [], "name": "name", "outputs": [{"type": "string"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "symbol", "outputs": [{"type": "string"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "decimals", "outputs": [{"type": "uint8"}], "stateMutability": "view", "type": "function"}
]`

var (
	erc20ABI     abi.ABI
	erc20ABIOnce sync.Once
	erc20ABIErr  error
)

func erc20ABIInstance() (abi.ABI, error) {
	erc20ABIOnce.Do(func() {
		erc20ABI, erc20ABIErr = abi.JSON(strings.NewReader(erc20MetadataABI))
	})
	return erc20ABI, erc20ABIErr
}

// TokenDetails resolves ERC-20 metadata for a token contract. Lookup is
// best-effort: fields that fail keep the unknown-token defaults, the result
// is cached either way, and no error ever escapes.
func (p *Provider) TokenDetails(ctx context.Context, address string) domain.Token {
	address = strings.ToLower(address)

	p.tokenMu.RLock()
	tok, ok := p.tokens[address]
	p.tokenMu.RUnlock()
	if ok {
		return tok
	}

	tok = domain.UnknownToken(address)
	parsed, err := erc20ABIInstance()
	if err == nil {
		contract := common.HexToAddress(address)
		err = p.rotator.Attempt(ctx, func(ctx context.Context, ep string) error {
			c, err := p.client(ctx, ep)
			if err != nil {
				return err
			}
			resolveTokenFields(ctx, c, parsed, contract, &tok)
			return nil
		})
	}
	if err != nil {
		p.log.Warn("token metadata lookup degraded to sentinel", "token", address, "error", err)
	}

	p.tokenMu.Lock()
	p.tokens[address] = tok
	p.tokenMu.Unlock()
	return tok
}

// resolveTokenFields fills in whichever metadata fields the contract answers.
// Individual call failures leave the sentinel defaults in place.
func resolveTokenFields(ctx context.Context, c *ethclient.Client, parsed abi.ABI, contract common.Address, tok *domain.Token) {
	call := func(method string) ([]interface{}, bool) {
		data, err := parsed.Pack(method)
		if err != nil {
			return nil, false
		}
		out, err := c.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: data}, nil)
		if err != nil || len(out) == 0 {
			return nil, false
		}
		values, err := parsed.Unpack(method, out)
		if err != nil || len(values) == 0 {
			return nil, false
		}
		return values, true
	}

	if values, ok := call("name"); ok {
		if name, ok := values[0].(string); ok && name != "" {
			tok.Name = name
		}
	}
	if values, ok := call("symbol"); ok {
		if symbol, ok := values[0].(string); ok && symbol != "" {
			tok.Symbol = symbol
		}
	}
	if values, ok := call("decimals"); ok {
		if decimals, ok := values[0].(uint8); ok {
			tok.Decimals = decimals
		}
	}
}
