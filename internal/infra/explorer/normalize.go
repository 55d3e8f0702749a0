package explorer

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/notescan/notescan/internal/core/domain"
)

// transferRecord is one provider-shaped token transfer: numeric fields are
// string-encoded and decimals travel as a separate field.
type transferRecord struct {
	BlockNumber  string `json:"blockNumber"`
	TimeStamp    string `json:"timeStamp"`
	Hash         string `json:"hash"`
	From         string `json:"from"`
	To           string `json:"to"`
	Value        string `json:"value"`
	ContractAddr string `json:"contractAddress"`
	TokenName    string `json:"tokenName"`
	TokenSymbol  string `json:"tokenSymbol"`
	TokenDecimal string `json:"tokenDecimal"`
	TxIndex      string `json:"transactionIndex"`
	LogIndex     string `json:"logIndex"`
}

// normalize converts a provider record into the canonical transaction shape.
func (r transferRecord) normalize(chainID string) (domain.Transaction, error) {
	block, err := strconv.ParseUint(r.BlockNumber, 10, 64)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("block number %q: %w", r.BlockNumber, err)
	}
	ts, err := strconv.ParseUint(r.TimeStamp, 10, 64)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("timestamp %q: %w", r.TimeStamp, err)
	}
	if r.Hash == "" {
		return domain.Transaction{}, fmt.Errorf("missing tx hash")
	}

	// Index fields are absent from some explorer deployments; they only
	// refine ordering and dedup, so missing means zero.
	txIndex := parseUintDefault(r.TxIndex, 0)
	logIndex := parseUintDefault(r.LogIndex, 0)

	token := domain.UnknownToken(strings.ToLower(r.ContractAddr))
	if r.TokenName != "" {
		token.Name = r.TokenName
	}
	if r.TokenSymbol != "" {
		token.Symbol = r.TokenSymbol
	}
	if d, err := strconv.ParseUint(r.TokenDecimal, 10, 8); err == nil {
		token.Decimals = uint8(d)
	}

	value := r.Value
	if value == "" {
		value = "0"
	}

	return domain.Transaction{
		ChainID:     chainID,
		TxHash:      strings.ToLower(r.Hash),
		BlockNumber: block,
		TxIndex:     uint(txIndex),
		LogIndex:    uint(logIndex),
		Timestamp:   ts,
		From:        strings.ToLower(r.From),
		To:          strings.ToLower(r.To),
		Value:       value,
		Token:       token,
	}, nil
}

func parseUintDefault(s string, def uint64) uint64 {
	if s == "" {
		return def
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return def
	}
	return v
}
