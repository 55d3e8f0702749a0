package domain

// Token is lazily resolved ERC-20-style metadata. Unresolved tokens carry
// the unknown-token sentinel instead of an error: metadata is best-effort
// enrichment, not critical path.
type Token struct {
	Address  string `json:"address"`
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

// UnknownToken is the sentinel returned when token metadata cannot be
// resolved.
func UnknownToken(address string) Token {
	return Token{
		Address:  address,
		Name:     "Unknown Token",
		Symbol:   "???",
		Decimals: 18,
	}
}

// Transaction is the canonical, namespace-agnostic transfer event.
// (TxHash, LogIndex) is unique within a chain; the merge step enforces this
// even when the same event arrives via both historical fetch and live stream.
type Transaction struct {
	ChainID     string `json:"chain_id"`
	TxHash      string `json:"tx_hash"`
	BlockNumber uint64 `json:"block_number"`
	TxIndex     uint   `json:"tx_index"`
	LogIndex    uint   `json:"log_index"`
	Timestamp   uint64 `json:"timestamp"`
	From        string `json:"from"`
	To          string `json:"to"`
	// Value is the integer amount as a string; paired with Token.Decimals
	// for display conversion.
	Value string `json:"value"`
	Token Token  `json:"token"`
}

// Before reports whether t orders before u in the canonical descending feed
// order, i.e. t is newer by (BlockNumber, TxIndex, LogIndex).
func (t *Transaction) Before(u *Transaction) bool {
	if t.BlockNumber != u.BlockNumber {
		return t.BlockNumber > u.BlockNumber
	}
	if t.TxIndex != u.TxIndex {
		return t.TxIndex > u.TxIndex
	}
	return t.LogIndex > u.LogIndex
}

// TxReceipt is a confirmed transaction's decoded outcome. Terminal-failure
// statuses (dropped/replaced/expired) are classified as not-found by
// providers, so a receipt always describes a mined transaction.
type TxReceipt struct {
	TxHash      string        `json:"tx_hash"`
	BlockNumber uint64        `json:"block_number"`
	Success     bool          `json:"success"`
	Transfers   []Transaction `json:"transfers"`
}
