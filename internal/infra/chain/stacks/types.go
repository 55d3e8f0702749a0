package stacks

// Wire shapes of the Hiro-style extended API, reduced to the fields the
// provider reads.

type blockListResponse struct {
	Results []struct {
		Height uint64 `json:"height"`
	} `json:"results"`
}

type ftTransfer struct {
	AssetIdentifier string `json:"asset_identifier"`
	Amount          string `json:"amount"`
	Sender          string `json:"sender"`
	Recipient       string `json:"recipient"`
}

type txSummary struct {
	TxID          string `json:"tx_id"`
	TxStatus      string `json:"tx_status"`
	TxIndex       uint   `json:"tx_index"`
	BlockHeight   uint64 `json:"block_height"`
	BurnBlockTime uint64 `json:"burn_block_time"`
}

type addressTransfersResponse struct {
	Limit   int `json:"limit"`
	Offset  int `json:"offset"`
	Total   int `json:"total"`
	Results []struct {
		Tx          txSummary    `json:"tx"`
		FtTransfers []ftTransfer `json:"ft_transfers"`
	} `json:"results"`
}

type txEvent struct {
	EventIndex uint   `json:"event_index"`
	EventType  string `json:"event_type"`
	Asset      struct {
		AssetID   string `json:"asset_id"`
		Sender    string `json:"sender"`
		Recipient string `json:"recipient"`
		Amount    string `json:"amount"`
	} `json:"asset"`
}

type txResponse struct {
	txSummary
	Events []txEvent `json:"events"`
}

type ftMetadataResponse struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

// Terminal tx_status values the API reports for transactions that will never
// confirm. These classify as not-found, not as errors.
var terminalStatuses = map[string]bool{
	"dropped_replace_by_fee":     true,
	"dropped_replace_across_fork": true,
	"dropped_too_expensive":      true,
	"dropped_stale_garbage_collect": true,
	"dropped_problematic":        true,
}
