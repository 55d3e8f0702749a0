// Package chain defines the provider boundary between the core pipeline and
// chain-specific wire semantics. One concrete variant exists per namespace;
// the variant is chosen once at construction, never by runtime shape-sniffing.
package chain

import (
	"context"

	"github.com/notescan/notescan/internal/core/domain"
)

// LogFilter selects transfer events. From and To are independent legs: a
// filter with From set matches outgoing transfers, To set matches incoming
// ones. Token narrows to one asset contract when non-empty.
type LogFilter struct {
	FromBlock uint64
	ToBlock   uint64
	Token     string
	From      string
	To        string
}

// Log is a raw matched transfer event before enrichment. Value is the
// integer amount as a decimal string.
type Log struct {
	ChainID     string
	TxHash      string
	BlockNumber uint64
	TxIndex     uint
	LogIndex    uint
	Token       string
	From        string
	To          string
	Value       string
}

// Provider is the capability contract every namespace variant implements.
type Provider interface {
	// Namespace identifies the variant.
	Namespace() domain.Namespace

	// BlockNumber returns the current chain head. Fails with
	// domain.ErrNetwork once all endpoints are exhausted.
	BlockNumber(ctx context.Context) (uint64, error)

	// Logs retrieves raw matched transfer events for a block range.
	Logs(ctx context.Context, f LogFilter) ([]Log, error)

	// TokenDetails resolves token metadata. Never errors: resolution
	// failure degrades to the unknown-token sentinel. Results are cached.
	TokenDetails(ctx context.Context, address string) domain.Token

	// TxReceipt fetches a confirmed transaction's decoded transfer events.
	// Returns (nil, nil) for unresolvable, not-yet-confirmed, or
	// terminally failed (dropped/replaced/expired) transactions.
	TxReceipt(ctx context.Context, txID string) (*domain.TxReceipt, error)

	// BlockRange returns transfer events into/out of address within the
	// window, newest first.
	BlockRange(ctx context.Context, address string, fromBlock, toBlock uint64) ([]domain.Transaction, error)

	// Translate enriches a raw log into the canonical transaction shape
	// (token metadata, block timestamp).
	Translate(ctx context.Context, l Log) (domain.Transaction, error)
}

// StreamState is the observable socket lifecycle for UI connectivity
// indicators. Transitions do not affect ingestion correctness.
type StreamState int

const (
	StreamConnecting StreamState = iota
	StreamOpen
	StreamClosed
)

func (s StreamState) String() string {
	switch s {
	case StreamConnecting:
		return "connecting"
	case StreamOpen:
		return "open"
	case StreamClosed:
		return "closed"
	}
	return "unknown"
}

// StateFunc observes stream connection transitions. May be nil.
type StateFunc func(endpoint string, state StreamState)

// Subscription is a live event subscription handle.
type Subscription interface {
	// Err delivers the terminal subscription error, if any.
	Err() <-chan error
	// Unsubscribe tears the subscription down. Idempotent.
	Unsubscribe()
}

// Streamer is the optional push-capable side of a provider. Providers that
// do not implement it are served by the polling strategy.
type Streamer interface {
	// Subscribe registers the filter with the transport and delivers
	// matched logs on ch until the subscription fails or is torn down.
	Subscribe(ctx context.Context, f LogFilter, ch chan<- Log, onState StateFunc) (Subscription, error)
}
