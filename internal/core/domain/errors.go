package domain

import "errors"

// Error taxonomy. Callers match with errors.Is; wrapping sites attach
// context with fmt.Errorf("...: %w", ...).
var (
	// ErrConfiguration signals missing required static config (API key,
	// chain entry). Never retried.
	ErrConfiguration = errors.New("configuration error")

	// ErrUpstream signals a failure status from an explorer or RPC
	// endpoint. The raw payload is logged, never surfaced.
	ErrUpstream = errors.New("upstream error")

	// ErrNetwork signals that every configured endpoint for a provider
	// has been exhausted. Terminal for the current ingestion session.
	ErrNetwork = errors.New("all endpoints exhausted")

	// ErrNotAuthenticated signals that no signing key exists and none
	// could be created.
	ErrNotAuthenticated = errors.New("no signing key available")

	// ErrPublish signals that every configured relay rejected a note.
	ErrPublish = errors.New("publish rejected by all relays")
)
