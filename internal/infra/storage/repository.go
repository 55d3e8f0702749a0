// Package storage defines the persistent cache boundary. Both repositories
// are idempotent: replaying the same transaction or note is a no-op.
package storage

import (
	"context"

	"github.com/notescan/notescan/internal/core/domain"
)

// TransactionRepository caches fetched transaction history per chain.
type TransactionRepository interface {
	// BulkUpsert stores a batch of transactions, replacing duplicates.
	BulkUpsert(ctx context.Context, txs []domain.Transaction) error

	// GetByAddress retrieves cached transactions touching an address on a
	// chain, newest first.
	GetByAddress(ctx context.Context, chainID, address string) ([]domain.Transaction, error)
}

// NoteRepository caches annotation notes keyed by URI.
type NoteRepository interface {
	// Add stores a note. Idempotent by note id.
	Add(ctx context.Context, uri string, n domain.Note) error

	// GetByURIs retrieves all cached notes for the given URIs.
	GetByURIs(ctx context.Context, uris []string) ([]domain.Note, error)
}
