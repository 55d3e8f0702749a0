package ingest

import (
	"sync"

	"github.com/notescan/notescan/internal/core/domain"
)

// Buffer holds the bounded window of most-recent accepted transactions,
// newest first. Entries beyond capacity fall off the end.
type Buffer struct {
	mu  sync.RWMutex
	cap int
	txs []domain.Transaction
}

// NewBuffer creates a buffer with the given capacity.
func NewBuffer(capacity int) *Buffer {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer{cap: capacity}
}

// Prepend inserts a transaction at the front, discarding the oldest entry
// once capacity is exceeded.
func (b *Buffer) Prepend(tx domain.Transaction) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.txs = append([]domain.Transaction{tx}, b.txs...)
	if len(b.txs) > b.cap {
		b.txs = b.txs[:b.cap]
	}
}

// Snapshot returns a copy of the buffered transactions, newest first.
// Callers must treat the result as immutable-by-convention anyway; copying
// keeps concurrent prepends safe.
func (b *Buffer) Snapshot() []domain.Transaction {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]domain.Transaction, len(b.txs))
	copy(out, b.txs)
	return out
}

// Len returns the number of buffered transactions.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.txs)
}
