package feed

import "github.com/notescan/notescan/internal/core/domain"

// Page slices one page out of a merged feed. Pages are 1-based; out-of-range
// pages are empty, never an error.
func Page(txs []domain.Transaction, page, size int) []domain.Transaction {
	if page < 1 || size < 1 {
		return nil
	}
	start := (page - 1) * size
	if start >= len(txs) {
		return nil
	}
	end := start + size
	if end > len(txs) {
		end = len(txs)
	}
	return txs[start:end]
}
