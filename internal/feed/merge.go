// Package feed combines the historical snapshot with the live stream into
// one de-duplicated, descending-ordered, paginated transaction feed.
package feed

import (
	"fmt"
	"sort"

	"github.com/notescan/notescan/internal/core/domain"
)

// dedupKey identifies an event within a chain: transaction hash plus log
// index. Duplicates can arrive via both the historical fetch and the live
// stream; the first (live) occurrence wins.
func dedupKey(tx domain.Transaction) string {
	return fmt.Sprintf("%s/%d", tx.TxHash, tx.LogIndex)
}

// Merge prepends live events to the historical snapshot, removes duplicates
// by (TxHash, LogIndex) keeping the first occurrence, and returns the result
// sorted descending by (BlockNumber, TxIndex, LogIndex).
//
// Merge is pure and idempotent: merging the same live batch twice yields the
// same feed.
func Merge(historical, live []domain.Transaction) []domain.Transaction {
	seen := make(map[string]struct{}, len(historical)+len(live))
	merged := make([]domain.Transaction, 0, len(historical)+len(live))

	for _, batch := range [][]domain.Transaction{live, historical} {
		for _, tx := range batch {
			key := dedupKey(tx)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			merged = append(merged, tx)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Before(&merged[j])
	})
	return merged
}
