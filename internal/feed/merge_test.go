package feed

import (
	"reflect"
	"testing"

	"github.com/notescan/notescan/internal/core/domain"
)

func tx(hash string, block uint64) domain.Transaction {
	return domain.Transaction{ChainID: "1", TxHash: hash, BlockNumber: block}
}

func hashes(txs []domain.Transaction) []string {
	out := make([]string, len(txs))
	for i, t := range txs {
		out[i] = t.TxHash
	}
	return out
}

func TestMergeHistoricalAndLive(t *testing.T) {
	historical := []domain.Transaction{tx("0xa", 100), tx("0xb", 99)}
	live := []domain.Transaction{tx("0xa", 100), tx("0xc", 101)}

	merged := Merge(historical, live)

	want := []string{"0xc", "0xa", "0xb"}
	if !reflect.DeepEqual(hashes(merged), want) {
		t.Errorf("merged = %v, want %v", hashes(merged), want)
	}
}

func TestMergeIdempotent(t *testing.T) {
	historical := []domain.Transaction{tx("0xa", 100), tx("0xb", 99)}
	live := []domain.Transaction{tx("0xc", 101), tx("0xd", 102)}

	once := Merge(historical, live)
	twice := Merge(historical, Merge(live, live))

	if !reflect.DeepEqual(once, twice) {
		t.Errorf("merge not idempotent:\nonce:  %v\ntwice: %v", hashes(once), hashes(twice))
	}
}

func TestMergeKeepsLiveOccurrence(t *testing.T) {
	stale := tx("0xa", 100)
	stale.Timestamp = 0
	fresh := tx("0xa", 100)
	fresh.Timestamp = 1700000000 // live copy carries the resolved timestamp

	merged := Merge([]domain.Transaction{stale}, []domain.Transaction{fresh})
	if len(merged) != 1 {
		t.Fatalf("got %d entries, want 1", len(merged))
	}
	if merged[0].Timestamp != 1700000000 {
		t.Error("live occurrence must win over the historical duplicate")
	}
}

func TestMergeOrdersByFullTuple(t *testing.T) {
	a := domain.Transaction{TxHash: "0xa", BlockNumber: 100, TxIndex: 1, LogIndex: 5}
	b := domain.Transaction{TxHash: "0xb", BlockNumber: 100, TxIndex: 1, LogIndex: 9}
	c := domain.Transaction{TxHash: "0xc", BlockNumber: 100, TxIndex: 3, LogIndex: 0}

	merged := Merge([]domain.Transaction{a}, []domain.Transaction{b, c})
	want := []string{"0xc", "0xb", "0xa"}
	if !reflect.DeepEqual(hashes(merged), want) {
		t.Errorf("merged = %v, want %v", hashes(merged), want)
	}
}

func TestMergeDistinguishesLogIndexes(t *testing.T) {
	// Same tx hash, different log indexes: two separate transfer events.
	first := domain.Transaction{TxHash: "0xa", BlockNumber: 100, LogIndex: 0}
	second := domain.Transaction{TxHash: "0xa", BlockNumber: 100, LogIndex: 1}

	merged := Merge([]domain.Transaction{first}, []domain.Transaction{second})
	if len(merged) != 2 {
		t.Errorf("got %d entries, want 2 (distinct log indexes)", len(merged))
	}
}

func TestPage(t *testing.T) {
	txs := []domain.Transaction{tx("0xa", 5), tx("0xb", 4), tx("0xc", 3), tx("0xd", 2), tx("0xe", 1)}

	tests := []struct {
		name string
		page int
		size int
		want []string
	}{
		{"first page", 1, 2, []string{"0xa", "0xb"}},
		{"middle page", 2, 2, []string{"0xc", "0xd"}},
		{"short last page", 3, 2, []string{"0xe"}},
		{"past the end", 4, 2, nil},
		{"zero page", 0, 2, nil},
		{"zero size", 1, 0, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := hashes(Page(txs, tt.page, tt.size))
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Page(%d,%d) = %v, want %v", tt.page, tt.size, got, tt.want)
			}
		})
	}
}
