package domain

import "sort"

// IdentityTag is the reserved tag key linking a note to the on-chain entity
// it annotates. Its value is the canonical URI.
const IdentityTag = "I"

// Note is a signed, timestamped annotation event. Notes for one URI are a
// full history; "the current annotation" is a derived view (newest first).
type Note struct {
	ID        string     `json:"id"`
	Pubkey    string     `json:"pubkey"`
	Kind      int        `json:"kind"`
	CreatedAt int64      `json:"created_at"`
	Content   string     `json:"content"`
	Tags      [][]string `json:"tags"`
}

// URIValue returns the identity-tag value, or "" when the note carries none.
func (n *Note) URIValue() string {
	for _, tag := range n.Tags {
		if len(tag) >= 2 && tag[0] == IdentityTag {
			return tag[1]
		}
	}
	return ""
}

// SortNotesNewestFirst orders notes descending by CreatedAt, ties broken by
// ID for determinism. Index 0 is "the latest note".
func SortNotesNewestFirst(notes []Note) {
	sort.SliceStable(notes, func(i, j int) bool {
		if notes[i].CreatedAt != notes[j].CreatedAt {
			return notes[i].CreatedAt > notes[j].CreatedAt
		}
		return notes[i].ID > notes[j].ID
	})
}
