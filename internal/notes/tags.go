package notes

import "github.com/notescan/notescan/internal/core/domain"

// MergeTags builds the tag list for an updated note: the previous note's tags
// minus every tag kind being replaced, plus the new tags. Successive edits of
// the same kind therefore never accumulate duplicates. The identity tag for
// uri always comes first and exactly once.
func MergeTags(prev, next [][]string, uri string) [][]string {
	replaced := make(map[string]struct{}, len(next))
	for _, tag := range next {
		if len(tag) > 0 {
			replaced[tag[0]] = struct{}{}
		}
	}

	merged := [][]string{{domain.IdentityTag, uri}}
	for _, tag := range prev {
		if len(tag) == 0 || tag[0] == domain.IdentityTag {
			continue
		}
		if _, ok := replaced[tag[0]]; ok {
			continue
		}
		merged = append(merged, tag)
	}
	for _, tag := range next {
		if len(tag) == 0 || tag[0] == domain.IdentityTag {
			continue
		}
		merged = append(merged, tag)
	}
	return merged
}
