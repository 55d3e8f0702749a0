// Package notes maintains the annotation layer: a local view of notes and
// author profiles fed by relay subscriptions and the persistent cache, plus
// signed publishing back to the relays.
package notes

import (
	"sync"

	"github.com/notescan/notescan/internal/core/domain"
)

// Store is the manager-owned annotation state: full note history per URI
// (newest first) and the latest profile document per author.
type Store struct {
	mu       sync.RWMutex
	notes    map[string][]domain.Note
	profiles map[string]domain.Note
}

func NewStore() *Store {
	return &Store{
		notes:    make(map[string][]domain.Note),
		profiles: make(map[string]domain.Note),
	}
}

// AddNote upserts a note under its identity URI. Idempotent by note ID;
// returns whether the note was new. Arrival order does not matter, the
// per-URI history is kept sorted newest first.
func (s *Store) AddNote(n domain.Note) bool {
	uri := n.URIValue()
	if uri == "" || n.ID == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.notes[uri] {
		if existing.ID == n.ID {
			return false
		}
	}
	s.notes[uri] = append(s.notes[uri], n)
	domain.SortNotesNewestFirst(s.notes[uri])
	return true
}

// Latest returns the newest note for a URI.
func (s *Store) Latest(uri string) (domain.Note, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	history := s.notes[uri]
	if len(history) == 0 {
		return domain.Note{}, false
	}
	return history[0], true
}

// History returns all notes for a URI, newest first.
func (s *Store) History(uri string) []domain.Note {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Note, len(s.notes[uri]))
	copy(out, s.notes[uri])
	return out
}

// SetProfile stores an author profile document, keeping only the newest.
func (s *Store) SetProfile(n domain.Note) {
	if n.Pubkey == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.profiles[n.Pubkey]; ok && existing.CreatedAt >= n.CreatedAt {
		return
	}
	s.profiles[n.Pubkey] = n
}

// Profile returns the latest profile document for a pubkey.
func (s *Store) Profile(pubkey string) (domain.Note, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.profiles[pubkey]
	return n, ok
}
