package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/notescan/notescan/internal/core/domain"
)

// NoteRepo implements storage.NoteRepository using PostgreSQL.
type NoteRepo struct {
	db *DB
}

// NewNoteRepo creates a new PostgreSQL note repository.
func NewNoteRepo(db *DB) *NoteRepo {
	return &NoteRepo{db: db}
}

// Add stores a note. Idempotent: a replayed event id is a no-op.
func (r *NoteRepo) Add(ctx context.Context, uri string, n domain.Note) error {
	tags, err := json.Marshal(n.Tags)
	if err != nil {
		return fmt.Errorf("failed to encode note tags: %w", err)
	}

	query := `
		INSERT INTO notes (id, uri, pubkey, kind, created_at, content, tags, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (id) DO NOTHING
	`
	_, err = r.db.ExecContext(ctx, query,
		n.ID, uri, n.Pubkey, n.Kind, n.CreatedAt, n.Content, tags,
	)
	if err != nil {
		return fmt.Errorf("failed to save note: %w", err)
	}
	return nil
}

type noteRow struct {
	ID         string    `db:"id"`
	URI        string    `db:"uri"`
	Pubkey     string    `db:"pubkey"`
	Kind       int       `db:"kind"`
	CreatedAt  int64     `db:"created_at"`
	Content    string    `db:"content"`
	Tags       []byte    `db:"tags"`
	ReceivedAt time.Time `db:"received_at"`
}

func (n *noteRow) toDomain() (domain.Note, error) {
	note := domain.Note{
		ID:        n.ID,
		Pubkey:    n.Pubkey,
		Kind:      n.Kind,
		CreatedAt: n.CreatedAt,
		Content:   n.Content,
	}
	if len(n.Tags) > 0 {
		if err := json.Unmarshal(n.Tags, &note.Tags); err != nil {
			return domain.Note{}, fmt.Errorf("failed to decode note tags: %w", err)
		}
	}
	return note, nil
}

// GetByURIs retrieves all cached notes for the given URIs, newest first.
func (r *NoteRepo) GetByURIs(ctx context.Context, uris []string) ([]domain.Note, error) {
	if len(uris) == 0 {
		return nil, nil
	}

	query := `
		SELECT id, uri, pubkey, kind, created_at, content, tags, received_at
		FROM notes
		WHERE uri = ANY($1)
		ORDER BY created_at DESC
	`

	var rows []noteRow
	if err := r.db.SelectContext(ctx, &rows, query, pq.Array(uris)); err != nil {
		return nil, fmt.Errorf("failed to get notes: %w", err)
	}

	notes := make([]domain.Note, 0, len(rows))
	for _, row := range rows {
		note, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		notes = append(notes, note)
	}
	return notes, nil
}
