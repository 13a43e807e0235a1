package corpus

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	apperrors "github.com/Adithya-Monish-Kumar-K/fusion-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/fusion-search/pkg/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
    path             TEXT PRIMARY KEY,
    position         INTEGER NOT NULL,
    name             TEXT NOT NULL,
    content          TEXT NOT NULL,
    original_content TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_documents_position ON documents(position);
`

// Store persists the corpus snapshot in SQLite and serves it back in build
// order.
type Store struct {
	client *sqlite.Client
}

var _ Provider = (*Store)(nil)

func NewStore(ctx context.Context, client *sqlite.Client) (*Store, error) {
	if _, err := client.DB.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("creating documents schema: %w", err)
	}
	return &Store{client: client}, nil
}

// Replace swaps the stored corpus for docs in one transaction. Documents are
// replaced wholesale, never merged.
func (s *Store) Replace(ctx context.Context, docs []Document) error {
	return s.client.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM documents`); err != nil {
			return fmt.Errorf("clearing documents: %w", err)
		}
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO documents (path, position, name, content, original_content) VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("preparing insert: %w", err)
		}
		defer stmt.Close()
		for i, d := range docs {
			if _, err := stmt.ExecContext(ctx, d.Path, i, d.Name, d.Content, d.OriginalContent); err != nil {
				return fmt.Errorf("inserting document %s: %w", d.Path, err)
			}
		}
		return nil
	})
}

// Documents returns the corpus in build order.
func (s *Store) Documents(ctx context.Context) ([]Document, error) {
	rows, err := s.client.DB.QueryContext(ctx,
		`SELECT path, name, content, original_content FROM documents ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.Path, &d.Name, &d.Content, &d.OriginalContent); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func (s *Store) Get(ctx context.Context, path string) (Document, error) {
	var d Document
	err := s.client.DB.QueryRowContext(ctx,
		`SELECT path, name, content, original_content FROM documents WHERE path = ?`, path,
	).Scan(&d.Path, &d.Name, &d.Content, &d.OriginalContent)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, fmt.Errorf("document %s: %w", path, apperrors.ErrNotFound)
	}
	if err != nil {
		return Document{}, fmt.Errorf("loading document %s: %w", path, err)
	}
	return d, nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.client.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting documents: %w", err)
	}
	return n, nil
}
