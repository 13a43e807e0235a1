package autocomplete

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/fusion-search/pkg/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS autocomplete_items (
    id          INTEGER PRIMARY KEY,
    phrase      TEXT UNIQUE NOT NULL,
    salience    REAL NOT NULL DEFAULT 0,
    click_count INTEGER NOT NULL DEFAULT 0,
    is_doc_name INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_autocomplete_items_phrase ON autocomplete_items(phrase);
`

type SQLiteStore struct {
	client *sqlite.Client
}

func NewSQLiteStore(ctx context.Context, client *sqlite.Client) (*SQLiteStore, error) {
	if _, err := client.DB.ExecContext(ctx, sqliteSchema); err != nil {
		return nil, fmt.Errorf("creating autocomplete schema: %w", err)
	}
	return &SQLiteStore{client: client}, nil
}

func (s *SQLiteStore) Upsert(ctx context.Context, cands []Candidate) error {
	return s.client.InTx(ctx, func(tx *sql.Tx) error {
		return s.upsert(ctx, tx, cands)
	})
}

func (s *SQLiteStore) Replace(ctx context.Context, cands []Candidate) error {
	return s.client.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM autocomplete_items`); err != nil {
			return fmt.Errorf("clearing autocomplete items: %w", err)
		}
		return s.upsert(ctx, tx, cands)
	})
}

func (s *SQLiteStore) upsert(ctx context.Context, tx *sql.Tx, cands []Candidate) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO autocomplete_items (phrase, salience, is_doc_name)
		VALUES (?, ?, ?)
		ON CONFLICT(phrase) DO UPDATE SET
			salience = MAX(salience, excluded.salience),
			is_doc_name = MAX(is_doc_name, excluded.is_doc_name)`)
	if err != nil {
		return fmt.Errorf("preparing upsert: %w", err)
	}
	defer stmt.Close()
	for _, c := range cands {
		if _, err := stmt.ExecContext(ctx, c.Phrase, c.Salience, boolToInt(c.IsDocName)); err != nil {
			return fmt.Errorf("upserting %q: %w", c.Phrase, err)
		}
	}
	return nil
}

func (s *SQLiteStore) Prefix(ctx context.Context, prefix string) ([]Item, int64, error) {
	var maxClicks int64
	if err := s.client.DB.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(click_count), 0) FROM autocomplete_items`,
	).Scan(&maxClicks); err != nil {
		return nil, 0, fmt.Errorf("reading max click count: %w", err)
	}

	rows, err := s.client.DB.QueryContext(ctx, `
		SELECT phrase, salience, click_count, is_doc_name
		FROM autocomplete_items
		WHERE phrase LIKE ? ESCAPE '\'`, likePrefix(prefix))
	if err != nil {
		return nil, 0, fmt.Errorf("querying autocomplete items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		var docName int
		if err := rows.Scan(&it.Phrase, &it.Salience, &it.Clicks, &docName); err != nil {
			return nil, 0, fmt.Errorf("scanning autocomplete item: %w", err)
		}
		it.IsDocName = docName != 0
		items = append(items, it)
	}
	return items, maxClicks, rows.Err()
}

func (s *SQLiteStore) IncrementClick(ctx context.Context, phrase string) (bool, error) {
	res, err := s.client.DB.ExecContext(ctx,
		`UPDATE autocomplete_items SET click_count = click_count + 1 WHERE phrase = ?`, phrase)
	if err != nil {
		return false, fmt.Errorf("incrementing click count: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reading affected rows: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) Reset(ctx context.Context) error {
	if _, err := s.client.DB.ExecContext(ctx, `DELETE FROM autocomplete_items`); err != nil {
		return fmt.Errorf("clearing autocomplete items: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
