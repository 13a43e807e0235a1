package autocomplete

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/fusion-search/pkg/postgres"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS autocomplete_items (
    id          BIGSERIAL PRIMARY KEY,
    phrase      TEXT UNIQUE NOT NULL,
    salience    DOUBLE PRECISION NOT NULL DEFAULT 0,
    click_count BIGINT NOT NULL DEFAULT 0,
    is_doc_name BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE INDEX IF NOT EXISTS idx_autocomplete_items_phrase_prefix
    ON autocomplete_items (phrase text_pattern_ops);
`

type PostgresStore struct {
	client *postgres.Client
}

func NewPostgresStore(ctx context.Context, client *postgres.Client) (*PostgresStore, error) {
	if _, err := client.DB.ExecContext(ctx, postgresSchema); err != nil {
		return nil, fmt.Errorf("creating autocomplete schema: %w", err)
	}
	return &PostgresStore{client: client}, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, cands []Candidate) error {
	return s.client.InTx(ctx, func(tx *sql.Tx) error {
		return s.upsert(ctx, tx, cands)
	})
}

// Replace deletes rather than truncates so readers keep seeing the old rows
// until commit.
func (s *PostgresStore) Replace(ctx context.Context, cands []Candidate) error {
	return s.client.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM autocomplete_items`); err != nil {
			return fmt.Errorf("clearing autocomplete items: %w", err)
		}
		return s.upsert(ctx, tx, cands)
	})
}

func (s *PostgresStore) upsert(ctx context.Context, tx *sql.Tx, cands []Candidate) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO autocomplete_items (phrase, salience, is_doc_name)
		VALUES ($1, $2, $3)
		ON CONFLICT (phrase) DO UPDATE SET
			salience = GREATEST(autocomplete_items.salience, EXCLUDED.salience),
			is_doc_name = autocomplete_items.is_doc_name OR EXCLUDED.is_doc_name`)
	if err != nil {
		return fmt.Errorf("preparing upsert: %w", err)
	}
	defer stmt.Close()
	for _, c := range cands {
		if _, err := stmt.ExecContext(ctx, c.Phrase, c.Salience, c.IsDocName); err != nil {
			return fmt.Errorf("upserting %q: %w", c.Phrase, err)
		}
	}
	return nil
}

func (s *PostgresStore) Prefix(ctx context.Context, prefix string) ([]Item, int64, error) {
	var maxClicks int64
	if err := s.client.DB.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(click_count), 0) FROM autocomplete_items`,
	).Scan(&maxClicks); err != nil {
		return nil, 0, fmt.Errorf("reading max click count: %w", err)
	}

	rows, err := s.client.DB.QueryContext(ctx, `
		SELECT phrase, salience, click_count, is_doc_name
		FROM autocomplete_items
		WHERE phrase LIKE $1`, likePrefix(prefix))
	if err != nil {
		return nil, 0, fmt.Errorf("querying autocomplete items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.Phrase, &it.Salience, &it.Clicks, &it.IsDocName); err != nil {
			return nil, 0, fmt.Errorf("scanning autocomplete item: %w", err)
		}
		items = append(items, it)
	}
	return items, maxClicks, rows.Err()
}

func (s *PostgresStore) IncrementClick(ctx context.Context, phrase string) (bool, error) {
	res, err := s.client.DB.ExecContext(ctx,
		`UPDATE autocomplete_items SET click_count = click_count + 1 WHERE phrase = $1`, phrase)
	if err != nil {
		return false, fmt.Errorf("incrementing click count: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reading affected rows: %w", err)
	}
	return n > 0, nil
}

func (s *PostgresStore) Reset(ctx context.Context) error {
	if _, err := s.client.DB.ExecContext(ctx, `TRUNCATE autocomplete_items`); err != nil {
		return fmt.Errorf("clearing autocomplete items: %w", err)
	}
	return nil
}
