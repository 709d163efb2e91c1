package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/robowatch/crawler/internal/crawl"
)

// ItemStore persists collected items behind the content_hash unique
// index. The plain INSERT plus SQLSTATE 23505 detection is what makes
// the dedup reservation atomic under concurrent crawls.
type ItemStore struct {
	db querier
}

// NewItemStore constructs an ItemStore over a pool (or mock).
func NewItemStore(db querier) *ItemStore {
	return &ItemStore{db: db}
}

const insertItemSQL = `
INSERT INTO collected_items (
	id, job_id, url, type, title, content, author, publish_date, price,
	specs, content_hash, collected_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`

// InsertItem inserts the item, assigning a UUIDv7 row ID when the item
// carries none. A unique violation on content_hash is returned as a
// crawl.DuplicateError carrying the existing row's ID.
func (s *ItemStore) InsertItem(ctx context.Context, item crawl.Item) (string, error) {
	if item.ID == "" {
		rowID, err := uuid.NewV7()
		if err != nil {
			return "", fmt.Errorf("generate item id: %w", err)
		}
		item.ID = rowID.String()
	}
	specsJSON, err := json.Marshal(item.Specs)
	if err != nil {
		return "", fmt.Errorf("marshal specs: %w", err)
	}
	_, err = s.db.Exec(ctx, insertItemSQL,
		item.ID,
		nullable(item.JobID),
		item.URL,
		string(item.Type),
		item.Title,
		item.Content,
		item.Author,
		item.PublishDate,
		item.Price,
		specsJSON,
		item.ContentHash,
		item.CollectedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			existingID, findErr := s.FindIDByHash(ctx, item.ContentHash)
			if findErr != nil {
				return "", fmt.Errorf("resolve duplicate: %w", findErr)
			}
			return "", &crawl.DuplicateError{ExistingID: existingID}
		}
		return "", fmt.Errorf("insert item: %w", err)
	}
	return item.ID, nil
}

// FindIDByHash returns the item ID holding the hash, or empty when none.
func (s *ItemStore) FindIDByHash(ctx context.Context, contentHash string) (string, error) {
	var id string
	err := s.db.QueryRow(ctx,
		`SELECT id FROM collected_items WHERE content_hash = $1`,
		contentHash,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("select by hash: %w", err)
	}
	return id, nil
}

// nullable maps an empty string to SQL NULL for UUID columns.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
