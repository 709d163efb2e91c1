package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/robowatch/crawler/internal/crawl"
)

func testItem(now time.Time) crawl.Item {
	return crawl.Item{
		ID:          "item-1",
		JobID:       "job-1",
		URL:         "https://robotics.example.com/products/atlas",
		Type:        crawl.PatternProductPage,
		Title:       "Atlas Gen 2",
		Content:     "An electric humanoid robot.",
		Specs:       map[string]string{"Reach": "1.5m"},
		ContentHash: "abc123",
		CollectedAt: now,
	}
}

func TestInsertItem(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewItemStore(mock)
	now := time.Unix(1700000000, 0).UTC()
	item := testItem(now)

	mock.ExpectExec("INSERT INTO collected_items").
		WithArgs(
			item.ID,
			item.JobID,
			item.URL,
			string(item.Type),
			item.Title,
			item.Content,
			item.Author,
			item.PublishDate,
			item.Price,
			[]byte(`{"Reach":"1.5m"}`),
			item.ContentHash,
			item.CollectedAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	id, err := store.InsertItem(context.Background(), item)
	require.NoError(t, err)
	require.Equal(t, item.ID, id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertItemUniqueViolationResolvesDuplicate(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewItemStore(mock)
	now := time.Unix(1700000000, 0).UTC()
	item := testItem(now)

	mock.ExpectExec("INSERT INTO collected_items").
		WithArgs(
			item.ID,
			item.JobID,
			item.URL,
			string(item.Type),
			item.Title,
			item.Content,
			item.Author,
			item.PublishDate,
			item.Price,
			[]byte(`{"Reach":"1.5m"}`),
			item.ContentHash,
			item.CollectedAt,
		).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "collected_items_content_hash_key"})

	mock.ExpectQuery("SELECT id FROM collected_items").
		WithArgs(item.ContentHash).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("existing-1"))

	_, err = store.InsertItem(context.Background(), item)
	var dup *crawl.DuplicateError
	require.True(t, errors.As(err, &dup))
	require.Equal(t, "existing-1", dup.ExistingID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindIDByHashNoRows(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewItemStore(mock)

	mock.ExpectQuery("SELECT id FROM collected_items").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	id, err := store.FindIDByHash(context.Background(), "missing")
	require.NoError(t, err)
	require.Empty(t, id)
	require.NoError(t, mock.ExpectationsWereMet())
}
