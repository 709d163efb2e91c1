package dedup

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/robowatch/crawler/internal/crawl"
	contenthash "github.com/robowatch/crawler/internal/hash/content"
	"github.com/robowatch/crawler/internal/storage/memory"
)

func newDedup() (*Deduplicator, *memory.ItemStore) {
	items := memory.NewItemStore()
	return New(items, contenthash.New(), zap.NewNop()), items
}

func item(url, title, content string) crawl.Item {
	h := contenthash.New()
	return crawl.Item{
		URL:         url,
		Title:       title,
		Content:     content,
		ContentHash: h.Digest(title, content),
	}
}

func TestCheckAndReserveNewContent(t *testing.T) {
	d, _ := newDedup()

	outcome, err := d.CheckAndReserve(context.Background(), item("https://a.example.com/x", "Atlas", "body"))
	require.NoError(t, err)
	require.False(t, outcome.Duplicate)
	require.NotEmpty(t, outcome.ID)
	require.Empty(t, outcome.ExistingID)
}

func TestCheckAndReserveDuplicate(t *testing.T) {
	d, _ := newDedup()
	ctx := context.Background()

	first, err := d.CheckAndReserve(ctx, item("https://a.example.com/x", "Atlas", "body"))
	require.NoError(t, err)

	// Same normalized content from a different URL is still a duplicate.
	second, err := d.CheckAndReserve(ctx, item("https://mirror.example.com/x", "Atlas", "  body "))
	require.NoError(t, err)
	require.True(t, second.Duplicate)
	require.Equal(t, first.ID, second.ExistingID)
	require.Empty(t, second.ID)
}

func TestCheckAndReserveConcurrentSameHash(t *testing.T) {
	d, _ := newDedup()
	ctx := context.Background()

	const workers = 16
	outcomes := make([]Outcome, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i], errs[i] = d.CheckAndReserve(ctx, item("https://a.example.com/x", "Atlas", "body"))
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	// Exactly one caller wins the insert; the rest see its ID.
	winners := 0
	var winnerID string
	for _, o := range outcomes {
		if !o.Duplicate {
			winners++
			winnerID = o.ID
		}
	}
	require.Equal(t, 1, winners)
	for _, o := range outcomes {
		if o.Duplicate {
			require.Equal(t, winnerID, o.ExistingID)
		}
	}
}

type flakyStore struct{}

func (flakyStore) InsertItem(context.Context, crawl.Item) (string, error) {
	return "", errors.New("connection refused")
}

func (flakyStore) FindIDByHash(context.Context, string) (string, error) {
	return "", errors.New("connection refused")
}

func TestCheckAndReserveStoreFailureEscalates(t *testing.T) {
	d := New(flakyStore{}, contenthash.New(), zap.NewNop())

	_, err := d.CheckAndReserve(context.Background(), item("https://a.example.com/x", "Atlas", "body"))
	require.Error(t, err)

	var dup *crawl.DuplicateError
	require.False(t, errors.As(err, &dup))
}

func TestCheckContent(t *testing.T) {
	d, _ := newDedup()
	ctx := context.Background()

	hash, isDup, err := d.CheckContent(ctx, "Atlas", "body")
	require.NoError(t, err)
	require.False(t, isDup)
	require.Len(t, hash, 64)

	_, err = d.CheckAndReserve(ctx, item("https://a.example.com/x", "Atlas", "body"))
	require.NoError(t, err)

	again, isDup, err := d.CheckContent(ctx, " Atlas ", "body")
	require.NoError(t, err)
	require.True(t, isDup)
	require.Equal(t, hash, again)
}
