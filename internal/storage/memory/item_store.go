package memory

import (
	"context"
	"strconv"
	"sync"

	"github.com/robowatch/crawler/internal/crawl"
)

// ItemStore keeps collected items keyed by content hash. The single
// mutex makes insert-and-detect-conflict atomic, matching the unique
// index the Postgres store relies on.
type ItemStore struct {
	mu     sync.Mutex
	byHash map[string]string
	items  map[string]crawl.Item
	seq    int
}

// NewItemStore constructs an ItemStore.
func NewItemStore() *ItemStore {
	s := &ItemStore{
		byHash: make(map[string]string),
		items:  make(map[string]crawl.Item),
	}
	return s
}

// InsertItem stores the item unless its hash is already reserved, in
// which case it returns a crawl.DuplicateError with the winner's ID.
func (s *ItemStore) InsertItem(_ context.Context, item crawl.Item) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existingID, ok := s.byHash[item.ContentHash]; ok {
		return "", &crawl.DuplicateError{ExistingID: existingID}
	}
	id := item.ID
	if id == "" {
		s.seq++
		id = itemID(s.seq)
	}
	item.ID = id
	s.byHash[item.ContentHash] = id
	s.items[id] = item
	return id, nil
}

// FindIDByHash returns the stored ID for a hash, or empty when absent.
func (s *ItemStore) FindIDByHash(_ context.Context, contentHash string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byHash[contentHash], nil
}

// GetItem fetches a stored item by ID.
func (s *ItemStore) GetItem(_ context.Context, id string) (crawl.Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	return item, ok
}

func itemID(seq int) string {
	return "item-" + strconv.Itoa(seq)
}
