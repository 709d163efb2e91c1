package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/robowatch/crawler/internal/crawl"
)

// ErrorStore keeps crawl error rows in an append-only slice.
type ErrorStore struct {
	mu   sync.RWMutex
	rows []crawl.JobError
}

// NewErrorStore constructs an ErrorStore.
func NewErrorStore() *ErrorStore {
	return &ErrorStore{}
}

// RecordError appends an error row.
func (s *ErrorStore) RecordError(_ context.Context, jobError crawl.JobError) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, jobError)
	return nil
}

// ListErrors returns rows matching the filter, newest first, plus the
// total match count before limit/offset.
func (s *ErrorStore) ListErrors(_ context.Context, filter crawl.ErrorFilter) ([]crawl.JobError, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []crawl.JobError
	for _, row := range s.rows {
		if filter.JobID != "" && row.JobID != filter.JobID {
			continue
		}
		if filter.Kind != "" && row.Kind != filter.Kind {
			continue
		}
		matched = append(matched, row)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].OccurredAt.After(matched[j].OccurredAt)
	})
	total := len(matched)
	matched = window(matched, filter.Offset, filter.Limit)
	return matched, total, nil
}

// Stats summarizes stored errors; Recent counts rows at or after
// recentSince.
func (s *ErrorStore) Stats(_ context.Context, recentSince time.Time) (crawl.ErrorStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := crawl.ErrorStats{ByKind: make(map[crawl.ErrorKind]int)}
	for _, row := range s.rows {
		stats.Total++
		stats.ByKind[row.Kind]++
		if !row.OccurredAt.Before(recentSince) {
			stats.Recent++
		}
	}
	return stats, nil
}
