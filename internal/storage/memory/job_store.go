package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/robowatch/crawler/internal/crawl"
)

// JobStore keeps job rows in a map.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]crawl.Job
}

// NewJobStore constructs a JobStore.
func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]crawl.Job)}
}

// CreateJob stores a new job.
func (s *JobStore) CreateJob(_ context.Context, job crawl.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return crawl.ErrJobRunning
	}
	s.jobs[job.ID] = job
	return nil
}

// UpdateJob replaces a stored job.
func (s *JobStore) UpdateJob(_ context.Context, job crawl.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; !ok {
		return crawl.ErrJobNotFound
	}
	s.jobs[job.ID] = job
	return nil
}

// GetJob fetches a job by ID.
func (s *JobStore) GetJob(_ context.Context, jobID string) (crawl.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return crawl.Job{}, crawl.ErrJobNotFound
	}
	return job, nil
}

// ListJobs returns jobs matching the filter, newest first, plus the
// total match count before limit/offset.
func (s *JobStore) ListJobs(_ context.Context, filter crawl.JobFilter) ([]crawl.Job, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []crawl.Job
	for _, job := range s.jobs {
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		matched = append(matched, job)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })
	total := len(matched)
	matched = window(matched, filter.Offset, filter.Limit)
	return matched, total, nil
}

func window[T any](rows []T, offset, limit int) []T {
	if offset >= len(rows) {
		return nil
	}
	rows = rows[offset:]
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows
}
