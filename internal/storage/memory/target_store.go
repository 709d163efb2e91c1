// Package memory provides in-memory store implementations for
// development and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/robowatch/crawler/internal/crawl"
)

// TargetStore keeps crawl targets in a map.
type TargetStore struct {
	mu      sync.RWMutex
	targets map[string]crawl.Target
}

// NewTargetStore constructs a TargetStore.
func NewTargetStore() *TargetStore {
	return &TargetStore{targets: make(map[string]crawl.Target)}
}

// CreateTarget stores a new target.
func (s *TargetStore) CreateTarget(_ context.Context, target crawl.Target) (crawl.Target, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.targets[target.ID] = target
	return target, nil
}

// GetTarget fetches a target by ID.
func (s *TargetStore) GetTarget(_ context.Context, targetID string) (crawl.Target, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	target, ok := s.targets[targetID]
	if !ok {
		return crawl.Target{}, crawl.ErrTargetNotFound
	}
	return target, nil
}

// ListTargets returns all targets ordered by creation time, newest first.
func (s *TargetStore) ListTargets(_ context.Context) ([]crawl.Target, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]crawl.Target, 0, len(s.targets))
	for _, target := range s.targets {
		out = append(out, target)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// ListDue returns enabled targets whose cron schedule elapsed at now.
func (s *TargetStore) ListDue(_ context.Context, now time.Time) ([]crawl.Target, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var due []crawl.Target
	for _, target := range s.targets {
		if crawl.Due(target, now) {
			due = append(due, target)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ID < due[j].ID })
	return due, nil
}

// UpdateTarget replaces a stored target.
func (s *TargetStore) UpdateTarget(_ context.Context, target crawl.Target) (crawl.Target, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.targets[target.ID]; !ok {
		return crawl.Target{}, crawl.ErrTargetNotFound
	}
	s.targets[target.ID] = target
	return target, nil
}

// SetEnabled flips the enabled flag.
func (s *TargetStore) SetEnabled(_ context.Context, targetID string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	target, ok := s.targets[targetID]
	if !ok {
		return crawl.ErrTargetNotFound
	}
	target.Enabled = enabled
	target.UpdatedAt = time.Now().UTC()
	s.targets[targetID] = target
	return nil
}

// TouchLastCrawled stamps the last admission time.
func (s *TargetStore) TouchLastCrawled(_ context.Context, targetID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	target, ok := s.targets[targetID]
	if !ok {
		return crawl.ErrTargetNotFound
	}
	target.LastCrawled = &at
	s.targets[targetID] = target
	return nil
}

// DeleteTarget removes a target. Jobs referencing it are untouched.
func (s *TargetStore) DeleteTarget(_ context.Context, targetID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.targets[targetID]; !ok {
		return crawl.ErrTargetNotFound
	}
	delete(s.targets, targetID)
	return nil
}
