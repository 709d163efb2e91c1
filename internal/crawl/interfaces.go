package crawl

import (
	"context"
	"time"
)

// TargetStore persists crawl targets and answers the scheduler's
// due-target query against an explicit clock value.
type TargetStore interface {
	CreateTarget(ctx context.Context, target Target) (Target, error)
	GetTarget(ctx context.Context, targetID string) (Target, error)
	ListTargets(ctx context.Context) ([]Target, error)
	// ListDue returns enabled targets whose cron schedule elapsed at or
	// before now, relative to their last crawl.
	ListDue(ctx context.Context, now time.Time) ([]Target, error)
	UpdateTarget(ctx context.Context, target Target) (Target, error)
	SetEnabled(ctx context.Context, targetID string, enabled bool) error
	TouchLastCrawled(ctx context.Context, targetID string, at time.Time) error
	DeleteTarget(ctx context.Context, targetID string) error
}

// JobFilter narrows job listings.
type JobFilter struct {
	Status JobStatus
	Limit  int
	Offset int
}

// JobStore persists job rows.
type JobStore interface {
	CreateJob(ctx context.Context, job Job) error
	UpdateJob(ctx context.Context, job Job) error
	GetJob(ctx context.Context, jobID string) (Job, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]Job, int, error)
}

// ErrorFilter narrows error listings.
type ErrorFilter struct {
	JobID  string
	Kind   ErrorKind
	Limit  int
	Offset int
}

// ErrorStore persists crawl error rows. Rows are append-only.
type ErrorStore interface {
	RecordError(ctx context.Context, jobError JobError) error
	ListErrors(ctx context.Context, filter ErrorFilter) ([]JobError, int, error)
	Stats(ctx context.Context, recentSince time.Time) (ErrorStats, error)
}

// ItemStore persists collected items behind a uniqueness constraint on
// content_hash. InsertItem must be atomic with respect to that
// constraint: under concurrent inserts of the same hash exactly one
// caller wins and the rest get a DuplicateError carrying the winner's ID.
type ItemStore interface {
	InsertItem(ctx context.Context, item Item) (string, error)
	FindIDByHash(ctx context.Context, contentHash string) (string, error)
}

// Fetcher performs one rate-limited fetch plus extraction for one URL.
// Failures come back as a *ClassifiedError, never as a panic.
type Fetcher interface {
	Fetch(ctx context.Context, jobID string, target Target, rawURL string) (Item, error)
}

// Hasher computes the exact-match dedup digest over normalized content.
type Hasher interface {
	Digest(title, content string) string
}

// Clock returns the current time (injectable for tests).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces row IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
