// Package crawl defines core types shared across the crawl pipeline.
package crawl

import (
	"strings"
	"time"
)

// JobStatus represents the lifecycle state of a crawl job.
type JobStatus string

// Job status values persisted in the job store. A job is terminal once it
// reaches completed, failed or cancelled.
const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// ErrorKind buckets a fetch/parse failure. The kind decides retry
// eligibility: network and timeout retry, parsing never retries, and
// rate_limit defers the URL to the next scheduled run.
type ErrorKind string

// Error kinds persisted in the error store.
const (
	ErrorKindNetwork   ErrorKind = "network"
	ErrorKindTimeout   ErrorKind = "timeout"
	ErrorKindRateLimit ErrorKind = "rate_limit"
	ErrorKindParsing   ErrorKind = "parsing"
)

// PatternType identifies the kind of page a selector pattern extracts.
type PatternType string

// Pattern types supported by the extraction pipeline.
const (
	PatternProductPage  PatternType = "product_page"
	PatternSpecSheet    PatternType = "spec_sheet"
	PatternArticle      PatternType = "article"
	PatternPressRelease PatternType = "press_release"
	PatternPricing      PatternType = "pricing"
)

// ContentSelectors maps extracted field names (title, content, author,
// publish_date, price, specs) to CSS selectors.
type ContentSelectors map[string]string

// Pattern pairs a page kind with the selectors used to extract it.
type Pattern struct {
	Type      PatternType      `json:"type"`
	Selectors ContentSelectors `json:"selectors"`
}

// RateLimitConfig is the per-domain crawl cadence stored on a target.
// DelayBetweenRequestsMs is recommended to be at least
// 60000/RequestsPerMinute but is not validated here; the limiter applies
// every constraint independently and is the source of truth.
type RateLimitConfig struct {
	RequestsPerMinute      int `json:"requests_per_minute"`
	RequestsPerHour        int `json:"requests_per_hour"`
	DelayBetweenRequestsMs int `json:"delay_between_requests"`
}

// Delay returns the minimum inter-request delay as a duration.
func (c RateLimitConfig) Delay() time.Duration {
	return time.Duration(c.DelayBetweenRequestsMs) * time.Millisecond
}

// Target identifies one domain to crawl: its URL list, extraction
// patterns, cron cadence and rate limit. Targets are operator-owned and
// are disabled rather than removed to preserve history.
type Target struct {
	ID             string          `json:"id"`
	Domain         string          `json:"domain"`
	URLs           []string        `json:"urls"`
	Patterns       []Pattern       `json:"patterns"`
	CronExpression string          `json:"cron_expression"`
	RateLimit      RateLimitConfig `json:"rate_limit"`
	Enabled        bool            `json:"enabled"`
	LastCrawled    *time.Time      `json:"last_crawled,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// PatternFor picks the extraction pattern for a URL. Path hints select a
// specific pattern type; otherwise the first configured pattern wins, and
// a bare article pattern is the fallback for targets with none.
func (t Target) PatternFor(rawURL string) Pattern {
	if len(t.Patterns) == 0 {
		return Pattern{Type: PatternArticle, Selectors: ContentSelectors{}}
	}
	lower := strings.ToLower(rawURL)
	hints := map[PatternType][]string{
		PatternPressRelease: {"press", "newsroom", "release"},
		PatternSpecSheet:    {"spec", "datasheet"},
		PatternPricing:      {"pricing", "price"},
		PatternProductPage:  {"product", "robot"},
	}
	for _, p := range t.Patterns {
		for _, hint := range hints[p.Type] {
			if strings.Contains(lower, hint) {
				return p
			}
		}
	}
	return t.Patterns[0]
}

// JobCounters tracks per-job outcome tallies.
type JobCounters struct {
	Success   int `json:"success_count"`
	Failure   int `json:"failure_count"`
	Duplicate int `json:"duplicate_count"`
}

// Job is one execution attempt of a target. TargetID is a weak reference;
// the job survives target deletion for audit purposes.
type Job struct {
	ID          string         `json:"id"`
	TargetID    string         `json:"target_id,omitempty"`
	Status      JobStatus      `json:"status"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Counters    JobCounters    `json:"counters"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// JobError is one failed fetch/parse within a job. Rows are append-only.
type JobError struct {
	ID         string    `json:"id"`
	JobID      string    `json:"job_id"`
	URL        string    `json:"url"`
	Kind       ErrorKind `json:"error_type"`
	Message    string    `json:"message"`
	StackTrace string    `json:"stack_trace,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Item is one successfully fetched and extracted page. It is transient
// within a job run until the dedup gate accepts or rejects it.
type Item struct {
	ID          string            `json:"id"`
	JobID       string            `json:"job_id"`
	URL         string            `json:"url"`
	Type        PatternType       `json:"type"`
	Title       string            `json:"title"`
	Content     string            `json:"content"`
	Author      string            `json:"author,omitempty"`
	PublishDate string            `json:"publish_date,omitempty"`
	Price       string            `json:"price,omitempty"`
	Specs       map[string]string `json:"specs,omitempty"`
	ContentHash string            `json:"content_hash"`
	CollectedAt time.Time         `json:"collected_at"`
}

// Result aggregates one job run. Errors holds one row per terminal
// per-URL failure, never one per retry attempt. Deferred lists URLs that
// hit the rate limit and roll over to the next scheduled run.
type Result struct {
	Counters JobCounters
	Errors   []JobError
	Deferred []string
}

// ErrorStats summarizes the error store for the admin surface.
type ErrorStats struct {
	Total  int               `json:"total"`
	ByKind map[ErrorKind]int `json:"by_type"`
	Recent int               `json:"recent_errors"`
}
