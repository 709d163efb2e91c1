package crawl

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across stores and the scheduler.
var (
	// ErrRateLimitExceeded is returned by the limiter when a caller would
	// block past the configured ceiling.
	ErrRateLimitExceeded = errors.New("rate limit budget exhausted")

	// ErrJobRunning is returned when admission is refused because the
	// target already has a running job.
	ErrJobRunning = errors.New("target already has a running job")

	// ErrTargetNotFound is returned by target stores for unknown IDs.
	ErrTargetNotFound = errors.New("crawl target not found")

	// ErrJobNotFound is returned by job stores for unknown IDs.
	ErrJobNotFound = errors.New("crawl job not found")
)

// DuplicateError reports that an item's content hash already exists.
// It carries the ID of the previously persisted item.
type DuplicateError struct {
	ExistingID string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("duplicate content (existing item %s)", e.ExistingID)
}

// StatusError reports a non-success HTTP response.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http status %d from %s", e.Code, e.URL)
}

// ParseError reports that extraction produced no usable content.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return "parse: " + e.Reason
}

// ClassifiedError wraps a fetch/parse failure with its ErrorKind so the
// runner can decide retry eligibility without re-inspecting the cause.
type ClassifiedError struct {
	Kind ErrorKind
	URL  string
	Err  error
}

func (e *ClassifiedError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.URL, e.Err)
}

func (e *ClassifiedError) Unwrap() error {
	return e.Err
}
