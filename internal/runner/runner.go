// Package runner executes one crawl job against one target.
package runner

import (
	"context"
	"crypto/rand"
	"math/big"
	"time"

	"go.uber.org/zap"

	"github.com/robowatch/crawler/internal/crawl"
	"github.com/robowatch/crawler/internal/dedup"
	"github.com/robowatch/crawler/internal/telemetry"
)

// Config controls per-job retry behavior. RetryCount caps the total
// fetch attempts per URL.
type Config struct {
	RetryCount  int
	BackoffBase time.Duration
	BackoffMax  time.Duration
}

func (c Config) withDefaults() Config {
	if c.RetryCount <= 0 {
		c.RetryCount = 3
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 250 * time.Millisecond
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = 5 * time.Second
	}
	return c
}

// Runner drives the job state machine: pending -> running ->
// {completed, failed, cancelled}. Per-URL failures never escape a run;
// the only escalations are job-store write failures, which abort the
// process of recording, not sibling jobs.
type Runner struct {
	fetcher crawl.Fetcher
	dedup   *dedup.Deduplicator
	jobs    crawl.JobStore
	errs    crawl.ErrorStore
	idGen   crawl.IDGenerator
	clock   crawl.Clock
	cfg     Config
	logger  *zap.Logger
}

// New constructs a Runner.
func New(
	fetcher crawl.Fetcher,
	deduplicator *dedup.Deduplicator,
	jobs crawl.JobStore,
	errs crawl.ErrorStore,
	idGen crawl.IDGenerator,
	clock crawl.Clock,
	cfg Config,
	logger *zap.Logger,
) *Runner {
	return &Runner{
		fetcher: fetcher,
		dedup:   deduplicator,
		jobs:    jobs,
		errs:    errs,
		idGen:   idGen,
		clock:   clock,
		cfg:     cfg.withDefaults(),
		logger:  logger,
	}
}

// Run executes the job and returns its result. URLs are attempted in
// target order; the final job row reflects only URLs actually attempted.
func (r *Runner) Run(ctx context.Context, job crawl.Job, target crawl.Target) crawl.Result {
	started := r.clock.Now()
	job.Status = crawl.JobStatusRunning
	job.StartedAt = &started
	if err := r.jobs.UpdateJob(ctx, job); err != nil {
		r.logger.Error("mark job running failed",
			zap.String("job_id", job.ID), zap.Error(err))
	}

	var (
		result        crawl.Result
		persistBroken bool
	)
	for _, rawURL := range target.URLs {
		if ctx.Err() != nil {
			break
		}
		persistBroken = r.handleURL(ctx, &job, target, rawURL, &result)
		if persistBroken {
			break
		}
	}

	job.Counters = result.Counters
	job.Status = r.finalStatus(ctx, target, result, persistBroken)
	finished := r.clock.Now()
	job.CompletedAt = &finished
	if len(result.Deferred) > 0 {
		if job.Metadata == nil {
			job.Metadata = map[string]any{}
		}
		job.Metadata["deferred_urls"] = result.Deferred
	}
	if err := r.jobs.UpdateJob(context.WithoutCancel(ctx), job); err != nil {
		r.logger.Error("final job update failed",
			zap.String("job_id", job.ID), zap.Error(err))
	}
	telemetry.CountJob(string(job.Status))
	r.logger.Info("job finished",
		zap.String("job_id", job.ID),
		zap.String("target_id", job.TargetID),
		zap.String("status", string(job.Status)),
		zap.Int("success", result.Counters.Success),
		zap.Int("duplicate", result.Counters.Duplicate),
		zap.Int("failure", result.Counters.Failure),
	)
	return result
}

// handleURL runs the retry loop for one URL and folds the terminal
// outcome into the result. The boolean reports whether the item store
// became unreachable, which aborts the whole job.
func (r *Runner) handleURL(
	ctx context.Context,
	job *crawl.Job,
	target crawl.Target,
	rawURL string,
	result *crawl.Result,
) bool {
	var lastErr *crawl.ClassifiedError
	for attempt := 1; attempt <= r.cfg.RetryCount; attempt++ {
		item, err := r.fetcher.Fetch(ctx, job.ID, target, rawURL)
		if err == nil {
			outcome, dedupErr := r.dedup.CheckAndReserve(ctx, item)
			if dedupErr != nil {
				// Persistence is unreachable; stop fetching rather than
				// accumulate unpersisted state.
				r.logger.Error("item store unavailable, aborting job",
					zap.String("job_id", job.ID), zap.Error(dedupErr))
				return true
			}
			if outcome.Duplicate {
				result.Counters.Duplicate++
				telemetry.CountDuplicate(target.Domain)
				telemetry.CountFetch(target.Domain, "duplicate")
			} else {
				result.Counters.Success++
				telemetry.CountFetch(target.Domain, "success")
			}
			return false
		}

		if ctx.Err() != nil {
			return false
		}
		lastErr = crawl.ClassifyError(rawURL, err)
		if !retryable(lastErr.Kind) || attempt == r.cfg.RetryCount {
			break
		}
		if !r.sleepBackoff(ctx, attempt) {
			return false
		}
	}

	// Terminal failure: exactly one error row per URL, never one per
	// retry attempt.
	result.Counters.Failure++
	telemetry.CountFetch(target.Domain, string(lastErr.Kind))
	if lastErr.Kind == crawl.ErrorKindRateLimit {
		result.Deferred = append(result.Deferred, rawURL)
	}
	row := r.newErrorRow(job.ID, rawURL, lastErr)
	result.Errors = append(result.Errors, row)
	if err := r.errs.RecordError(ctx, row); err != nil {
		r.logger.Error("record crawl error failed",
			zap.String("job_id", job.ID), zap.String("url", rawURL), zap.Error(err))
	}
	return false
}

func (r *Runner) newErrorRow(jobID, rawURL string, cerr *crawl.ClassifiedError) crawl.JobError {
	id, err := r.idGen.NewID()
	if err != nil {
		r.logger.Warn("error row id generation failed", zap.Error(err))
	}
	return crawl.JobError{
		ID:         id,
		JobID:      jobID,
		URL:        rawURL,
		Kind:       cerr.Kind,
		Message:    cerr.Err.Error(),
		OccurredAt: r.clock.Now(),
	}
}

// finalStatus derives the terminal state. Partial success is still
// completed; failed is reserved for runs where the domain yielded no
// useful work at all (every URL dead on network/timeout), and cancelled
// reflects an operator abort or shutdown.
func (r *Runner) finalStatus(
	ctx context.Context,
	target crawl.Target,
	result crawl.Result,
	persistBroken bool,
) crawl.JobStatus {
	switch {
	case ctx.Err() != nil:
		return crawl.JobStatusCancelled
	case persistBroken:
		return crawl.JobStatusFailed
	case domainUnreachable(target, result):
		return crawl.JobStatusFailed
	default:
		return crawl.JobStatusCompleted
	}
}

func domainUnreachable(target crawl.Target, result crawl.Result) bool {
	if len(target.URLs) == 0 || result.Counters.Failure != len(target.URLs) {
		return false
	}
	for _, row := range result.Errors {
		if row.Kind != crawl.ErrorKindNetwork && row.Kind != crawl.ErrorKindTimeout {
			return false
		}
	}
	return true
}

// retryable reports whether the kind is worth another in-job attempt.
// Parsing errors never retry (the selector will not fix itself) and
// rate_limit defers to the next scheduled run instead of compounding
// the violation.
func retryable(kind crawl.ErrorKind) bool {
	return kind == crawl.ErrorKindNetwork || kind == crawl.ErrorKindTimeout
}

// sleepBackoff waits out the jittered exponential backoff for the given
// attempt. Returns false when the context ended first.
func (r *Runner) sleepBackoff(ctx context.Context, attempt int) bool {
	delay := r.cfg.BackoffBase << (attempt - 1)
	if delay > r.cfg.BackoffMax {
		delay = r.cfg.BackoffMax
	}
	delay = delay/2 + randomJitter(delay/2)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
