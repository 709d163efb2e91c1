// Package scheduler admits due crawl targets into a bounded runner pool.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/robowatch/crawler/internal/crawl"
)

// JobRunner executes one admitted job. Satisfied by *runner.Runner.
type JobRunner interface {
	Run(ctx context.Context, job crawl.Job, target crawl.Target) crawl.Result
}

// Config controls scheduling behavior.
type Config struct {
	// TickInterval is how often cron schedules are evaluated.
	TickInterval time.Duration
	// MaxConcurrentJobs bounds the runner pool across all targets.
	MaxConcurrentJobs int
}

func (c Config) withDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = 15 * time.Second
	}
	if c.MaxConcurrentJobs <= 0 {
		c.MaxConcurrentJobs = 4
	}
	return c
}

type runningJob struct {
	jobID  string
	cancel context.CancelFunc
}

// Scheduler evaluates target cron expressions on a fixed tick and admits
// due targets, guaranteeing at most one running job per target. Manual
// triggers bypass the cron check but share the same admission path, so
// they share the guarantee and the domain rate budget.
type Scheduler struct {
	targets crawl.TargetStore
	jobs    crawl.JobStore
	runner  JobRunner
	idGen   crawl.IDGenerator
	clock   crawl.Clock
	cfg     Config
	logger  *zap.Logger

	mu      sync.Mutex
	running map[string]runningJob
	baseCtx context.Context
	sem     chan struct{}
	wg      sync.WaitGroup
	stop    context.CancelFunc
}

// New constructs a Scheduler.
func New(
	targets crawl.TargetStore,
	jobs crawl.JobStore,
	jobRunner JobRunner,
	idGen crawl.IDGenerator,
	clock crawl.Clock,
	cfg Config,
	logger *zap.Logger,
) *Scheduler {
	cfg = cfg.withDefaults()
	return &Scheduler{
		targets: targets,
		jobs:    jobs,
		runner:  jobRunner,
		idGen:   idGen,
		clock:   clock,
		cfg:     cfg,
		logger:  logger,
		running: make(map[string]runningJob),
		sem:     make(chan struct{}, cfg.MaxConcurrentJobs),
	}
}

// Start launches the evaluation loop. It returns immediately; Stop (or
// cancelling ctx) shuts the loop down and cancels in-flight jobs.
func (s *Scheduler) Start(ctx context.Context) {
	loopCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.baseCtx = loopCtx
	s.stop = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.cfg.TickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				s.Tick(loopCtx)
			}
		}
	}()
}

// Stop cancels the loop and all in-flight jobs, then waits for them to
// record their terminal state.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	stop := s.stop
	s.mu.Unlock()
	if stop != nil {
		stop()
	}
	s.wg.Wait()
}

// Tick evaluates schedules once against the injected clock. Exported so
// tests (and a manual admin path) can drive evaluation deterministically.
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.clock.Now()
	due, err := s.targets.ListDue(ctx, now)
	if err != nil {
		s.logger.Error("list due targets failed", zap.Error(err))
		return
	}
	for _, target := range due {
		if _, err := s.admit(ctx, target, false); err != nil {
			if errors.Is(err, crawl.ErrJobRunning) {
				s.logger.Debug("target still running, skipping tick",
					zap.String("target_id", target.ID))
				continue
			}
			s.logger.Warn("target admission failed",
				zap.String("target_id", target.ID), zap.Error(err))
		}
	}
}

// TriggerTarget admits one target immediately, bypassing its cron
// schedule. Returns crawl.ErrJobRunning when a job is already in flight.
func (s *Scheduler) TriggerTarget(ctx context.Context, targetID string) (string, error) {
	target, err := s.targets.GetTarget(ctx, targetID)
	if err != nil {
		return "", err
	}
	return s.admit(ctx, target, true)
}

// TriggerAll admits every enabled target, skipping ones already running.
// Returns the number of jobs actually admitted.
func (s *Scheduler) TriggerAll(ctx context.Context) (int, error) {
	targets, err := s.targets.ListTargets(ctx)
	if err != nil {
		return 0, fmt.Errorf("list targets: %w", err)
	}
	triggered := 0
	for _, target := range targets {
		if !target.Enabled {
			continue
		}
		if _, err := s.admit(ctx, target, true); err != nil {
			if errors.Is(err, crawl.ErrJobRunning) {
				continue
			}
			s.logger.Warn("manual admission failed",
				zap.String("target_id", target.ID), zap.Error(err))
			continue
		}
		triggered++
	}
	return triggered, nil
}

// CancelJob aborts a running job by ID. In-flight fetches stop within
// the per-request timeout and the job records cancelled.
func (s *Scheduler) CancelJob(jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rj := range s.running {
		if rj.jobID == jobID {
			rj.cancel()
			return nil
		}
	}
	return crawl.ErrJobNotFound
}

// RunningJobs reports the jobs currently in flight, keyed by target ID.
func (s *Scheduler) RunningJobs() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.running))
	for targetID, rj := range s.running {
		out[targetID] = rj.jobID
	}
	return out
}

// admit validates the target, reserves its running slot, writes the
// pending job row, and hands the job to the pool. Validation failures
// surface to the caller as rejections; they never crash the tick loop.
func (s *Scheduler) admit(ctx context.Context, target crawl.Target, manual bool) (string, error) {
	if err := validateTarget(target, manual); err != nil {
		return "", err
	}

	jobID, err := s.idGen.NewID()
	if err != nil {
		return "", fmt.Errorf("generate job id: %w", err)
	}

	s.mu.Lock()
	if s.baseCtx == nil {
		s.mu.Unlock()
		return "", errors.New("scheduler not started")
	}
	if _, busy := s.running[target.ID]; busy {
		s.mu.Unlock()
		return "", crawl.ErrJobRunning
	}
	jobCtx, cancel := context.WithCancel(s.baseCtx)
	s.running[target.ID] = runningJob{jobID: jobID, cancel: cancel}
	s.mu.Unlock()

	job := crawl.Job{
		ID:       jobID,
		TargetID: target.ID,
		Status:   crawl.JobStatusPending,
	}
	if manual {
		job.Metadata = map[string]any{
			"manual":       true,
			"triggered_at": s.clock.Now().Format(time.RFC3339),
		}
	}
	if err := s.jobs.CreateJob(ctx, job); err != nil {
		s.release(target.ID, cancel)
		return "", fmt.Errorf("create job: %w", err)
	}
	if err := s.targets.TouchLastCrawled(ctx, target.ID, s.clock.Now()); err != nil {
		s.logger.Warn("stamp last_crawled failed",
			zap.String("target_id", target.ID), zap.Error(err))
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.release(target.ID, cancel)

		select {
		case s.sem <- struct{}{}:
			defer func() { <-s.sem }()
		case <-jobCtx.Done():
			// Shutdown or cancel before a pool slot opened.
			s.runner.Run(jobCtx, job, target)
			return
		}
		s.runner.Run(jobCtx, job, target)
	}()

	return jobID, nil
}

func (s *Scheduler) release(targetID string, cancel context.CancelFunc) {
	cancel()
	s.mu.Lock()
	delete(s.running, targetID)
	s.mu.Unlock()
}

// validateTarget rejects configuration errors at admission time. Cron
// validity only matters for scheduled admission; manual triggers run
// regardless of the stored expression.
func validateTarget(target crawl.Target, manual bool) error {
	if target.Domain == "" {
		return errors.New("target has no domain")
	}
	if len(target.URLs) == 0 {
		return errors.New("target has no urls")
	}
	if !manual {
		if _, err := crawl.ParseCron(target.CronExpression); err != nil {
			return err
		}
	}
	return nil
}
