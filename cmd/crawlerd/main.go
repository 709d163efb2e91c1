// Command crawlerd runs the crawl orchestrator: the cron scheduler, the
// fetch pipeline, and the admin HTTP API.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/robowatch/crawler/internal/api"
	"github.com/robowatch/crawler/internal/clock/system"
	"github.com/robowatch/crawler/internal/config"
	"github.com/robowatch/crawler/internal/crawl"
	"github.com/robowatch/crawler/internal/dedup"
	"github.com/robowatch/crawler/internal/fetch"
	contenthash "github.com/robowatch/crawler/internal/hash/content"
	uuidgen "github.com/robowatch/crawler/internal/id/uuid"
	"github.com/robowatch/crawler/internal/logging"
	"github.com/robowatch/crawler/internal/policy/ratelimit"
	"github.com/robowatch/crawler/internal/runner"
	"github.com/robowatch/crawler/internal/scheduler"
	"github.com/robowatch/crawler/internal/storage/memory"
	"github.com/robowatch/crawler/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "crawlerd: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() {
		_ = logger.Sync() // stderr sync fails on some platforms; best effort
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	targets, jobs, errs, items, cleanup, err := buildStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	clk := system.New()
	idGen := uuidgen.NewGenerator()
	hasher := contenthash.New()

	limiter := ratelimit.New(ratelimit.Config{MaxWait: cfg.RateLimitMaxWait()})
	executor := fetch.New(limiter, hasher, clk, fetch.Config{
		UserAgent:     cfg.Crawler.UserAgent,
		Timeout:       cfg.FetchTimeout(),
		RespectRobots: cfg.Crawler.RespectRobots,
	}, logger)
	deduplicator := dedup.New(items, hasher, logger)

	jobRunner := runner.New(executor, deduplicator, jobs, errs, idGen, clk, runner.Config{
		RetryCount:  cfg.Crawler.RetryCount,
		BackoffBase: time.Duration(cfg.Crawler.BackoffBaseMs) * time.Millisecond,
		BackoffMax:  time.Duration(cfg.Crawler.BackoffMaxMs) * time.Millisecond,
	}, logger)

	sched := scheduler.New(targets, jobs, jobRunner, idGen, clk, scheduler.Config{
		TickInterval:      cfg.SchedulerTick(),
		MaxConcurrentJobs: cfg.Scheduler.MaxConcurrentJobs,
	}, logger)
	sched.Start(ctx)
	defer sched.Stop()

	server := api.NewServer(targets, jobs, errs, sched, deduplicator, idGen, clk, api.Config{
		RequestTimeout: time.Duration(cfg.Server.TimeoutSeconds) * time.Second,
	}, logger)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: server.Handler(),
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.Int("port", cfg.Server.Port))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	return nil
}

// buildStores selects Postgres stores when a DSN is configured and the
// in-memory ones otherwise.
func buildStores(ctx context.Context, cfg config.Config, logger *zap.Logger) (
	crawl.TargetStore, crawl.JobStore, crawl.ErrorStore, crawl.ItemStore, func(), error,
) {
	if cfg.DB.DSN == "" {
		logger.Info("no database DSN configured, using in-memory stores")
		return memory.NewTargetStore(), memory.NewJobStore(), memory.NewErrorStore(), memory.NewItemStore(), func() {}, nil
	}

	pool, err := postgres.Connect(ctx, postgres.Config{
		DSN:             cfg.DB.DSN,
		MaxConns:        cfg.DB.MaxConns,
		MinConns:        cfg.DB.MinConns,
		MaxConnLifetime: time.Duration(cfg.DB.MaxConnLifetimeMinutes) * time.Minute,
	})
	if err != nil {
		return nil, nil, nil, nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	logger.Info("connected to postgres")
	return postgres.NewTargetStore(pool),
		postgres.NewJobStore(pool),
		postgres.NewErrorStore(pool),
		postgres.NewItemStore(pool),
		pool.Close,
		nil
}
