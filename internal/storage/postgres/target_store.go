package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/robowatch/crawler/internal/crawl"
)

// TargetStore persists crawl targets.
type TargetStore struct {
	db querier
}

// NewTargetStore constructs a TargetStore over a pool (or mock).
func NewTargetStore(db querier) *TargetStore {
	return &TargetStore{db: db}
}

const targetColumns = `
id, domain, urls, patterns, cron_expression, rate_limit, enabled,
last_crawled, created_at, updated_at`

// CreateTarget inserts a target row.
func (s *TargetStore) CreateTarget(ctx context.Context, target crawl.Target) (crawl.Target, error) {
	urlsJSON, patternsJSON, rateJSON, err := marshalTarget(target)
	if err != nil {
		return crawl.Target{}, err
	}
	_, err = s.db.Exec(ctx, `
INSERT INTO crawl_targets (
	id, domain, urls, patterns, cron_expression, rate_limit, enabled,
	created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		target.ID,
		target.Domain,
		urlsJSON,
		patternsJSON,
		target.CronExpression,
		rateJSON,
		target.Enabled,
		target.CreatedAt,
		target.UpdatedAt,
	)
	if err != nil {
		return crawl.Target{}, fmt.Errorf("insert target: %w", err)
	}
	return target, nil
}

// GetTarget fetches one target by ID.
func (s *TargetStore) GetTarget(ctx context.Context, targetID string) (crawl.Target, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+targetColumns+` FROM crawl_targets WHERE id = $1`, targetID)
	target, err := scanTarget(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return crawl.Target{}, crawl.ErrTargetNotFound
	}
	if err != nil {
		return crawl.Target{}, fmt.Errorf("select target: %w", err)
	}
	return target, nil
}

// ListTargets returns all targets, newest first.
func (s *TargetStore) ListTargets(ctx context.Context) ([]crawl.Target, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+targetColumns+` FROM crawl_targets ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	defer rows.Close()
	var targets []crawl.Target
	for rows.Next() {
		target, scanErr := scanTarget(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan target: %w", scanErr)
		}
		targets = append(targets, target)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate targets: %w", err)
	}
	return targets, nil
}

// ListDue returns enabled targets whose schedule elapsed at now. Cron
// evaluation happens here in Go; the query only narrows to enabled rows.
func (s *TargetStore) ListDue(ctx context.Context, now time.Time) ([]crawl.Target, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+targetColumns+` FROM crawl_targets WHERE enabled ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list enabled targets: %w", err)
	}
	defer rows.Close()
	var due []crawl.Target
	for rows.Next() {
		target, scanErr := scanTarget(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan target: %w", scanErr)
		}
		if crawl.Due(target, now) {
			due = append(due, target)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate targets: %w", err)
	}
	return due, nil
}

// UpdateTarget replaces the mutable columns of a target row.
func (s *TargetStore) UpdateTarget(ctx context.Context, target crawl.Target) (crawl.Target, error) {
	urlsJSON, patternsJSON, rateJSON, err := marshalTarget(target)
	if err != nil {
		return crawl.Target{}, err
	}
	tag, err := s.db.Exec(ctx, `
UPDATE crawl_targets SET
	domain = $2, urls = $3, patterns = $4, cron_expression = $5,
	rate_limit = $6, enabled = $7, updated_at = $8
WHERE id = $1`,
		target.ID,
		target.Domain,
		urlsJSON,
		patternsJSON,
		target.CronExpression,
		rateJSON,
		target.Enabled,
		target.UpdatedAt,
	)
	if err != nil {
		return crawl.Target{}, fmt.Errorf("update target: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return crawl.Target{}, crawl.ErrTargetNotFound
	}
	return target, nil
}

// SetEnabled flips the enabled flag; effective on the next tick.
func (s *TargetStore) SetEnabled(ctx context.Context, targetID string, enabled bool) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE crawl_targets SET enabled = $2, updated_at = NOW() WHERE id = $1`,
		targetID, enabled)
	if err != nil {
		return fmt.Errorf("set enabled: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return crawl.ErrTargetNotFound
	}
	return nil
}

// TouchLastCrawled stamps the admission time.
func (s *TargetStore) TouchLastCrawled(ctx context.Context, targetID string, at time.Time) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE crawl_targets SET last_crawled = $2 WHERE id = $1`,
		targetID, at)
	if err != nil {
		return fmt.Errorf("touch last_crawled: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return crawl.ErrTargetNotFound
	}
	return nil
}

// DeleteTarget removes a target; jobs keep a NULL target_id.
func (s *TargetStore) DeleteTarget(ctx context.Context, targetID string) error {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM crawl_targets WHERE id = $1`, targetID)
	if err != nil {
		return fmt.Errorf("delete target: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return crawl.ErrTargetNotFound
	}
	return nil
}

func marshalTarget(target crawl.Target) (urls, patterns, rateLimit []byte, err error) {
	if urls, err = json.Marshal(target.URLs); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal urls: %w", err)
	}
	if patterns, err = json.Marshal(target.Patterns); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal patterns: %w", err)
	}
	if rateLimit, err = json.Marshal(target.RateLimit); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal rate limit: %w", err)
	}
	return urls, patterns, rateLimit, nil
}

func scanTarget(row pgx.Row) (crawl.Target, error) {
	var (
		target                           crawl.Target
		urlsJSON, patternsJSON, rateJSON []byte
	)
	err := row.Scan(
		&target.ID,
		&target.Domain,
		&urlsJSON,
		&patternsJSON,
		&target.CronExpression,
		&rateJSON,
		&target.Enabled,
		&target.LastCrawled,
		&target.CreatedAt,
		&target.UpdatedAt,
	)
	if err != nil {
		return crawl.Target{}, err
	}
	if err := json.Unmarshal(urlsJSON, &target.URLs); err != nil {
		return crawl.Target{}, fmt.Errorf("unmarshal urls: %w", err)
	}
	if err := json.Unmarshal(patternsJSON, &target.Patterns); err != nil {
		return crawl.Target{}, fmt.Errorf("unmarshal patterns: %w", err)
	}
	if len(rateJSON) > 0 {
		if err := json.Unmarshal(rateJSON, &target.RateLimit); err != nil {
			return crawl.Target{}, fmt.Errorf("unmarshal rate limit: %w", err)
		}
	}
	return target, nil
}
