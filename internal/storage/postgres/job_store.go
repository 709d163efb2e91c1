package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/robowatch/crawler/internal/crawl"
)

// JobStore persists crawl job rows.
type JobStore struct {
	db querier
}

// NewJobStore constructs a JobStore over a pool (or mock).
func NewJobStore(db querier) *JobStore {
	return &JobStore{db: db}
}

const jobColumns = `
id, target_id, status, started_at, completed_at, success_count,
failure_count, duplicate_count, metadata`

// CreateJob inserts a pending job row.
func (s *JobStore) CreateJob(ctx context.Context, job crawl.Job) error {
	metaJSON, err := marshalMetadata(job.Metadata)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
INSERT INTO crawl_jobs (
	id, target_id, status, started_at, completed_at, success_count,
	failure_count, duplicate_count, metadata
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		job.ID,
		nullable(job.TargetID),
		string(job.Status),
		job.StartedAt,
		job.CompletedAt,
		job.Counters.Success,
		job.Counters.Failure,
		job.Counters.Duplicate,
		metaJSON,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// UpdateJob replaces the mutable columns of a job row.
func (s *JobStore) UpdateJob(ctx context.Context, job crawl.Job) error {
	metaJSON, err := marshalMetadata(job.Metadata)
	if err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx, `
UPDATE crawl_jobs SET
	status = $2, started_at = $3, completed_at = $4, success_count = $5,
	failure_count = $6, duplicate_count = $7, metadata = $8
WHERE id = $1`,
		job.ID,
		string(job.Status),
		job.StartedAt,
		job.CompletedAt,
		job.Counters.Success,
		job.Counters.Failure,
		job.Counters.Duplicate,
		metaJSON,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return crawl.ErrJobNotFound
	}
	return nil
}

// GetJob fetches one job by ID.
func (s *JobStore) GetJob(ctx context.Context, jobID string) (crawl.Job, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM crawl_jobs WHERE id = $1`, jobID)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return crawl.Job{}, crawl.ErrJobNotFound
	}
	if err != nil {
		return crawl.Job{}, fmt.Errorf("select job: %w", err)
	}
	return job, nil
}

// ListJobs returns jobs matching the filter, newest first, plus the
// total match count before limit/offset.
func (s *JobStore) ListJobs(ctx context.Context, filter crawl.JobFilter) ([]crawl.Job, int, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	where := ""
	countArgs := []any{}
	listArgs := []any{limit, filter.Offset}
	if filter.Status != "" {
		where = " WHERE status = $3"
		countArgs = append(countArgs, string(filter.Status))
		listArgs = append(listArgs, string(filter.Status))
	}

	var total int
	countWhere := ""
	if filter.Status != "" {
		countWhere = " WHERE status = $1"
	}
	if err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM crawl_jobs`+countWhere, countArgs...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count jobs: %w", err)
	}

	rows, err := s.db.Query(ctx,
		`SELECT `+jobColumns+` FROM crawl_jobs`+where+
			` ORDER BY id DESC LIMIT $1 OFFSET $2`, listArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []crawl.Job
	for rows.Next() {
		job, scanErr := scanJob(rows)
		if scanErr != nil {
			return nil, 0, fmt.Errorf("scan job: %w", scanErr)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate jobs: %w", err)
	}
	return jobs, total, nil
}

func scanJob(row pgx.Row) (crawl.Job, error) {
	var (
		job      crawl.Job
		targetID *string
		metaJSON []byte
	)
	err := row.Scan(
		&job.ID,
		&targetID,
		&job.Status,
		&job.StartedAt,
		&job.CompletedAt,
		&job.Counters.Success,
		&job.Counters.Failure,
		&job.Counters.Duplicate,
		&metaJSON,
	)
	if err != nil {
		return crawl.Job{}, err
	}
	if targetID != nil {
		job.TargetID = *targetID
	}
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &job.Metadata); err != nil {
			return crawl.Job{}, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return job, nil
}

func marshalMetadata(metadata map[string]any) ([]byte, error) {
	if metadata == nil {
		return nil, nil
	}
	out, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	return out, nil
}
