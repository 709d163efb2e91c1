package postgres

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/robowatch/crawler/internal/crawl"
)

// ErrorStore persists crawl error rows. Rows are append-only; there is
// no update path.
type ErrorStore struct {
	db querier
}

// NewErrorStore constructs an ErrorStore over a pool (or mock).
func NewErrorStore(db querier) *ErrorStore {
	return &ErrorStore{db: db}
}

// RecordError appends an error row.
func (s *ErrorStore) RecordError(ctx context.Context, jobError crawl.JobError) error {
	_, err := s.db.Exec(ctx, `
INSERT INTO crawl_errors (id, job_id, url, error_type, message, stack_trace, occurred_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		jobError.ID,
		nullable(jobError.JobID),
		jobError.URL,
		string(jobError.Kind),
		jobError.Message,
		jobError.StackTrace,
		jobError.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("insert error row: %w", err)
	}
	return nil
}

// ListErrors returns rows matching the filter, newest first, plus the
// total match count before limit/offset.
func (s *ErrorStore) ListErrors(ctx context.Context, filter crawl.ErrorFilter) ([]crawl.JobError, int, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	where := ""
	var condArgs []any
	arg := 0
	next := func() string {
		arg++
		return "$" + strconv.Itoa(arg)
	}
	if filter.JobID != "" {
		where = appendCond(where, "job_id = "+next())
		condArgs = append(condArgs, filter.JobID)
	}
	if filter.Kind != "" {
		where = appendCond(where, "error_type = "+next())
		condArgs = append(condArgs, string(filter.Kind))
	}

	var total int
	if err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM crawl_errors`+where, condArgs...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count errors: %w", err)
	}

	listArgs := append(append([]any{}, condArgs...), limit, filter.Offset)
	rows, err := s.db.Query(ctx,
		`SELECT id, job_id, url, error_type, message, stack_trace, occurred_at
FROM crawl_errors`+where+` ORDER BY occurred_at DESC LIMIT `+next()+` OFFSET `+next(),
		listArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("list errors: %w", err)
	}
	defer rows.Close()

	var out []crawl.JobError
	for rows.Next() {
		var (
			row        crawl.JobError
			jobID      *string
			stackTrace *string
		)
		if err := rows.Scan(
			&row.ID, &jobID, &row.URL, &row.Kind, &row.Message,
			&stackTrace, &row.OccurredAt,
		); err != nil {
			return nil, 0, fmt.Errorf("scan error row: %w", err)
		}
		if jobID != nil {
			row.JobID = *jobID
		}
		if stackTrace != nil {
			row.StackTrace = *stackTrace
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate errors: %w", err)
	}
	return out, total, nil
}

// Stats summarizes the error table; Recent counts rows at or after
// recentSince.
func (s *ErrorStore) Stats(ctx context.Context, recentSince time.Time) (crawl.ErrorStats, error) {
	stats := crawl.ErrorStats{ByKind: make(map[crawl.ErrorKind]int)}

	rows, err := s.db.Query(ctx,
		`SELECT error_type, COUNT(*) FROM crawl_errors GROUP BY error_type`)
	if err != nil {
		return crawl.ErrorStats{}, fmt.Errorf("error stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			kind  string
			count int
		)
		if err := rows.Scan(&kind, &count); err != nil {
			return crawl.ErrorStats{}, fmt.Errorf("scan stats: %w", err)
		}
		stats.ByKind[crawl.ErrorKind(kind)] = count
		stats.Total += count
	}
	if err := rows.Err(); err != nil {
		return crawl.ErrorStats{}, fmt.Errorf("iterate stats: %w", err)
	}

	if err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM crawl_errors WHERE occurred_at >= $1`, recentSince,
	).Scan(&stats.Recent); err != nil {
		return crawl.ErrorStats{}, fmt.Errorf("recent errors: %w", err)
	}
	return stats, nil
}

func appendCond(where, cond string) string {
	if where == "" {
		return " WHERE " + cond
	}
	return where + " AND " + cond
}
