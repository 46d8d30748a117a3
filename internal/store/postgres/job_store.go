// Package postgres provides Postgres-backed persistence for rank check jobs
// and rank observations.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meodash/meorank/internal/rank"
)

//go:embed schema.sql
var schemaSQL string

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// pool is the subset of pgxpool.Pool the store uses; pgxmock satisfies it.
type pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// JobStore is the durable table of rank check jobs plus the claimer and
// result sink operations over it. All job status mutations in the system go
// through ClaimNext (queued to running) or RecordRank/RecordFailure
// (running to terminal).
type JobStore struct {
	pool pool
}

// New creates a JobStore backed by a new pgx connection pool.
func New(ctx context.Context, cfg Config) (*JobStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &JobStore{pool: p}, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(p pool) (*JobStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &JobStore{pool: p}, nil
}

// Close releases the underlying pool resources.
func (s *JobStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping verifies database connectivity.
func (s *JobStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Migrate applies the embedded schema. Statements are idempotent.
func (s *JobStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

const enqueueSQL = `
INSERT INTO rank_check_jobs (shop_id, meo_keyword_id, target_date, requested_by_type, requested_by_id)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (shop_id, meo_keyword_id, target_date) WHERE status IN ('queued', 'running')
DO UPDATE SET requested_by_type = EXCLUDED.requested_by_type,
              requested_by_id = EXCLUDED.requested_by_id
RETURNING id, (xmax = 0) AS inserted`

// Enqueue upserts one rank check job. When a queued or running job already
// exists for the same (shop, keyword, date), its requester columns are
// refreshed and created is false.
func (s *JobStore) Enqueue(
	ctx context.Context,
	shopID, keywordID int64,
	date time.Time,
	by rank.Requester,
) (int64, bool, error) {
	var (
		jobID   int64
		created bool
	)
	err := s.pool.QueryRow(ctx, enqueueSQL, shopID, keywordID, date, by.Type, by.ID).
		Scan(&jobID, &created)
	if err != nil {
		return 0, false, fmt.Errorf("enqueue job: %w", err)
	}
	return jobID, created, nil
}

// EnqueueShopKeywords upserts one job per keyword registered for the shop
// and reports how many were newly created versus already pending.
func (s *JobStore) EnqueueShopKeywords(ctx context.Context, req rank.EnqueueRequest) (rank.EnqueueResult, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id FROM meo_keywords WHERE shop_id = $1 ORDER BY id`, req.ShopID)
	if err != nil {
		return rank.EnqueueResult{}, fmt.Errorf("list shop keywords: %w", err)
	}
	keywordIDs, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return rank.EnqueueResult{}, fmt.Errorf("collect shop keywords: %w", err)
	}

	var result rank.EnqueueResult
	for _, kwID := range keywordIDs {
		_, created, err := s.Enqueue(ctx, req.ShopID, kwID, req.TargetDate, req.RequestedBy)
		if err != nil {
			return result, err
		}
		if created {
			result.Created++
		} else {
			result.Existing++
		}
	}
	return result, nil
}

const claimSQL = `
SELECT j.id, j.shop_id, j.meo_keyword_id, j.target_date, s.name, k.keyword
FROM rank_check_jobs j
JOIN shops s ON s.id = j.shop_id
JOIN meo_keywords k ON k.id = j.meo_keyword_id
WHERE j.status = 'queued'
ORDER BY j.created_at, j.id
LIMIT 1
FOR UPDATE OF j SKIP LOCKED`

// ClaimNext transactionally takes ownership of the oldest queued job.
// Concurrent claimers skip locked rows, so no job is ever handed to two
// workers. Returns (nil, nil) when the queue is empty. If the transaction
// aborts for any reason the job stays queued and claimable.
func (s *JobStore) ClaimNext(ctx context.Context) (*rank.ClaimedJob, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin claim tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var job rank.ClaimedJob
	err = tx.QueryRow(ctx, claimSQL).Scan(
		&job.ID, &job.ShopID, &job.KeywordID, &job.TargetDate, &job.ShopName, &job.Keyword,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select queued job: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE rank_check_jobs SET status = 'running', started_at = now() WHERE id = $1`,
		job.ID,
	); err != nil {
		return nil, fmt.Errorf("mark job running: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit claim tx: %w", err)
	}
	return &job, nil
}

const upsertObservationSQL = `
INSERT INTO rank_observations (meo_keyword_id, checked_at, position)
VALUES ($1, $2, $3)
ON CONFLICT (meo_keyword_id, checked_at)
DO UPDATE SET position = EXCLUDED.position, updated_at = now()`

// RecordRank upserts the observation for the job's keyword and date and
// flips the job to success, atomically. A nil position means the shop was
// not found among organic results; that is still a successful observation.
func (s *JobStore) RecordRank(ctx context.Context, job *rank.ClaimedJob, position *int) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin sink tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, upsertObservationSQL, job.KeywordID, job.TargetDate, position); err != nil {
		return fmt.Errorf("upsert observation: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE rank_check_jobs
		 SET status = 'success', finished_at = now(), error_message = NULL
		 WHERE id = $1 AND status = 'running'`,
		job.ID,
	); err != nil {
		return fmt.Errorf("mark job success: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit sink tx: %w", err)
	}
	return nil
}

// RecordFailure flips a running job to failed with a human-readable reason.
func (s *JobStore) RecordFailure(ctx context.Context, jobID int64, reason string) error {
	if _, err := s.pool.Exec(ctx,
		`UPDATE rank_check_jobs
		 SET status = 'failed', finished_at = now(), error_message = $2
		 WHERE id = $1 AND status = 'running'`,
		jobID, reason,
	); err != nil {
		return fmt.Errorf("mark job failed: %w", err)
	}
	return nil
}

// GetJob reads a job row by id.
func (s *JobStore) GetJob(ctx context.Context, jobID int64) (rank.CheckJob, error) {
	var (
		job     rank.CheckJob
		reqID   *int64
		errText *string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, shop_id, meo_keyword_id, target_date, status,
		        requested_by_type, requested_by_id,
		        started_at, finished_at, error_message, created_at
		 FROM rank_check_jobs WHERE id = $1`,
		jobID,
	).Scan(
		&job.ID, &job.ShopID, &job.KeywordID, &job.TargetDate, &job.Status,
		&job.RequestedBy.Type, &reqID,
		&job.StartedAt, &job.FinishedAt, &errText, &job.CreatedAt,
	)
	if err != nil {
		return rank.CheckJob{}, fmt.Errorf("get job %d: %w", jobID, err)
	}
	if reqID != nil {
		job.RequestedBy.ID = *reqID
	}
	if errText != nil {
		job.ErrorText = *errText
	}
	return job, nil
}

// QueueDepth counts currently queued jobs.
func (s *JobStore) QueueDepth(ctx context.Context) (int, error) {
	var depth int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM rank_check_jobs WHERE status = 'queued'`,
	).Scan(&depth)
	if err != nil {
		return 0, fmt.Errorf("count queued jobs: %w", err)
	}
	return depth, nil
}

// RequeueStale resets running jobs whose worker presumably died back to
// queued. Meant to be invoked by an operator or cron, never automatically
// from inside the worker loop.
func (s *JobStore) RequeueStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE rank_check_jobs
		 SET status = 'queued', started_at = NULL, error_message = NULL
		 WHERE status = 'running' AND started_at < now() - make_interval(secs => $1)`,
		olderThan.Seconds(),
	)
	if err != nil {
		return 0, fmt.Errorf("requeue stale jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

// PurgeFinishedBefore deletes terminal job rows older than the cutoff. Job
// rows are an audit trail; purging is an explicit admin action only.
func (s *JobStore) PurgeFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM rank_check_jobs
		 WHERE status IN ('success', 'failed') AND created_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("purge finished jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}
