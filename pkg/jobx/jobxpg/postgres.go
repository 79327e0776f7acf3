// Package jobxpg is the Postgres job store. Claims run in a short transaction
// that locks the row with FOR UPDATE SKIP LOCKED; finalize statements are
// fenced on the attempt number the claim returned.
package jobxpg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/Abraxas-365/jobrunner/pkg/jobx"
	"github.com/Abraxas-365/jobrunner/pkg/kernel"
)

// PostgresStore implements jobx.Store.
type PostgresStore struct {
	db *sqlx.DB
}

var _ jobx.Store = (*PostgresStore)(nil)

func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Create inserts the job. A conflicting idempotency key resolves to the
// existing row; any other unique violation is a hard integrity error.
func (s *PostgresStore) Create(ctx context.Context, nj jobx.NewJob) (*jobx.Job, bool, error) {
	query := `
		INSERT INTO jobs (id, type, payload, idempotency_key, max_attempts)
		VALUES ($1, $2, $3::jsonb, $4, $5)
		ON CONFLICT (idempotency_key) DO NOTHING
		RETURNING ` + jobColumns

	payload := nj.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	id := kernel.NewJobID()

	var row jobRow
	err := s.db.GetContext(ctx, &row, query, id.String(), nj.Type, string(payload), nj.IdempotencyKey, nj.MaxAttempts)
	if err == nil {
		return toDomain(row), true, nil
	}

	if errors.Is(err, sql.ErrNoRows) && nj.IdempotencyKey != nil {
		existing, err := s.getByKey(ctx, *nj.IdempotencyKey)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" { // unique_violation
		return nil, false, jobx.NewErrorWithCause(jobx.ErrDuplicateJob, err).
			WithDetail("constraint", pqErr.Constraint)
	}
	return nil, false, pgErrors.NewWithCause(ErrCreate, err).WithDetail("type", nj.Type)
}

func (s *PostgresStore) getByKey(ctx context.Context, key string) (*jobx.Job, error) {
	var row jobRow
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE idempotency_key = $1`
	if err := s.db.GetContext(ctx, &row, query, key); err != nil {
		// The conflicting row cannot disappear: jobs are never deleted.
		return nil, pgErrors.NewWithCause(ErrQuery, err).WithDetail("idempotency_key", key)
	}
	return toDomain(row), nil
}

func (s *PostgresStore) Get(ctx context.Context, id kernel.JobID) (*jobx.Job, error) {
	var row jobRow
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`
	if err := s.db.GetContext(ctx, &row, query, id.String()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, jobx.NewError(jobx.ErrJobNotFound).WithDetail("job_id", id)
		}
		return nil, pgErrors.NewWithCause(ErrQuery, err).WithDetail("job_id", id)
	}
	return toDomain(row), nil
}

// List returns jobs newest first.
func (s *PostgresStore) List(ctx context.Context, filter jobx.ListFilter, page kernel.PaginationOptions) (kernel.Paginated[jobx.Job], error) {
	page = page.Normalize()

	var (
		conds []string
		args  []any
	)
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Type != "" {
		args = append(args, filter.Type)
		conds = append(conds, fmt.Sprintf("type = $%d", len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := s.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM jobs`+where, args...); err != nil {
		return kernel.Paginated[jobx.Job]{}, pgErrors.NewWithCause(ErrQuery, err)
	}

	query := fmt.Sprintf(`SELECT %s FROM jobs%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		jobColumns, where, len(args)+1, len(args)+2)
	var rows []jobRow
	if err := s.db.SelectContext(ctx, &rows, query, append(args, page.PageSize, page.Offset())...); err != nil {
		return kernel.Paginated[jobx.Job]{}, pgErrors.NewWithCause(ErrQuery, err)
	}

	items := make([]jobx.Job, 0, len(rows))
	for _, r := range rows {
		items = append(items, *toDomain(r))
	}
	return kernel.NewPaginated(items, page.Page, page.PageSize, total), nil
}

const claimableCond = `status = 'queued'
	AND (run_after IS NULL OR run_after <= now())
	AND attempts < max_attempts`

func (s *PostgresStore) ClaimByID(ctx context.Context, id kernel.JobID) (*jobx.Job, error) {
	query := `SELECT id FROM jobs WHERE id = $1 AND ` + claimableCond + ` FOR UPDATE SKIP LOCKED`
	return s.claim(ctx, query, id.String())
}

func (s *PostgresStore) ClaimNext(ctx context.Context) (*jobx.Job, error) {
	query := `SELECT id FROM jobs WHERE ` + claimableCond + `
		ORDER BY created_at ASC LIMIT 1 FOR UPDATE SKIP LOCKED`
	return s.claim(ctx, query)
}

// claim locks the row picked by lockQuery and moves it to running. A missing
// or already locked row yields (nil, nil).
func (s *PostgresStore) claim(ctx context.Context, lockQuery string, args ...any) (*jobx.Job, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, pgErrors.NewWithCause(ErrClaim, err)
	}
	defer tx.Rollback() //nolint:errcheck

	var id string
	if err := tx.GetContext(ctx, &id, lockQuery, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, pgErrors.NewWithCause(ErrClaim, err)
	}

	var row jobRow
	update := `
		UPDATE jobs SET
			status = 'running',
			attempts = attempts + 1,
			started_at = COALESCE(started_at, now()),
			updated_at = now()
		WHERE id = $1
		RETURNING ` + jobColumns
	if err := tx.GetContext(ctx, &row, update, id); err != nil {
		return nil, pgErrors.NewWithCause(ErrClaim, err).WithDetail("job_id", id)
	}

	if err := tx.Commit(); err != nil {
		return nil, pgErrors.NewWithCause(ErrClaim, err).WithDetail("job_id", id)
	}
	return toDomain(row), nil
}

func (s *PostgresStore) Complete(ctx context.Context, job *jobx.Job, result json.RawMessage) error {
	query := `
		UPDATE jobs SET
			status = 'succeeded',
			result = $3::jsonb,
			error = NULL,
			run_after = NULL,
			succeeded_at = now(),
			updated_at = now()
		WHERE id = $1 AND status = 'running' AND attempts = $2`

	res, err := s.db.ExecContext(ctx, query, job.ID.String(), job.Attempts, jsonParam(result))
	if err != nil {
		return pgErrors.NewWithCause(ErrFinalize, err).WithDetail("job_id", job.ID)
	}
	return fenced(res, job)
}

func (s *PostgresStore) Retry(ctx context.Context, job *jobx.Job, message string, delay time.Duration) (time.Time, error) {
	query := `
		UPDATE jobs SET
			status = 'queued',
			run_after = now() + make_interval(secs => $3),
			error = $4,
			last_error = $4,
			last_error_at = now(),
			updated_at = now()
		WHERE id = $1 AND status = 'running' AND attempts = $2
		RETURNING run_after`

	var runAfter time.Time
	err := s.db.GetContext(ctx, &runAfter, query, job.ID.String(), job.Attempts, delay.Seconds(), message)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, notOwned(job)
		}
		return time.Time{}, pgErrors.NewWithCause(ErrFinalize, err).WithDetail("job_id", job.ID)
	}
	return runAfter, nil
}

func (s *PostgresStore) Fail(ctx context.Context, job *jobx.Job, message string) error {
	query := `
		UPDATE jobs SET
			status = 'failed',
			run_after = NULL,
			error = $3,
			last_error = $3,
			last_error_at = now(),
			failed_at = now(),
			updated_at = now()
		WHERE id = $1 AND status = 'running' AND attempts = $2`

	res, err := s.db.ExecContext(ctx, query, job.ID.String(), job.Attempts, message)
	if err != nil {
		return pgErrors.NewWithCause(ErrFinalize, err).WithDetail("job_id", job.ID)
	}
	return fenced(res, job)
}

// RecoverStale judges staleness on updated_at as written by the claim. There
// is no heartbeat, so a handler still running past olderThan is recovered too.
func (s *PostgresStore) RecoverStale(ctx context.Context, olderThan time.Duration, message string) ([]jobx.Recovered, error) {
	query := `
		WITH stale AS (
			SELECT id FROM jobs
			WHERE status = 'running' AND updated_at < now() - make_interval(secs => $1)
			FOR UPDATE SKIP LOCKED
		)
		UPDATE jobs j SET
			status = CASE WHEN j.attempts >= j.max_attempts
				THEN 'failed'::job_status ELSE 'queued'::job_status END,
			failed_at = CASE WHEN j.attempts >= j.max_attempts THEN now() ELSE j.failed_at END,
			run_after = NULL,
			error = $2,
			last_error = $2,
			last_error_at = now(),
			updated_at = now()
		FROM stale
		WHERE j.id = stale.id
		RETURNING j.id, j.type, j.status`

	var rows []recoveredRow
	if err := s.db.SelectContext(ctx, &rows, query, olderThan.Seconds(), message); err != nil {
		return nil, pgErrors.NewWithCause(ErrRecover, err)
	}

	out := make([]jobx.Recovered, 0, len(rows))
	for _, r := range rows {
		out = append(out, jobx.Recovered{
			ID:     kernel.JobID(r.ID),
			Type:   r.Type,
			Status: jobx.Status(r.Status),
		})
	}
	return out, nil
}

// Ping checks the connection, for health endpoints.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func fenced(res sql.Result, job *jobx.Job) error {
	n, err := res.RowsAffected()
	if err != nil {
		return pgErrors.NewWithCause(ErrFinalize, err).WithDetail("job_id", job.ID)
	}
	if n == 0 {
		return notOwned(job)
	}
	return nil
}

func notOwned(job *jobx.Job) error {
	return jobx.NewError(jobx.ErrNotOwned).
		WithDetail("job_id", job.ID).
		WithDetail("attempts", job.Attempts)
}
