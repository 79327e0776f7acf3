package jobxpg_test

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/Abraxas-365/jobrunner/pkg/errx"
	"github.com/Abraxas-365/jobrunner/pkg/jobx"
	"github.com/Abraxas-365/jobrunner/pkg/jobx/jobxpg"
	"github.com/Abraxas-365/jobrunner/pkg/kernel"
)

var columns = []string{
	"id", "type", "payload", "idempotency_key", "status", "attempts", "max_attempts",
	"run_after", "result", "error", "last_error", "last_error_at",
	"started_at", "succeeded_at", "failed_at", "created_at", "updated_at",
}

const jobID = "6b1f0c9e-2f7a-4d3b-8a51-0e4c2d9f7b13"

var created = time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)

func newStore(t *testing.T) (*jobxpg.PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
		_ = db.Close()
	})
	return jobxpg.NewPostgresStore(sqlx.NewDb(db, "postgres")), mock
}

func row(status string, attempts int, key any) *sqlmock.Rows {
	var started any
	if attempts > 0 {
		started = created
	}
	return sqlmock.NewRows(columns).AddRow(
		jobID, "csv_summary", []byte(`{"file":"a.csv"}`), key, status, attempts, 5,
		nil, nil, nil, nil, nil,
		started, nil, nil, created, created,
	)
}

func claimed(attempts int) *jobx.Job {
	return &jobx.Job{ID: kernel.JobID(jobID), Type: "csv_summary", Status: jobx.StatusRunning, Attempts: attempts, MaxAttempts: 5}
}

func TestPostgresStore_CreateFresh(t *testing.T) {
	s, mock := newStore(t)
	mock.ExpectQuery(`INSERT INTO jobs .* ON CONFLICT \(idempotency_key\) DO NOTHING RETURNING`).
		WithArgs(sqlmock.AnyArg(), "csv_summary", `{"file":"a.csv"}`, nil, 5).
		WillReturnRows(row("queued", 0, nil))

	job, isNew, err := s.Create(context.Background(), jobx.NewJob{
		Type:        "csv_summary",
		Payload:     json.RawMessage(`{"file":"a.csv"}`),
		MaxAttempts: 5,
	})
	if err != nil || !isNew {
		t.Fatalf("create: new=%v err=%v", isNew, err)
	}
	if job.ID.String() != jobID || job.Status != jobx.StatusQueued || job.StartedAt != nil {
		t.Fatalf("unexpected job %+v", job)
	}
	if string(job.Payload) != `{"file":"a.csv"}` || job.Result != nil {
		t.Fatalf("unexpected payload/result %s %s", job.Payload, job.Result)
	}
}

func TestPostgresStore_CreateExistingKey(t *testing.T) {
	s, mock := newStore(t)
	key := "order-7"
	mock.ExpectQuery(`INSERT INTO jobs`).
		WithArgs(sqlmock.AnyArg(), "csv_summary", "{}", key, 5).
		WillReturnRows(sqlmock.NewRows(columns))
	mock.ExpectQuery(`SELECT .* FROM jobs WHERE idempotency_key = \$1`).
		WithArgs(key).
		WillReturnRows(row("running", 1, key))

	job, isNew, err := s.Create(context.Background(), jobx.NewJob{Type: "csv_summary", IdempotencyKey: &key, MaxAttempts: 5})
	if err != nil || isNew {
		t.Fatalf("create: new=%v err=%v", isNew, err)
	}
	if job.Status != jobx.StatusRunning || job.IdempotencyKey == nil || *job.IdempotencyKey != key {
		t.Fatalf("expected existing row, got %+v", job)
	}
}

func TestPostgresStore_CreateUniqueViolation(t *testing.T) {
	s, mock := newStore(t)
	mock.ExpectQuery(`INSERT INTO jobs`).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "jobs_pkey"})

	_, _, err := s.Create(context.Background(), jobx.NewJob{Type: "csv_summary", MaxAttempts: 5})
	if !errx.IsCode(err, jobx.ErrDuplicateJob) {
		t.Fatalf("expected duplicate job error, got %v", err)
	}
}

func TestPostgresStore_GetNotFound(t *testing.T) {
	s, mock := newStore(t)
	mock.ExpectQuery(`SELECT .* FROM jobs WHERE id = \$1`).
		WithArgs(jobID).
		WillReturnRows(sqlmock.NewRows(columns))

	_, err := s.Get(context.Background(), kernel.JobID(jobID))
	if !errx.IsCode(err, jobx.ErrJobNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestPostgresStore_ListFilters(t *testing.T) {
	s, mock := newStore(t)
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM jobs WHERE status = \$1 AND type = \$2`).
		WithArgs("queued", "csv_summary").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery(`FROM jobs WHERE status = \$1 AND type = \$2 ORDER BY created_at DESC, id DESC LIMIT \$3 OFFSET \$4`).
		WithArgs("queued", "csv_summary", 2, 2).
		WillReturnRows(row("queued", 0, nil))

	page, err := s.List(context.Background(),
		jobx.ListFilter{Status: jobx.StatusQueued, Type: "csv_summary"},
		kernel.PaginationOptions{Page: 2, PageSize: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Page.Total != 3 || page.Page.Pages != 2 || len(page.Items) != 1 {
		t.Fatalf("unexpected page %+v", page.Page)
	}
}

func TestPostgresStore_ClaimByID(t *testing.T) {
	s, mock := newStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM jobs WHERE id = \$1 AND status = 'queued' AND \(run_after IS NULL OR run_after <= now\(\)\) AND attempts < max_attempts FOR UPDATE SKIP LOCKED`).
		WithArgs(jobID).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(jobID))
	mock.ExpectQuery(`UPDATE jobs SET status = 'running', attempts = attempts \+ 1, started_at = COALESCE\(started_at, now\(\)\)`).
		WithArgs(jobID).
		WillReturnRows(row("running", 1, nil))
	mock.ExpectCommit()

	job, err := s.ClaimByID(context.Background(), kernel.JobID(jobID))
	if err != nil || job == nil {
		t.Fatalf("claim: job=%v err=%v", job, err)
	}
	if job.Status != jobx.StatusRunning || job.Attempts != 1 || job.StartedAt == nil {
		t.Fatalf("unexpected claimed job %+v", job)
	}
}

func TestPostgresStore_ClaimByIDNothingToClaim(t *testing.T) {
	s, mock := newStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM jobs WHERE id = \$1`).
		WithArgs(jobID).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	job, err := s.ClaimByID(context.Background(), kernel.JobID(jobID))
	if err != nil || job != nil {
		t.Fatalf("expected (nil, nil), got %v %v", job, err)
	}
}

func TestPostgresStore_ClaimNextOrdersByCreation(t *testing.T) {
	s, mock := newStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM jobs WHERE status = 'queued' .* ORDER BY created_at ASC LIMIT 1 FOR UPDATE SKIP LOCKED`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(jobID))
	mock.ExpectQuery(`UPDATE jobs SET status = 'running'`).
		WithArgs(jobID).
		WillReturnRows(row("running", 1, nil))
	mock.ExpectCommit()

	if job, err := s.ClaimNext(context.Background()); err != nil || job == nil {
		t.Fatalf("claim next: %v %v", job, err)
	}
}

func TestPostgresStore_CompleteFenced(t *testing.T) {
	s, mock := newStore(t)
	mock.ExpectExec(`UPDATE jobs SET status = 'succeeded', result = \$3::jsonb, error = NULL, run_after = NULL,.* WHERE id = \$1 AND status = 'running' AND attempts = \$2`).
		WithArgs(jobID, 1, `{"rows":2}`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE jobs SET status = 'succeeded'`).
		WithArgs(jobID, 1, `{"rows":2}`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := s.Complete(context.Background(), claimed(1), json.RawMessage(`{"rows":2}`)); err != nil {
		t.Fatalf("complete: %v", err)
	}
	err := s.Complete(context.Background(), claimed(1), json.RawMessage(`{"rows":2}`))
	if !errx.IsCode(err, jobx.ErrNotOwned) {
		t.Fatalf("expected not owned, got %v", err)
	}
}

func TestPostgresStore_Retry(t *testing.T) {
	s, mock := newStore(t)
	runAfter := created.Add(4 * time.Second)
	mock.ExpectQuery(`UPDATE jobs SET status = 'queued', run_after = now\(\) \+ make_interval\(secs => \$3\),.* RETURNING run_after`).
		WithArgs(jobID, 2, 4.0, "boom").
		WillReturnRows(sqlmock.NewRows([]string{"run_after"}).AddRow(runAfter))

	got, err := s.Retry(context.Background(), claimed(2), "boom", 4*time.Second)
	if err != nil || !got.Equal(runAfter) {
		t.Fatalf("retry: %v %v", got, err)
	}
}

func TestPostgresStore_RetryNotOwned(t *testing.T) {
	s, mock := newStore(t)
	mock.ExpectQuery(`UPDATE jobs SET status = 'queued'`).
		WillReturnRows(sqlmock.NewRows([]string{"run_after"}))

	_, err := s.Retry(context.Background(), claimed(2), "boom", time.Second)
	if !errx.IsCode(err, jobx.ErrNotOwned) {
		t.Fatalf("expected not owned, got %v", err)
	}
}

func TestPostgresStore_Fail(t *testing.T) {
	s, mock := newStore(t)
	mock.ExpectExec(`UPDATE jobs SET status = 'failed', run_after = NULL, error = \$3, last_error = \$3`).
		WithArgs(jobID, 5, "gave up").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.Fail(context.Background(), claimed(5), "gave up"); err != nil {
		t.Fatalf("fail: %v", err)
	}
}

func TestPostgresStore_RecoverStale(t *testing.T) {
	s, mock := newStore(t)
	other := "0d9a3b1e-5c47-4f2a-9e61-3b8c7d2a4f50"
	mock.ExpectQuery(`WITH stale AS \( SELECT id FROM jobs WHERE status = 'running' AND updated_at < now\(\) - make_interval\(secs => \$1\) FOR UPDATE SKIP LOCKED \)`).
		WithArgs(900.0, "abandoned").
		WillReturnRows(sqlmock.NewRows([]string{"id", "type", "status"}).
			AddRow(jobID, "csv_summary", "queued").
			AddRow(other, "always_fail", "failed"))

	recovered, err := s.RecoverStale(context.Background(), 15*time.Minute, "abandoned")
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if len(recovered) != 2 || recovered[0].Status != jobx.StatusQueued || recovered[1].Status != jobx.StatusFailed {
		t.Fatalf("unexpected recovered %+v", recovered)
	}
}

// An empty result is stored as NULL.
func TestPostgresStore_CompleteSendsNullForEmptyResult(t *testing.T) {
	s, mock := newStore(t)
	mock.ExpectExec(`UPDATE jobs SET status = 'succeeded'`).
		WithArgs(jobID, 1, driver.Value(nil)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.Complete(context.Background(), claimed(1), nil); err != nil {
		t.Fatalf("complete: %v", err)
	}
}
