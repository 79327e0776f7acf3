package jobxpg

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/Abraxas-365/jobrunner/pkg/jobx"
	"github.com/Abraxas-365/jobrunner/pkg/kernel"
)

const jobColumns = `id, type, payload, idempotency_key, status, attempts, max_attempts,
	run_after, result, error, last_error, last_error_at,
	started_at, succeeded_at, failed_at, created_at, updated_at`

type jobRow struct {
	ID             string         `db:"id"`
	Type           string         `db:"type"`
	Payload        []byte         `db:"payload"`
	IdempotencyKey sql.NullString `db:"idempotency_key"`
	Status         string         `db:"status"`
	Attempts       int            `db:"attempts"`
	MaxAttempts    int            `db:"max_attempts"`
	RunAfter       sql.NullTime   `db:"run_after"`
	Result         []byte         `db:"result"`
	Error          sql.NullString `db:"error"`
	LastError      sql.NullString `db:"last_error"`
	LastErrorAt    sql.NullTime   `db:"last_error_at"`
	StartedAt      sql.NullTime   `db:"started_at"`
	SucceededAt    sql.NullTime   `db:"succeeded_at"`
	FailedAt       sql.NullTime   `db:"failed_at"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
}

type recoveredRow struct {
	ID     string `db:"id"`
	Type   string `db:"type"`
	Status string `db:"status"`
}

func toDomain(r jobRow) *jobx.Job {
	job := &jobx.Job{
		ID:             kernel.JobID(r.ID),
		Type:           r.Type,
		Payload:        json.RawMessage(r.Payload),
		IdempotencyKey: stringPtr(r.IdempotencyKey),
		Status:         jobx.Status(r.Status),
		Attempts:       r.Attempts,
		MaxAttempts:    r.MaxAttempts,
		RunAfter:       timePtr(r.RunAfter),
		Error:          stringPtr(r.Error),
		LastError:      stringPtr(r.LastError),
		LastErrorAt:    timePtr(r.LastErrorAt),
		StartedAt:      timePtr(r.StartedAt),
		SucceededAt:    timePtr(r.SucceededAt),
		FailedAt:       timePtr(r.FailedAt),
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
	if len(r.Result) > 0 {
		job.Result = json.RawMessage(r.Result)
	}
	return job
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func stringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

// jsonParam passes JSON as text; lib/pq would send []byte as bytea.
func jsonParam(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
