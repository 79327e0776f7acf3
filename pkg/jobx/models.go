package jobx

import (
	"encoding/json"
	"time"

	"github.com/Abraxas-365/jobrunner/pkg/kernel"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

var transitions = map[Status][]Status{
	StatusQueued:  {StatusRunning},
	StatusRunning: {StatusSucceeded, StatusFailed, StatusQueued},
}

// Valid reports whether s is one of the four persisted states.
func (s Status) Valid() bool {
	switch s {
	case StatusQueued, StatusRunning, StatusSucceeded, StatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether no transition leaves s.
func (s Status) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// CanTransitionTo reports whether s -> next is an edge of the state machine.
func (s Status) CanTransitionTo(next Status) bool {
	for _, to := range transitions[s] {
		if to == next {
			return true
		}
	}
	return false
}

// Job is the authoritative record of one unit of work.
type Job struct {
	ID             kernel.JobID    `json:"id"`
	Type           string          `json:"type"`
	Payload        json.RawMessage `json:"payload"`
	IdempotencyKey *string         `json:"idempotency_key,omitempty"`
	Status         Status          `json:"status"`
	Attempts       int             `json:"attempts"`
	MaxAttempts    int             `json:"max_attempts"`
	RunAfter       *time.Time      `json:"run_after,omitempty"`
	Result         json.RawMessage `json:"result,omitempty"`
	Error          *string         `json:"error,omitempty"`
	LastError      *string         `json:"last_error,omitempty"`
	LastErrorAt    *time.Time      `json:"last_error_at,omitempty"`
	StartedAt      *time.Time      `json:"started_at,omitempty"`
	SucceededAt    *time.Time      `json:"succeeded_at,omitempty"`
	FailedAt       *time.Time      `json:"failed_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Eligible reports whether the job may be claimed at now.
func (j *Job) Eligible(now time.Time) bool {
	if j.Status != StatusQueued {
		return false
	}
	return j.RunAfter == nil || !j.RunAfter.After(now)
}

// Exhausted reports whether no attempts remain.
func (j *Job) Exhausted() bool {
	return j.Attempts >= j.MaxAttempts
}

// IsLive reports whether the job can still run.
func (j *Job) IsLive() bool {
	return j.Status == StatusQueued || j.Status == StatusRunning
}

// NewJob is the input to a submission.
type NewJob struct {
	Type           string          `json:"type"`
	Payload        json.RawMessage `json:"payload"`
	IdempotencyKey *string         `json:"idempotency_key,omitempty"`

	// MaxAttempts of zero selects the configured default.
	MaxAttempts int `json:"max_attempts,omitempty"`
}

// ListFilter narrows job listings. Zero values match everything.
type ListFilter struct {
	Status Status
	Type   string
}

// Recovered is a job moved out of a stale running state.
type Recovered struct {
	ID     kernel.JobID
	Type   string
	Status Status
}
