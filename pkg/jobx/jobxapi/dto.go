package jobxapi

import (
	"encoding/json"
	"time"

	"github.com/Abraxas-365/jobrunner/pkg/jobx"
	"github.com/Abraxas-365/jobrunner/pkg/kernel"
)

// SubmitRequest is the POST /api/v1/jobs body.
type SubmitRequest struct {
	Type           string          `json:"type"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	IdempotencyKey *string         `json:"idempotency_key,omitempty"`
	MaxAttempts    int             `json:"max_attempts,omitempty"`
}

// ResultResponse is the GET /api/v1/jobs/:id/result body.
type ResultResponse struct {
	ID          kernel.JobID    `json:"id"`
	Status      jobx.Status     `json:"status"`
	Result      json.RawMessage `json:"result"`
	Error       *string         `json:"error"`
	LastError   *string         `json:"last_error"`
	LastErrorAt *time.Time      `json:"last_error_at"`
	FailedAt    *time.Time      `json:"failed_at"`
	SucceededAt *time.Time      `json:"succeeded_at"`
}

func toResult(job *jobx.Job) ResultResponse {
	result := job.Result
	if len(result) == 0 {
		result = json.RawMessage("null")
	}
	return ResultResponse{
		ID:          job.ID,
		Status:      job.Status,
		Result:      result,
		Error:       job.Error,
		LastError:   job.LastError,
		LastErrorAt: job.LastErrorAt,
		FailedAt:    job.FailedAt,
		SucceededAt: job.SucceededAt,
	}
}
