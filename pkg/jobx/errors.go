package jobx

import "github.com/Abraxas-365/jobrunner/pkg/errx"

var jobxErrors = errx.NewRegistry("JOBX")

var (
	ErrJobNotFound     = jobxErrors.Register("JOB_NOT_FOUND", errx.TypeNotFound, 404, "Job not found")
	ErrInvalidJob      = jobxErrors.Register("INVALID_JOB", errx.TypeValidation, 400, "Invalid job definition")
	ErrInvalidID       = jobxErrors.Register("INVALID_ID", errx.TypeValidation, 400, "Invalid job id")
	ErrDuplicateJob    = jobxErrors.Register("DUPLICATE_JOB", errx.TypeConflict, 409, "Job violates a uniqueness constraint")
	ErrNotOwned        = jobxErrors.Register("NOT_OWNED", errx.TypeConflict, 409, "Job attempt is no longer owned by this worker")
	ErrMalformedToken  = jobxErrors.Register("MALFORMED_TOKEN", errx.TypeValidation, 400, "Malformed dispatch queue token")
	ErrAlreadyRunning  = jobxErrors.Register("ALREADY_RUNNING", errx.TypeConflict, 409, "Worker is already running")
	ErrShutdownTimeout = jobxErrors.Register("SHUTDOWN_TIMEOUT", errx.TypeInternal, 500, "Graceful shutdown timed out")
)

// NewError builds an error for one of the JOBX codes.
func NewError(code *errx.ErrorCode) *errx.Error {
	return jobxErrors.New(code)
}

// NewErrorWithCause builds a JOBX error wrapping cause.
func NewErrorWithCause(code *errx.ErrorCode, cause error) *errx.Error {
	return jobxErrors.NewWithCause(code, cause)
}
