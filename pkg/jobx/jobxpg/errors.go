package jobxpg

import "github.com/Abraxas-365/jobrunner/pkg/errx"

var pgErrors = errx.NewRegistry("JOBX_PG")

var (
	ErrCreate   = pgErrors.Register("CREATE", errx.TypeInternal, 500, "Failed to insert job")
	ErrQuery    = pgErrors.Register("QUERY", errx.TypeInternal, 500, "Failed to read jobs")
	ErrClaim    = pgErrors.Register("CLAIM", errx.TypeInternal, 500, "Failed to claim job")
	ErrFinalize = pgErrors.Register("FINALIZE", errx.TypeInternal, 500, "Failed to record job outcome")
	ErrRecover  = pgErrors.Register("RECOVER", errx.TypeInternal, 500, "Failed to recover stale jobs")
)
