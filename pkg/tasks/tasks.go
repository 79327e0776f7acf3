// Package tasks holds the job handlers shipped with the runner.
package tasks

import (
	"context"

	"github.com/Abraxas-365/jobrunner/pkg/fsx"
	"github.com/Abraxas-365/jobrunner/pkg/jobx"
)

const (
	TypeCSVSummary = "csv_summary"
	TypeAlwaysFail = "always_fail"
)

// AlwaysFailMessage is the failure reported by the always_fail handler.
const AlwaysFailMessage = "always_fail: intentional failure"

// Register installs the built-in handlers. files backs csv_summary.
func Register(registry *jobx.Registry, files fsx.FileReader) {
	registry.Register(TypeCSVSummary, NewCSVSummary(files))
	registry.Register(TypeAlwaysFail, AlwaysFail())
}

// AlwaysFail returns a handler that fails every attempt. It exercises the
// retry path end to end.
func AlwaysFail() jobx.Handler {
	return jobx.HandlerFunc(func(_ context.Context, _ *jobx.Job) jobx.Outcome {
		return jobx.Failed(AlwaysFailMessage)
	})
}
