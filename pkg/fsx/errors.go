package fsx

import (
	"path"
	"strings"

	"github.com/Abraxas-365/jobrunner/pkg/errx"
)

var fsErrors = errx.NewRegistry("FSX")

var (
	ErrNotFound    = fsErrors.Register("NOT_FOUND", errx.TypeNotFound, 404, "File not found")
	ErrInvalidPath = fsErrors.Register("INVALID_PATH", errx.TypeValidation, 400, "Path escapes the storage root")
	ErrRead        = fsErrors.Register("READ", errx.TypeExternal, 502, "File read failed")
)

// NotFound builds an ErrNotFound carrying the requested path.
func NotFound(path string) *errx.Error {
	return fsErrors.New(ErrNotFound).WithDetail("path", path)
}

// InvalidPath builds an ErrInvalidPath carrying the requested path.
func InvalidPath(path string) *errx.Error {
	return fsErrors.New(ErrInvalidPath).WithDetail("path", path)
}

// ReadError wraps a provider failure for path.
func ReadError(path string, cause error) *errx.Error {
	return fsErrors.NewWithCause(ErrRead, cause).WithDetail("path", path)
}

// DetectContentType guesses a MIME type from the file extension.
func DetectContentType(name string) string {
	switch ext := strings.ToLower(path.Ext(name)); ext {
	case ".csv":
		return "text/csv"
	case ".json":
		return "application/json"
	case ".txt":
		return "text/plain"
	case ".xml":
		return "application/xml"
	case ".pdf":
		return "application/pdf"
	case ".zip":
		return "application/zip"
	case ".gz":
		return "application/gzip"
	default:
		return "application/octet-stream"
	}
}
