// Package fsx is the read side of handler input storage. Handlers receive
// paths in job payloads and resolve them through a FileReader, so the same
// payload works against a local directory or an S3 bucket.
package fsx

import (
	"context"
	"io"
	"time"
)

type FileInfo struct {
	Name        string
	Size        int64
	ModTime     time.Time
	IsDir       bool
	ContentType string
	// Metadata holds provider attributes such as S3 user metadata; never nil.
	Metadata    map[string]string
}

// FileReader resolves slash-separated paths relative to the provider root.
// Paths escaping the root fail with ErrInvalidPath and missing files with
// ErrNotFound.
type FileReader interface {
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	Stat(ctx context.Context, path string) (FileInfo, error)
	List(ctx context.Context, dir string) ([]FileInfo, error)
}
