package fsxlocal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/Abraxas-365/jobrunner/pkg/fsx"
)

// LocalFileSystem implements fsx.FileReader over a directory on local disk.
// Paths that resolve outside the base directory are rejected.
type LocalFileSystem struct {
	basePath string
}

var _ fsx.FileReader = (*LocalFileSystem)(nil)

// NewLocalFileSystem creates a reader rooted at basePath (e.g. "./data"),
// creating the directory when missing.
func NewLocalFileSystem(basePath string) (*LocalFileSystem, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	absPath, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	return &LocalFileSystem{basePath: absPath}, nil
}

func (l *LocalFileSystem) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	fullPath, err := l.fullPath(path)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(fullPath)
	if err != nil {
		return nil, l.wrap(path, err)
	}
	return file, nil
}

func (l *LocalFileSystem) Stat(ctx context.Context, path string) (fsx.FileInfo, error) {
	fullPath, err := l.fullPath(path)
	if err != nil {
		return fsx.FileInfo{}, err
	}
	info, err := os.Stat(fullPath)
	if err != nil {
		return fsx.FileInfo{}, l.wrap(path, err)
	}
	return toFileInfo(info), nil
}

// List returns the direct children of dir, sorted by name.
func (l *LocalFileSystem) List(ctx context.Context, dir string) ([]fsx.FileInfo, error) {
	fullPath, err := l.fullPath(dir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(fullPath)
	if err != nil {
		return nil, l.wrap(dir, err)
	}

	infos := make([]fsx.FileInfo, 0, len(entries))
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue // removed between ReadDir and Info
		}
		infos = append(infos, toFileInfo(info))
	}
	return infos, nil
}

// BasePath returns the absolute root directory.
func (l *LocalFileSystem) BasePath() string {
	return l.basePath
}

func (l *LocalFileSystem) fullPath(path string) (string, error) {
	full := filepath.Join(l.basePath, filepath.FromSlash(path))
	if full != l.basePath && !strings.HasPrefix(full, l.basePath+string(filepath.Separator)) {
		return "", fsx.InvalidPath(path)
	}
	return full, nil
}

func (l *LocalFileSystem) wrap(path string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fsx.NotFound(path)
	}
	return fsx.ReadError(path, err)
}

func toFileInfo(info fs.FileInfo) fsx.FileInfo {
	return fsx.FileInfo{
		Name:        info.Name(),
		Size:        info.Size(),
		ModTime:     info.ModTime(),
		IsDir:       info.IsDir(),
		ContentType: fsx.DetectContentType(info.Name()),
		Metadata:    make(map[string]string),
	}
}
