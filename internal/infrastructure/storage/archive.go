// Package storage keeps journal archives on the local filesystem.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/garyjia/refund-approval/internal/application/port"
)

// LocalArchive implements port.ArchiveStore under a base directory
type LocalArchive struct {
	baseDir string
	logger  *zap.Logger
}

var _ port.ArchiveStore = (*LocalArchive)(nil)

// NewLocalArchive creates a new LocalArchive
func NewLocalArchive(baseDir string, logger *zap.Logger) *LocalArchive {
	return &LocalArchive{
		baseDir: baseDir,
		logger:  logger,
	}
}

// Save writes content to a relative path. Existing files are never replaced.
func (a *LocalArchive) Save(ctx context.Context, path string, content []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	fullPath := a.FullPath(path)
	if err := a.validatePath(fullPath); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		a.logger.Error("Failed to create archive directory", zap.String("path", fullPath), zap.Error(err))
		return fmt.Errorf("failed to create directories: %w", err)
	}

	f, err := os.OpenFile(fullPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}
	if _, err := f.Write(content); err != nil {
		_ = f.Close()
		_ = os.Remove(fullPath)
		return fmt.Errorf("failed to write archive file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(fullPath)
		return fmt.Errorf("failed to close archive file: %w", err)
	}

	a.logger.Info("Archive saved", zap.String("path", fullPath), zap.Int("size", len(content)))
	return nil
}

// Read returns the content at a relative path
func (a *LocalArchive) Read(path string) ([]byte, error) {
	fullPath := a.FullPath(path)
	if err := a.validatePath(fullPath); err != nil {
		return nil, err
	}
	return os.ReadFile(fullPath)
}

// FullPath converts a relative path to a full path
func (a *LocalArchive) FullPath(relativePath string) string {
	return filepath.Join(a.baseDir, relativePath)
}

// validatePath checks that the path stays within baseDir
func (a *LocalArchive) validatePath(fullPath string) error {
	absPath, err := filepath.Abs(fullPath)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	absBase, err := filepath.Abs(a.baseDir)
	if err != nil {
		return fmt.Errorf("failed to resolve base path: %w", err)
	}

	if !strings.HasPrefix(absPath, absBase+string(filepath.Separator)) {
		return fmt.Errorf("path escapes archive directory: %s", fullPath)
	}
	return nil
}
