package attachment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// FileStorage writes attachments below a root directory. Every file is
// written to a temporary sibling and renamed into place, so a partially
// written file is never visible under its final name.
type FileStorage struct {
	root   string
	logger *slog.Logger
}

// NewFileStorage creates the root directory if needed.
func NewFileStorage(root string, logger *slog.Logger) (*FileStorage, error) {
	if root == "" {
		return nil, errors.New("storage root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, &FilesystemError{Op: "resolve", Path: root, Err: err}
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, &FilesystemError{Op: "mkdir", Path: abs, Err: err}
	}
	return &FileStorage{root: abs, logger: logger}, nil
}

// Root returns the absolute destination directory.
func (fs *FileStorage) Root() string { return fs.root }

func (fs *FileStorage) resolve(relPath string) (string, error) {
	if relPath == "" {
		return "", &FilesystemError{Op: "resolve", Path: relPath, Err: errors.New("empty path")}
	}
	full := filepath.Join(fs.root, filepath.FromSlash(relPath))
	rel, err := filepath.Rel(fs.root, full)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", &FilesystemError{Op: "resolve", Path: relPath, Err: errors.New("path escapes storage root")}
	}
	return full, nil
}

// Save writes content atomically and returns the absolute path.
func (fs *FileStorage) Save(ctx context.Context, relPath string, content []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	finalPath, err := fs.resolve(relPath)
	if err != nil {
		return "", err
	}

	dir := filepath.Dir(finalPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", &FilesystemError{Op: "mkdir", Path: dir, Err: err}
	}

	tmp, err := os.CreateTemp(dir, ".fetch-*.part")
	if err != nil {
		return "", &FilesystemError{Op: "create", Path: dir, Err: err}
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return "", &FilesystemError{Op: "write", Path: tmpPath, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		return "", &FilesystemError{Op: "sync", Path: tmpPath, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return "", &FilesystemError{Op: "close", Path: tmpPath, Err: err}
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		return "", &FilesystemError{Op: "chmod", Path: tmpPath, Err: err}
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return "", &FilesystemError{Op: "rename", Path: finalPath, Err: err}
	}
	committed = true

	fs.logger.Debug("attachment written", "path", finalPath, "size", len(content))
	return finalPath, nil
}

// Exists reports whether relPath already exists. Names are compared the
// way the host filesystem compares them.
func (fs *FileStorage) Exists(ctx context.Context, relPath string) (bool, error) {
	full, err := fs.resolve(relPath)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(full)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, &FilesystemError{Op: "stat", Path: full, Err: fmt.Errorf("failed to check existing file: %w", err)}
	}
}
