package attachment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// AttachmentStorage defines the interface for storing attachments
type AttachmentStorage interface {
	// Save stores content at relPath (slash separated, relative to the
	// storage root) and returns the final path or identifier.
	Save(ctx context.Context, relPath string, content []byte) (string, error)
}

// Exister is implemented by storages that can tell whether relPath is taken.
type Exister interface {
	Exists(ctx context.Context, relPath string) (bool, error)
}

// StorageType represents the type of storage backend
type StorageType string

const (
	StorageTypeFile   StorageType = "file"
	StorageTypeGDrive StorageType = "gdrive"
)

// StorageConfig holds configuration for creating storage instances
type StorageConfig struct {
	Type StorageType
	// Root is the destination directory for file storage.
	Root            string
	CredentialsFile string // Path to Google Drive credentials JSON file
	ParentFolderID  string // Google Drive folder ID where files will be stored
}

// NewStorage creates a new storage instance based on the configuration
func NewStorage(ctx context.Context, config StorageConfig, logger *slog.Logger) (AttachmentStorage, error) {
	switch config.Type {
	case StorageTypeFile, "":
		return NewFileStorage(config.Root, logger)
	case StorageTypeGDrive:
		return NewGDriveStorage(ctx, logger, config.ParentFolderID, config.CredentialsFile)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", config.Type)
	}
}

// FilesystemError reports a failed local write. It is never retried.
type FilesystemError struct {
	Op   string
	Path string
	Err  error
}

func (e *FilesystemError) Error() string {
	return fmt.Sprintf("filesystem error: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FilesystemError) Unwrap() error { return e.Err }

// IsFilesystemError reports whether err (or any error in its chain) is a FilesystemError.
func IsFilesystemError(err error) bool {
	var fsErr *FilesystemError
	return errors.As(err, &fsErr)
}
