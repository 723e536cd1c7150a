package errorlog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/altafino/attachment-fetcher/internal/email"
	"github.com/altafino/attachment-fetcher/internal/email/attachment"
	"github.com/altafino/attachment-fetcher/internal/models"
	"github.com/altafino/attachment-fetcher/internal/types"
)

// Error types written to the journal.
const (
	TypeAuth       = "auth"
	TypeRateLimit  = "rate_limit"
	TypeTransient  = "transient_network"
	TypeFilesystem = "filesystem"
	TypeCanceled   = "canceled"
	TypeOther      = "other"
)

// Manager handles failed job journaling
type Manager struct {
	cfg    *types.Config
	logger *slog.Logger
	impl   Logger
}

// NewManager creates a new journal manager. When error logging is
// disabled every call is a no-op.
func NewManager(cfg *types.Config, logger *slog.Logger) (*Manager, error) {
	if !cfg.ErrorLogging.Enabled {
		logger.Debug("failed job journal is disabled")
		return &Manager{cfg: cfg, logger: logger, impl: noopLogger{}}, nil
	}

	impl, err := NewFileLogger(cfg.ErrorLogging.StoragePath, cfg.ErrorLogging.RetentionDays, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize error logger: %w", err)
	}

	return &Manager{cfg: cfg, logger: logger, impl: impl}, nil
}

// LogJobFailure records a failed download job.
func (m *Manager) LogJobFailure(runID string, job models.JobResult, a models.Attachment, jobErr error) error {
	failure := JobFailure{
		ConfigID:    m.cfg.Meta.ID,
		RunID:       runID,
		JobID:       job.ID,
		Provider:    m.cfg.Account.Provider,
		Username:    m.cfg.Account.Username,
		Folder:      a.Folder,
		MessageID:   a.MessageID,
		Sender:      a.Sender,
		Subject:     a.Subject,
		Filename:    a.Filename,
		Destination: job.Destination,
		Attempts:    job.Attempts,
		SentAt:      a.Date,
		ErrorType:   ErrorType(jobErr),
	}
	if jobErr != nil {
		failure.ErrorMsg = jobErr.Error()
	}

	if err := m.impl.LogFailure(failure); err != nil {
		m.logger.Error("failed to journal job failure", "job_id", job.ID, "error", err)
		return err
	}
	return nil
}

// ErrorType maps an error onto the journal's error type.
func ErrorType(err error) string {
	switch {
	case err == nil:
		return TypeOther
	case email.IsAuthError(err):
		return TypeAuth
	case email.IsRateLimitError(err):
		return TypeRateLimit
	case email.IsTransient(err):
		return TypeTransient
	case attachment.IsFilesystemError(err):
		return TypeFilesystem
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return TypeCanceled
	}
	return TypeOther
}

// GetFailures retrieves failures based on filters
func (m *Manager) GetFailures(filters map[string]string) ([]JobFailure, error) {
	return m.impl.GetFailures(filters)
}

// CleanupOldFailures removes failures older than the retention period
func (m *Manager) CleanupOldFailures() error {
	return m.impl.CleanupOldFailures()
}

// Close releases any resources used by the logger
func (m *Manager) Close() error {
	return m.impl.Close()
}

// noopLogger is used when journaling is disabled
type noopLogger struct{}

func (noopLogger) LogFailure(JobFailure) error { return nil }
func (noopLogger) GetFailures(map[string]string) ([]JobFailure, error) { return nil, nil }
func (noopLogger) CleanupOldFailures() error { return nil }
func (noopLogger) Close() error { return nil }
