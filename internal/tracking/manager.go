package tracking

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/altafino/attachment-fetcher/internal/models"
	"github.com/altafino/attachment-fetcher/internal/types"
)

// Manager handles attachment tracking operations
type Manager struct {
	enabled       bool
	account       string
	retentionDays int
	logger        *slog.Logger
	storage       Storage
	mu            sync.Mutex
}

// NewManager creates a new tracking manager. A disabled manager reports
// nothing as downloaded and records nothing.
func NewManager(cfg *types.Config, logger *slog.Logger) (*Manager, error) {
	m := &Manager{
		enabled:       cfg.Tracking.Enabled,
		account:       AccountKey(cfg),
		retentionDays: cfg.Tracking.RetentionDays,
		logger:        logger,
	}
	if !m.enabled {
		logger.Debug("attachment tracking is disabled")
		return m, nil
	}

	storage, err := NewStorage(cfg.Tracking.StorageType, cfg.Tracking.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create tracking storage: %w", err)
	}
	if err := storage.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize tracking storage: %w", err)
	}

	logger.Debug("initialized attachment tracking",
		"storage_type", cfg.Tracking.StorageType,
		"storage_path", cfg.Tracking.StoragePath)

	m.storage = storage
	return m, nil
}

// NewManagerWithStorage wraps an initialized storage.
func NewManagerWithStorage(storage Storage, account string, logger *slog.Logger) *Manager {
	return &Manager{enabled: true, account: account, storage: storage, logger: logger}
}

// AccountKey scopes records to one mailbox.
func AccountKey(cfg *types.Config) string {
	return fmt.Sprintf("%s:%s@%s", cfg.Account.Provider, cfg.Account.Username, cfg.Account.Server)
}

// Close cleans up resources
func (m *Manager) Close() error {
	if m.storage != nil {
		return m.storage.Close()
	}
	return nil
}

// IsDownloaded checks if an attachment was downloaded by an earlier run.
func (m *Manager) IsDownloaded(ctx context.Context, a models.Attachment) (bool, error) {
	if !m.enabled || m.storage == nil {
		return false, nil
	}

	downloaded, err := m.storage.HasRecord(m.account, AttachmentKey(a))
	if err != nil {
		m.logger.Error("failed to check if attachment was downloaded",
			"message_id", a.MessageID,
			"filename", a.Filename,
			"error", err)
		return false, err
	}
	return downloaded, nil
}

// MarkDownloaded records a downloaded attachment.
func (m *Manager) MarkDownloaded(ctx context.Context, a models.Attachment, location string) error {
	if !m.enabled || m.storage == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	record := AttachmentRecord{
		Key:          AttachmentKey(a),
		Account:      m.account,
		Folder:       a.Folder,
		MessageID:    a.MessageID,
		Filename:     a.Filename,
		Subject:      a.Subject,
		Location:     location,
		Size:         a.Size,
		DownloadedAt: time.Now().UTC(),
	}
	if err := m.storage.AddRecord(record); err != nil {
		m.logger.Error("failed to mark attachment as downloaded",
			"message_id", a.MessageID,
			"filename", a.Filename,
			"error", err)
		return err
	}

	m.logger.Debug("marked attachment as downloaded",
		"message_id", a.MessageID,
		"filename", a.Filename,
		"location", location)
	return nil
}

// CleanupOldRecords removes records older than the retention period
func (m *Manager) CleanupOldRecords() error {
	if !m.enabled || m.storage == nil || m.retentionDays <= 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.storage.CleanupOldRecords(m.retentionDays); err != nil {
		m.logger.Error("failed to clean up old records", "error", err)
		return err
	}

	m.logger.Info("cleaned up old attachment tracking records",
		"retention_days", m.retentionDays)
	return nil
}
