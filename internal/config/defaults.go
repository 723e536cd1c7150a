package config

import (
	"path/filepath"

	"github.com/altafino/attachment-fetcher/internal/types"
)

// ApplyDefaults fills unset fields. Relative state paths are placed under
// baseDir.
func ApplyDefaults(cfg *types.Config, baseDir string) {
	if len(cfg.Folders) == 0 {
		cfg.Folders = []string{"INBOX"}
	}
	if cfg.Account.Timeout <= 0 {
		cfg.Account.Timeout = 30
	}
	if cfg.Account.PageSize <= 0 {
		cfg.Account.PageSize = 50
	}
	if cfg.Account.OAuth2.Enabled && cfg.Account.OAuth2.TokenStoragePath == "" {
		cfg.Account.OAuth2.TokenStoragePath = filepath.Join(baseDir, "tokens")
	}

	d := &cfg.Download
	if d.Destination == "" {
		d.Destination = filepath.Join(baseDir, "downloads", cfg.Meta.ID)
	}
	if d.Concurrency <= 0 {
		d.Concurrency = 4
	}
	if d.Retry.MaxAttempts <= 0 {
		d.Retry.MaxAttempts = 3
	}
	if d.Retry.InitialDelayMs <= 0 {
		d.Retry.InitialDelayMs = 500
	}
	if d.Retry.MaxDelayMs <= 0 {
		d.Retry.MaxDelayMs = 30000
	}
	if d.JobTimeout <= 0 {
		d.JobTimeout = 120
	}
	if d.ShutdownGrace <= 0 {
		d.ShutdownGrace = 10
	}

	if cfg.Storage.Type == "" {
		cfg.Storage.Type = "file"
	}

	if cfg.Tracking.StorageType == "" {
		cfg.Tracking.StorageType = "file"
	}
	if cfg.Tracking.StoragePath == "" {
		cfg.Tracking.StoragePath = filepath.Join(baseDir, "tracking", cfg.Meta.ID)
	}
	if cfg.Tracking.RetentionDays <= 0 {
		cfg.Tracking.RetentionDays = 365
	}

	if cfg.ErrorLogging.StoragePath == "" {
		cfg.ErrorLogging.StoragePath = filepath.Join(baseDir, "errors")
	}
	if cfg.ErrorLogging.RetentionDays <= 0 {
		cfg.ErrorLogging.RetentionDays = 30
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}

	if cfg.Monitoring.MetricsPath == "" {
		cfg.Monitoring.MetricsPath = "/metrics"
	}
	if cfg.Monitoring.MetricsPort == 0 {
		cfg.Monitoring.MetricsPort = 9090
	}
}
