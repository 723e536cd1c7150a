package validation

import (
	"fmt"
	"strings"
	"time"

	"github.com/altafino/attachment-fetcher/internal/email"
	"github.com/altafino/attachment-fetcher/internal/filter"
	"github.com/altafino/attachment-fetcher/internal/rename"
	"github.com/altafino/attachment-fetcher/internal/types"
)

// ValidateConfig performs validation on a single configuration
func ValidateConfig(cfg *types.Config) error {
	if err := validateMeta(cfg); err != nil {
		return fmt.Errorf("meta validation failed: %w", err)
	}

	if err := validateAccount(cfg); err != nil {
		return fmt.Errorf("account validation failed: %w", err)
	}

	if err := validateFilter(cfg); err != nil {
		return fmt.Errorf("filter validation failed: %w", err)
	}

	if err := validateRename(cfg); err != nil {
		return fmt.Errorf("rename validation failed: %w", err)
	}

	if err := validateDownload(cfg); err != nil {
		return fmt.Errorf("download validation failed: %w", err)
	}

	if err := validateStorage(cfg); err != nil {
		return fmt.Errorf("storage validation failed: %w", err)
	}

	if err := validateTracking(cfg); err != nil {
		return fmt.Errorf("tracking validation failed: %w", err)
	}

	if err := validateLogging(cfg); err != nil {
		return fmt.Errorf("logging validation failed: %w", err)
	}

	if err := validateMonitoring(cfg); err != nil {
		return fmt.Errorf("monitoring validation failed: %w", err)
	}

	if err := validateScheduling(cfg); err != nil {
		return fmt.Errorf("scheduling validation failed: %w", err)
	}

	return nil
}

func validateMeta(cfg *types.Config) error {
	if cfg.Meta.ID == "" {
		return fmt.Errorf("meta.id is required")
	}

	if !isValidID(cfg.Meta.ID) {
		return fmt.Errorf("meta.id contains invalid characters (use only alphanumeric, dash, underscore)")
	}

	if cfg.Meta.Name == "" {
		return fmt.Errorf("meta.name is required")
	}

	return nil
}

func validateAccount(cfg *types.Config) error {
	acc := cfg.Account
	provider, err := email.LookupProvider(acc.Provider)
	if err != nil {
		return fmt.Errorf("account.provider must be one of: %v", email.ProviderKeys())
	}

	if acc.Username == "" {
		return fmt.Errorf("account.username is required")
	}

	if provider.Key != email.ProviderGmailAPI && acc.Server == "" && provider.Server == "" {
		return fmt.Errorf("account.server is required for provider %s", provider.Key)
	}

	if acc.Port < 0 || acc.Port > 65535 {
		return fmt.Errorf("account.port must be between 1 and 65535")
	}

	if acc.Timeout < 0 {
		return fmt.Errorf("account.timeout must not be negative")
	}

	if acc.PageSize < 0 {
		return fmt.Errorf("account.page_size must not be negative")
	}

	if provider.Key == email.ProviderGmailAPI && !acc.OAuth2.Enabled {
		return fmt.Errorf("account.oauth2 must be enabled for provider %s", provider.Key)
	}

	if provider.Key == email.ProviderPOP3 && acc.OAuth2.Enabled {
		return fmt.Errorf("account.oauth2 is not supported for provider %s", provider.Key)
	}

	if provider.Key == email.ProviderPOP3 {
		for _, folder := range cfg.Folders {
			if !strings.EqualFold(folder, "INBOX") {
				return fmt.Errorf("folders: POP3 only supports INBOX, got %q", folder)
			}
		}
	}

	return validateOAuth2(acc.OAuth2)
}

func validateOAuth2(cfg types.OAuth2Config) error {
	if !cfg.Enabled {
		return nil
	}

	switch cfg.Provider {
	case "google", "microsoft":
	default:
		return fmt.Errorf("account.oauth2.provider must be 'google' or 'microsoft'")
	}

	if cfg.ClientID == "" {
		return fmt.Errorf("account.oauth2.client_id is required")
	}

	switch cfg.TokenStore {
	case "", "file", "keyring":
	default:
		return fmt.Errorf("account.oauth2.token_store must be 'file' or 'keyring'")
	}

	return nil
}

func validateFilter(cfg *types.Config) error {
	if cfg.Filter.MinSize < 0 || cfg.Filter.MaxSize < 0 {
		return fmt.Errorf("filter sizes must not be negative")
	}
	if cfg.Filter.MaxSize > 0 && cfg.Filter.MinSize > cfg.Filter.MaxSize {
		return fmt.Errorf("filter.min_size must not exceed filter.max_size")
	}
	if _, err := filter.FromConfig(cfg.Filter); err != nil {
		return err
	}
	return nil
}

func validateRename(cfg *types.Config) error {
	if cfg.Rename.Preset != "" {
		if _, ok := rename.LookupPreset(cfg.Rename.Preset); !ok {
			return fmt.Errorf("rename.preset %q is unknown", cfg.Rename.Preset)
		}
	}
	if _, err := rename.RuleFromConfig(cfg.Rename); err != nil {
		return err
	}
	return nil
}

func validateDownload(cfg *types.Config) error {
	d := cfg.Download

	if d.Destination == "" {
		return fmt.Errorf("download.destination is required")
	}

	if d.Concurrency <= 0 {
		return fmt.Errorf("download.concurrency must be positive")
	}

	if d.RateLimit < 0 {
		return fmt.Errorf("download.rate_limit must not be negative")
	}

	if d.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("download.retry.max_attempts must be positive")
	}

	if d.Retry.InitialDelayMs < 0 || d.Retry.MaxDelayMs < 0 {
		return fmt.Errorf("download.retry delays must not be negative")
	}

	if d.JobTimeout < 0 || d.ShutdownGrace < 0 {
		return fmt.Errorf("download timeouts must not be negative")
	}

	return nil
}

func validateStorage(cfg *types.Config) error {
	switch cfg.Storage.Type {
	case "file":
	case "gdrive":
		if cfg.Storage.CredentialsFile == "" && !cfg.Account.OAuth2.Enabled {
			return fmt.Errorf("storage.credentials_file or account.oauth2 is required for gdrive storage")
		}
	default:
		return fmt.Errorf("storage.type must be 'file' or 'gdrive'")
	}
	return nil
}

func validateTracking(cfg *types.Config) error {
	if !cfg.Tracking.Enabled {
		return nil // Skip validation if tracking is disabled
	}

	switch cfg.Tracking.StorageType {
	case "file", "sqlite":
	default:
		return fmt.Errorf("tracking.storage_type must be 'file' or 'sqlite'")
	}

	if cfg.Tracking.StoragePath == "" {
		return fmt.Errorf("tracking.storage_path is required")
	}

	if cfg.Tracking.RetentionDays < 0 {
		return fmt.Errorf("tracking.retention_days must not be negative")
	}

	return nil
}

func validateLogging(cfg *types.Config) error {
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if !validLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}

	validFormats := map[string]bool{
		"text": true,
		"json": true,
		"dev":  true,
	}

	if !validFormats[cfg.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: text, json, dev")
	}

	return nil
}

func validateMonitoring(cfg *types.Config) error {
	if !cfg.Monitoring.MetricsEnabled {
		return nil
	}
	if cfg.Monitoring.MetricsPort <= 0 || cfg.Monitoring.MetricsPort > 65535 {
		return fmt.Errorf("monitoring.metrics_port must be between 1 and 65535")
	}
	return nil
}

func validateScheduling(cfg *types.Config) error {
	if !cfg.Scheduling.Enabled {
		return nil // Skip validation if scheduling is disabled
	}

	// Validate frequency_every
	validFrequencies := map[string]bool{
		"minute": true,
		"hour":   true,
		"day":    true,
		"week":   true,
		"month":  true,
	}

	if !validFrequencies[cfg.Scheduling.FrequencyEvery] {
		return fmt.Errorf("scheduling.frequency_every must be one of: minute, hour, day, week, month")
	}

	// Validate frequency_amount
	if cfg.Scheduling.FrequencyAmount < 1 {
		return fmt.Errorf("scheduling.frequency_amount must be greater than 0")
	}

	// Validate start and stop times if provided
	if !cfg.Scheduling.StartNow {
		if cfg.Scheduling.StartAt == "" {
			return fmt.Errorf("scheduling.start_at is required when start_now is false")
		}
		if _, err := time.Parse(time.RFC3339, cfg.Scheduling.StartAt); err != nil {
			return fmt.Errorf("scheduling.start_at must be in RFC3339 format (e.g., 2006-01-02T15:04:05Z)")
		}
	}

	if cfg.Scheduling.StopAt != "" {
		stopAt, err := time.Parse(time.RFC3339, cfg.Scheduling.StopAt)
		if err != nil {
			return fmt.Errorf("scheduling.stop_at must be in RFC3339 format (e.g., 2006-01-02T15:04:05Z)")
		}

		// If start_at is provided, validate stop_at is after start_at
		if cfg.Scheduling.StartAt != "" {
			startAt, _ := time.Parse(time.RFC3339, cfg.Scheduling.StartAt)
			if stopAt.Before(startAt) {
				return fmt.Errorf("scheduling.stop_at must be after start_at")
			}
		}

		// If start_now is true, validate stop_at is in the future
		if cfg.Scheduling.StartNow {
			if stopAt.Before(time.Now().UTC()) {
				return fmt.Errorf("scheduling.stop_at must be in the future when start_now is true")
			}
		}
	}

	// Additional frequency-specific validations
	switch cfg.Scheduling.FrequencyEvery {
	case "minute":
		if cfg.Scheduling.FrequencyAmount > 60 {
			return fmt.Errorf("scheduling.frequency_amount must not exceed 60 for minute frequency")
		}
	case "hour":
		if cfg.Scheduling.FrequencyAmount > 24 {
			return fmt.Errorf("scheduling.frequency_amount must not exceed 24 for hour frequency")
		}
	case "day":
		if cfg.Scheduling.FrequencyAmount > 31 {
			return fmt.Errorf("scheduling.frequency_amount must not exceed 31 for day frequency")
		}
	case "week":
		if cfg.Scheduling.FrequencyAmount > 52 {
			return fmt.Errorf("scheduling.frequency_amount must not exceed 52 for week frequency")
		}
	case "month":
		if cfg.Scheduling.FrequencyAmount > 12 {
			return fmt.Errorf("scheduling.frequency_amount must not exceed 12 for month frequency")
		}
	}

	return nil
}

func isValidID(id string) bool {
	for _, r := range id {
		if !isValidIDChar(r) {
			return false
		}
	}
	return true
}

func isValidIDChar(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9') ||
		r == '-' ||
		r == '_'
}
