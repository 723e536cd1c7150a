package validation

import (
	"testing"
	"time"

	"github.com/altafino/attachment-fetcher/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *types.Config {
	cfg := &types.Config{}
	cfg.Meta.ID = "invoices"
	cfg.Meta.Name = "Invoices"
	cfg.Meta.Enabled = true
	cfg.Account.Provider = "gmail"
	cfg.Account.Username = "me@example.com"
	cfg.Folders = []string{"INBOX"}
	cfg.Filter.FileTypes = []string{"pdf"}
	cfg.Rename.Preset = "date_filename"
	cfg.Download.Destination = "/tmp/out"
	cfg.Download.Concurrency = 4
	cfg.Download.Retry.MaxAttempts = 3
	cfg.Storage.Type = "file"
	cfg.Tracking.StorageType = "file"
	cfg.Tracking.StoragePath = "/tmp/tracking"
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "text"
	return cfg
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*types.Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*types.Config) {}},
		{
			name:    "missing id",
			mutate:  func(c *types.Config) { c.Meta.ID = "" },
			wantErr: "meta.id is required",
		},
		{
			name:    "invalid id",
			mutate:  func(c *types.Config) { c.Meta.ID = "bad id!" },
			wantErr: "meta.id contains invalid characters",
		},
		{
			name:    "unknown provider",
			mutate:  func(c *types.Config) { c.Account.Provider = "exchange" },
			wantErr: "account.provider must be one of",
		},
		{
			name:    "imap without server",
			mutate:  func(c *types.Config) { c.Account.Provider = "imap" },
			wantErr: "account.server is required",
		},
		{
			name: "pop3 other folder",
			mutate: func(c *types.Config) {
				c.Account.Provider = "pop3"
				c.Account.Server = "pop.example.com"
				c.Folders = []string{"Archive"}
			},
			wantErr: "POP3 only supports INBOX",
		},
		{
			name:    "gmail api without oauth2",
			mutate:  func(c *types.Config) { c.Account.Provider = "gmail-api" },
			wantErr: "account.oauth2 must be enabled",
		},
		{
			name: "bad oauth2 provider",
			mutate: func(c *types.Config) {
				c.Account.OAuth2.Enabled = true
				c.Account.OAuth2.Provider = "yahoo"
			},
			wantErr: "account.oauth2.provider",
		},
		{
			name: "bad token store",
			mutate: func(c *types.Config) {
				c.Account.OAuth2.Enabled = true
				c.Account.OAuth2.Provider = "google"
				c.Account.OAuth2.ClientID = "id"
				c.Account.OAuth2.TokenStore = "vault"
			},
			wantErr: "account.oauth2.token_store",
		},
		{
			name:    "unknown file type",
			mutate:  func(c *types.Config) { c.Filter.FileTypes = []string{"videos"} },
			wantErr: "filter validation failed",
		},
		{
			name:    "bad date",
			mutate:  func(c *types.Config) { c.Filter.Since = "15/01/2024" },
			wantErr: "filter.since",
		},
		{
			name: "min above max",
			mutate: func(c *types.Config) {
				c.Filter.MinSize = 100
				c.Filter.MaxSize = 10
			},
			wantErr: "filter.min_size must not exceed",
		},
		{
			name:    "unknown preset",
			mutate:  func(c *types.Config) { c.Rename.Preset = "fancy" },
			wantErr: "rename.preset \"fancy\" is unknown",
		},
		{
			name: "bad placeholder",
			mutate: func(c *types.Config) {
				c.Rename.Preset = ""
				c.Rename.Template = "{nope}_{filename}"
			},
			wantErr: "rename validation failed",
		},
		{
			name:    "zero concurrency",
			mutate:  func(c *types.Config) { c.Download.Concurrency = 0 },
			wantErr: "download.concurrency must be positive",
		},
		{
			name:    "negative rate",
			mutate:  func(c *types.Config) { c.Download.RateLimit = -1 },
			wantErr: "download.rate_limit",
		},
		{
			name:    "unknown storage",
			mutate:  func(c *types.Config) { c.Storage.Type = "s3" },
			wantErr: "storage.type",
		},
		{
			name: "tracking database",
			mutate: func(c *types.Config) {
				c.Tracking.Enabled = true
				c.Tracking.StorageType = "database"
			},
			wantErr: "tracking.storage_type",
		},
		{
			name:    "bad log format",
			mutate:  func(c *types.Config) { c.Logging.Format = "xml" },
			wantErr: "logging.format",
		},
		{
			name: "metrics port",
			mutate: func(c *types.Config) {
				c.Monitoring.MetricsEnabled = true
				c.Monitoring.MetricsPort = 70000
			},
			wantErr: "monitoring.metrics_port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := ValidateConfig(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateScheduling(t *testing.T) {
	future := time.Now().UTC().Add(48 * time.Hour).Format(time.RFC3339)
	past := time.Now().UTC().Add(-48 * time.Hour).Format(time.RFC3339)

	tests := []struct {
		name     string
		every    string
		amount   int
		startNow bool
		startAt  string
		stopAt   string
		wantErr  bool
	}{
		{name: "every hour", every: "hour", amount: 2, startNow: true},
		{name: "unknown frequency", every: "decade", amount: 1, startNow: true, wantErr: true},
		{name: "zero amount", every: "day", amount: 0, startNow: true, wantErr: true},
		{name: "too many minutes", every: "minute", amount: 61, startNow: true, wantErr: true},
		{name: "start_at required", every: "day", amount: 1, wantErr: true},
		{name: "bad start_at", every: "day", amount: 1, startAt: "tomorrow", wantErr: true},
		{name: "start and stop", every: "week", amount: 1, startAt: past, stopAt: future},
		{name: "stop before start", every: "week", amount: 1, startAt: future, stopAt: past, wantErr: true},
		{name: "stop in past", every: "month", amount: 1, startNow: true, stopAt: past, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Scheduling.Enabled = true
			cfg.Scheduling.FrequencyEvery = tt.every
			cfg.Scheduling.FrequencyAmount = tt.amount
			cfg.Scheduling.StartNow = tt.startNow
			cfg.Scheduling.StartAt = tt.startAt
			cfg.Scheduling.StopAt = tt.stopAt

			err := validateScheduling(cfg)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestIsValidID(t *testing.T) {
	assert.True(t, isValidID("my-profile_01"))
	assert.False(t, isValidID("my profile"))
	assert.False(t, isValidID("../etc"))
}
