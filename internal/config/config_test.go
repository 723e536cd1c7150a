package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/altafino/attachment-fetcher/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const invoicesProfile = `
meta:
  id: invoices
  name: Invoices
  enabled: true
  template: gmail
account:
  username: ${FETCHER_TEST_USER}
filter:
  file_types: [pdf]
rename:
  preset: date_filename
download:
  concurrency: 2
`

const gmailTemplate = `
account:
  provider: gmail
  page_size: 25
  tls:
    enabled: true
    verify_cert: true
download:
  concurrency: 8
  rate_limit: 5
`

const archiveProfile = `
meta:
  id: archive
  name: Archive
  enabled: false
account:
  provider: imap
  server: imap.example.com
  username: archive@example.com
folders: [Archive, INBOX]
`

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoad(t *testing.T) {
	t.Setenv("FETCHER_TEST_USER", "me@example.com")

	dir := t.TempDir()
	writeFile(t, dir, "invoices.config.yaml", invoicesProfile)
	writeFile(t, dir, "archive.config.yaml", archiveProfile)
	writeFile(t, dir, "notes.txt", "ignored")
	writeFile(t, filepath.Join(dir, "templates"), "gmail.yaml", gmailTemplate)

	store, err := Load(dir, testLogger())
	require.NoError(t, err)

	all := store.List()
	require.Len(t, all, 2)
	assert.Equal(t, "archive", all[0].Meta.ID)
	assert.Equal(t, "invoices", all[1].Meta.ID)

	enabled := store.Enabled()
	require.Len(t, enabled, 1)
	assert.Equal(t, "invoices", enabled[0].Meta.ID)

	cfg, err := store.Get("invoices")
	require.NoError(t, err)
	assert.Equal(t, "me@example.com", cfg.Account.Username)
	// from the template
	assert.Equal(t, "gmail", cfg.Account.Provider)
	assert.Equal(t, 25, cfg.Account.PageSize)
	assert.True(t, cfg.Account.TLS.Enabled)
	assert.Equal(t, 5.0, cfg.Download.RateLimit)
	// the profile wins over the template
	assert.Equal(t, 2, cfg.Download.Concurrency)
	// defaults
	assert.Equal(t, []string{"INBOX"}, cfg.Folders)
	assert.Equal(t, filepath.Join(dir, "downloads", "invoices"), cfg.Download.Destination)
	assert.Equal(t, 3, cfg.Download.Retry.MaxAttempts)

	archive, err := store.Get("archive")
	require.NoError(t, err)
	assert.Equal(t, []string{"Archive", "INBOX"}, archive.Folders)

	_, err = store.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		files   map[string]string
		wantErr string
	}{
		{
			name:    "missing id",
			files:   map[string]string{"a.config.yaml": "meta:\n  name: A\n"},
			wantErr: "missing required meta.id",
		},
		{
			name: "duplicate id",
			files: map[string]string{
				"a.config.yaml": archiveProfile,
				"b.config.yaml": archiveProfile,
			},
			wantErr: "duplicate config ID archive",
		},
		{
			name:    "unknown template",
			files:   map[string]string{"a.config.yaml": "meta:\n  id: a\n  name: A\n  template: nope\n"},
			wantErr: "template nope not found",
		},
		{
			name:    "invalid yaml",
			files:   map[string]string{"a.config.yaml": "meta: [unclosed"},
			wantErr: "failed to load config a.config.yaml",
		},
		{
			name:    "validation",
			files:   map[string]string{"a.config.yaml": "meta:\n  id: a\n  name: A\naccount:\n  provider: exchange\n"},
			wantErr: "invalid config a.config.yaml",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			for name, content := range tt.files {
				writeFile(t, dir, name, content)
			}
			_, err := Load(dir, testLogger())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestReload_KeepsPreviousOnError(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "archive.config.yaml", archiveProfile)

	store, err := Load(dir, testLogger())
	require.NoError(t, err)

	writeFile(t, dir, "broken.config.yaml", "meta: [unclosed")
	require.Error(t, store.Reload())
	assert.Len(t, store.List(), 1)
}

func TestGet_ReturnsCopy(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "archive.config.yaml", archiveProfile)
	store, err := Load(dir, testLogger())
	require.NoError(t, err)

	cfg, err := store.Get("archive")
	require.NoError(t, err)
	cfg.Meta.Name = "changed"

	again, err := store.Get("archive")
	require.NoError(t, err)
	assert.Equal(t, "Archive", again.Meta.Name)
}

func TestApplyDefaults(t *testing.T) {
	cfg := &types.Config{}
	cfg.Meta.ID = "p"
	cfg.Download.Concurrency = 7
	cfg.Account.OAuth2.Enabled = true

	ApplyDefaults(cfg, "/etc/fetcher")

	assert.Equal(t, []string{"INBOX"}, cfg.Folders)
	assert.Equal(t, 30, cfg.Account.Timeout)
	assert.Equal(t, 50, cfg.Account.PageSize)
	assert.Equal(t, "/etc/fetcher/tokens", cfg.Account.OAuth2.TokenStoragePath)
	assert.Equal(t, 7, cfg.Download.Concurrency)
	assert.Equal(t, 500, cfg.Download.Retry.InitialDelayMs)
	assert.Equal(t, "file", cfg.Storage.Type)
	assert.Equal(t, "/etc/fetcher/tracking/p", cfg.Tracking.StoragePath)
	assert.Equal(t, "/etc/fetcher/errors", cfg.ErrorLogging.StoragePath)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, 9090, cfg.Monitoring.MetricsPort)
}

func TestLoadTemplates_MissingDir(t *testing.T) {
	templates, err := LoadTemplates(filepath.Join(t.TempDir(), "templates"))
	require.NoError(t, err)
	assert.Empty(t, templates)
}

func TestWatcher_Reloads(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "archive.config.yaml", archiveProfile)

	store, err := Load(dir, testLogger())
	require.NoError(t, err)

	w, err := Watch(store, testLogger())
	require.NoError(t, err)
	defer w.Stop()

	writeFile(t, dir, "second.config.yaml", `
meta:
  id: second
  name: Second
account:
  provider: gmail
  username: me@example.com
`)

	select {
	case <-w.ReloadChan():
	case <-time.After(5 * time.Second):
		t.Fatal("no reload notification")
	}
	assert.Eventually(t, func() bool { return len(store.List()) == 2 }, 5*time.Second, 10*time.Millisecond)
}
