package errorlog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/altafino/attachment-fetcher/internal/email"
	"github.com/altafino/attachment-fetcher/internal/email/attachment"
	"github.com/altafino/attachment-fetcher/internal/models"
	"github.com/altafino/attachment-fetcher/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFileLogger_LogAndGet(t *testing.T) {
	dir := t.TempDir()
	fl, err := NewFileLogger(dir, 30, testLogger())
	require.NoError(t, err)

	require.NoError(t, fl.LogFailure(JobFailure{ConfigID: "p1", RunID: "r1", Filename: "a.pdf", ErrorType: TypeAuth}))
	require.NoError(t, fl.LogFailure(JobFailure{ConfigID: "p1", RunID: "r2", Filename: "b.pdf", ErrorType: TypeFilesystem}))

	all, err := fl.GetFailures(nil)
	require.NoError(t, err)
	require.Len(t, all, 2)
	for _, f := range all {
		assert.NotEmpty(t, f.ID)
		assert.False(t, f.ErrorTime.IsZero())
	}

	byRun, err := fl.GetFailures(map[string]string{"run_id": "r2"})
	require.NoError(t, err)
	require.Len(t, byRun, 1)
	assert.Equal(t, "b.pdf", byRun[0].Filename)

	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Contains(t, files[0].Name(), "failures_p1_")
}

func TestFileLogger_CorruptFileIsReplaced(t *testing.T) {
	dir := t.TempDir()
	fl, err := NewFileLogger(dir, 30, testLogger())
	require.NoError(t, err)

	name := fmt.Sprintf("failures_p1_%s.json", time.Now().UTC().Format(dateLayout))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("{not json"), 0644))

	require.NoError(t, fl.LogFailure(JobFailure{ConfigID: "p1"}))
	all, err := fl.GetFailures(nil)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestFileLogger_CleanupOldFailures(t *testing.T) {
	dir := t.TempDir()
	fl, err := NewFileLogger(dir, 7, testLogger())
	require.NoError(t, err)

	old := filepath.Join(dir, "failures_p1_2020-01-01.json")
	require.NoError(t, os.WriteFile(old, []byte("[]"), 0644))
	require.NoError(t, fl.LogFailure(JobFailure{ConfigID: "p1"}))

	require.NoError(t, fl.CleanupOldFailures())

	_, err = os.Stat(old)
	assert.True(t, os.IsNotExist(err))
	all, err := fl.GetFailures(nil)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestDateFromFilename(t *testing.T) {
	tests := []struct {
		name string
		ok   bool
	}{
		{"failures_p1_2024-03-05.json", true},
		{"failures_my_profile_2024-03-05.json", true},
		{"notes.json", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := dateFromFilename(tt.name)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestErrorType(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"auth", &email.AuthError{Provider: "imap", Err: fmt.Errorf("bad")}, TypeAuth},
		{"rate", &email.RateLimitError{Provider: "imap", Err: fmt.Errorf("slow")}, TypeRateLimit},
		{"transient", &email.TransientNetworkError{Provider: "imap", Err: fmt.Errorf("eof")}, TypeTransient},
		{"filesystem", &attachment.FilesystemError{Op: "write", Path: "x", Err: fmt.Errorf("full")}, TypeFilesystem},
		{"canceled", fmt.Errorf("job: %w", context.Canceled), TypeCanceled},
		{"other", fmt.Errorf("boom"), TypeOther},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorType(tt.err))
		})
	}
}

func TestManager_LogJobFailure(t *testing.T) {
	cfg := &types.Config{}
	cfg.Meta.ID = "profile"
	cfg.Account.Provider = "imap"
	cfg.ErrorLogging.Enabled = true
	cfg.ErrorLogging.StoragePath = t.TempDir()

	m, err := NewManager(cfg, testLogger())
	require.NoError(t, err)
	defer m.Close()

	a := models.Attachment{MessageID: "9", Folder: "INBOX", Filename: "x.pdf"}
	job := models.JobResult{ID: "job-1", Destination: "x.pdf", Attempts: 3}
	require.NoError(t, m.LogJobFailure("run-1", job, a, &email.TransientNetworkError{Provider: "imap", Err: fmt.Errorf("reset")}))

	got, err := m.GetFailures(map[string]string{"config_id": "profile"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "job-1", got[0].JobID)
	assert.Equal(t, TypeTransient, got[0].ErrorType)
	assert.Equal(t, 3, got[0].Attempts)
	assert.Equal(t, "INBOX", got[0].Folder)
}

func TestManager_Disabled(t *testing.T) {
	m, err := NewManager(&types.Config{}, testLogger())
	require.NoError(t, err)
	require.NoError(t, m.LogJobFailure("r", models.JobResult{}, models.Attachment{}, fmt.Errorf("x")))
	got, err := m.GetFailures(nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}
