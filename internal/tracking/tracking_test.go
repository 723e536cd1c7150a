package tracking

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/altafino/attachment-fetcher/internal/models"
	"github.com/altafino/attachment-fetcher/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newStorages(t *testing.T) map[string]Storage {
	t.Helper()
	fileStore, err := NewStorage("file", t.TempDir())
	require.NoError(t, err)
	sqliteStore, err := NewStorage("sqlite", filepath.Join(t.TempDir(), "tracking.db"))
	require.NoError(t, err)

	stores := map[string]Storage{"file": fileStore, "sqlite": sqliteStore}
	for _, s := range stores {
		require.NoError(t, s.Initialize())
		t.Cleanup(func() { s.Close() })
	}
	return stores
}

func TestStorage_AddAndHasRecord(t *testing.T) {
	for name, s := range newStorages(t) {
		t.Run(name, func(t *testing.T) {
			rec := AttachmentRecord{
				Key:          "k1",
				Account:      "imap:me@host",
				Folder:       "INBOX",
				MessageID:    "10",
				Filename:     "a.pdf",
				Location:     "/tmp/a.pdf",
				Size:         3,
				DownloadedAt: time.Now().UTC(),
			}
			require.NoError(t, s.AddRecord(rec))
			// Re-adding the same key replaces the record.
			rec.Location = "/tmp/a_1.pdf"
			require.NoError(t, s.AddRecord(rec))

			ok, err := s.HasRecord("imap:me@host", "k1")
			require.NoError(t, err)
			assert.True(t, ok)

			ok, err = s.HasRecord("imap:other@host", "k1")
			require.NoError(t, err)
			assert.False(t, ok)

			records, err := s.GetRecords(map[string]string{"folder": "INBOX"})
			require.NoError(t, err)
			require.Len(t, records, 1)
			assert.Equal(t, "/tmp/a_1.pdf", records[0].Location)

			records, err = s.GetRecords(map[string]string{"message_id": "nope"})
			require.NoError(t, err)
			assert.Empty(t, records)
		})
	}
}

func TestStorage_CleanupOldRecords(t *testing.T) {
	for name, s := range newStorages(t) {
		t.Run(name, func(t *testing.T) {
			old := AttachmentRecord{Key: "old", Account: "a", DownloadedAt: time.Now().UTC().AddDate(0, 0, -40)}
			fresh := AttachmentRecord{Key: "fresh", Account: "a", DownloadedAt: time.Now().UTC()}
			require.NoError(t, s.AddRecord(old))
			require.NoError(t, s.AddRecord(fresh))

			require.NoError(t, s.CleanupOldRecords(30))

			records, err := s.GetRecords(nil)
			require.NoError(t, err)
			require.Len(t, records, 1)
			assert.Equal(t, "fresh", records[0].Key)
		})
	}
}

func TestNewStorage_Unsupported(t *testing.T) {
	_, err := NewStorage("postgres", "x")
	assert.ErrorIs(t, err, ErrUnsupportedStorageType)
}

func TestFileStorage_NotInitialized(t *testing.T) {
	s, err := NewFileStorage(t.TempDir())
	require.NoError(t, err)
	_, err = s.HasRecord("a", "b")
	assert.ErrorIs(t, err, ErrStorageNotInitialized)
}

func TestManager(t *testing.T) {
	cfg := &types.Config{}
	cfg.Account.Provider = "imap"
	cfg.Account.Username = "me"
	cfg.Account.Server = "mail.example.com"
	cfg.Tracking.Enabled = true
	cfg.Tracking.StorageType = "sqlite"
	cfg.Tracking.StoragePath = t.TempDir()

	m, err := NewManager(cfg, testLogger())
	require.NoError(t, err)
	defer m.Close()

	ctx := context.Background()
	a := models.Attachment{Folder: "INBOX", MessageID: "7", Filename: "x.pdf", Size: 10}

	done, err := m.IsDownloaded(ctx, a)
	require.NoError(t, err)
	assert.False(t, done)

	require.NoError(t, m.MarkDownloaded(ctx, a, "/dl/x.pdf"))

	done, err = m.IsDownloaded(ctx, a)
	require.NoError(t, err)
	assert.True(t, done)

	other := a
	other.Filename = "y.pdf"
	done, err = m.IsDownloaded(ctx, other)
	require.NoError(t, err)
	assert.False(t, done)
}

func TestManager_Disabled(t *testing.T) {
	m, err := NewManager(&types.Config{}, testLogger())
	require.NoError(t, err)

	a := models.Attachment{MessageID: "1"}
	require.NoError(t, m.MarkDownloaded(context.Background(), a, "x"))
	done, err := m.IsDownloaded(context.Background(), a)
	require.NoError(t, err)
	assert.False(t, done)
	assert.NoError(t, m.CleanupOldRecords())
}

func TestAttachmentKey(t *testing.T) {
	a := models.Attachment{Folder: "INBOX", MessageID: "1", Filename: "a.pdf", Size: 5}
	b := a
	b.Handle = "different-handle"
	assert.Equal(t, AttachmentKey(a), AttachmentKey(b))

	b.Filename = "b.pdf"
	assert.NotEqual(t, AttachmentKey(a), AttachmentKey(b))
}
