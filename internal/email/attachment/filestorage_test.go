package attachment

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFileStorage_Save(t *testing.T) {
	root := t.TempDir()
	fs, err := NewFileStorage(root, testLogger())
	require.NoError(t, err)
	ctx := context.Background()

	location, err := fs.Save(ctx, "2024/report.pdf", []byte("%PDF"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "2024", "report.pdf"), location)

	data, err := os.ReadFile(location)
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(data))

	entries, err := os.ReadDir(filepath.Join(root, "2024"))
	require.NoError(t, err)
	require.Len(t, entries, 1, "no temp files are left behind")

	exists, err := fs.Exists(ctx, "2024/report.pdf")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = fs.Exists(ctx, "2024/other.pdf")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestFileStorage_RejectsEscapes(t *testing.T) {
	fs, err := NewFileStorage(t.TempDir(), testLogger())
	require.NoError(t, err)

	for _, rel := range []string{"../evil.txt", "a/../../evil.txt", "", "."} {
		_, err := fs.Save(context.Background(), rel, []byte("x"))
		require.Error(t, err, rel)
		assert.True(t, IsFilesystemError(err), rel)
	}
}

func TestFileStorage_WriteFailure(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced")
	}
	root := t.TempDir()
	fs, err := NewFileStorage(root, testLogger())
	require.NoError(t, err)

	locked := filepath.Join(root, "locked")
	require.NoError(t, os.Mkdir(locked, 0500))
	t.Cleanup(func() { os.Chmod(locked, 0755) })

	_, err = fs.Save(context.Background(), "locked/file.txt", []byte("x"))
	require.Error(t, err)
	assert.True(t, IsFilesystemError(err))

	_, statErr := os.Stat(filepath.Join(locked, "file.txt"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestFileStorage_CanceledContext(t *testing.T) {
	fs, err := NewFileStorage(t.TempDir(), testLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = fs.Save(ctx, "a.txt", []byte("x"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewStorage(t *testing.T) {
	s, err := NewStorage(context.Background(), StorageConfig{Type: StorageTypeFile, Root: t.TempDir()}, testLogger())
	require.NoError(t, err)
	assert.IsType(t, &FileStorage{}, s)

	_, err = NewStorage(context.Background(), StorageConfig{Type: "s3"}, testLogger())
	assert.Error(t, err)

	_, err = NewStorage(context.Background(), StorageConfig{Type: StorageTypeGDrive}, testLogger())
	assert.Error(t, err, "credentials file is required")
}
