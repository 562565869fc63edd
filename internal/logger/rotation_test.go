package logger

import (
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRotatingWriter(t *testing.T) {
	t.Run("creates file and parent directory", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "logs", "kaigi.log")

		w, err := NewRotatingWriter(path, 1, 7, false)
		require.NoError(t, err)
		defer w.Close()

		_, err = os.Stat(path)
		assert.NoError(t, err)
	})

	t.Run("resumes size of an existing file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "kaigi.log")
		require.NoError(t, os.WriteFile(path, []byte("previous run\n"), 0644))

		w, err := NewRotatingWriter(path, 1, 7, false)
		require.NoError(t, err)
		defer w.Close()

		assert.Equal(t, int64(len("previous run\n")), w.currentSize)
	})
}

func TestRotatingWriterWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kaigi.log")
	w, err := NewRotatingWriter(path, 1, 7, false)
	require.NoError(t, err)
	defer w.Close()

	n, err := w.Write([]byte("line one\n"))
	require.NoError(t, err)
	assert.Equal(t, len("line one\n"), n)
	assert.Equal(t, int64(n), w.currentSize)
}

func TestRotatingWriterRotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kaigi.log")
	w, err := NewRotatingWriter(path, 1, 7, false)
	require.NoError(t, err)
	defer w.Close()

	// Shrink the threshold so the test does not write megabytes.
	w.maxSize = 64

	_, err = w.Write([]byte(strings.Repeat("a", 60) + "\n"))
	require.NoError(t, err)
	_, err = w.Write([]byte("this pushes past the limit\n"))
	require.NoError(t, err)

	rotated, err := filepath.Glob(path + ".*")
	require.NoError(t, err)
	assert.Len(t, rotated, 1, "one rotated file expected")

	// The active file restarted from the post-rotation write.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "this pushes past the limit\n", string(data))
}

func TestCompressFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kaigi.log.20240101-000000")
	require.NoError(t, os.WriteFile(path, []byte("archived content\n"), 0644))

	require.NoError(t, compressFile(path))

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "original removed after compression")

	f, err := os.Open(path + ".gz")
	require.NoError(t, err)
	defer f.Close()

	gzr, err := gzip.NewReader(f)
	require.NoError(t, err)
	data, err := io.ReadAll(gzr)
	require.NoError(t, err)
	assert.Equal(t, "archived content\n", string(data))
}

func TestCleanup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kaigi.log")

	old := filepath.Join(dir, "kaigi.log.20230101-000000")
	require.NoError(t, os.WriteFile(old, []byte("ancient\n"), 0644))
	stale := time.Now().AddDate(0, 0, -30)
	require.NoError(t, os.Chtimes(old, stale, stale))

	w, err := NewRotatingWriter(path, 1, 7, false)
	require.NoError(t, err)
	defer w.Close()

	w.cleanup()

	_, err = os.Stat(old)
	assert.True(t, os.IsNotExist(err), "expired rotation removed")
}
