package storage

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chineduokotu/document-text-to-speech-converter/internal/domain"
)

func newTestArea(t *testing.T) *Area {
	t.Helper()
	area, err := NewArea(t.TempDir())
	require.NoError(t, err)
	return area
}

func partialFiles(t *testing.T, a *Area) []os.DirEntry {
	t.Helper()
	entries, err := os.ReadDir(a.partialPath())
	require.NoError(t, err)
	return entries
}

// TestWriterFinalizePublishesArtifact checks the publish point.
func TestWriterFinalizePublishesArtifact(t *testing.T) {
	a := newTestArea(t)

	w, err := a.Open("task-1")
	require.NoError(t, err)
	require.NoError(t, w.Append([]byte("hello ")))
	require.NoError(t, w.Append([]byte("world")))

	_, err = a.Acquire("task-1")
	assert.ErrorIs(t, err, domain.ErrGone, "unpublished artifact must not be readable")

	handle, err := w.Finalize("audio/wav")
	require.NoError(t, err)
	assert.Equal(t, int64(11), handle.Size)
	assert.Equal(t, ".wav", filepath.Ext(handle.Path))
	assert.Equal(t, "speech.wav", handle.FileName())
	assert.Empty(t, partialFiles(t, a))

	r, err := a.Acquire("task-1")
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.Equal(t, "hello world", string(data))
}

// TestWriterDiscardLeavesNothing checks the failure exit path.
func TestWriterDiscardLeavesNothing(t *testing.T) {
	a := newTestArea(t)

	w, err := a.Open("task-1")
	require.NoError(t, err)
	require.NoError(t, w.Append([]byte("partial")))
	w.Discard()
	w.Discard()

	assert.Empty(t, partialFiles(t, a))
	_, ok := a.Lookup("task-1")
	assert.False(t, ok)
	assert.Error(t, w.Append([]byte("x")))
}

// TestWriterDiscardAfterFinalizeIsNoop keeps the published file when deferred.
func TestWriterDiscardAfterFinalizeIsNoop(t *testing.T) {
	a := newTestArea(t)

	w, err := a.Open("task-1")
	require.NoError(t, err)
	handle, err := w.Finalize("audio/mpeg")
	require.NoError(t, err)
	w.Discard()

	_, err = os.Stat(handle.Path)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), handle.Size)
}

// TestWriterWriteAtPatchesWrittenRange checks header patching bounds.
func TestWriterWriteAtPatchesWrittenRange(t *testing.T) {
	a := newTestArea(t)

	w, err := a.Open("task-1")
	require.NoError(t, err)
	require.NoError(t, w.Append([]byte("0000data")))

	_, err = w.WriteAt([]byte("RIFF"), 0)
	require.NoError(t, err)
	_, err = w.WriteAt([]byte("toolong"), 5)
	assert.ErrorIs(t, err, domain.ErrStorageFailure)

	handle, err := w.Finalize("audio/wav")
	require.NoError(t, err)
	data, err := os.ReadFile(handle.Path)
	require.NoError(t, err)
	assert.Equal(t, "RIFFdata", string(data))
}

// TestFinalizeRenameFailureDiscards checks that a failed publish leaves no file.
func TestFinalizeRenameFailureDiscards(t *testing.T) {
	a := newTestArea(t)
	a.rename = func(string, string) error { return errors.New("disk full") }

	w, err := a.Open("task-1")
	require.NoError(t, err)
	require.NoError(t, w.Append([]byte("abc")))

	_, err = w.Finalize("audio/wav")
	assert.ErrorIs(t, err, domain.ErrStorageFailure)

	var storageErr *Error
	require.ErrorAs(t, err, &storageErr)
	assert.Equal(t, "finalize", storageErr.Op)
	assert.Equal(t, "task-1", storageErr.TaskID)
	assert.Empty(t, partialFiles(t, a))
}

// TestEvictIsIdempotent checks repeated and unknown evictions.
func TestEvictIsIdempotent(t *testing.T) {
	a := newTestArea(t)

	w, err := a.Open("task-1")
	require.NoError(t, err)
	handle, err := w.Finalize("audio/wav")
	require.NoError(t, err)

	require.NoError(t, a.Evict("task-1"))
	require.NoError(t, a.Evict("task-1"))
	require.NoError(t, a.Evict("never-existed"))

	_, err = os.Stat(handle.Path)
	assert.True(t, errors.Is(err, os.ErrNotExist))
	_, err = a.Acquire("task-1")
	assert.ErrorIs(t, err, domain.ErrGone)
}

// TestEvictDefersDeletionForOpenReaders checks the download grace behavior.
func TestEvictDefersDeletionForOpenReaders(t *testing.T) {
	a := newTestArea(t)

	w, err := a.Open("task-1")
	require.NoError(t, err)
	require.NoError(t, w.Append([]byte(strings.Repeat("a", 4096))))
	handle, err := w.Finalize("audio/wav")
	require.NoError(t, err)

	r, err := a.Acquire("task-1")
	require.NoError(t, err)

	require.NoError(t, a.Evict("task-1"))

	_, err = a.Acquire("task-1")
	assert.ErrorIs(t, err, domain.ErrGone, "new readers observe eviction")

	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Len(t, data, 4096, "in-flight reader sees the complete artifact")

	_, err = os.Stat(handle.Path)
	require.NoError(t, err, "file kept while a reader is open")

	require.NoError(t, r.Close())
	_, err = os.Stat(handle.Path)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

// TestNewAreaClearsLeftovers drops artifacts from a previous process.
func TestNewAreaClearsLeftovers(t *testing.T) {
	root := t.TempDir()
	a, err := NewArea(root)
	require.NoError(t, err)

	w, err := a.Open("stale")
	require.NoError(t, err)
	require.NoError(t, w.Append([]byte("x")))

	_, err = NewArea(root)
	require.NoError(t, err)
	assert.Empty(t, partialFiles(t, a))
}

// TestNewAreaRequiresRoot rejects an empty root.
func TestNewAreaRequiresRoot(t *testing.T) {
	_, err := NewArea("  ")
	assert.ErrorIs(t, err, domain.ErrStorageFailure)
}

// TestUploadsSaveRemoveAndSweep checks the upload lifecycle.
func TestUploadsSaveRemoveAndSweep(t *testing.T) {
	a := newTestArea(t)

	path, err := a.SaveUpload("../../etc/my report.pdf", strings.NewReader("%PDF"))
	require.NoError(t, err)
	assert.Equal(t, a.uploadsPath(), filepath.Dir(path))
	assert.True(t, strings.HasSuffix(path, "_my_report.pdf"), path)

	require.NoError(t, a.RemoveUpload(path))
	require.NoError(t, a.RemoveUpload(path))
	assert.ErrorIs(t, a.RemoveUpload("/etc/passwd"), domain.ErrStorageFailure)

	old, err := a.SaveUpload("old.txt", strings.NewReader("old"))
	require.NoError(t, err)
	fresh, err := a.SaveUpload("fresh.txt", strings.NewReader("fresh"))
	require.NoError(t, err)
	past := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))

	removed, err := a.SweepUploads(time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	_, err = os.Stat(old)
	assert.True(t, errors.Is(err, os.ErrNotExist))
	_, err = os.Stat(fresh)
	assert.NoError(t, err)
}

// TestSanitizeName covers odd upload names.
func TestSanitizeName(t *testing.T) {
	assert.Equal(t, "upload", sanitizeName(""))
	assert.Equal(t, "upload", sanitizeName("/"))
	assert.Equal(t, "a_b.txt", sanitizeName("dir/a b.txt"))
	assert.Equal(t, "r_sum_.docx", sanitizeName("résumé.docx"))
}
