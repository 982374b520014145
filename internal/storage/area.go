// Package storage owns the on-disk artifacts and uploaded inputs of conversion tasks.
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chineduokotu/document-text-to-speech-converter/internal/domain"
	"github.com/chineduokotu/document-text-to-speech-converter/internal/logger"
)

const (
	artifactsDir = "artifacts"
	partialDir   = ".partial"
	uploadsDir   = "uploads"
)

// Error is a storage operation failure. It matches domain.ErrStorageFailure.
type Error struct {
	Op     string
	TaskID string
	Err    error
}

// Error formats the failing operation with task context.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.TaskID == "" {
		return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage %s (task %s): %v", e.Op, e.TaskID, e.Err)
}

// Unwrap exposes the underlying filesystem error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is lets errors.Is classify every storage error as a storage failure.
func (e *Error) Is(target error) bool {
	return target == domain.ErrStorageFailure
}

// ArtifactHandle identifies a finalized, immutable artifact.
type ArtifactHandle struct {
	TaskID      string `json:"taskId"`
	Path        string `json:"path"`
	Size        int64  `json:"size"`
	ContentType string `json:"contentType"`
}

// FileName is the download name offered to clients.
func (h ArtifactHandle) FileName() string {
	return "speech" + filepath.Ext(h.Path)
}

// entry tracks one published artifact and its open readers.
type entry struct {
	handle  ArtifactHandle
	refs    int
	evicted bool
}

// Area is a directory of task artifacts and uploads with reference-counted reads.
type Area struct {
	root string

	mu      sync.Mutex
	entries map[string]*entry

	createTemp func(dir, pattern string) (*os.File, error)
	rename     func(oldpath, newpath string) error
	remove     func(name string) error
}

// NewArea prepares root and drops partial artifacts left by a previous process.
func NewArea(root string) (*Area, error) {
	if strings.TrimSpace(root) == "" {
		return nil, &Error{Op: "init", Err: errors.New("storage root is required")}
	}

	for _, dir := range []string{
		filepath.Join(root, artifactsDir, partialDir),
		filepath.Join(root, uploadsDir),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, &Error{Op: "init", Err: err}
		}
	}

	a := &Area{
		root:       root,
		entries:    make(map[string]*entry),
		createTemp: os.CreateTemp,
		rename:     os.Rename,
		remove:     os.Remove,
	}
	a.clearPartials()
	return a, nil
}

// Root returns the base directory.
func (a *Area) Root() string {
	return a.root
}

func (a *Area) artifactsPath() string {
	return filepath.Join(a.root, artifactsDir)
}

func (a *Area) partialPath() string {
	return filepath.Join(a.root, artifactsDir, partialDir)
}

func (a *Area) uploadsPath() string {
	return filepath.Join(a.root, uploadsDir)
}

// clearPartials removes half-written artifacts. Published ones from earlier
// runs are removed too, since no task record survives a restart.
func (a *Area) clearPartials() {
	for _, dir := range []string{a.partialPath(), a.artifactsPath()} {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			_ = a.remove(filepath.Join(dir, e.Name()))
		}
	}
}

// Open starts a new artifact for taskID. The caller must Finalize or Discard it.
func (a *Area) Open(taskID string) (*Writer, error) {
	f, err := a.createTemp(a.partialPath(), taskID+"-*.part")
	if err != nil {
		return nil, &Error{Op: "open", TaskID: taskID, Err: err}
	}
	return &Writer{area: a, taskID: taskID, file: f}, nil
}

// publish moves a completed partial file into place and registers it.
func (a *Area) publish(w *Writer, contentType string) (ArtifactHandle, error) {
	dst := filepath.Join(a.artifactsPath(), w.taskID+extensionFor(contentType))
	if err := a.rename(w.file.Name(), dst); err != nil {
		return ArtifactHandle{}, &Error{Op: "finalize", TaskID: w.taskID, Err: err}
	}

	handle := ArtifactHandle{
		TaskID:      w.taskID,
		Path:        dst,
		Size:        w.size,
		ContentType: contentType,
	}

	a.mu.Lock()
	a.entries[w.taskID] = &entry{handle: handle}
	a.mu.Unlock()
	return handle, nil
}

// Lookup returns the handle of a published artifact.
func (a *Area) Lookup(taskID string) (ArtifactHandle, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.entries[taskID]
	if !ok {
		return ArtifactHandle{}, false
	}
	return e.handle, true
}

// Acquire opens a published artifact for reading. Eviction while the reader is
// open defers physical deletion until Close.
func (a *Area) Acquire(taskID string) (*Reader, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	e, ok := a.entries[taskID]
	if !ok || e.evicted {
		return nil, domain.ErrGone
	}

	f, err := os.Open(e.handle.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, domain.ErrGone
		}
		return nil, &Error{Op: "acquire", TaskID: taskID, Err: err}
	}

	e.refs++
	return &Reader{File: f, Handle: e.handle, release: a.release, entry: e}, nil
}

// release drops one reference and deletes an evicted artifact once unused.
func (a *Area) release(e *entry) {
	a.mu.Lock()
	e.refs--
	drop := e.evicted && e.refs == 0
	a.mu.Unlock()

	if drop {
		a.removeFile(e.handle.TaskID, e.handle.Path)
	}
}

// Evict removes the artifact of taskID. Missing artifacts are not an error.
func (a *Area) Evict(taskID string) error {
	a.mu.Lock()
	e, ok := a.entries[taskID]
	if !ok {
		a.mu.Unlock()
		return nil
	}
	delete(a.entries, taskID)
	e.evicted = true
	busy := e.refs > 0
	a.mu.Unlock()

	if busy {
		logger.DebugCF("storage", "Deferring artifact deletion until readers finish", map[string]any{
			"task_id": taskID,
		})
		return nil
	}

	if err := a.remove(e.handle.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return &Error{Op: "evict", TaskID: taskID, Err: err}
	}
	return nil
}

func (a *Area) removeFile(taskID, path string) {
	if err := a.remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.WarnCF("storage", "Failed to delete evicted artifact", map[string]any{
			"task_id": taskID,
			"error":   err.Error(),
		})
	}
}

// SaveUpload copies an uploaded document into the uploads directory under a
// unique name and returns its path.
func (a *Area) SaveUpload(name string, r io.Reader) (string, error) {
	base := sanitizeName(name)
	path := filepath.Join(a.uploadsPath(), uuid.NewString()+"_"+base)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", &Error{Op: "upload", Err: err}
	}

	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = a.remove(path)
		return "", &Error{Op: "upload", Err: err}
	}
	if err := f.Close(); err != nil {
		_ = a.remove(path)
		return "", &Error{Op: "upload", Err: err}
	}
	return path, nil
}

// RemoveUpload deletes an upload written by SaveUpload.
func (a *Area) RemoveUpload(path string) error {
	if filepath.Dir(path) != a.uploadsPath() {
		return &Error{Op: "remove upload", Err: fmt.Errorf("path outside uploads: %s", path)}
	}
	if err := a.remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return &Error{Op: "remove upload", Err: err}
	}
	return nil
}

// SweepUploads deletes uploads last modified before cutoff.
func (a *Area) SweepUploads(cutoff time.Time) (int, error) {
	entries, err := os.ReadDir(a.uploadsPath())
	if err != nil {
		return 0, &Error{Op: "sweep uploads", Err: err}
	}

	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := a.remove(filepath.Join(a.uploadsPath(), e.Name())); err == nil {
			removed++
		}
	}
	return removed, nil
}

// sanitizeName keeps the final path element and replaces characters that
// are unsafe in file names.
func sanitizeName(name string) string {
	base := filepath.Base(strings.TrimSpace(name))
	if base == "." || base == string(filepath.Separator) || base == "" {
		return "upload"
	}

	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
}

// extensionFor maps audio content types to artifact file extensions.
func extensionFor(contentType string) string {
	switch contentType {
	case "audio/wav", "audio/x-wav", "audio/wave":
		return ".wav"
	case "audio/mpeg", "audio/mp3":
		return ".mp3"
	case "audio/ogg":
		return ".ogg"
	default:
		return ".bin"
	}
}
