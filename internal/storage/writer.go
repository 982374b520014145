package storage

import (
	"errors"
	"os"
)

// errWriterClosed is returned when a finalized or discarded writer is reused.
var errWriterClosed = errors.New("artifact writer is closed")

// Writer is the single-owner handle of an artifact under construction.
// Nothing is addressable by readers until Finalize succeeds.
type Writer struct {
	area   *Area
	taskID string
	file   *os.File
	size   int64
	closed bool
}

// TaskID returns the owning task.
func (w *Writer) TaskID() string {
	return w.taskID
}

// Size returns the number of bytes written so far.
func (w *Writer) Size() int64 {
	return w.size
}

// Append writes p at the end of the artifact.
func (w *Writer) Append(p []byte) error {
	if w.closed {
		return &Error{Op: "append", TaskID: w.taskID, Err: errWriterClosed}
	}

	n, err := w.file.WriteAt(p, w.size)
	w.size += int64(n)
	if err != nil {
		return &Error{Op: "append", TaskID: w.taskID, Err: err}
	}
	return nil
}

// WriteAt overwrites bytes already written, e.g. to patch a container header.
func (w *Writer) WriteAt(p []byte, off int64) (int, error) {
	if w.closed {
		return 0, &Error{Op: "patch", TaskID: w.taskID, Err: errWriterClosed}
	}
	if off < 0 || off+int64(len(p)) > w.size {
		return 0, &Error{Op: "patch", TaskID: w.taskID, Err: errors.New("patch outside written range")}
	}

	n, err := w.file.WriteAt(p, off)
	if err != nil {
		return n, &Error{Op: "patch", TaskID: w.taskID, Err: err}
	}
	return n, nil
}

// Finalize flushes and publishes the artifact. On failure the partial file is
// discarded.
func (w *Writer) Finalize(contentType string) (ArtifactHandle, error) {
	if w.closed {
		return ArtifactHandle{}, &Error{Op: "finalize", TaskID: w.taskID, Err: errWriterClosed}
	}

	if err := w.file.Sync(); err != nil {
		w.Discard()
		return ArtifactHandle{}, &Error{Op: "finalize", TaskID: w.taskID, Err: err}
	}
	if err := w.file.Close(); err != nil {
		w.closed = true
		_ = w.area.remove(w.file.Name())
		return ArtifactHandle{}, &Error{Op: "finalize", TaskID: w.taskID, Err: err}
	}
	w.closed = true

	handle, err := w.area.publish(w, contentType)
	if err != nil {
		_ = w.area.remove(w.file.Name())
		return ArtifactHandle{}, err
	}
	return handle, nil
}

// Discard drops the partial artifact. It is safe to call after Finalize and
// more than once, which makes it suitable for defer.
func (w *Writer) Discard() {
	if w.closed {
		return
	}
	w.closed = true
	_ = w.file.Close()
	_ = w.area.remove(w.file.Name())
}
