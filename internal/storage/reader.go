package storage

import (
	"os"
	"sync"
)

// Reader is an open artifact. Close must be called to release the reference.
type Reader struct {
	*os.File
	Handle ArtifactHandle

	once    sync.Once
	entry   *entry
	release func(*entry)
}

// Close closes the file and releases the artifact reference.
func (r *Reader) Close() error {
	err := r.File.Close()
	r.once.Do(func() {
		r.release(r.entry)
	})
	return err
}
