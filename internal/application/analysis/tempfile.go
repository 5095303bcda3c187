package analysis

import (
	"errors"
	"io/fs"
	"os"
	"sync"

	"github.com/bryanwahyu/docforensics/internal/domain/forensics"
)

// TempFile is the on-disk copy of one upload. It is owned by a single
// request and removed exactly once by Release.
type TempFile struct {
	path string

	once sync.Once
	err  error
}

func newTempFile(path string) *TempFile {
	return &TempFile{path: path}
}

// Path of the file on disk. Only valid until Release.
func (t *TempFile) Path() string { return t.path }

// Release removes the file. Subsequent calls return the first result without
// touching the filesystem. A file that is already gone is not an error.
func (t *TempFile) Release() error {
	t.once.Do(func() {
		if err := os.Remove(t.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			t.err = forensics.CleanupFailed(t.path, err)
		}
	})
	return t.err
}
