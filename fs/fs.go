// Package fs serves an afero.Fs over the SFTP request server API, with per-user
// permissions.
package fs

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/spf13/afero"
)

const (
	TypeOs  = "os"
	TypeMem = "mem"
)

// UnsupportedFsError is returned when the described file system is not supported
type UnsupportedFsError struct {
	Type string
}

func (err UnsupportedFsError) Error() string {
	return fmt.Sprintf("Unsupported FS: %s", err.Type)
}

// Access describes the storage exposed to SFTP users.
type Access struct {
	Fs       string `json:"fs" yaml:"fs"`
	BasePath string `json:"base_path" yaml:"base_path"`
	ReadOnly bool   `json:"read_only" yaml:"read_only"`
}

// LoadFs loads a file system from an access description
func LoadFs(access Access) (afero.Fs, error) {
	var fs afero.Fs
	switch access.Fs {
	case TypeOs:
		if access.BasePath == "" {
			return nil, fmt.Errorf("os fs: base path is required")
		}
		if err := os.MkdirAll(access.BasePath, 0o755); err != nil {
			return nil, err
		}
		fs = afero.NewBasePathFs(afero.NewOsFs(), access.BasePath)
	case TypeMem, "":
		fs = afero.NewMemMapFs()
	default:
		return nil, &UnsupportedFsError{Type: access.Fs}
	}

	if access.ReadOnly {
		fs = afero.NewReadOnlyFs(fs)
	}
	return fs, nil
}

// ListerAt ... A list of files.
type ListerAt []os.FileInfo

// ListAt ...
// Returns the number of entries copied and an io.EOF error if we made it to the end of the file list.
// Take a look at the pkg/sftp godoc for more information about how this function should work.
func (l ListerAt) ListAt(f []os.FileInfo, offset int64) (int, error) {
	if offset >= int64(len(l)) {
		return 0, io.EOF
	}

	n := copy(f, l[offset:])
	if n < len(f) {
		return n, io.EOF
	}
	return n, nil
}

// fileReader serves downloads from an afero.File. Reads are serialised since
// some backends (MemMapFs) move a shared cursor in ReadAt, and every read
// reaching the end of the file reports io.EOF as pkg/sftp expects.
type fileReader struct {
	afero.File
	size int64
	mu   sync.Mutex
}

func newFileReader(file afero.File, size int64) *fileReader {
	return &fileReader{File: file, size: size}
}

func (r *fileReader) ReadAt(p []byte, off int64) (int, error) {
	if off >= r.size {
		return 0, io.EOF
	}

	r.mu.Lock()
	n, err := r.File.ReadAt(p, off)
	r.mu.Unlock()

	if errors.Is(err, io.ErrUnexpectedEOF) {
		err = io.EOF
	}
	if err == nil && n < len(p) {
		err = io.EOF
	}
	return n, err
}
