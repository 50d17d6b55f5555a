package interfaces

import (
	"io"
	"time"
)

// Entry ... One item of a remote directory listing.
type Entry struct {
	Name    string
	Path    string
	ModTime time.Time
	Size    int64
	Regular bool
}

// Client is the protocol-level collaborator a session drives. Implementations
// report missing paths with an error matching fs.ErrNotExist, existing ones with
// fs.ErrExist and refusals with fs.ErrPermission.
type Client interface {
	Connect() error
	Disconnect() error
	IsConnected() bool

	// ReadDir lists a directory in the order the server reports it.
	ReadDir(path string) ([]Entry, error)
	// OpenWrite opens path for writing, creating or truncating it.
	OpenWrite(path string) (io.WriteCloser, error)
	// Download streams the content of path into w.
	Download(path string, w io.Writer) error
	Exists(path string) (bool, error)
	Mkdir(path string) error
	Rename(oldPath, newPath string) error
	Remove(path string) error
}
