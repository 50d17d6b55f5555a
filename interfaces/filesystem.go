package interfaces

import (
	"io"

	"github.com/pkg/sftp"

	"github.com/oarkflow/sftp-transport/log"
)

// Filesystem is the server side of the protocol: request handlers an SFTP request
// server dispatches to.
type Filesystem interface {
	Fileread(request *sftp.Request) (io.ReaderAt, error)
	Filewrite(request *sftp.Request) (io.WriterAt, error)
	Filecmd(request *sftp.Request) error
	Filelist(request *sftp.Request) (sftp.ListerAt, error)
	SetLogger(logger log.Logger)
	SetPermissions(p []string)
	Type() string
}
