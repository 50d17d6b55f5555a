package fs

import (
	"io"

	"github.com/pkg/sftp"

	"github.com/oarkflow/sftp-transport/interfaces"
	"github.com/oarkflow/sftp-transport/log"
)

// Notifier wraps a Filesystem and reports every request once it has been handled.
type Notifier struct {
	fs     interfaces.Filesystem
	hook   func(request *sftp.Request, err error)
	logger log.Logger
}

// NewNotifier wraps fs. hook may be nil, in which case requests are only logged.
func NewNotifier(fs interfaces.Filesystem, hook func(request *sftp.Request, err error)) *Notifier {
	return &Notifier{fs: fs, hook: hook, logger: log.Nop()}
}

func (f *Notifier) Notify(request *sftp.Request, err error) {
	if err != nil {
		f.logger.Debug("request failed", "method", request.Method, "file", request.Filepath, "target", request.Target, "err", err)
	} else {
		f.logger.Debug("request handled", "method", request.Method, "file", request.Filepath, "target", request.Target)
	}
	if f.hook != nil {
		f.hook(request, err)
	}
}

func (f *Notifier) Fileread(request *sftp.Request) (rs io.ReaderAt, err error) {
	defer func() {
		f.Notify(request, err)
	}()
	return f.fs.Fileread(request)
}

func (f *Notifier) Filewrite(request *sftp.Request) (ws io.WriterAt, err error) {
	defer func() {
		f.Notify(request, err)
	}()
	return f.fs.Filewrite(request)
}

func (f *Notifier) Filecmd(request *sftp.Request) (err error) {
	defer func() {
		f.Notify(request, err)
	}()
	return f.fs.Filecmd(request)
}

func (f *Notifier) Filelist(request *sftp.Request) (ls sftp.ListerAt, err error) {
	defer func() {
		f.Notify(request, err)
	}()
	return f.fs.Filelist(request)
}

func (f *Notifier) SetLogger(logger log.Logger) {
	f.fs.SetLogger(logger)
	if logger == nil {
		logger = log.Nop()
	}
	f.logger = logger
}

func (f *Notifier) SetPermissions(p []string) {
	f.fs.SetPermissions(p)
}

func (f *Notifier) Type() string {
	return f.fs.Type()
}
