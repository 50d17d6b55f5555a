package fs

import (
	"errors"
	"io"
	"os"
	"path"
	"slices"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"github.com/spf13/afero"

	"github.com/oarkflow/sftp-transport/interfaces"
	"github.com/oarkflow/sftp-transport/log"
	"github.com/oarkflow/sftp-transport/utils"
)

// Handler ... An afero file system exposed to one SFTP user.
type Handler struct {
	fs          afero.Fs
	permissions []string
	readOnly    bool
	lock        sync.Mutex
	logger      log.Logger
}

var _ interfaces.Filesystem = (*Handler)(nil)

func defaultHandler(fs afero.Fs) *Handler {
	return &Handler{
		fs:          fs,
		permissions: utils.DefaultPermissions,
		logger:      log.Nop(),
	}
}

// New ... Serves fs with the default permissions.
func New(fs afero.Fs, opts ...func(*Handler)) *Handler {
	h := defaultHandler(fs)
	for _, o := range opts {
		o(h)
	}
	return h
}

func WithPermissions(val []string) func(*Handler) {
	return func(o *Handler) {
		o.permissions = val
	}
}

// WithReadOnly rejects every write, whatever the permissions say.
func WithReadOnly(val bool) func(*Handler) {
	return func(o *Handler) {
		o.readOnly = val
	}
}

func WithLogger(val log.Logger) func(*Handler) {
	return func(o *Handler) {
		o.SetLogger(val)
	}
}

// Handlers returns the pkg/sftp handler set backed by filesystem.
func Handlers(filesystem interfaces.Filesystem) sftp.Handlers {
	return sftp.Handlers{
		FileGet:  filesystem,
		FilePut:  filesystem,
		FileCmd:  filesystem,
		FileList: filesystem,
	}
}

func (h *Handler) SetLogger(logger log.Logger) {
	if logger == nil {
		logger = log.Nop()
	}
	h.logger = logger
}

func (h *Handler) SetPermissions(p []string) {
	h.permissions = p
}

func (h *Handler) Type() string {
	return h.fs.Name()
}

// Fileread opens a file for reading.
func (h *Handler) Fileread(request *sftp.Request) (io.ReaderAt, error) {
	if !h.can(utils.PermissionFileReadContent) {
		return nil, sftp.ErrSshFxPermissionDenied
	}

	p := request.Filepath

	h.lock.Lock()
	defer h.lock.Unlock()

	stat, err := h.fs.Stat(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, sftp.ErrSshFxNoSuchFile
	} else if err != nil {
		h.logger.Error("error performing file stat", "source", p, "err", err)
		return nil, sftp.ErrSshFxFailure
	}
	if stat.IsDir() {
		return nil, sftp.ErrSshFxFailure
	}

	file, err := h.fs.Open(p)
	if err != nil {
		h.logger.Error("could not open file for reading", "source", p, "err", err)
		return nil, sftp.ErrSshFxFailure
	}
	return newFileReader(file, stat.Size()), nil
}

// Filewrite opens a file for writing, creating it and its parents when missing.
func (h *Handler) Filewrite(request *sftp.Request) (io.WriterAt, error) {
	if h.readOnly {
		return nil, sftp.ErrSshFxOpUnsupported
	}

	p := request.Filepath
	pflags := request.Pflags()

	h.lock.Lock()
	defer h.lock.Unlock()

	stat, statErr := h.fs.Stat(p)
	if errors.Is(statErr, os.ErrNotExist) {
		if !h.can(utils.PermissionFileCreate) {
			return nil, sftp.ErrSshFxPermissionDenied
		}

		if err := h.fs.MkdirAll(path.Dir(p), 0o755); err != nil {
			h.logger.Error("error making path for file", "source", p, "path", path.Dir(p), "err", err)
			return nil, sftp.ErrSshFxFailure
		}

		file, err := h.fs.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
		if err != nil {
			h.logger.Error("error creating file", "source", p, "err", err)
			return nil, sftp.ErrSshFxFailure
		}
		return file, nil
	}

	if statErr != nil {
		h.logger.Error("error performing file stat", "source", p, "err", statErr)
		return nil, sftp.ErrSshFxFailure
	}

	if !h.can(utils.PermissionFileUpdate) {
		return nil, sftp.ErrSshFxPermissionDenied
	}

	if stat.IsDir() {
		h.logger.Warn("attempted to open a directory for writing to", "source", p)
		return nil, sftp.ErrSshFxOpUnsupported
	}

	if pflags.Creat && pflags.Excl {
		return nil, sftp.ErrSshFxFailure
	}

	flags := os.O_WRONLY
	if pflags.Trunc {
		flags |= os.O_TRUNC
	}
	file, err := h.fs.OpenFile(p, flags, stat.Mode().Perm())
	if err != nil {
		h.logger.Error("error opening existing file", "flags", request.Flags, "source", p, "err", err)
		return nil, sftp.ErrSshFxFailure
	}
	return file, nil
}

// Filecmd handles the requests that change the tree without reading or writing content.
func (h *Handler) Filecmd(request *sftp.Request) error {
	if h.readOnly {
		return sftp.ErrSshFxOpUnsupported
	}

	p := request.Filepath

	h.lock.Lock()
	defer h.lock.Unlock()

	switch request.Method {
	case "Setstat":
		if !h.can(utils.PermissionFileUpdate) {
			return sftp.ErrSshFxPermissionDenied
		}
		return h.setstat(request)
	case "Rename":
		if !h.can(utils.PermissionFileUpdate) {
			return sftp.ErrSshFxPermissionDenied
		}
		if _, err := h.fs.Stat(p); errors.Is(err, os.ErrNotExist) {
			return sftp.ErrSshFxNoSuchFile
		}
		// Plain SFTP rename never replaces its target.
		if _, err := h.fs.Stat(request.Target); err == nil {
			return sftp.ErrSshFxFailure
		}
		if err := h.fs.Rename(p, request.Target); err != nil {
			h.logger.Error("failed to rename file", "source", p, "target", request.Target, "err", err)
			return sftp.ErrSshFxFailure
		}
		return nil
	case "Rmdir":
		if !h.can(utils.PermissionFileDelete) {
			return sftp.ErrSshFxPermissionDenied
		}
		stat, err := h.fs.Stat(p)
		if errors.Is(err, os.ErrNotExist) {
			return sftp.ErrSshFxNoSuchFile
		} else if err != nil || !stat.IsDir() {
			return sftp.ErrSshFxFailure
		}
		if empty, err := afero.IsEmpty(h.fs, p); err != nil || !empty {
			return sftp.ErrSshFxFailure
		}
		if err := h.fs.Remove(p); err != nil {
			h.logger.Error("failed to remove directory", "source", p, "err", err)
			return sftp.ErrSshFxFailure
		}
		return nil
	case "Mkdir":
		if !h.can(utils.PermissionFileCreate) {
			return sftp.ErrSshFxPermissionDenied
		}
		if _, err := h.fs.Stat(p); err == nil {
			return sftp.ErrSshFxFailure
		}
		if _, err := h.fs.Stat(path.Dir(p)); errors.Is(err, os.ErrNotExist) {
			return sftp.ErrSshFxNoSuchFile
		}
		if err := h.fs.Mkdir(p, 0o755); err != nil {
			h.logger.Error("failed to create directory", "source", p, "err", err)
			return sftp.ErrSshFxFailure
		}
		return nil
	case "Remove":
		if !h.can(utils.PermissionFileDelete) {
			return sftp.ErrSshFxPermissionDenied
		}
		stat, err := h.fs.Stat(p)
		if errors.Is(err, os.ErrNotExist) {
			return sftp.ErrSshFxNoSuchFile
		} else if err != nil || stat.IsDir() {
			return sftp.ErrSshFxFailure
		}
		if err := h.fs.Remove(p); err != nil {
			h.logger.Error("failed to remove a file", "source", p, "err", err)
			return sftp.ErrSshFxFailure
		}
		return nil
	default:
		// Symlinks are not portable across afero backends.
		return sftp.ErrSshFxOpUnsupported
	}
}

func (h *Handler) setstat(request *sftp.Request) error {
	p := request.Filepath
	attrs := request.Attributes()
	flags := request.AttrFlags()

	if _, err := h.fs.Stat(p); errors.Is(err, os.ErrNotExist) {
		return sftp.ErrSshFxNoSuchFile
	}

	if flags.Permissions {
		if err := h.fs.Chmod(p, attrs.FileMode().Perm()); err != nil {
			h.logger.Error("failed to perform setstat", "source", p, "err", err)
			return sftp.ErrSshFxFailure
		}
	}

	if flags.Acmodtime {
		atime := time.Unix(int64(attrs.Atime), 0)
		mtime := time.Unix(int64(attrs.Mtime), 0)
		if err := h.fs.Chtimes(p, atime, mtime); err != nil {
			h.logger.Error("failed to perform setstat", "source", p, "err", err)
			return sftp.ErrSshFxFailure
		}
	}

	if flags.Size {
		file, err := h.fs.OpenFile(p, os.O_WRONLY, 0)
		if err != nil {
			return sftp.ErrSshFxFailure
		}
		defer file.Close()
		if err := file.Truncate(int64(attrs.Size)); err != nil {
			h.logger.Error("failed to perform setstat", "source", p, "err", err)
			return sftp.ErrSshFxFailure
		}
	}
	return nil
}

// Filelist handles directory listings and stat calls.
func (h *Handler) Filelist(request *sftp.Request) (sftp.ListerAt, error) {
	p := request.Filepath

	switch request.Method {
	case "List":
		if !h.can(utils.PermissionFileRead) {
			return nil, sftp.ErrSshFxPermissionDenied
		}

		files, err := afero.ReadDir(h.fs, p)
		if errors.Is(err, os.ErrNotExist) {
			return nil, sftp.ErrSshFxNoSuchFile
		} else if err != nil {
			h.logger.Error("error listing directory", "source", p, "err", err)
			return nil, sftp.ErrSshFxFailure
		}
		return ListerAt(files), nil
	case "Stat", "Lstat":
		if !h.can(utils.PermissionFileRead) {
			return nil, sftp.ErrSshFxPermissionDenied
		}

		s, err := h.fs.Stat(p)
		if errors.Is(err, os.ErrNotExist) {
			return nil, sftp.ErrSshFxNoSuchFile
		} else if err != nil {
			h.logger.Error("error running STAT on file", "source", p, "err", err)
			return nil, sftp.ErrSshFxFailure
		}
		return ListerAt([]os.FileInfo{s}), nil
	default:
		return nil, sftp.ErrSshFxOpUnsupported
	}
}

// can reports whether the user holds permission. "*" grants everything.
func (h *Handler) can(permission string) bool {
	if len(h.permissions) == 1 && h.permissions[0] == utils.PermissionAll {
		return true
	}
	return slices.Contains(h.permissions, permission)
}
