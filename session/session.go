// Package session drives one connect/operate/disconnect cycle against a protocol
// client and presents primitive file operations with uniform errors.
//
// A Session is meant for a single logical operation. Every primitive disconnects
// before returning except Exists and CreateDirectory, which leave the connection
// open so they can be chained; close such chains with Close.
package session

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/oarkflow/sftp-transport/errs"
	"github.com/oarkflow/sftp-transport/interfaces"
	"github.com/oarkflow/sftp-transport/log"
	"github.com/oarkflow/sftp-transport/utils"
)

// TransferBufferSize is the chunk size used when streaming uploads.
const TransferBufferSize = 8 * 1024

// Session ... A single-use wrapper around one protocol client.
type Session struct {
	id     string
	host   string
	client interfaces.Client
	tempFs afero.Fs
	logger log.Logger
}

func defaultSession(client interfaces.Client) *Session {
	return &Session{
		id:     uuid.NewString(),
		client: client,
		tempFs: afero.NewOsFs(),
		logger: log.Nop(),
	}
}

// New ... Wraps client in a fresh session.
func New(client interfaces.Client, opts ...func(*Session)) *Session {
	s := defaultSession(client)
	for _, o := range opts {
		o(s)
	}
	s.logger = s.logger.With("session", s.id)
	return s
}

func WithLogger(val log.Logger) func(*Session) {
	return func(o *Session) {
		if val != nil {
			o.logger = val
		}
	}
}

// WithHost sets the host description used in connection errors. It must not carry secrets.
func WithHost(val string) func(*Session) {
	return func(o *Session) {
		o.host = val
	}
}

// WithTempFs sets the file system temporary downloads are written to.
func WithTempFs(val afero.Fs) func(*Session) {
	return func(o *Session) {
		o.tempFs = val
	}
}

// ID returns the identifier attached to every log line of this session.
func (s *Session) ID() string {
	return s.id
}

func (s *Session) connectIfNeeded() error {
	if s.client.IsConnected() {
		return nil
	}
	if err := s.client.Connect(); err != nil {
		s.logger.Debug("connect failed", "err", err)
		return &errs.ConnectionError{Host: s.host, Err: err}
	}
	s.logger.Debug("connected")
	return nil
}

// disconnect never fails the operation it closes; problems are only logged.
func (s *Session) disconnect() {
	if !s.client.IsConnected() {
		return
	}
	if err := s.client.Disconnect(); err != nil {
		s.logger.Warn("could not disconnect", "err", err)
		return
	}
	s.logger.Debug("disconnected")
}

// Close disconnects a session left open by Exists or CreateDirectory.
func (s *Session) Close() error {
	if !s.client.IsConnected() {
		return nil
	}
	if err := s.client.Disconnect(); err != nil {
		return &errs.TransportError{Op: "disconnect", Path: s.host, Err: err}
	}
	return nil
}

// translate turns a client failure into one of the errs types.
func translate(op, path string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, fs.ErrNotExist):
		return &errs.NotFoundError{Op: op, Path: path, Err: err}
	case errors.Is(err, fs.ErrExist):
		return &errs.OperationError{Op: op, Path: path, Reason: "already exists", Err: err}
	case errors.Is(err, fs.ErrPermission):
		return &errs.OperationError{Op: op, Path: path, Reason: "rejected by remote", Err: err}
	default:
		return &errs.TransportError{Op: op, Path: path, Err: err}
	}
}

func (s *Session) done(op, path string, start time.Time, err error) {
	if err != nil {
		s.logger.Error("operation failed", "op", op, "path", path, "elapsed", time.Since(start), "err", err)
		return
	}
	s.logger.Info("operation completed", "op", op, "path", path, "elapsed", time.Since(start))
}

// Send streams src into remotePath in TransferBufferSize chunks.
func (s *Session) Send(remotePath string, src io.Reader) (err error) {
	start := time.Now()
	defer func() { s.done("send", remotePath, start, err) }()

	if err := s.connectIfNeeded(); err != nil {
		return err
	}
	defer s.disconnect()

	w, err := s.client.OpenWrite(remotePath)
	if err != nil {
		return translate("send", remotePath, err)
	}

	// The anonymous structs hide ReaderFrom/WriterTo so the buffer size holds.
	buf := make([]byte, TransferBufferSize)
	_, copyErr := io.CopyBuffer(struct{ io.Writer }{w}, struct{ io.Reader }{src}, buf)
	closeErr := w.Close()
	if copyErr != nil {
		return translate("send", remotePath, copyErr)
	}
	return translate("send", remotePath, closeErr)
}

// SendTo uploads src as filename inside directory.
func (s *Session) SendTo(directory, filename string, src io.Reader) error {
	return s.Send(utils.JoinRemote(directory, filename), src)
}

// SendFile uploads a local file into directory, keeping its base name.
func (s *Session) SendFile(directory, localPath string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer file.Close()

	return s.SendTo(directory, filepath.Base(localPath), file)
}

// DirectoryFiles returns the names of the regular files in path, in listing order.
// When extensions is not empty only names containing one of them are kept; the
// match is a substring match, so "csv" also keeps "csv_backup.txt". A name
// matching several extensions is returned once, not once per extension.
func (s *Session) DirectoryFiles(path string, extensions []string) (names []string, err error) {
	start := time.Now()
	defer func() { s.done("list", path, start, err) }()

	if err := s.connectIfNeeded(); err != nil {
		return nil, err
	}
	defer s.disconnect()

	entries, err := s.client.ReadDir(path)
	if err != nil {
		return nil, translate("list", path, err)
	}

	names = make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.Regular {
			continue
		}
		if len(extensions) == 0 || containsAny(entry.Name, extensions) {
			names = append(names, entry.Name)
		}
	}
	return names, nil
}

func containsAny(name string, extensions []string) bool {
	for _, ext := range extensions {
		if strings.Contains(name, ext) {
			return true
		}
	}
	return false
}

// ListDirectory returns the full paths of the entries of path, oldest first.
// A non-empty pattern must match the whole path for an entry to be kept.
func (s *Session) ListDirectory(path, pattern string) (paths []string, err error) {
	start := time.Now()
	defer func() { s.done("list", path, start, err) }()

	var re *regexp.Regexp
	if pattern != "" {
		re, err = regexp.Compile("^(?:" + pattern + ")$")
		if err != nil {
			return nil, &errs.OperationError{Op: "list", Path: path, Reason: "invalid match pattern", Err: err}
		}
	}

	if err := s.connectIfNeeded(); err != nil {
		return nil, err
	}
	defer s.disconnect()

	entries, err := s.client.ReadDir(path)
	if err != nil {
		return nil, translate("list", path, err)
	}

	kept := make([]interfaces.Entry, 0, len(entries))
	for _, entry := range entries {
		if re == nil || re.MatchString(entry.Path) {
			kept = append(kept, entry)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].ModTime.Before(kept[j].ModTime)
	})

	paths = make([]string, len(kept))
	for i, entry := range kept {
		paths[i] = entry.Path
	}
	return paths, nil
}

// Exists reports whether path exists. The session stays connected.
func (s *Session) Exists(path string) (bool, error) {
	if err := s.connectIfNeeded(); err != nil {
		return false, err
	}
	ok, err := s.client.Exists(path)
	if err != nil {
		return false, translate("exists", path, err)
	}
	return ok, nil
}

// CreateDirectory creates path. The session stays connected, and creating an
// existing directory fails on most servers: check Exists first.
func (s *Session) CreateDirectory(path string) error {
	if err := s.connectIfNeeded(); err != nil {
		return err
	}
	if err := s.client.Mkdir(path); err != nil {
		return translate("mkdir", path, err)
	}
	s.logger.Info("directory created", "path", path)
	return nil
}

// Download streams the remote file into w.
func (s *Session) Download(remotePath string, w io.Writer) (err error) {
	start := time.Now()
	defer func() { s.done("download", remotePath, start, err) }()

	if err := s.connectIfNeeded(); err != nil {
		return err
	}
	defer s.disconnect()

	return translate("download", remotePath, s.client.Download(remotePath, w))
}

// DownloadToMemory reads the whole remote file into a new buffer. Nothing bounds
// its size: callers must only use it for files known to fit in memory.
func (s *Session) DownloadToMemory(remotePath string) (*bytes.Buffer, error) {
	buf := new(bytes.Buffer)
	if err := s.Download(remotePath, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// DownloadToTemporaryFile copies filename from remoteDirectory into a new
// temporary file and returns its path. Removing that file is up to the caller.
func (s *Session) DownloadToTemporaryFile(remoteDirectory, filename string) (localPath string, err error) {
	remotePath := utils.JoinRemote(remoteDirectory, filename)
	start := time.Now()
	defer func() { s.done("download", remotePath, start, err) }()

	if err := s.connectIfNeeded(); err != nil {
		return "", err
	}
	defer s.disconnect()

	file, err := afero.TempFile(s.tempFs, "", "sftp-")
	if err != nil {
		return "", err
	}
	localPath = file.Name()

	downloadErr := s.client.Download(remotePath, file)
	closeErr := file.Close()
	if downloadErr == nil && closeErr != nil {
		downloadErr = closeErr
	}
	if downloadErr != nil {
		if err := s.tempFs.Remove(localPath); err != nil {
			s.logger.Warn("could not remove partial download", "file", localPath, "err", err)
		}
		return "", translate("download", remotePath, downloadErr)
	}
	return localPath, nil
}

// Rename moves oldPath to newPath. An existing newPath is never overwritten.
func (s *Session) Rename(oldPath, newPath string) (err error) {
	start := time.Now()
	defer func() { s.done("rename", oldPath, start, err) }()

	if err := s.connectIfNeeded(); err != nil {
		return err
	}
	defer s.disconnect()

	exists, err := s.client.Exists(newPath)
	if err != nil {
		return translate("rename", newPath, err)
	}
	if exists {
		return &errs.OperationError{Op: "rename", Path: newPath, Reason: "destination already exists"}
	}

	return translate("rename", oldPath, s.client.Rename(oldPath, newPath))
}

// Delete removes path.
func (s *Session) Delete(path string) (err error) {
	start := time.Now()
	defer func() { s.done("delete", path, start, err) }()

	if err := s.connectIfNeeded(); err != nil {
		return err
	}
	defer s.disconnect()

	return translate("delete", path, s.client.Remove(path))
}
