// Package sftptransport exposes a remote SFTP file as a pipeline transport.
//
// A Transport keeps only configuration: every operation builds a fresh session,
// connects, performs its work and disconnects before returning. Errors propagate
// to the caller unchanged, except in SendData which reports failures as a value.
package sftptransport

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/oarkflow/sftp-transport/interfaces"
	"github.com/oarkflow/sftp-transport/log"
	"github.com/oarkflow/sftp-transport/session"
	"github.com/oarkflow/sftp-transport/sftp"
	"github.com/oarkflow/sftp-transport/utils"
)

const (
	// TransportMethod identifies this transport to the pipeline.
	TransportMethod = "sftp"
	// DefaultDirectory is listed when ListFiles gets no directory.
	DefaultDirectory = "."
)

type Transport struct {
	settings      sftp.Settings
	filePath      string
	afterSend     func()
	errorAction   func(error)
	logger        log.Logger
	clientFactory func() interfaces.Client

	mu          sync.Mutex
	lastRawData []byte
}

var _ interfaces.FileIntegrationTransport = (*Transport)(nil)

func defaultTransport() *Transport {
	return &Transport{
		settings: sftp.Settings{Port: sftp.DefaultPort},
		logger:   log.Nop(),
	}
}

func New(opts ...func(*Transport)) *Transport {
	t := defaultTransport()
	for _, o := range opts {
		o(t)
	}
	if t.logger == nil {
		t.logger = log.Nop()
	}
	t.logger = t.logger.With("transport", TransportMethod, "host", t.settings.Host)
	if t.clientFactory == nil {
		settings := t.settings
		logger := t.logger
		t.clientFactory = func() interfaces.Client {
			return sftp.NewClient(settings, logger)
		}
	}
	return t
}

// newSession builds the single-use session backing one operation.
func (t *Transport) newSession() *session.Session {
	return session.New(t.clientFactory(),
		session.WithHost(t.settings.String()),
		session.WithLogger(t.logger),
	)
}

func (t *Transport) CurrentTransportMethod() string {
	return TransportMethod
}

// PathSeparator is always "/".
func (t *Transport) PathSeparator() string {
	return utils.RemoteSeparator
}

func (t *Transport) FilePath() string {
	return t.filePath
}

func (t *Transport) SetAfterSend(fn func()) {
	t.afterSend = fn
}

func (t *Transport) SetErrorAction(fn func(error)) {
	t.errorAction = fn
}

// String describes the transport without exposing credentials.
func (t *Transport) String() string {
	return utils.JoinRemote(t.settings.String(), t.filePath)
}

// CollectRawData downloads the configured file into memory. The content is also
// kept for LastRawData until the next call.
func (t *Transport) CollectRawData() (*bytes.Buffer, error) {
	buf, err := t.newSession().DownloadToMemory(t.filePath)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	t.lastRawData = bytes.Clone(buf.Bytes())
	t.mu.Unlock()

	return buf, nil
}

// LastRawData returns a copy of what the last CollectRawData downloaded, or nil.
func (t *Transport) LastRawData() *bytes.Buffer {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.lastRawData == nil {
		return nil
	}
	return bytes.NewBuffer(bytes.Clone(t.lastRawData))
}

// SendData uploads data to the configured file. It never returns an error:
// failures come back as (false, message), are handed to the error action and
// skip the after-send hook. data is left unread.
func (t *Transport) SendData(data *bytes.Buffer) (bool, string) {
	var payload []byte
	if data != nil {
		payload = data.Bytes()
	}

	if err := t.newSession().Send(t.filePath, bytes.NewReader(payload)); err != nil {
		t.logger.Warn("send failed", "path", t.filePath, "err", err)
		if t.errorAction != nil {
			t.errorAction(err)
		}
		return false, err.Error()
	}

	if t.afterSend != nil {
		t.afterSend()
	}
	return true, fmt.Sprintf("Successfully transferred file '%s' via %s", t.filePath, TransportMethod)
}

// RenameFile renames the configured file to newPath.
func (t *Transport) RenameFile(newPath string) error {
	return t.newSession().Rename(t.filePath, newPath)
}

// ListFiles returns the full paths in directory matching matchExpression, oldest
// first. An empty directory lists ".", an empty expression keeps everything.
func (t *Transport) ListFiles(directory, matchExpression string) ([]string, error) {
	if directory == "" {
		directory = DefaultDirectory
	}
	return t.newSession().ListDirectory(directory, matchExpression)
}

// DirectoryFiles returns the names of the regular files in directory whose name
// contains one of extensions, or all of them when none is given.
func (t *Transport) DirectoryFiles(directory string, extensions ...string) ([]string, error) {
	return t.newSession().DirectoryFiles(directory, extensions)
}

// EnsureDirectory creates path unless it already exists.
func (t *Transport) EnsureDirectory(path string) error {
	s := t.newSession()
	defer s.Close()

	exists, err := s.Exists(path)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return s.CreateDirectory(path)
}

// DeleteFile deletes the configured file.
func (t *Transport) DeleteFile() error {
	return t.newSession().Delete(t.filePath)
}

// FileExists reports whether path, which need not be the configured file, exists.
func (t *Transport) FileExists(path string) (bool, error) {
	s := t.newSession()
	defer s.Close()

	return s.Exists(path)
}

// DownloadFile copies filename from directory into a new temporary local file and
// returns its path. The caller removes it.
func (t *Transport) DownloadFile(directory, filename string) (string, error) {
	return t.newSession().DownloadToTemporaryFile(directory, filename)
}

// DownloadTo streams the configured file into w.
func (t *Transport) DownloadTo(w io.Writer) error {
	return t.newSession().Download(t.filePath, w)
}

// SendTo uploads src as filename inside directory. Unlike SendData it reports
// failures as errors and runs no hooks.
func (t *Transport) SendTo(directory, filename string, src io.Reader) error {
	return t.newSession().SendTo(directory, filename, src)
}

// UploadFile copies a local file into directory under its own base name.
func (t *Transport) UploadFile(directory, localPath string) error {
	return t.newSession().SendFile(directory, localPath)
}
