package sftp

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

const (
	// DefaultPort ... Port used when the settings don't carry one.
	DefaultPort = 22
	// DefaultTimeout ... Bound on dialing and the SSH handshake.
	DefaultTimeout = 30 * time.Second
)

// Settings ... Everything needed to reach and authenticate against an SFTP server.
type Settings struct {
	Host     string
	Port     int
	Username string
	Password string

	// PrivateKey is a PEM encoded key, optionally protected by Passphrase.
	PrivateKey []byte
	Passphrase string

	// Host key verification. HostKey wins over KnownHostsFile; with neither set the
	// user's ~/.ssh/known_hosts is used when present.
	HostKey               ssh.PublicKey
	KnownHostsFile        string
	InsecureIgnoreHostKey bool

	Timeout time.Duration
}

func (s Settings) port() int {
	if s.Port == 0 {
		return DefaultPort
	}
	return s.Port
}

func (s Settings) timeout() time.Duration {
	if s.Timeout == 0 {
		return DefaultTimeout
	}
	return s.Timeout
}

// String renders the settings without any secret.
func (s Settings) String() string {
	return fmt.Sprintf("sftp://%s@%s:%d", s.Username, s.Host, s.port())
}

// SSH_FX_FILE_ALREADY_EXISTS, not exported by pkg/sftp under a stable name.
const fxFileAlreadyExists = 11

// statusError keeps the server's message while also matching the io/fs sentinel
// the status code stands for.
type statusError struct {
	kind error
	err  error
}

func (e *statusError) Error() string {
	return e.err.Error()
}

func (e *statusError) Unwrap() []error {
	return []error{e.kind, e.err}
}

// normalise maps SFTP status codes onto fs.ErrNotExist, fs.ErrPermission and fs.ErrExist.
func normalise(err error) error {
	if err == nil {
		return nil
	}

	var status *sftp.StatusError
	if !errors.As(err, &status) {
		return err
	}

	var kind error
	switch status.Code {
	case uint32(sftp.ErrSshFxNoSuchFile):
		kind = fs.ErrNotExist
	case uint32(sftp.ErrSshFxPermissionDenied):
		kind = fs.ErrPermission
	case fxFileAlreadyExists:
		kind = fs.ErrExist
	default:
		return err
	}

	if errors.Is(err, kind) {
		return err
	}
	return &statusError{kind: kind, err: err}
}
