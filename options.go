package sftptransport

import (
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/oarkflow/sftp-transport/interfaces"
	"github.com/oarkflow/sftp-transport/log"
)

func WithHostname(val string) func(*Transport) {
	return func(o *Transport) {
		o.settings.Host = val
	}
}

func WithUsername(val string) func(*Transport) {
	return func(o *Transport) {
		o.settings.Username = val
	}
}

func WithPassword(val string) func(*Transport) {
	return func(o *Transport) {
		o.settings.Password = val
	}
}

// WithPort sets the SSH port. Defaults to 22.
func WithPort(val int) func(*Transport) {
	return func(o *Transport) {
		o.settings.Port = val
	}
}

// WithFilePath sets the remote file CollectRawData, SendData, RenameFile and
// DeleteFile act on.
func WithFilePath(val string) func(*Transport) {
	return func(o *Transport) {
		o.filePath = val
	}
}

// WithPrivateKey authenticates with a PEM encoded key, tried before the password.
func WithPrivateKey(pem []byte, passphrase string) func(*Transport) {
	return func(o *Transport) {
		o.settings.PrivateKey = pem
		o.settings.Passphrase = passphrase
	}
}

func WithKnownHostsFile(val string) func(*Transport) {
	return func(o *Transport) {
		o.settings.KnownHostsFile = val
	}
}

// WithHostKey pins the server's host key.
func WithHostKey(val ssh.PublicKey) func(*Transport) {
	return func(o *Transport) {
		o.settings.HostKey = val
	}
}

func WithInsecureIgnoreHostKey(val bool) func(*Transport) {
	return func(o *Transport) {
		o.settings.InsecureIgnoreHostKey = val
	}
}

// WithTimeout bounds dialing and the SSH handshake.
func WithTimeout(val time.Duration) func(*Transport) {
	return func(o *Transport) {
		o.settings.Timeout = val
	}
}

func WithAfterSend(val func()) func(*Transport) {
	return func(o *Transport) {
		o.afterSend = val
	}
}

func WithErrorAction(val func(error)) func(*Transport) {
	return func(o *Transport) {
		o.errorAction = val
	}
}

func WithLogger(val log.Logger) func(*Transport) {
	return func(o *Transport) {
		o.logger = val
	}
}

// WithClientFactory replaces the SFTP client every operation builds its session on.
func WithClientFactory(val func() interfaces.Client) func(*Transport) {
	return func(o *Transport) {
		o.clientFactory = val
	}
}
