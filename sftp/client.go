// Package sftp implements interfaces.Client on top of golang.org/x/crypto/ssh and
// github.com/pkg/sftp.
package sftp

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/oarkflow/sftp-transport/interfaces"
	"github.com/oarkflow/sftp-transport/log"
	"github.com/oarkflow/sftp-transport/utils"
)

// Client ... One SSH connection carrying one SFTP subsystem.
type Client struct {
	settings Settings
	logger   log.Logger
	conn     *ssh.Client
	sftp     *sftp.Client
}

var _ interfaces.Client = (*Client)(nil)

// NewClient ... Creates a disconnected client for the given settings.
func NewClient(settings Settings, logger log.Logger) *Client {
	if logger == nil {
		logger = log.Nop()
	}
	return &Client{
		settings: settings,
		logger:   logger.With("host", settings.Host, "port", settings.port(), "user", settings.Username),
	}
}

// Connect dials the server, performs the SSH handshake and starts the SFTP subsystem.
// It is a no-op when already connected.
func (c *Client) Connect() error {
	if c.IsConnected() {
		return nil
	}

	config, err := c.clientConfig()
	if err != nil {
		return fmt.Errorf("build SSH config: %w", err)
	}

	addr := net.JoinHostPort(c.settings.Host, strconv.Itoa(c.settings.port()))
	conn, err := ssh.Dial("tcp", addr, config)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}

	client, err := sftp.NewClient(conn)
	if err != nil {
		conn.Close()
		return fmt.Errorf("create SFTP client: %w", err)
	}

	c.conn = conn
	c.sftp = client
	c.logger.Debug("sftp connection established")
	return nil
}

// Disconnect closes the SFTP subsystem then the SSH connection.
func (c *Client) Disconnect() error {
	var errs []error

	if c.sftp != nil {
		if err := c.sftp.Close(); err != nil {
			errs = append(errs, err)
		}
		c.sftp = nil
	}

	if c.conn != nil {
		if err := c.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, err)
		}
		c.conn = nil
	}

	if len(errs) > 0 {
		return errs[0]
	}
	c.logger.Debug("sftp connection closed")
	return nil
}

func (c *Client) IsConnected() bool {
	return c.sftp != nil
}

func (c *Client) client() (*sftp.Client, error) {
	if c.sftp == nil {
		return nil, errors.New("not connected")
	}
	return c.sftp, nil
}

// ReadDir lists path. Entry paths are absolute when the server can resolve path.
func (c *Client) ReadDir(path string) ([]interfaces.Entry, error) {
	client, err := c.client()
	if err != nil {
		return nil, err
	}

	infos, err := client.ReadDir(path)
	if err != nil {
		return nil, normalise(err)
	}

	dir := path
	if resolved, err := client.RealPath(path); err == nil {
		dir = resolved
	}

	entries := make([]interfaces.Entry, 0, len(infos))
	for _, fi := range infos {
		entries = append(entries, interfaces.Entry{
			Name:    fi.Name(),
			Path:    utils.JoinRemote(dir, fi.Name()),
			ModTime: fi.ModTime(),
			Size:    fi.Size(),
			Regular: fi.Mode().IsRegular(),
		})
	}
	return entries, nil
}

func (c *Client) OpenWrite(path string) (io.WriteCloser, error) {
	client, err := c.client()
	if err != nil {
		return nil, err
	}

	file, err := client.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return nil, normalise(err)
	}
	return file, nil
}

func (c *Client) Download(path string, w io.Writer) error {
	client, err := c.client()
	if err != nil {
		return err
	}

	file, err := client.Open(path)
	if err != nil {
		return normalise(err)
	}
	defer file.Close()

	if _, err := io.Copy(w, file); err != nil {
		return normalise(err)
	}
	return nil
}

func (c *Client) Exists(path string) (bool, error) {
	client, err := c.client()
	if err != nil {
		return false, err
	}

	if _, err := client.Stat(path); err != nil {
		err = normalise(err)
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (c *Client) Mkdir(path string) error {
	client, err := c.client()
	if err != nil {
		return err
	}
	mkdirErr := normalise(client.Mkdir(path))
	if mkdirErr == nil || errors.Is(mkdirErr, fs.ErrExist) {
		return mkdirErr
	}
	// OpenSSH answers a plain failure when path already exists.
	if exists, err := c.Exists(path); err == nil && exists {
		return &statusError{kind: fs.ErrExist, err: mkdirErr}
	}
	return mkdirErr
}

func (c *Client) Rename(oldPath, newPath string) error {
	client, err := c.client()
	if err != nil {
		return err
	}
	return normalise(client.Rename(oldPath, newPath))
}

// Remove deletes a file. Servers disagree on the status returned for a missing
// path, so a failed removal is followed by a stat to tell "missing" apart.
func (c *Client) Remove(path string) error {
	client, err := c.client()
	if err != nil {
		return err
	}

	removeErr := normalise(client.Remove(path))
	if removeErr == nil {
		return nil
	}
	if errors.Is(removeErr, fs.ErrNotExist) {
		return removeErr
	}
	if exists, err := c.Exists(path); err == nil && !exists {
		return &fs.PathError{Op: "remove", Path: path, Err: fs.ErrNotExist}
	}
	return removeErr
}

// clientConfig builds the SSH client configuration.
func (c *Client) clientConfig() (*ssh.ClientConfig, error) {
	var authMethods []ssh.AuthMethod

	if len(c.settings.PrivateKey) > 0 {
		var signer ssh.Signer
		var err error
		if c.settings.Passphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(c.settings.PrivateKey, []byte(c.settings.Passphrase))
		} else {
			signer, err = ssh.ParsePrivateKey(c.settings.PrivateKey)
		}
		if err != nil {
			return nil, fmt.Errorf("private key: %w", err)
		}
		authMethods = append(authMethods, ssh.PublicKeys(signer))
	}

	if c.settings.Password != "" {
		password := c.settings.Password
		authMethods = append(authMethods,
			ssh.Password(password),
			// Some servers only offer keyboard-interactive for passwords.
			ssh.KeyboardInteractive(func(user, instruction string, questions []string, echos []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = password
				}
				return answers, nil
			}),
		)
	}

	if len(authMethods) == 0 {
		return nil, errors.New("no authentication methods available")
	}

	hostKeyCallback, err := c.hostKeyCallback()
	if err != nil {
		return nil, err
	}

	return &ssh.ClientConfig{
		User:            c.settings.Username,
		Auth:            authMethods,
		HostKeyCallback: hostKeyCallback,
		Timeout:         c.settings.timeout(),
	}, nil
}

func (c *Client) hostKeyCallback() (ssh.HostKeyCallback, error) {
	switch {
	case c.settings.HostKey != nil:
		return ssh.FixedHostKey(c.settings.HostKey), nil
	case c.settings.KnownHostsFile != "":
		callback, err := knownhosts.New(c.settings.KnownHostsFile)
		if err != nil {
			return nil, fmt.Errorf("known hosts: %w", err)
		}
		return callback, nil
	case c.settings.InsecureIgnoreHostKey:
		return ssh.InsecureIgnoreHostKey(), nil
	}

	if home, err := os.UserHomeDir(); err == nil {
		defaultKnownHosts := filepath.Join(home, ".ssh", "known_hosts")
		if _, err := os.Stat(defaultKnownHosts); err == nil {
			if callback, err := knownhosts.New(defaultKnownHosts); err == nil {
				return callback, nil
			}
		}
	}

	c.logger.Warn("no known_hosts available, host key is not verified")
	return ssh.InsecureIgnoreHostKey(), nil
}
