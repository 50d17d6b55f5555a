// Package sftptest runs an SFTP server over an afero file system, for tests and
// local experiments.
package sftptest

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/sftp"
	"github.com/spf13/afero"
	"golang.org/x/crypto/ssh"

	"github.com/oarkflow/sftp-transport/fs"
	"github.com/oarkflow/sftp-transport/log"
	"github.com/oarkflow/sftp-transport/utils"
)

// User ... An account allowed on the server.
type User struct {
	Name        string
	Password    string
	PublicKey   ssh.PublicKey
	Permissions []string
}

// InvalidCredentialsError is returned when a login does not match any user.
type InvalidCredentialsError struct {
	User string
}

func (err InvalidCredentialsError) Error() string {
	return fmt.Sprintf("invalid credentials for %s", err.User)
}

type Server struct {
	fs          afero.Fs
	users       map[string]User
	logger      log.Logger
	address     string
	hostKeyFile string
	readOnly    bool
	hook        func(request *sftp.Request, err error)

	signer   ssh.Signer
	listener net.Listener
	wg       sync.WaitGroup

	// mu guards users, conns and closed.
	mu     sync.Mutex
	conns  map[net.Conn]struct{}
	closed bool
}

func defaultServer() *Server {
	return &Server{
		fs:      afero.NewMemMapFs(),
		users:   map[string]User{},
		logger:  log.Nop(),
		address: "127.0.0.1:0",
		conns:   map[net.Conn]struct{}{},
	}
}

func New(opts ...func(*Server)) *Server {
	svr := defaultServer()
	for _, o := range opts {
		o(svr)
	}
	return svr
}

// WithUser adds a password account. Without permissions the user gets
// utils.DefaultPermissions.
func WithUser(name, password string, permissions ...string) func(*Server) {
	return func(o *Server) {
		o.AddUser(User{Name: name, Password: password, Permissions: permissions})
	}
}

// WithAuthorizedKey adds an account authenticated by key.
func WithAuthorizedKey(name string, key ssh.PublicKey, permissions ...string) func(*Server) {
	return func(o *Server) {
		o.AddUser(User{Name: name, PublicKey: key, Permissions: permissions})
	}
}

// WithFs sets the served file system. Defaults to a fresh afero.MemMapFs.
func WithFs(val afero.Fs) func(*Server) {
	return func(o *Server) {
		o.fs = val
	}
}

func WithLogger(val log.Logger) func(*Server) {
	return func(o *Server) {
		if val != nil {
			o.logger = val
		}
	}
}

// WithAddress sets the listen address. Defaults to a random local port.
func WithAddress(val string) func(*Server) {
	return func(o *Server) {
		o.address = val
	}
}

// WithHostKeyFile keeps the host key in a PEM file, generated on first start.
// Without it a new key is made for every server.
func WithHostKeyFile(val string) func(*Server) {
	return func(o *Server) {
		o.hostKeyFile = val
	}
}

func WithReadOnly(val bool) func(*Server) {
	return func(o *Server) {
		o.readOnly = val
	}
}

// WithRequestHook is called after every SFTP request with its outcome.
func WithRequestHook(val func(request *sftp.Request, err error)) func(*Server) {
	return func(o *Server) {
		o.hook = val
	}
}

func (c *Server) AddUser(user User) {
	if len(user.Permissions) == 0 {
		user.Permissions = utils.DefaultPermissions
	}
	c.mu.Lock()
	c.users[user.Name] = user
	c.mu.Unlock()
}

func (c *Server) user(name string) (User, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	user, ok := c.users[name]
	return user, ok
}

// Fs returns the served file system, for seeding and inspecting content.
func (c *Server) Fs() afero.Fs {
	return c.fs
}

// HostKey returns the public host key. It is nil before Start.
func (c *Server) HostKey() ssh.PublicKey {
	if c.signer == nil {
		return nil
	}
	return c.signer.PublicKey()
}

// Addr returns the host and port the server listens on. Only valid after Start.
func (c *Server) Addr() (string, int) {
	host, port, err := net.SplitHostPort(c.listener.Addr().String())
	if err != nil {
		return "", 0
	}
	p, _ := strconv.Atoi(port)
	return host, p
}

func (c *Server) Validate(conn ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
	user, ok := c.user(conn.User())
	if !ok || user.Password == "" || user.Password != string(pass) {
		c.logger.Warn("rejected login", "user", conn.User(), "ip", conn.RemoteAddr().String())
		return nil, &InvalidCredentialsError{User: conn.User()}
	}
	return permissions(user), nil
}

func (c *Server) ValidateKey(conn ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
	user, ok := c.user(conn.User())
	if !ok || user.PublicKey == nil || !bytes.Equal(user.PublicKey.Marshal(), key.Marshal()) {
		return nil, &InvalidCredentialsError{User: conn.User()}
	}
	return permissions(user), nil
}

func permissions(user User) *ssh.Permissions {
	return &ssh.Permissions{
		Extensions: map[string]string{
			"user":        user.Name,
			"permissions": strings.Join(user.Permissions, ","),
		},
	}
}

// Start listens and serves connections in the background until Close.
func (c *Server) Start() error {
	config, err := c.setupSSH()
	if err != nil {
		return err
	}
	listener, err := net.Listen("tcp", c.address)
	if err != nil {
		return err
	}
	c.listener = listener

	c.logger.Info("sftp subsystem listening for connections", "address", listener.Addr().String(), "fs_type", c.fs.Name())

	c.wg.Add(1)
	go c.acceptLoop(config)
	return nil
}

func (c *Server) acceptLoop(config *ssh.ServerConfig) {
	defer c.wg.Done()
	for {
		conn, err := c.listener.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				c.logger.Error("stopped accepting connections", "err", err)
			}
			return
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			conn.Close()
			return
		}
		c.conns[conn] = struct{}{}
		c.mu.Unlock()

		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			defer c.forget(conn)
			c.AcceptInboundConnection(conn, config)
		}()
	}
}

func (c *Server) forget(conn net.Conn) {
	c.mu.Lock()
	delete(c.conns, conn)
	c.mu.Unlock()
}

// Close stops listening, drops open connections and waits for their handlers.
func (c *Server) Close() error {
	var err error
	if c.listener != nil {
		err = c.listener.Close()
	}

	c.mu.Lock()
	c.closed = true
	for conn := range c.conns {
		conn.Close()
	}
	c.mu.Unlock()

	c.wg.Wait()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// AcceptInboundConnection ... Handles an inbound connection to the instance and determines if
// we should serve the request or not.
func (c *Server) AcceptInboundConnection(conn net.Conn, config *ssh.ServerConfig) {
	defer conn.Close()

	// Before beginning a handshake must be performed on the incoming net.Conn
	sconn, chans, reqs, err := ssh.NewServerConn(conn, config)
	if err != nil {
		c.logger.Debug("handshake failed", "ip", conn.RemoteAddr().String(), "err", err)
		return
	}
	defer sconn.Close()

	go ssh.DiscardRequests(reqs)

	for newChannel := range chans {
		// If its not a session channel we just move on because its not something we
		// know how to handle at this point.
		if newChannel.ChannelType() != "session" {
			newChannel.Reject(ssh.UnknownChannelType, "unknown channel type")
			continue
		}

		channel, requests, err := newChannel.Accept()
		if err != nil {
			continue
		}

		// Channels have a type that is dependent on the protocol. For SFTP this is "subsystem"
		// with a payload that (should) be "sftp". Discard anything else we receive ("pty", "shell", etc)
		go func(in <-chan *ssh.Request) {
			for req := range in {
				ok := req.Type == "subsystem" && len(req.Payload) > 4 && string(req.Payload[4:]) == "sftp"
				req.Reply(ok, nil)
			}
		}(requests)

		server := sftp.NewRequestServer(channel, c.createHandler(sconn.Permissions))
		if err := server.Serve(); err != nil && !errors.Is(err, io.EOF) {
			c.logger.Debug("sftp session ended", "user", sconn.User(), "err", err)
		}
		server.Close()
	}
}

// createHandler builds the handlers of one connection. Every connection gets its
// own handler carrying the logged in user's permissions.
func (c *Server) createHandler(perm *ssh.Permissions) sftp.Handlers {
	user := perm.Extensions["user"]
	handler := fs.New(c.fs,
		fs.WithPermissions(strings.Split(perm.Extensions["permissions"], ",")),
		fs.WithReadOnly(c.readOnly),
	)
	filesystem := fs.NewNotifier(handler, c.hook)
	filesystem.SetLogger(c.logger.With("user", user))
	return fs.Handlers(filesystem)
}

func (c *Server) setupSSH() (*ssh.ServerConfig, error) {
	config := &ssh.ServerConfig{
		NoClientAuth:      false,
		MaxAuthTries:      6,
		PasswordCallback:  c.Validate,
		PublicKeyCallback: c.ValidateKey,
	}

	signer, err := c.hostKey()
	if err != nil {
		return nil, err
	}
	c.signer = signer

	// Add our private key to the server configuration.
	config.AddHostKey(signer)
	return config, nil
}

func (c *Server) hostKey() (ssh.Signer, error) {
	if c.hostKeyFile == "" {
		key, err := generatePrivateKey()
		if err != nil {
			return nil, err
		}
		return ssh.ParsePrivateKey(key)
	}

	if _, err := os.Stat(c.hostKeyFile); os.IsNotExist(err) {
		key, err := generatePrivateKey()
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(filepath.Dir(c.hostKeyFile), 0755); err != nil {
			return nil, err
		}
		if err := os.WriteFile(c.hostKeyFile, key, 0600); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	privateBytes, err := os.ReadFile(c.hostKeyFile)
	if err != nil {
		return nil, err
	}
	return ssh.ParsePrivateKey(privateBytes)
}

// generatePrivateKey returns a new PEM encoded RSA key.
func generatePrivateKey() ([]byte, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}

	pkey := &pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	}
	return pem.EncodeToMemory(pkey), nil
}
