// Package sftpsource implements source.RemoteClient over SFTP.
package sftpsource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"path"
	"strconv"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/mattjoyce/intake/internal/source"
)

const (
	// DefaultPort is the SSH port.
	DefaultPort = 22
	// DefaultTimeout bounds the TCP dial and SSH handshake.
	DefaultTimeout = 2 * time.Second
)

var errNotConnected = errors.New("sftp: not connected")

// Config holds the connection settings of one SFTP server. Password and
// PrivateKeyPath may both be set; the key is offered first. An empty
// KnownHostsPath accepts any host key.
type Config struct {
	Host           string
	Port           int
	Username       string
	Password       string
	PrivateKeyPath string
	KnownHostsPath string
	Timeout        time.Duration
}

// Addr is host:port, defaulting the port.
func (c Config) Addr() string {
	port := c.Port
	if port == 0 {
		port = DefaultPort
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(port))
}

func (c Config) clientConfig() (*ssh.ClientConfig, error) {
	var auth []ssh.AuthMethod
	if c.PrivateKeyPath != "" {
		pem, err := os.ReadFile(c.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("read private key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(pem)
		if err != nil {
			return nil, fmt.Errorf("parse private key %s: %w", c.PrivateKeyPath, err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if c.Password != "" {
		auth = append(auth, ssh.Password(c.Password))
	}
	if len(auth) == 0 {
		return nil, errors.New("sftp: no password or private key configured")
	}

	hostKey := ssh.InsecureIgnoreHostKey()
	if c.KnownHostsPath != "" {
		cb, err := knownhosts.New(c.KnownHostsPath)
		if err != nil {
			return nil, fmt.Errorf("load known hosts: %w", err)
		}
		hostKey = cb
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &ssh.ClientConfig{
		User:            c.Username,
		Auth:            auth,
		HostKeyCallback: hostKey,
		Timeout:         timeout,
	}, nil
}

// Client holds one SSH connection and the SFTP session on top of it.
type Client struct {
	cfg  Config
	ssh  *ssh.Client
	sftp *sftp.Client
}

var _ source.RemoteClient = (*Client)(nil)

func New(cfg Config) *Client {
	return &Client{cfg: cfg}
}

func (c *Client) Connect(ctx context.Context) error {
	if c.sftp != nil {
		return nil
	}
	sshCfg, err := c.cfg.clientConfig()
	if err != nil {
		return err
	}
	addr := c.cfg.Addr()
	d := net.Dialer{Timeout: sshCfg.Timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	sc, chans, reqs, err := ssh.NewClientConn(conn, addr, sshCfg)
	if err != nil {
		conn.Close()
		return fmt.Errorf("ssh handshake %s@%s: %w", c.cfg.Username, addr, err)
	}
	client := ssh.NewClient(sc, chans, reqs)
	session, err := sftp.NewClient(client)
	if err != nil {
		client.Close()
		return fmt.Errorf("start sftp subsystem: %w", err)
	}
	c.ssh = client
	c.sftp = session
	return nil
}

func (c *Client) Disconnect() error {
	var errs []error
	if c.sftp != nil {
		errs = append(errs, c.sftp.Close())
		c.sftp = nil
	}
	if c.ssh != nil {
		errs = append(errs, c.ssh.Close())
		c.ssh = nil
	}
	return errors.Join(errs...)
}

func (c *Client) List(_ context.Context, dir string) ([]source.RemoteEntry, error) {
	if c.sftp == nil {
		return nil, errNotConnected
	}
	infos, err := c.sftp.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	out := make([]source.RemoteEntry, 0, len(infos))
	for _, fi := range infos {
		if !fi.Mode().IsRegular() {
			continue
		}
		out = append(out, entry(dir, fi))
	}
	return out, nil
}

func (c *Client) Stat(_ context.Context, remotePath string) (source.RemoteEntry, error) {
	if c.sftp == nil {
		return source.RemoteEntry{}, errNotConnected
	}
	fi, err := c.sftp.Stat(remotePath)
	if errors.Is(err, fs.ErrNotExist) {
		return source.RemoteEntry{}, fmt.Errorf("%s: %w", remotePath, fs.ErrNotExist)
	}
	if err != nil {
		return source.RemoteEntry{}, err
	}
	if !fi.Mode().IsRegular() {
		return source.RemoteEntry{}, fmt.Errorf("%s is not a regular file: %w", remotePath, fs.ErrNotExist)
	}
	return entry(path.Dir(remotePath), fi), nil
}

func (c *Client) Fetch(_ context.Context, remotePath string, w io.Writer) error {
	if c.sftp == nil {
		return errNotConnected
	}
	f, err := c.sftp.Open(remotePath)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}

func (c *Client) Delete(_ context.Context, remotePath string) error {
	if c.sftp == nil {
		return errNotConnected
	}
	return c.sftp.Remove(remotePath)
}

func entry(dir string, fi fs.FileInfo) source.RemoteEntry {
	return source.RemoteEntry{
		Name:    fi.Name(),
		Path:    path.Join(dir, fi.Name()),
		ModTime: fi.ModTime(),
		Size:    fi.Size(),
	}
}
