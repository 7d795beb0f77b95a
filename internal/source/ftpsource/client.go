// Package ftpsource implements source.RemoteClient over FTP.
package ftpsource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"net/textproto"
	"path"
	"strconv"
	"time"

	"github.com/jlaffaye/ftp"

	"github.com/mattjoyce/intake/internal/source"
)

// DefaultPort is the FTP control port.
const DefaultPort = 21

var errNotConnected = errors.New("ftp: not connected")

// Config holds the connection settings of one FTP server.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	Timeout  time.Duration
}

// Addr is host:port, defaulting the port.
func (c Config) Addr() string {
	port := c.Port
	if port == 0 {
		port = DefaultPort
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(port))
}

// Client holds at most one control connection.
type Client struct {
	cfg  Config
	conn *ftp.ServerConn
}

var _ source.RemoteClient = (*Client)(nil)

func New(cfg Config) *Client {
	return &Client{cfg: cfg}
}

func (c *Client) Connect(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}
	opts := []ftp.DialOption{ftp.DialWithContext(ctx)}
	if c.cfg.Timeout > 0 {
		opts = append(opts, ftp.DialWithTimeout(c.cfg.Timeout))
	}
	conn, err := ftp.Dial(c.cfg.Addr(), opts...)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.cfg.Addr(), err)
	}
	if err := conn.Login(c.cfg.Username, c.cfg.Password); err != nil {
		_ = conn.Quit()
		return fmt.Errorf("login %s@%s: %w", c.cfg.Username, c.cfg.Addr(), err)
	}
	c.conn = conn
	return nil
}

func (c *Client) Disconnect() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Quit()
	c.conn = nil
	return err
}

func (c *Client) List(_ context.Context, dir string) ([]source.RemoteEntry, error) {
	if c.conn == nil {
		return nil, errNotConnected
	}
	entries, err := c.conn.List(dir)
	if err != nil {
		return nil, err
	}
	return files(dir, entries), nil
}

func (c *Client) Stat(_ context.Context, remotePath string) (source.RemoteEntry, error) {
	if c.conn == nil {
		return source.RemoteEntry{}, errNotConnected
	}
	entries, err := c.conn.List(remotePath)
	if isUnavailable(err) {
		return source.RemoteEntry{}, fmt.Errorf("%s: %w", remotePath, fs.ErrNotExist)
	}
	if err != nil {
		return source.RemoteEntry{}, err
	}
	name := path.Base(remotePath)
	for _, e := range files(path.Dir(remotePath), entries) {
		if e.Name == name {
			return e, nil
		}
	}
	return source.RemoteEntry{}, fmt.Errorf("%s: %w", remotePath, fs.ErrNotExist)
}

func (c *Client) Fetch(_ context.Context, remotePath string, w io.Writer) error {
	if c.conn == nil {
		return errNotConnected
	}
	resp, err := c.conn.Retr(remotePath)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, resp); err != nil {
		_ = resp.Close()
		return err
	}
	return resp.Close()
}

func (c *Client) Delete(_ context.Context, remotePath string) error {
	if c.conn == nil {
		return errNotConnected
	}
	return c.conn.Delete(remotePath)
}

// files keeps plain files. Some servers answer LIST <file> with the full
// path as the entry name, so names are reduced to their base.
func files(dir string, entries []*ftp.Entry) []source.RemoteEntry {
	out := make([]source.RemoteEntry, 0, len(entries))
	for _, e := range entries {
		if e == nil || e.Type != ftp.EntryTypeFile {
			continue
		}
		name := path.Base(e.Name)
		out = append(out, source.RemoteEntry{
			Name:    name,
			Path:    path.Join(dir, name),
			ModTime: e.Time,
			Size:    int64(e.Size),
		})
	}
	return out
}

func isUnavailable(err error) bool {
	var te *textproto.Error
	return errors.As(err, &te) && te.Code == ftp.StatusFileUnavailable
}
