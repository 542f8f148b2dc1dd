// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package remote

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"sync"

	"github.com/jlaffaye/ftp"
)

// ftpClient is the Client implementation backed by a single FTP control
// connection. Only one remote call is ever in flight at a time; mu enforces
// that regardless of how many dispatcher goroutines call in concurrently.
type ftpClient struct {
	opt Options

	mu   sync.Mutex
	conn *ftp.ServerConn
}

// NewFTPClient returns a Client that has not yet connected; call Connect
// before issuing any other call.
func NewFTPClient(opt Options) Client {
	return &ftpClient{opt: opt}
}

func (c *ftpClient) addr() string {
	return fmt.Sprintf("%s:%d", c.opt.Host, c.opt.Port)
}

func (c *ftpClient) dial(ctx context.Context) (*ftp.ServerConn, error) {
	opts := []ftp.DialOption{ftp.DialWithContext(ctx)}

	if c.opt.TLS {
		tlsConfig := &tls.Config{
			ServerName:         c.opt.Host,
			InsecureSkipVerify: c.opt.TLSInsecureSkipVerify,
		}
		opts = append(opts, ftp.DialWithExplicitTLS(tlsConfig))
	}

	conn, err := ftp.Dial(c.addr(), opts...)
	if err != nil {
		return nil, fmt.Errorf("remote: dial %q: %w", c.addr(), err)
	}

	if err := conn.Login(c.opt.User, c.opt.Password); err != nil {
		_ = conn.Quit()
		return nil, fmt.Errorf("remote: login: %w", err)
	}

	return conn, nil
}

func (c *ftpClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	c.conn = conn
	return nil
}

func (c *ftpClient) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		_ = c.conn.Quit()
	}

	conn, err := c.dial(ctx)
	if err != nil {
		c.conn = nil
		return err
	}
	if err := conn.ChangeDir("/"); err != nil {
		_ = conn.Quit()
		c.conn = nil
		return fmt.Errorf("remote: cwd %q: %w", "/", err)
	}
	c.conn = conn
	return nil
}

func (c *ftpClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	err := c.conn.Quit()
	c.conn = nil
	return err
}

func (c *ftpClient) Pwd(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.conn.CurrentDir()
}

func (c *ftpClient) ListDir(ctx context.Context, dir string) ([]Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	saved, err := c.conn.CurrentDir()
	if err != nil {
		return nil, fmt.Errorf("remote: pwd: %w", err)
	}

	if err := c.conn.ChangeDir(dir); err != nil {
		return nil, fmt.Errorf("remote: cwd %q: %w", dir, err)
	}
	defer func() { _ = c.conn.ChangeDir(saved) }()

	lines, err := c.conn.List(".")
	if err != nil {
		return nil, fmt.Errorf("remote: list %q: %w", dir, err)
	}

	entries := make([]Entry, 0, len(lines))
	for _, l := range lines {
		entry, perr := ParseListLine(dir, syntheticListLine(l))
		if perr != nil {
			continue
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

// syntheticListLine rebuilds a Unix "ls -l" style LIST line from an entry
// jlaffaye/ftp has already parsed off the wire. The library's own parser
// reads the permission field only to classify Type and then discards it;
// its exported Entry carries no mode bits and List offers no way back to
// the raw line. The permission field here is therefore a type-based
// default (0755 for directories, 0644 otherwise), not the server's real
// mode, run through the same ParseListLine a raw-line source would use.
func syntheticListLine(e *ftp.Entry) string {
	perm := "-rw-r--r--"
	if e.Type == ftp.EntryTypeFolder {
		perm = "drwxr-xr-x"
	}
	return fmt.Sprintf("%s 1 owner group %d Jan 1 00:00 %s", perm, e.Size, e.Name)
}

func (c *ftpClient) Size(ctx context.Context, p string) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	size, err := c.conn.FileSize(p)
	if err != nil {
		return 0, fmt.Errorf("remote: size %q: %w", p, err)
	}
	return uint64(size), nil
}

func (c *ftpClient) Retrieve(ctx context.Context, p string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	resp, err := c.conn.Retr(p)
	if err != nil {
		return nil, fmt.Errorf("remote: retrieve %q: %w", p, err)
	}
	defer resp.Close()

	data, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("remote: read %q: %w", p, err)
	}
	return data, nil
}

func (c *ftpClient) Store(ctx context.Context, p string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.conn.Stor(p, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("remote: store %q: %w", p, err)
	}
	return nil
}

func (c *ftpClient) Delete(ctx context.Context, p string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.conn.Delete(p); err != nil {
		return fmt.Errorf("remote: delete %q: %w", p, err)
	}
	return nil
}

func (c *ftpClient) Mkdir(ctx context.Context, p string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.conn.MakeDir(p); err != nil {
		return fmt.Errorf("remote: mkdir %q: %w", p, err)
	}
	return nil
}

func (c *ftpClient) Rmdir(ctx context.Context, p string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.conn.RemoveDir(p); err != nil {
		return fmt.Errorf("remote: rmdir %q: %w", p, err)
	}
	return nil
}

func (c *ftpClient) Rename(ctx context.Context, from, to string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.conn.Rename(from, to); err != nil {
		return fmt.Errorf("remote: rename %q -> %q: %w", from, to, err)
	}
	return nil
}

func (c *ftpClient) IsDir(ctx context.Context, p string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	saved, err := c.conn.CurrentDir()
	if err != nil {
		return false, fmt.Errorf("remote: pwd: %w", err)
	}

	if err := c.conn.ChangeDir(p); err != nil {
		return false, nil
	}
	_ = c.conn.ChangeDir(saved)
	return true, nil
}

func (c *ftpClient) Exists(ctx context.Context, p string) (bool, error) {
	if _, err := c.Size(ctx, p); err == nil {
		return true, nil
	}

	return c.IsDir(ctx, p)
}
