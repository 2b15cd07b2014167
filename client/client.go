// Package client provides an SSH interface to run commands on lab devices.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
)

var ansiEscape = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// ErrNotConnected is returned when a command is issued before Connect.
var ErrNotConnected = errors.New("client not connected")

// DialTimeout bounds the TCP connect and SSH handshake.
const DialTimeout = 5 * time.Second

// Result holds the fully drained output of one remote command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Client provides SSH sessions on a single connection to a device.
type Client struct {
	Addr     string      // Address of the device (host:port)
	User     string      // SSH username
	Password string      // SSH password
	conn     *ssh.Client // Underlying SSH connection

	mu       sync.Mutex
	detached []*ssh.Session // Sessions started without waiting
}

// NewClient returns a new initialized Client instance.
func NewClient(addr, user, password string) *Client {
	return &Client{
		Addr:     addr,
		User:     user,
		Password: password,
	}
}

// Connect establishes the SSH connection. Unknown host keys are accepted.
func (c *Client) Connect(ctx context.Context) error {
	cfg := &ssh.ClientConfig{
		User:            c.User,
		Auth:            []ssh.AuthMethod{ssh.Password(c.Password)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         DialTimeout,
	}

	d := net.Dialer{Timeout: DialTimeout}
	nc, err := d.DialContext(ctx, "tcp", c.Addr)
	if err != nil {
		return fmt.Errorf("SSH dial failed: %w", err)
	}
	sc, chans, reqs, err := ssh.NewClientConn(nc, c.Addr, cfg)
	if err != nil {
		nc.Close()
		return fmt.Errorf("SSH handshake with %s failed: %w", c.Addr, err)
	}
	c.conn = ssh.NewClient(sc, chans, reqs)
	slog.DebugContext(ctx, "SSH connection established", "host", c.Addr, "user", c.User)
	return nil
}

// RunCommand executes cmd in a new session and blocks until its stdout and
// stderr are drained. A non-zero remote exit status is reported in
// Result.ExitCode rather than as an error.
func (c *Client) RunCommand(ctx context.Context, cmd string) (Result, error) {
	if c.conn == nil {
		return Result{}, ErrNotConnected
	}
	sess, err := c.conn.NewSession()
	if err != nil {
		return Result{}, fmt.Errorf("SSH session failed: %w", err)
	}
	defer sess.Close()

	var stdout, stderr bytes.Buffer
	sess.Stdout = &stdout
	sess.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- sess.Run(cmd) }()

	select {
	case <-ctx.Done():
		sess.Close()
		return Result{}, ctx.Err()
	case err = <-done:
	}

	res := Result{
		Stdout: clean(stdout.String()),
		Stderr: clean(stderr.String()),
	}
	var exitErr *ssh.ExitError
	var missingErr *ssh.ExitMissingError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitStatus()
	case errors.As(err, &missingErr):
		res.ExitCode = -1
	default:
		return res, fmt.Errorf("running %q: %w", cmd, err)
	}
	return res, nil
}

// Start launches cmd without reading its output. The session stays open
// until Close.
func (c *Client) Start(ctx context.Context, cmd string) error {
	if c.conn == nil {
		return ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	sess, err := c.conn.NewSession()
	if err != nil {
		return fmt.Errorf("SSH session failed: %w", err)
	}
	if err := sess.Start(cmd); err != nil {
		sess.Close()
		return fmt.Errorf("starting %q: %w", cmd, err)
	}

	c.mu.Lock()
	c.detached = append(c.detached, sess)
	c.mu.Unlock()
	return nil
}

// Close terminates any detached sessions and the connection.
// It is safe to call more than once.
func (c *Client) Close() {
	c.mu.Lock()
	for _, s := range c.detached {
		s.Close()
	}
	c.detached = nil
	c.mu.Unlock()

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

func clean(s string) string {
	s = ansiEscape.ReplaceAllString(s, "")
	return strings.ReplaceAll(s, "\r", "")
}
