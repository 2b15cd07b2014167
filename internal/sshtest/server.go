// Package sshtest runs an in-process SSH server for tests.
package sshtest

import (
	"io"
	"net"
	"sync"
	"testing"

	"github.com/gliderlabs/ssh"
)

const (
	// Localhost binds the fake server to a random loopback port.
	Localhost = "127.0.0.1:0"
	User      = "fake_user"
	Password  = "fake_password"
)

// Reply is what the fake server sends back for a command.
type Reply struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Responder maps an executed command to its reply.
type Responder func(command string) Reply

// Server is a fake SSH server accepting password auth.
type Server struct {
	listener net.Listener
	server   *ssh.Server

	mu       sync.Mutex
	commands []string
}

// NewServer starts a fake SSH server that is closed when the test ends.
func NewServer(t testing.TB, respond Responder) *Server {
	t.Helper()

	listener, err := net.Listen("tcp", Localhost)
	if err != nil {
		t.Fatalf("can't listen on %s: %v", Localhost, err)
	}
	s := &Server{listener: listener}
	s.server = &ssh.Server{
		Handler: func(sess ssh.Session) {
			cmd := sess.RawCommand()
			s.mu.Lock()
			s.commands = append(s.commands, cmd)
			s.mu.Unlock()

			r := respond(cmd)
			_, _ = io.WriteString(sess, r.Stdout)
			_, _ = io.WriteString(sess.Stderr(), r.Stderr)
			_ = sess.Exit(r.ExitCode)
		},
		PasswordHandler: func(ctx ssh.Context, password string) bool {
			return ctx.User() == User && password == Password
		},
	}

	go func() { _ = s.server.Serve(listener) }()
	t.Cleanup(func() { _ = s.server.Close() })
	return s
}

// Addr returns the host:port the server listens on.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Commands returns every command received so far.
func (s *Server) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}
