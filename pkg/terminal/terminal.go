// Package terminal manages named interactive shell sessions backed by
// pseudo-terminals. Task requests in terminal mode inject command lines into
// these sessions fire-and-forget; nothing reads the results back.
package terminal

import (
	"io"
	"os"
	"os/exec"
	"runtime"
	"sync"

	"github.com/creack/pty"

	"github.com/odvcencio/tether/pkg/errors"
)

// DefaultName is used when a task request names no terminal.
const DefaultName = "tether"

// Session is one live shell under a pty.
type Session struct {
	name string
	cmd  *exec.Cmd
	ptmx *os.File

	mu   sync.Mutex
	dead bool
}

// Name returns the session's name.
func (s *Session) Name() string {
	return s.name
}

// Alive reports whether the shell is still running.
func (s *Session) Alive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.dead
}

// SendLine writes one command line to the shell, appending a newline.
func (s *Session) SendLine(line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dead {
		return errors.New(errors.ErrCodeTerminal, "terminal session has exited").
			WithContext("terminal", s.name)
	}
	if _, err := s.ptmx.Write([]byte(line + "\n")); err != nil {
		s.dead = true
		return errors.Wrap(err, errors.ErrCodeTerminal, "write to terminal").
			WithContext("terminal", s.name)
	}
	return nil
}

// Close terminates the shell and releases the pty.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.dead {
		s.mu.Unlock()
		return nil
	}
	s.dead = true
	s.mu.Unlock()

	err := s.ptmx.Close()
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	_ = s.cmd.Wait()
	return err
}

func (s *Session) markDead() {
	s.mu.Lock()
	s.dead = true
	s.mu.Unlock()
}

// Manager keeps named sessions and spawns shells on demand.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	shell    string
	closed   bool
}

// Option configures the manager.
type Option func(*Manager)

// WithShell overrides the shell binary, mainly for tests.
func WithShell(shell string) Option {
	return func(m *Manager) { m.shell = shell }
}

// NewManager creates an empty session manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Ensure returns the live session with the given name, spawning a fresh
// shell when none exists or the previous one has exited. An empty name maps
// to DefaultName.
func (m *Manager) Ensure(name string) (*Session, error) {
	if name == "" {
		name = DefaultName
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, errors.New(errors.ErrCodeTerminal, "terminal manager closed")
	}
	if s, ok := m.sessions[name]; ok && s.Alive() {
		return s, nil
	}

	s, err := m.spawn(name)
	if err != nil {
		return nil, err
	}
	m.sessions[name] = s
	return s, nil
}

// Close terminates every session.
func (m *Manager) Close() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.closed = true
	m.mu.Unlock()

	for _, s := range sessions {
		_ = s.Close()
	}
}

func (m *Manager) spawn(name string) (*Session, error) {
	shell := m.shell
	if shell == "" {
		shell = os.Getenv("SHELL")
	}
	if shell == "" {
		shell = "/bin/bash"
	}

	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.Command(shell)
	} else if m.shell == "" {
		cmd = exec.Command(shell, "-l")
	} else {
		cmd = exec.Command(shell)
	}
	cmd.Env = os.Environ()

	ptmx, err := pty.Start(cmd)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeTerminal, "start shell").
			WithContext("terminal", name).
			WithContext("shell", shell)
	}

	s := &Session{
		name: name,
		cmd:  cmd,
		ptmx: ptmx,
	}

	// Drain output so the shell never blocks on a full pty buffer; EOF means
	// the shell exited.
	go func() {
		_, _ = io.Copy(io.Discard, ptmx)
		s.markDead()
		_ = cmd.Wait()
	}()

	return s, nil
}
