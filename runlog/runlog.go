// Package runlog records run output to the console and to an append-only,
// timestamped log file.
//
// Every entry is written as
//
//	[LEVEL][YYYY-MM-DD HH:MM:SS] message
//
// and the message may span several lines of captured command output.
package runlog

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"
)

const (
	// DefaultDir is where Initialize places log files.
	DefaultDir = "logs"
	// DefaultFile is appended to when logging before Initialize.
	DefaultFile = "lan_throughput_results.log"
	// Banner is the first entry of every initialized log file.
	Banner = "==== New Suite Run Started ===="

	// TimeLayout formats the timestamp of each entry.
	TimeLayout = "2006-01-02 15:04:05"
	fileLayout = "20060102_150405"
)

const (
	colorReset  = "\x1b[0m"
	colorYellow = "\x1b[33m"
	colorRed    = "\x1b[31m"
)

// State is the run state shared by all logging calls of one suite run.
type State struct {
	// LogFile is the active log file. Empty until Initialize.
	LogFile string
}

// Logger writes entries to a console sink and appends them to the active
// log file of its State. It is safe for concurrent use.
type Logger struct {
	// Now returns the entry timestamp. Defaults to time.Now.
	Now func() time.Time

	mu      sync.Mutex
	state   *State
	console io.Writer
	color   bool
}

// New returns a Logger recording into state. A nil state starts a fresh one.
func New(state *State, console io.Writer) *Logger {
	if state == nil {
		state = &State{}
	}
	if console == nil {
		console = io.Discard
	}
	l := &Logger{
		Now:     time.Now,
		state:   state,
		console: console,
	}
	if f, ok := console.(*os.File); ok {
		l.color = term.IsTerminal(int(f.Fd()))
	}
	return l
}

// Initialize creates a new log file under dir named after the current time,
// records it in the run state and writes the banner. Once a file is active,
// Initialize returns it unchanged.
func (l *Logger) Initialize(dir string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state.LogFile != "" {
		return l.state.LogFile, nil
	}
	if dir == "" {
		dir = DefaultDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating log directory: %w", err)
	}

	now := l.Now()
	path := filepath.Join(dir, "custom_log_"+now.Format(fileLayout)+".log")
	if err := appendLine(path, format(slog.LevelInfo, now, Banner)); err != nil {
		return "", err
	}
	l.state.LogFile = path
	fmt.Fprintf(l.console, "📂 Custom log initialized: %s\n", path)
	return path, nil
}

// Path returns the file entries are appended to.
func (l *Logger) Path() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.path()
}

// Log records an INFO entry.
func (l *Logger) Log(msg string) error {
	return l.write(slog.LevelInfo, l.Now(), msg)
}

// Logf records a formatted INFO entry.
func (l *Logger) Logf(format string, args ...any) error {
	return l.Log(fmt.Sprintf(format, args...))
}

// Warn records a WARN entry.
func (l *Logger) Warn(msg string) error {
	return l.write(slog.LevelWarn, l.Now(), msg)
}

// Failure records a WARN entry for a remote command that wrote to stderr or
// exited non-zero. Nothing is written when neither happened.
func (l *Logger) Failure(tool, stderr string, exitCode int) error {
	switch {
	case strings.TrimSpace(stderr) != "":
		return l.Warn(fmt.Sprintf("⚠️ %s error:\n%s", tool, stderr))
	case exitCode != 0:
		return l.Warn(fmt.Sprintf("⚠️ %s exited with status %d", tool, exitCode))
	}
	return nil
}

func (l *Logger) path() string {
	if l.state.LogFile == "" {
		return DefaultFile
	}
	return l.state.LogFile
}

func (l *Logger) write(level slog.Level, t time.Time, msg string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.echo(level, msg)

	path := l.path()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating log directory: %w", err)
	}
	return appendLine(path, format(level, t, msg))
}

func (l *Logger) echo(level slog.Level, msg string) {
	if !l.color || level < slog.LevelWarn {
		fmt.Fprintln(l.console, msg)
		return
	}
	c := colorYellow
	if level >= slog.LevelError {
		c = colorRed
	}
	fmt.Fprintln(l.console, c+msg+colorReset)
}

func format(level slog.Level, t time.Time, msg string) string {
	return fmt.Sprintf("[%s][%s] %s\n", level, t.Format(TimeLayout), msg)
}

func appendLine(path, line string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	if _, err := f.WriteString(line); err != nil {
		f.Close()
		return fmt.Errorf("writing log file: %w", err)
	}
	return f.Close()
}
