package runlog_test

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pascal71/ethperf/runlog"
)

var fixed = time.Date(2026, 10, 16, 9, 30, 5, 0, time.Local)

func newLogger(state *runlog.State) (*runlog.Logger, *bytes.Buffer) {
	var console bytes.Buffer
	l := runlog.New(state, &console)
	l.Now = func() time.Time { return fixed }
	return l, &console
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimSuffix(string(b), "\n"), "\n")
}

func TestLogBeforeInitializeFallsBack(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	l, console := newLogger(nil)

	require.NoError(t, l.Log("hello"))
	require.NoError(t, l.Log("again"))

	assert.Equal(t, runlog.DefaultFile, l.Path())
	assert.Equal(t, []string{
		"[INFO][2026-10-16 09:30:05] hello",
		"[INFO][2026-10-16 09:30:05] again",
	}, readLines(t, runlog.DefaultFile))
	assert.Equal(t, "hello\nagain\n", console.String())
}

func TestInitialize(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	state := &runlog.State{}
	l, console := newLogger(state)

	path, err := l.Initialize(dir)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "custom_log_20261016_093005.log"), path)
	assert.Equal(t, path, state.LogFile)
	assert.Equal(t, "📂 Custom log initialized: "+path+"\n", console.String())

	again, err := l.Initialize(dir)
	require.NoError(t, err)
	assert.Equal(t, path, again)

	require.NoError(t, l.Warn("iperf3 error:\nunable to connect"))

	lines := readLines(t, path)
	assert.Equal(t, []string{
		"[INFO][2026-10-16 09:30:05] ==== New Suite Run Started ====",
		"[WARN][2026-10-16 09:30:05] iperf3 error:",
		"unable to connect",
	}, lines)

	banners := 0
	for _, line := range lines {
		if strings.HasSuffix(line, runlog.Banner) {
			banners++
		}
	}
	assert.Equal(t, 1, banners)
}

func TestLogCreatesParentDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "run.log")
	l, _ := newLogger(&runlog.State{LogFile: path})

	require.NoError(t, l.Logf("duration=%ds", 5))
	assert.Equal(t, []string{"[INFO][2026-10-16 09:30:05] duration=5s"}, readLines(t, path))
}

func TestLogUnwritablePathFails(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	l, _ := newLogger(&runlog.State{LogFile: filepath.Join(blocker, "run.log")})
	assert.Error(t, l.Log("boom"))
}

func TestConcurrentLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	l, _ := newLogger(&runlog.State{LogFile: path})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, l.Log("line"))
		}()
	}
	wg.Wait()
	assert.Len(t, readLines(t, path), 20)
}

func TestHandler(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	l, _ := newLogger(&runlog.State{LogFile: path})

	log := slog.New(l.Handler(slog.LevelInfo)).With("host", "10.0.0.1")
	log.Debug("dropped")
	log.Info("connected", "port", 22)
	log.WithGroup("iperf").Warn("stderr", "exit", 1)

	lines := readLines(t, path)
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "[INFO]["))
	assert.True(t, strings.HasSuffix(lines[0], "] connected host=10.0.0.1 port=22"), lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "[WARN]["))
	assert.True(t, strings.HasSuffix(lines[1], "] stderr host=10.0.0.1 iperf.exit=1"), lines[1])
}

func TestFailure(t *testing.T) {
	testCases := []struct {
		name     string
		stderr   string
		exitCode int
		want     []string
	}{
		{
			name:     "stderr",
			stderr:   "unable to connect",
			exitCode: 1,
			want:     []string{"[WARN][2026-10-16 09:30:05] ⚠️ iperf3 error:", "unable to connect"},
		},
		{
			name:     "exit status without stderr",
			exitCode: 2,
			want:     []string{"[WARN][2026-10-16 09:30:05] ⚠️ iperf3 exited with status 2"},
		},
		{
			name:   "blank stderr and clean exit",
			stderr: " \n",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "run.log")
			l, _ := newLogger(&runlog.State{LogFile: path})

			require.NoError(t, l.Failure("iperf3", tc.stderr, tc.exitCode))
			if tc.want == nil {
				assert.NoFileExists(t, path)
				return
			}
			assert.Equal(t, tc.want, readLines(t, path))
		})
	}
}
