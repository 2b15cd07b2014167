package main

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pascal71/ethperf/config"
	"github.com/pascal71/ethperf/internal/sshtest"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{config.EnvBBIP, config.EnvPCIP, config.EnvUser, config.EnvPass} {
		t.Setenv(k, "")
	}
}

func writeSuite(t *testing.T, logDir, addr string) string {
	t.Helper()
	body := fmt.Sprintf(`
log_dir: %s
duration: 1
settle: 0s
devices:
  bb:
    ip: %s
    user: %s
    password: %s
  pc:
    ip: %s
    user: %s
    password: %s
`, logDir, addr, sshtest.User, sshtest.Password, addr, sshtest.User, sshtest.Password)
	path := filepath.Join(t.TempDir(), "suite.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func runLog(t *testing.T, dir string) string {
	t.Helper()
	files, err := filepath.Glob(filepath.Join(dir, "custom_log_*.log"))
	require.NoError(t, err)
	require.Len(t, files, 1)
	b, err := os.ReadFile(files[0])
	require.NoError(t, err)
	return string(b)
}

func TestExecuteInvalidConfig(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "suite.yaml")
	require.NoError(t, os.WriteFile(path, []byte("duration: 5\n"), 0o644))

	err := execute([]string{"-c", path, "run"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
	assert.Contains(t, err.Error(), "devices.bb.ip is required")
}

func TestExecuteRunLogsSummary(t *testing.T) {
	clearEnv(t)
	srv := sshtest.NewServer(t, func(string) sshtest.Reply {
		return sshtest.Reply{Stdout: "ok\n"}
	})
	logDir := t.TempDir()

	require.NoError(t, execute([]string{"-c", writeSuite(t, logDir, srv.Addr()), "run"}))

	log := runLog(t, logDir)
	assert.Contains(t, log, "] 📋 Run summary: servers started: 5, monitoring passes: 5, client runs: 6\n")
	assert.NotContains(t, log, "[WARN][")
}

func TestExecuteRunFailureReturnsError(t *testing.T) {
	clearEnv(t)
	logDir := t.TempDir()

	// Nothing listens on port 1, so the first server start is refused.
	err := execute([]string{"-c", writeSuite(t, logDir, "127.0.0.1:1"), "run"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PC → BB TCP")

	assert.Contains(t, runLog(t, logDir), "] 📋 Run summary: servers started: 0, monitoring passes: 0, client runs: 0\n")
}
