package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/intake/internal/daemon"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func cleanupConfig(t *testing.T, dir string) string {
	return writeConfig(t, fmt.Sprintf(`
api:
  api_key: secret-key
cleanups:
  - name: scratch
    directory: %s
    keep_for: 1h
`, dir))
}

func TestVersionCommand(t *testing.T) {
	out, err := runCLI(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "intake ")
	assert.Contains(t, out, "commit: ")
}

func TestVersionCommandJSON(t *testing.T) {
	out, err := runCLI(t, "version", "--json")
	require.NoError(t, err)

	var info versionInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.NotEmpty(t, info.Version)
}

func TestVersionSkipsConfigLoad(t *testing.T) {
	_, err := runCLI(t, "--config", filepath.Join(t.TempDir(), "absent.yaml"), "version")
	require.NoError(t, err)
}

func TestCheckCommand(t *testing.T) {
	path := cleanupConfig(t, t.TempDir())

	out, err := runCLI(t, "--config", path, "check")
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration valid")
	assert.Contains(t, out, "cleanups: 1")
}

func TestCheckCommandMissingConfig(t *testing.T) {
	_, err := runCLI(t, "--config", filepath.Join(t.TempDir(), "absent.yaml"), "check")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load config")
}

func TestConfigFromEnvironment(t *testing.T) {
	t.Setenv("INTAKE_CONFIG", cleanupConfig(t, t.TempDir()))

	out, err := runCLI(t, "check")
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration valid")
}

func TestSweepCommandJSON(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "old.bin")
	require.NoError(t, os.WriteFile(old, []byte("12345"), 0o644))
	past := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))

	out, err := runCLI(t, "--config", cleanupConfig(t, dir), "sweep", "--json")
	require.NoError(t, err)

	var results []daemon.SweepResult
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 1)
	assert.Equal(t, "scratch", results[0].Name)
	assert.Equal(t, 1, results[0].Progress.FilesDeleted)
	assert.Equal(t, int64(5), results[0].Progress.BytesFreed)
	assert.NoFileExists(t, old)
}

func TestSweepCommandTable(t *testing.T) {
	out, err := runCLI(t, "--config", cleanupConfig(t, t.TempDir()), "sweep")
	require.NoError(t, err)
	assert.Contains(t, out, "SWEEP")
	assert.Contains(t, out, "scratch")
}

func TestConfigLockThenTamper(t *testing.T) {
	path := cleanupConfig(t, t.TempDir())

	out, err := runCLI(t, "--config", path, "config", "lock")
	require.NoError(t, err)
	assert.Contains(t, out, "Locked")
	assert.FileExists(t, filepath.Join(filepath.Dir(path), ".checksums"))

	_, err = runCLI(t, "--config", path, "check")
	require.NoError(t, err)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("\n# edited\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = runCLI(t, "--config", path, "check")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hash mismatch")
}

func TestConfigLockRejectsInvalidConfig(t *testing.T) {
	path := writeConfig(t, "service:\n  log_level: loud\nmonitors: []\n")

	_, err := runCLI(t, "--config", path, "config", "lock")
	require.Error(t, err)
	assert.NoFileExists(t, filepath.Join(filepath.Dir(path), ".checksums"))
}

func TestConfigShowRedactsSecrets(t *testing.T) {
	out, err := runCLI(t, "--config", cleanupConfig(t, t.TempDir()), "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "<redacted>")
	assert.NotContains(t, out, "secret-key")
	assert.Contains(t, out, "keep_for: 1h0m0s")
}

func TestShortenCommit(t *testing.T) {
	assert.Equal(t, "abc", shortenCommit("abc"))
	assert.Equal(t, "0123456789ab", shortenCommit("0123456789abcdef"))
}
