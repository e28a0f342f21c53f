package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/hype/internal/doctor"
	"github.com/mattjoyce/hype/internal/journal"
	"github.com/mattjoyce/hype/internal/lock"
	"github.com/mattjoyce/hype/internal/webhook"
)

func captureOutputWithExitCode(t *testing.T, run func() int) (int, string, string) {
	t.Helper()

	oldStdout := os.Stdout
	oldStderr := os.Stderr

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe stdout failed: %v", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe stderr failed: %v", err)
	}

	os.Stdout = stdoutW
	os.Stderr = stderrW

	code := run()

	_ = stdoutW.Close()
	_ = stderrW.Close()
	os.Stdout = oldStdout
	os.Stderr = oldStderr

	stdoutBytes, _ := io.ReadAll(stdoutR)
	stderrBytes, _ := io.ReadAll(stderrR)

	_ = stdoutR.Close()
	_ = stderrR.Close()

	return code, string(stdoutBytes), string(stderrBytes)
}

func runCaptured(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	return captureOutputWithExitCode(t, func() int { return runCLI(args) })
}

func setVersionMetadataForTest(t *testing.T, v, commit, built string) {
	t.Helper()

	origVersion := version
	origCommit := gitCommit
	origBuildDate := buildDate

	version = v
	gitCommit = commit
	buildDate = built

	t.Cleanup(func() {
		version = origVersion
		gitCommit = origCommit
		buildDate = origBuildDate
	})
}

// writeTestConfig writes a small two-worker configuration with its journal
// inside dir and returns the config path.
func writeTestConfig(t *testing.T, dir, extra string) string {
	t.Helper()
	body := fmt.Sprintf(`service:
  log_level: error
stage:
  group_size: 2
  queue_capacity: 8
  workers:
    - name: enc-a
      type: identity
    - name: enc-b
      type: identity
source:
  kind: synthetic
  frames: 20
  frame_size: 16
  frame_rate: 25
journal:
  enabled: true
  path: %s
%s`, filepath.Join(dir, "data", "hype.db"), extra)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestVersionJSON(t *testing.T) {
	setVersionMetadataForTest(t, "1.2.3", "0123456789abcdef0123", "2026-01-02T03:04:05+02:00")

	code, stdout, _ := runCaptured(t, "version", "--json")
	require.Equal(t, 0, code)

	var info versionInfo
	require.NoError(t, json.Unmarshal([]byte(stdout), &info))
	assert.Equal(t, "1.2.3", info.Version)
	assert.Equal(t, "0123456789ab", info.Commit)
	assert.Equal(t, "2026-01-02T01:04:05Z", info.BuildTime)
}

func TestVersionRejectsArgs(t *testing.T) {
	code, _, stderr := runCaptured(t, "version", "extra")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "Usage: hype version")
}

func TestUnknownCommand(t *testing.T) {
	code, stdout, stderr := runCaptured(t, "transcode")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "Unknown command: transcode")
	assert.Contains(t, stdout, "Usage:")
}

func TestNounHelp(t *testing.T) {
	code, stdout, _ := runCaptured(t, "config", "help")
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "check, lock, show")

	code, _, stderr := runCaptured(t, "runs")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "list, show")
}

func TestConfigCheck(t *testing.T) {
	dir := t.TempDir()
	path := writeTestConfig(t, dir, "")

	code, stdout, _ := runCaptured(t, "config", "check", "--config", path)
	assert.Equal(t, 0, code, stdout)
	assert.Contains(t, stdout, "All checks passed")

	bad := writeTestConfig(t, t.TempDir(), `api:
  enabled: true
  listen: 0.0.0.0:9000
`)
	code, stdout, _ = runCaptured(t, "config", "check", "--config", bad, "--json")
	assert.Equal(t, 1, code)
	var res doctor.Result
	require.NoError(t, json.Unmarshal([]byte(stdout), &res))
	assert.False(t, res.Valid)
	require.NotEmpty(t, res.Errors)
	assert.Equal(t, "api.auth.api_key", res.Errors[0].Field)
}

func TestConfigCheckWarningsExitTwo(t *testing.T) {
	path := writeTestConfig(t, t.TempDir(), `api:
  enabled: true
  listen: 127.0.0.1:9000
`)
	code, stdout, _ := runCaptured(t, "config", "check", "--config", path)
	assert.Equal(t, 2, code, stdout)
	assert.Contains(t, stdout, "passed with 1 warning(s)")
}

func TestConfigLockThenTamper(t *testing.T) {
	dir := t.TempDir()
	path := writeTestConfig(t, dir, "")

	code, stdout, stderr := runCaptured(t, "config", "lock", "--config", path)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "Locked config.yaml")
	assert.FileExists(t, filepath.Join(dir, ".checksums"))

	code, _, _ = runCaptured(t, "config", "check", "--config", path)
	assert.Equal(t, 0, code)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0)
	require.NoError(t, err)
	_, err = f.WriteString("# edited\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	code, stdout, _ = runCaptured(t, "config", "check", "--config", path)
	assert.Equal(t, 1, code)
	assert.Contains(t, stdout, "ERROR [config]")
}

func TestConfigLockRefusesInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("stage:\n  group_size: 0\n"), 0o600))

	code, _, stderr := runCaptured(t, "config", "lock", "--config", path)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "Refusing to lock")
	assert.NoFileExists(t, filepath.Join(dir, ".checksums"))
}

func TestConfigShowRedactsSecrets(t *testing.T) {
	path := writeTestConfig(t, t.TempDir(), `api:
  enabled: true
  listen: 127.0.0.1:9000
  auth:
    api_key: hunter2
`)
	code, stdout, _ := runCaptured(t, "config", "show", "--config", path)
	require.Equal(t, 0, code)
	assert.NotContains(t, stdout, "hunter2")
	assert.Contains(t, stdout, "[redacted]")
	assert.Contains(t, stdout, "group_size: 2")
}

func TestRunJournalsAndReports(t *testing.T) {
	dir := t.TempDir()
	path := writeTestConfig(t, dir, "")
	outFile := filepath.Join(dir, "out.bin")

	code, stdout, stderr := runCaptured(t, "run", "--config", path, "--output", outFile, "--json")
	require.Equal(t, 0, code, stderr)

	var res runResult
	require.NoError(t, json.Unmarshal([]byte(stdout), &res))
	assert.Equal(t, journal.StatusSucceeded, res.Status)
	assert.Equal(t, uint64(20), res.Frames)
	assert.Equal(t, uint64(10), res.Scenes)
	assert.Equal(t, uint64(0), res.Skipped)
	assert.Equal(t, uint64(20), res.OutBuffers)
	assert.Equal(t, uint64(320), res.OutBytes)
	require.NotEmpty(t, res.RunID)

	info, err := os.Stat(outFile)
	require.NoError(t, err)
	assert.Equal(t, int64(320), info.Size())

	code, stdout, _ = runCaptured(t, "runs", "list", "--config", path, "--json")
	require.Equal(t, 0, code)
	var listed struct {
		Runs []journal.Run `json:"runs"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &listed))
	require.Len(t, listed.Runs, 1)
	assert.Equal(t, res.RunID, listed.Runs[0].ID)
	assert.Equal(t, uint64(10), listed.Runs[0].Scenes)

	code, stdout, stderr = runCaptured(t, "runs", "show", res.RunID, "--config", path)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "Scenes      : 10 emitted, 0 failed, 0 skipped")
	assert.Contains(t, stdout, "Inputs")

	code, _, stderr = runCaptured(t, "runs", "show", "--config", path, "missing")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "run not found")
}

func TestRunWithoutJournal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`service:
  log_level: error
stage:
  group_size: 5
  workers:
    - name: only
      type: identity
source:
  frames: 12
  frame_size: 4
journal:
  enabled: false
`), 0o600))

	code, stdout, stderr := runCaptured(t, "run", "--config", path)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "Run succeeded")
	assert.Contains(t, stdout, "3 emitted")

	code, _, stderr = runCaptured(t, "runs", "list", "--config", path)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "journal is disabled")
}

func TestRunRefusesSecondWriter(t *testing.T) {
	dir := t.TempDir()
	path := writeTestConfig(t, dir, "")

	held, err := lock.Acquire(lock.PathFor(filepath.Join(dir, "data", "hype.db")))
	require.NoError(t, err)
	t.Cleanup(func() { _ = held.Release() })

	code, _, stderr := runCaptured(t, "run", "--config", path)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "journal lock")
}

func TestRunNotifiesWebhook(t *testing.T) {
	var got webhook.RunFinished
	var signed bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		signed = webhook.Verify(body, r.Header.Get(webhook.SignatureHeader), "s3cret") == nil
		_ = json.Unmarshal(body, &got)
	}))
	t.Cleanup(srv.Close)

	path := writeTestConfig(t, t.TempDir(), fmt.Sprintf(`webhooks:
  - url: %s
    secret: s3cret
`, srv.URL))
	code, stdout, stderr := runCaptured(t, "run", "--config", path, "--json")
	require.Equal(t, 0, code, stderr)

	var res runResult
	require.NoError(t, json.Unmarshal([]byte(stdout), &res))
	assert.True(t, signed)
	assert.Equal(t, webhook.EventRunFinished, got.Event)
	assert.Equal(t, res.RunID, got.RunID)
	assert.Equal(t, "succeeded", got.Status)
	assert.Equal(t, uint64(10), got.Scenes)
}
