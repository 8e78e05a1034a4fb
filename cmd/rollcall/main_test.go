package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"rollcall/internal/queue"
	"rollcall/internal/storage"
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

func writeTestConfig(t *testing.T) string {
	t.Helper()

	tmpDir := t.TempDir()
	configYAML := fmt.Sprintf(`
service:
  log_level: error
state:
  path: %s
browser:
  screenshot_dir: %s
profiles:
  alice:
    enabled: true
    name: Alice
    phone: "13800138000"
`,
		filepath.Join(tmpDir, "data", "state.db"),
		filepath.Join(tmpDir, "data", "screenshots"),
	)

	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(configYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	return configPath
}

func TestRunVersionJSON(t *testing.T) {
	setVersionMetadataForTest(t, "1.2.3", "abcdef1234567890", "2026-03-14T10:30:00Z")

	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runVersion([]string{"--json"})
	})
	if code != 0 {
		t.Fatalf("runVersion() code = %d, stderr: %s", code, stderr)
	}

	var info versionInfo
	if err := json.Unmarshal([]byte(stdout), &info); err != nil {
		t.Fatalf("invalid version JSON: %v\n%s", err, stdout)
	}
	if info.Version != "1.2.3" {
		t.Errorf("version = %q, want 1.2.3", info.Version)
	}
	if info.Commit != "abcdef123456" {
		t.Errorf("commit = %q, want truncated 12 chars", info.Commit)
	}
	if info.BuildTime != "2026-03-14T10:30:00Z" {
		t.Errorf("build_time = %q", info.BuildTime)
	}
}

func TestRunVersionHuman(t *testing.T) {
	setVersionMetadataForTest(t, "1.2.3", "abc", "unknown")

	code, stdout, _ := captureOutputWithExitCode(t, func() int {
		return runVersion(nil)
	})
	if code != 0 {
		t.Fatalf("runVersion() code = %d", code)
	}
	if !strings.Contains(stdout, "rollcall 1.2.3") {
		t.Errorf("stdout missing version line: %s", stdout)
	}
}

func TestRunCLIUnknownCommand(t *testing.T) {
	code, _, stderr := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"frobnicate"})
	})
	if code != 1 {
		t.Fatalf("runCLI() code = %d, want 1", code)
	}
	if !strings.Contains(stderr, "Unknown command: frobnicate") {
		t.Errorf("stderr = %s", stderr)
	}
}

func TestRunCLIHelp(t *testing.T) {
	code, stdout, _ := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"help"})
	})
	if code != 0 {
		t.Fatalf("runCLI(help) code = %d", code)
	}
	if !strings.Contains(stdout, "system start") || !strings.Contains(stdout, "checkin") {
		t.Errorf("usage text incomplete: %s", stdout)
	}
}

func TestRunConfigCheckValid(t *testing.T) {
	configPath := writeTestConfig(t)

	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runConfigCheck([]string{"--config", configPath})
	})
	if code != 0 {
		t.Fatalf("runConfigCheck() code = %d, stdout: %s, stderr: %s", code, stdout, stderr)
	}
}

func TestRunConfigCheckBadConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	badYAML := `
profiles:
  alice:
    enabled: true
    name: Alice
    phone: "123"
`
	if err := os.WriteFile(configPath, []byte(badYAML), 0o644); err != nil {
		t.Fatal(err)
	}

	code, _, stderr := captureOutputWithExitCode(t, func() int {
		return runConfigCheck([]string{"--config", configPath})
	})
	if code != 1 {
		t.Fatalf("runConfigCheck() code = %d, want 1", code)
	}
	if !strings.Contains(stderr, "Failed to load config") {
		t.Errorf("stderr = %s", stderr)
	}
}

func TestRunConfigShowMasksPhone(t *testing.T) {
	configPath := writeTestConfig(t)

	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runConfigShow([]string{"--config", configPath})
	})
	if code != 0 {
		t.Fatalf("runConfigShow() code = %d, stderr: %s", code, stderr)
	}
	if strings.Contains(stdout, "13800138000") {
		t.Errorf("full phone number leaked into output:\n%s", stdout)
	}
	if !strings.Contains(stdout, "8000") {
		t.Errorf("masked suffix missing from output:\n%s", stdout)
	}
}

func TestRunConfigGet(t *testing.T) {
	configPath := writeTestConfig(t)

	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runConfigGet([]string{"--config", configPath, "schedule.hour"})
	})
	if code != 0 {
		t.Fatalf("runConfigGet() code = %d, stderr: %s", code, stderr)
	}
	if strings.TrimSpace(stdout) != "10" {
		t.Errorf("schedule.hour = %q, want 10", strings.TrimSpace(stdout))
	}
}

func TestRunConfigGetUnknownPath(t *testing.T) {
	configPath := writeTestConfig(t)

	code, _, stderr := captureOutputWithExitCode(t, func() int {
		return runConfigGet([]string{"--config", configPath, "schedule.nope"})
	})
	if code != 1 {
		t.Fatalf("runConfigGet() code = %d, want 1", code)
	}
	if !strings.Contains(stderr, "nope") {
		t.Errorf("stderr = %s", stderr)
	}
}

func TestRunConfigLockThenCheckPasses(t *testing.T) {
	configPath := writeTestConfig(t)
	configDir := filepath.Dir(configPath)

	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runConfigLock([]string{"--config", configPath})
	})
	if code != 0 {
		t.Fatalf("runConfigLock() code = %d, stderr: %s", code, stderr)
	}
	if !strings.Contains(stdout, "Locked") {
		t.Errorf("stdout = %s", stdout)
	}
	if _, err := os.Stat(filepath.Join(configDir, ".checksums")); err != nil {
		t.Fatalf(".checksums not written: %v", err)
	}

	// The locked config still loads and validates.
	code, _, stderr = captureOutputWithExitCode(t, func() int {
		return runConfigCheck([]string{"--config", configPath})
	})
	if code != 0 {
		t.Fatalf("runConfigCheck() after lock code = %d, stderr: %s", code, stderr)
	}
}

func TestRunConfigLockRejectsInvalidConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("schedule:\n  hour: 99\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	code, _, stderr := captureOutputWithExitCode(t, func() int {
		return runConfigLock([]string{"--config", configPath})
	})
	if code != 1 {
		t.Fatalf("runConfigLock() code = %d, want 1", code)
	}
	if !strings.Contains(stderr, "Refusing to lock") {
		t.Errorf("stderr = %s", stderr)
	}
	if _, err := os.Stat(filepath.Join(tmpDir, ".checksums")); !os.IsNotExist(err) {
		t.Fatal(".checksums should not be written for an invalid config")
	}
}

func TestRunSystemStatusHealthy(t *testing.T) {
	configPath := writeTestConfig(t)

	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runSystemStatus([]string{"--config", configPath})
	})
	if code != 0 {
		t.Fatalf("runSystemStatus() code = %d, stdout: %s, stderr: %s", code, stdout, stderr)
	}
	if !strings.Contains(stdout, "database: ok") {
		t.Errorf("stdout missing database check: %s", stdout)
	}
	if !strings.Contains(stdout, "service:  not running") {
		t.Errorf("stdout missing service state: %s", stdout)
	}
	if !strings.Contains(stdout, "queue:    0 queued, 0 running") {
		t.Errorf("stdout missing queue counts: %s", stdout)
	}
}

func TestRunSystemStatusReportsQueueCounts(t *testing.T) {
	configPath := writeTestConfig(t)

	statePath := filepath.Join(filepath.Dir(configPath), "data", "state.db")
	ctx := context.Background()
	db, err := storage.OpenSQLite(ctx, statePath)
	if err != nil {
		t.Fatal(err)
	}
	q := queue.New(db)
	for range 2 {
		if _, err := q.Enqueue(ctx, queue.EnqueueRequest{Profile: "alice", Origin: queue.OriginManual}); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := q.Dequeue(ctx); err != nil {
		t.Fatal(err)
	}
	db.Close()

	code, stdout, _ := captureOutputWithExitCode(t, func() int {
		return runSystemStatus([]string{"--config", configPath, "--json"})
	})
	if code != 0 {
		t.Fatalf("runSystemStatus() code = %d", code)
	}

	var report statusReport
	if err := json.Unmarshal([]byte(stdout), &report); err != nil {
		t.Fatalf("invalid status JSON: %v\n%s", err, stdout)
	}
	if report.QueuedCount != 1 || report.RunningCount != 1 {
		t.Errorf("queued = %d, running = %d, want 1 and 1", report.QueuedCount, report.RunningCount)
	}
}

func TestRunSystemStatusJSON(t *testing.T) {
	configPath := writeTestConfig(t)

	code, stdout, _ := captureOutputWithExitCode(t, func() int {
		return runSystemStatus([]string{"--config", configPath, "--json"})
	})
	if code != 0 {
		t.Fatalf("runSystemStatus() code = %d", code)
	}

	var report statusReport
	if err := json.Unmarshal([]byte(stdout), &report); err != nil {
		t.Fatalf("invalid status JSON: %v\n%s", err, stdout)
	}
	if !report.ConfigOK || !report.DatabaseOK || !report.OverallValid {
		t.Errorf("report = %+v", report)
	}
	if report.ServiceUp {
		t.Error("service should not be reported as running")
	}
}

func TestRunSystemStatusBadConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("schedule:\n  minute: 99\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	code, stdout, _ := captureOutputWithExitCode(t, func() int {
		return runSystemStatus([]string{"--config", configPath})
	})
	if code != 1 {
		t.Fatalf("runSystemStatus() code = %d, want 1", code)
	}
	if !strings.Contains(stdout, "config:   FAIL") {
		t.Errorf("stdout = %s", stdout)
	}
}

func TestRunCheckinUnknownProfile(t *testing.T) {
	configPath := writeTestConfig(t)

	code, _, stderr := captureOutputWithExitCode(t, func() int {
		return runCheckin([]string{"--config", configPath, "--profile", "nobody"})
	})
	if code != 1 {
		t.Fatalf("runCheckin() code = %d, want 1", code)
	}
	if !strings.Contains(stderr, "Unknown profile: nobody") {
		t.Errorf("stderr = %s", stderr)
	}
}

func TestRunCheckinSkipsProfileWithLiveSubmission(t *testing.T) {
	configPath := writeTestConfig(t)

	// Seed a queued submission so the checkin skips the profile instead of
	// double-queueing and never launches a browser.
	statePath := filepath.Join(filepath.Dir(configPath), "data", "state.db")
	ctx := context.Background()
	db, err := storage.OpenSQLite(ctx, statePath)
	if err != nil {
		t.Fatal(err)
	}
	q := queue.New(db)
	if _, err := q.Enqueue(ctx, queue.EnqueueRequest{
		Profile:     "alice",
		Origin:      queue.OriginScheduled,
		MaxAttempts: 1,
	}); err != nil {
		t.Fatal(err)
	}
	db.Close()

	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runCheckin([]string{"--config", configPath})
	})
	if code != 0 {
		t.Fatalf("runCheckin() code = %d, stderr: %s", code, stderr)
	}
	if !strings.Contains(stdout, "already in flight") {
		t.Errorf("stdout = %s", stdout)
	}
}

func TestMaskPhone(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"13800138000", "*******8000"},
		{"1234", "****"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := maskPhone(tt.in); got != tt.want {
			t.Errorf("maskPhone(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLookupConfigPath(t *testing.T) {
	doc := map[string]any{
		"schedule": map[string]any{"hour": 10},
	}

	val, err := lookupConfigPath(doc, "schedule.hour")
	if err != nil {
		t.Fatal(err)
	}
	if val != 10 {
		t.Errorf("val = %v, want 10", val)
	}

	if _, err := lookupConfigPath(doc, "schedule.hour.deeper"); err == nil {
		t.Error("expected error for path through a scalar")
	}
	if _, err := lookupConfigPath(doc, "missing"); err == nil {
		t.Error("expected error for unknown path")
	}
}
