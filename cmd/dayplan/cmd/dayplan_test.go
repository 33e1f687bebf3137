package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"dayplan/internal/session"
)

// newTestConfig builds an isolated Config: temp store, temp config file,
// and a mock keyring so tests never touch the system keyring.
func newTestConfig(t *testing.T) *Config {
	t.Helper()

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("sync:\n  offline_mode: offline\n"), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	return &Config{
		ConfigPath:   configPath,
		StorePath:    filepath.Join(tmpDir, "local.db"),
		ServerDBPath: filepath.Join(tmpDir, "server.db"),
		Keyring:      session.NewMockKeyring(),
		NoPrompt:     true,
	}
}

// run executes the CLI against the given config and returns exit code
// and captured stdout/stderr.
func run(t *testing.T, cfg *Config, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := Execute(args, &stdout, &stderr, cfg)
	return code, stdout.String(), stderr.String()
}

// mustRun executes the CLI and fails the test on a non-zero exit code.
func mustRun(t *testing.T, cfg *Config, args ...string) string {
	t.Helper()
	code, stdout, stderr := run(t, cfg, args...)
	if code != 0 {
		t.Fatalf("dayplan %v exited %d: stderr=%s stdout=%s", args, code, stderr, stdout)
	}
	return stdout
}

func TestHelpFlag(t *testing.T) {
	code, stdout, stderr := run(t, nil, "--help")
	if code != 0 {
		t.Fatalf("expected exit code 0, got %d: %s", code, stderr)
	}
	if !strings.Contains(stdout, "dayplan") {
		t.Errorf("help output should contain 'dayplan', got: %s", stdout)
	}
	if !strings.Contains(stdout, "Usage:") {
		t.Errorf("help output should contain 'Usage:', got: %s", stdout)
	}
}

func TestUnknownFlagExitsNonZero(t *testing.T) {
	code, _, _ := run(t, nil, "--unknown-flag-xyz")
	if code != 1 {
		t.Errorf("expected exit code 1 for unknown flag, got %d", code)
	}
}

func TestAddAndList(t *testing.T) {
	cfg := newTestConfig(t)

	out := mustRun(t, cfg, "add", "Buy groceries", "--due", "2026-09-01", "--time", "09:30", "-p", "high")
	if !strings.Contains(out, "Added task") {
		t.Errorf("add should confirm, got: %s", out)
	}

	out = mustRun(t, cfg, "list")
	if !strings.Contains(out, "Buy groceries") {
		t.Errorf("list should show the task, got: %s", out)
	}
	if !strings.Contains(out, "2026-09-01") || !strings.Contains(out, "09:30") {
		t.Errorf("list should show the due date and time, got: %s", out)
	}
	if !strings.Contains(out, "high") {
		t.Errorf("list should show the priority, got: %s", out)
	}
}

func TestAddRelativeDueDate(t *testing.T) {
	cfg := newTestConfig(t)

	mustRun(t, cfg, "add", "Standup prep", "--due", "today")

	out := mustRun(t, cfg, "list")
	if !strings.Contains(out, "Standup prep") {
		t.Errorf("list should show the task, got: %s", out)
	}
	// A relative date must have been resolved to a concrete one.
	if strings.Contains(out, "today") {
		t.Errorf("list should show a resolved date, not the keyword, got: %s", out)
	}
}

func TestAddInvalidPriority(t *testing.T) {
	cfg := newTestConfig(t)

	code, stdout, stderr := run(t, cfg, "add", "Task", "-p", "urgent")
	if code != 1 {
		t.Fatalf("expected exit code 1 for invalid priority, got %d", code)
	}
	combined := stdout + stderr
	if !strings.Contains(combined, "LOW") {
		t.Errorf("error should list valid priorities, got: %s", combined)
	}
}

func TestAddInvalidDate(t *testing.T) {
	cfg := newTestConfig(t)

	code, stdout, stderr := run(t, cfg, "add", "Task", "--due", "next thursday")
	if code != 1 {
		t.Fatalf("expected exit code 1 for invalid date, got %d", code)
	}
	combined := stdout + stderr
	if !strings.Contains(combined, "YYYY-MM-DD") {
		t.Errorf("error should mention the date format, got: %s", combined)
	}
}

func TestDoneHidesTaskFromDefaultList(t *testing.T) {
	cfg := newTestConfig(t)

	mustRun(t, cfg, "add", "Water plants")
	mustRun(t, cfg, "add", "Walk dog")

	out := mustRun(t, cfg, "done", "Water plants")
	if !strings.Contains(out, "Completed: Water plants") {
		t.Errorf("done should confirm, got: %s", out)
	}

	out = mustRun(t, cfg, "list")
	if strings.Contains(out, "Water plants") {
		t.Errorf("completed task should be hidden by default, got: %s", out)
	}
	if !strings.Contains(out, "Walk dog") {
		t.Errorf("open task should remain visible, got: %s", out)
	}

	out = mustRun(t, cfg, "list", "--all")
	if !strings.Contains(out, "Water plants") {
		t.Errorf("--all should include completed tasks, got: %s", out)
	}
}

func TestDoneMatchesSubstring(t *testing.T) {
	cfg := newTestConfig(t)

	mustRun(t, cfg, "add", "Buy groceries")
	mustRun(t, cfg, "add", "Walk dog")

	out := mustRun(t, cfg, "done", "groc")
	if !strings.Contains(out, "Buy groceries") {
		t.Errorf("substring should resolve to the task, got: %s", out)
	}
}

func TestAmbiguousReferenceRejected(t *testing.T) {
	cfg := newTestConfig(t)

	mustRun(t, cfg, "add", "Review chapter one")
	mustRun(t, cfg, "add", "Review chapter two")

	code, stdout, stderr := run(t, cfg, "done", "chapter")
	if code != 1 {
		t.Fatalf("expected exit code 1 for ambiguous reference, got %d", code)
	}
	combined := stdout + stderr
	if !strings.Contains(combined, "matches") {
		t.Errorf("error should report multiple matches, got: %s", combined)
	}
}

func TestUnknownTaskSuggestsList(t *testing.T) {
	cfg := newTestConfig(t)

	code, stdout, stderr := run(t, cfg, "done", "no such task")
	if code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
	combined := stdout + stderr
	if !strings.Contains(combined, "not found") {
		t.Errorf("error should say the task was not found, got: %s", combined)
	}
	if !strings.Contains(combined, "dayplan list") {
		t.Errorf("error should suggest listing tasks, got: %s", combined)
	}
}

func TestEditUpdatesFields(t *testing.T) {
	cfg := newTestConfig(t)

	mustRun(t, cfg, "add", "Draft report")
	mustRun(t, cfg, "edit", "Draft report", "--title", "Final report", "-p", "low")

	out := mustRun(t, cfg, "list")
	if !strings.Contains(out, "Final report") {
		t.Errorf("edit should rename the task, got: %s", out)
	}
	if strings.Contains(out, "Draft report") {
		t.Errorf("old title should be gone, got: %s", out)
	}
}

func TestEditWithoutFlagsFails(t *testing.T) {
	cfg := newTestConfig(t)

	mustRun(t, cfg, "add", "Some task")

	code, stdout, stderr := run(t, cfg, "edit", "Some task")
	if code != 1 {
		t.Fatalf("expected exit code 1 for empty edit, got %d", code)
	}
	combined := stdout + stderr
	if !strings.Contains(combined, "nothing to change") {
		t.Errorf("error should explain no fields were given, got: %s", combined)
	}
}

func TestEditClearsDueDate(t *testing.T) {
	cfg := newTestConfig(t)

	mustRun(t, cfg, "add", "Flexible task", "--due", "2026-09-01")
	mustRun(t, cfg, "edit", "Flexible task", "--due", "")

	out := mustRun(t, cfg, "list")
	if strings.Contains(out, "2026-09-01") {
		t.Errorf("cleared due date should not render, got: %s", out)
	}
}

func TestRmPromptDeclined(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.NoPrompt = false
	cfg.Stdin = strings.NewReader("n\n")

	mustRun(t, cfg, "add", "Keep me")

	out := mustRun(t, cfg, "rm", "Keep me")
	if !strings.Contains(out, "Cancelled") {
		t.Errorf("declined prompt should cancel, got: %s", out)
	}

	out = mustRun(t, cfg, "list")
	if !strings.Contains(out, "Keep me") {
		t.Errorf("task should survive a declined delete, got: %s", out)
	}
}

func TestRmNoPromptDeletes(t *testing.T) {
	cfg := newTestConfig(t)

	mustRun(t, cfg, "add", "Remove me")
	out := mustRun(t, cfg, "-y", "rm", "Remove me")
	if !strings.Contains(out, "Deleted: Remove me") {
		t.Errorf("rm should confirm, got: %s", out)
	}

	out = mustRun(t, cfg, "list")
	if strings.Contains(out, "Remove me") {
		t.Errorf("deleted task should be gone, got: %s", out)
	}
}

func TestSyncRequiresLogin(t *testing.T) {
	cfg := newTestConfig(t)

	code, stdout, stderr := run(t, cfg, "sync")
	if code != 1 {
		t.Fatalf("expected exit code 1 in guest mode, got %d", code)
	}
	combined := stdout + stderr
	if !strings.Contains(combined, "not logged in") {
		t.Errorf("error should say not logged in, got: %s", combined)
	}
	if !strings.Contains(combined, "dayplan login") {
		t.Errorf("error should suggest logging in, got: %s", combined)
	}
}

func TestSyncStatusGuest(t *testing.T) {
	cfg := newTestConfig(t)

	out := mustRun(t, cfg, "sync", "status")
	if !strings.Contains(out, "guest") {
		t.Errorf("status should report guest mode, got: %s", out)
	}
}

func TestLoginLogoutOfflineServer(t *testing.T) {
	cfg := newTestConfig(t)

	// The server is unreachable. The token cannot be verified but the
	// session is still stored so queued work can sync later.
	code, stdout, stderr := run(t, cfg,
		"login", "http://127.0.0.1:1", "alice", "--token", "tok-123")
	if code != 0 {
		t.Fatalf("login against unreachable server should still succeed, got %d: %s", code, stderr)
	}
	if !strings.Contains(stdout, "Logged in as alice") {
		t.Errorf("login should confirm, got: %s", stdout)
	}
	if !strings.Contains(stderr, "Warning") {
		t.Errorf("unverified token should warn on stderr, got: %s", stderr)
	}

	out := mustRun(t, cfg, "sync", "status")
	if !strings.Contains(out, "alice") {
		t.Errorf("status should show the account, got: %s", out)
	}

	out = mustRun(t, cfg, "logout")
	if !strings.Contains(out, "Logged out") {
		t.Errorf("logout should confirm, got: %s", out)
	}

	out = mustRun(t, cfg, "sync", "status")
	if !strings.Contains(out, "guest") {
		t.Errorf("status should be back to guest after logout, got: %s", out)
	}
}

func TestOfflineMutationsQueue(t *testing.T) {
	cfg := newTestConfig(t)

	mustRun(t, cfg, "login", "http://127.0.0.1:1", "alice", "--token", "tok-123")

	out := mustRun(t, cfg, "add", "Queued task")
	if !strings.Contains(out, "queued for sync") {
		t.Errorf("offline add should note queueing, got: %s", out)
	}

	out = mustRun(t, cfg, "sync", "queue")
	if !strings.Contains(out, "create") || !strings.Contains(out, "Queued task") {
		t.Errorf("queue should show the pending create, got: %s", out)
	}
}

func TestSyncQueueClear(t *testing.T) {
	cfg := newTestConfig(t)

	mustRun(t, cfg, "login", "http://127.0.0.1:1", "alice", "--token", "tok-123")
	mustRun(t, cfg, "add", "Doomed change")

	out := mustRun(t, cfg, "-y", "sync", "queue", "clear")
	if !strings.Contains(out, "Discarded 1") {
		t.Errorf("clear should report the discarded count, got: %s", out)
	}

	out = mustRun(t, cfg, "sync", "queue")
	if !strings.Contains(out, "Queue is empty") {
		t.Errorf("queue should be empty after clear, got: %s", out)
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	cfg := newTestConfig(t)

	mustRun(t, cfg, "add", "First task", "--due", "2026-09-01", "-p", "high")
	mustRun(t, cfg, "add", "Second task")
	mustRun(t, cfg, "done", "Second task")

	exportPath := filepath.Join(t.TempDir(), "tasks.json")
	out := mustRun(t, cfg, "export", exportPath)
	if !strings.Contains(out, "Exported 2 task(s)") {
		t.Errorf("export should report the count, got: %s", out)
	}

	data, err := os.ReadFile(exportPath)
	if err != nil {
		t.Fatalf("failed to read export: %v", err)
	}
	var exported []map[string]interface{}
	if err := json.Unmarshal(data, &exported); err != nil {
		t.Fatalf("export should be valid JSON: %v", err)
	}
	if len(exported) != 2 {
		t.Fatalf("expected 2 exported tasks, got %d", len(exported))
	}

	// Import into a fresh store.
	fresh := newTestConfig(t)
	out = mustRun(t, fresh, "import", exportPath)
	if !strings.Contains(out, "Imported 2 task(s)") {
		t.Errorf("import should report the count, got: %s", out)
	}

	out = mustRun(t, fresh, "list", "--all")
	if !strings.Contains(out, "First task") || !strings.Contains(out, "Second task") {
		t.Errorf("imported tasks should be listed, got: %s", out)
	}
	if !strings.Contains(out, "[x]") {
		t.Errorf("done flag should survive the round trip, got: %s", out)
	}
}

func TestExportToStdout(t *testing.T) {
	cfg := newTestConfig(t)

	mustRun(t, cfg, "add", "Stdout task")

	out := mustRun(t, cfg, "export")
	var exported []map[string]interface{}
	if err := json.Unmarshal([]byte(out), &exported); err != nil {
		t.Fatalf("export without a file should write JSON to stdout: %v\noutput: %s", err, out)
	}
}

func TestImportRejectsBadJSON(t *testing.T) {
	cfg := newTestConfig(t)

	badPath := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(badPath, []byte("{not json"), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	code, stdout, stderr := run(t, cfg, "import", badPath)
	if code != 1 {
		t.Fatalf("expected exit code 1 for bad JSON, got %d", code)
	}
	combined := stdout + stderr
	if !strings.Contains(combined, "invalid import JSON") {
		t.Errorf("error should mention invalid JSON, got: %s", combined)
	}
}

func TestServeAccountAdd(t *testing.T) {
	cfg := newTestConfig(t)

	out := mustRun(t, cfg, "serve", "account", "add", "alice")
	if !strings.Contains(out, "Account alice created") {
		t.Errorf("account add should confirm, got: %s", out)
	}
	if !strings.Contains(out, "Token:") {
		t.Errorf("account add should print the token, got: %s", out)
	}
}

func TestDispatchEmptyDatabase(t *testing.T) {
	cfg := newTestConfig(t)

	// No accounts, no subscriptions. Missing VAPID keys only matter
	// once there is something to send.
	out := mustRun(t, cfg, "dispatch")
	if !strings.Contains(out, "sent 0, pruned 0") {
		t.Errorf("dispatch on an empty database should report zeros, got: %s", out)
	}
}

func TestLocalPlaceholderIDsAreMarked(t *testing.T) {
	cfg := newTestConfig(t)

	mustRun(t, cfg, "login", "http://127.0.0.1:1", "alice", "--token", "tok-123")
	mustRun(t, cfg, "add", "Unsynced task")

	out := mustRun(t, cfg, "list")
	if !strings.Contains(out, "~") {
		t.Errorf("unsynced task should show a placeholder id, got: %s", out)
	}
}
