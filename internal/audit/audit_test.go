// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package audit

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

// =============================================================================
// EVENT FORMATTING TESTS
// =============================================================================

func TestEventToLogLine(t *testing.T) {
	event := Event{
		Timestamp: time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC),
		EventType: EventAuthFailure,
		Surface:   "enable_camera",
		EpisodeID: "ep-123",
		Success:   false,
		Error:     "invalid credentials",
	}

	line := event.ToLogLine()
	if !strings.Contains(line, "2026-03-14 09:26:53") {
		t.Errorf("Expected timestamp in line, got: %s", line)
	}
	if !strings.Contains(line, EventAuthFailure) {
		t.Errorf("Expected event type in line, got: %s", line)
	}
	if !strings.Contains(line, "ERROR: invalid credentials") {
		t.Errorf("Expected error status in line, got: %s", line)
	}
}

func TestEventToLogLine_Success(t *testing.T) {
	event := Event{
		Timestamp: time.Now(),
		EventType: EventCameraBlocked,
		Success:   true,
	}
	if !strings.Contains(event.ToLogLine(), "SUCCESS") {
		t.Error("Expected SUCCESS status for successful event")
	}
}

func TestEventToJSON(t *testing.T) {
	event := Event{
		Timestamp: time.Now(),
		EventType: EventEpisodeOpened,
		EpisodeID: "ep-456",
		Success:   true,
		Metadata:  map[string]string{"failures": "1"},
	}
	out, err := event.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON failed: %v", err)
	}
	if !strings.Contains(out, `"event_type":"EPISODE_OPENED"`) {
		t.Errorf("Expected event_type in JSON, got: %s", out)
	}
}

// =============================================================================
// REDACTION TESTS
// =============================================================================

func TestRedaction_Password(t *testing.T) {
	logger := newTestLogger(t)
	defer logger.Close()

	err := logger.Log(Event{
		EventType: EventAuthFailure,
		Detail:    "attempt with password=hunter2secret",
	})
	if err != nil {
		t.Fatalf("Log failed: %v", err)
	}

	content := readLog(t, logger.Path())
	if strings.Contains(content, "hunter2secret") {
		t.Error("Password leaked into audit log")
	}
	if !strings.Contains(content, "[PASSWORD_REDACTED]") {
		t.Error("Expected redaction marker in log")
	}
}

func TestRedaction_Metadata(t *testing.T) {
	logger := newTestLogger(t)
	defer logger.Close()

	err := logger.Log(Event{
		EventType: EventAlertFailed,
		Metadata:  map[string]string{"smtp": "smtp_password: s3cr3tpass"},
	})
	if err != nil {
		t.Fatalf("Log failed: %v", err)
	}

	// Metadata is redacted in place before write
	content := readLog(t, logger.Path())
	if strings.Contains(content, "s3cr3tpass") {
		t.Error("SMTP password leaked into audit log")
	}
}

func TestPatternRedactor(t *testing.T) {
	redactors := defaultRedactors()
	if len(redactors) == 0 {
		t.Fatal("Expected default redactors")
	}
	for _, r := range redactors {
		if r.Name() == "" {
			t.Error("Redactor has empty name")
		}
	}
}

// =============================================================================
// LOGGER TESTS
// =============================================================================

func TestLoggerAppendsLines(t *testing.T) {
	logger := newTestLogger(t)
	defer logger.Close()

	for i := 0; i < 3; i++ {
		if err := logger.AuthAttempt("enable_camera", "", false, "invalid credentials"); err != nil {
			t.Fatalf("AuthAttempt %d failed: %v", i, err)
		}
	}

	content := readLog(t, logger.Path())
	lines := strings.Split(strings.TrimSpace(content), "\n")
	if len(lines) != 3 {
		t.Errorf("Expected 3 log lines, got %d", len(lines))
	}
	for _, line := range lines {
		if !strings.Contains(line, EventAuthFailure) {
			t.Errorf("Expected AUTH_FAILURE line, got: %s", line)
		}
	}
}

func TestDetailTruncationKeepsValidUTF8(t *testing.T) {
	logger := newTestLogger(t)
	defer logger.Close()

	// A multi-byte rune straddling the truncation boundary must not be
	// split into invalid bytes.
	detail := strings.Repeat("a", MaxDetailLength-1) + "é" + strings.Repeat("b", 50)
	if err := logger.Log(Event{
		EventType: EventAuthFailure,
		Detail:    detail,
	}); err != nil {
		t.Fatalf("Log failed: %v", err)
	}

	content := readLog(t, logger.Path())
	if !utf8.ValidString(content) {
		t.Fatalf("Truncated detail produced invalid UTF-8: %q", content)
	}
	if strings.Contains(content, strings.Repeat("b", 50)) {
		t.Error("Detail was not truncated")
	}
}

func TestLoggerDisabled(t *testing.T) {
	logger := newTestLogger(t)
	defer logger.Close()

	logger.SetEnabled(false)
	if logger.IsEnabled() {
		t.Error("Expected logger disabled")
	}
	if err := logger.Log(Event{EventType: EventAuthSuccess, Success: true}); err != nil {
		t.Fatalf("Log on disabled logger failed: %v", err)
	}
	if content := readLog(t, logger.Path()); content != "" {
		t.Errorf("Expected empty log when disabled, got: %s", content)
	}
}

func TestLoggerFilePermissions(t *testing.T) {
	logger := newTestLogger(t)
	defer logger.Close()

	if err := logger.Log(Event{EventType: EventSetupCompleted, Success: true}); err != nil {
		t.Fatalf("Log failed: %v", err)
	}

	info, err := os.Stat(logger.Path())
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("Expected 0600 permissions, got %o", perm)
	}
}

func TestLoggerRotation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.log")
	logger, err := NewLogger(path)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	defer logger.Close()

	// Small max size forces rotation on the second write
	logger.SetMaxSize(64)

	for i := 0; i < 5; i++ {
		if err := logger.Log(Event{EventType: EventAuthFailure, Surface: "enable_camera"}); err != nil {
			t.Fatalf("Log %d failed: %v", i, err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) < 2 {
		t.Errorf("Expected rotated files, got %d entries", len(entries))
	}
}

func TestLoggerBlockChange(t *testing.T) {
	logger := newTestLogger(t)
	defer logger.Close()

	if err := logger.BlockChange(true, []string{"consent_registry", "lock_file"}, nil); err != nil {
		t.Fatalf("BlockChange failed: %v", err)
	}
	content := readLog(t, logger.Path())
	if !strings.Contains(content, EventCameraBlocked) {
		t.Errorf("Expected CAMERA_BLOCKED, got: %s", content)
	}
	if !strings.Contains(content, "consent_registry,lock_file") {
		t.Errorf("Expected mechanism list in metadata, got: %s", content)
	}
}

func TestLoggerFailureCallback(t *testing.T) {
	logger := newTestLogger(t)

	var callbackErr error
	logger.SetFailureCallback(func(err error) { callbackErr = err })

	// Close underlying file out from under the logger to force a write failure
	logger.mu.Lock()
	logger.file.Close()
	logger.mu.Unlock()

	err := logger.Log(Event{EventType: EventAuthFailure})
	if err == nil {
		t.Fatal("Expected error logging to closed file")
	}
	if callbackErr == nil {
		t.Error("Expected failure callback to be invoked")
	}
	if logger.LastFailure() == nil {
		t.Error("Expected LastFailure to be recorded")
	}
}

// =============================================================================
// HELPERS
// =============================================================================

func newTestLogger(t *testing.T) *Logger {
	t.Helper()
	logger, err := NewLogger(filepath.Join(t.TempDir(), "audit.log"))
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	return logger
}

func readLog(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ""
		}
		t.Fatalf("ReadFile failed: %v", err)
	}
	return string(data)
}
