// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package audit provides thread-safe audit logging with secret redaction
// for camguard's authentication and camera-control trail.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/jeranaias/camguard/internal/util"
)

// =============================================================================
// CONSTANTS
// =============================================================================

// MaxDetailLength is the maximum length of the detail field before truncation.
const MaxDetailLength = 200

// DefaultMaxFileSize is the default max file size before rotation (10MB).
const DefaultMaxFileSize int64 = 10 * 1024 * 1024

// Event types recorded in the audit trail.
const (
	EventAuthSuccess      = "AUTH_SUCCESS"
	EventAuthFailure      = "AUTH_FAILURE"
	EventCameraBlocked    = "CAMERA_BLOCKED"
	EventCameraUnblocked  = "CAMERA_UNBLOCKED"
	EventBlockFailed      = "BLOCK_FAILED"
	EventEpisodeOpened    = "EPISODE_OPENED"
	EventEpisodeSuspected = "EPISODE_SUSPECTED"
	EventEpisodeClosed    = "EPISODE_CLOSED"
	EventCaptureStored    = "CAPTURE_STORED"
	EventCaptureFailed    = "CAPTURE_FAILED"
	EventAlertSent        = "ALERT_SENT"
	EventAlertFailed      = "ALERT_FAILED"
	EventPasswordChanged  = "PASSWORD_CHANGED"
	EventSetupCompleted   = "SETUP_COMPLETED"
	EventRetentionSweep   = "RETENTION_SWEEP"
)

// =============================================================================
// AUDIT EVENT
// =============================================================================

// Event represents a single audit log entry.
type Event struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	Surface   string            `json:"surface,omitempty"`
	EpisodeID string            `json:"episode_id,omitempty"`
	Detail    string            `json:"detail,omitempty"` // Truncated/redacted
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// ToLogLine formats the event as a single log line.
func (e *Event) ToLogLine() string {
	timestamp := e.Timestamp.Format("2006-01-02 15:04:05")

	detail := ""
	if e.Detail != "" {
		detail = fmt.Sprintf("\"%s\"", e.Detail)
	}

	status := "SUCCESS"
	if !e.Success {
		if e.Error != "" {
			status = fmt.Sprintf("ERROR: %s", e.Error)
		} else {
			status = "FAILURE"
		}
	}

	return fmt.Sprintf("%s | %s | %s | %s | %s | %s",
		timestamp,
		e.EventType,
		e.Surface,
		e.EpisodeID,
		detail,
		status,
	)
}

// ToJSON formats the event as JSON.
func (e *Event) ToJSON() (string, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// =============================================================================
// REDACTOR INTERFACE
// =============================================================================

// Redactor defines the interface for secret redaction.
type Redactor interface {
	// Redact replaces sensitive data in the input string.
	Redact(input string) string
	// Name returns the name of this redactor.
	Name() string
}

// =============================================================================
// PATTERN REDACTOR
// =============================================================================

// PatternRedactor redacts text matching a regex pattern.
type PatternRedactor struct {
	name    string
	pattern *regexp.Regexp
	replace string
}

// NewPatternRedactor creates a new pattern-based redactor.
func NewPatternRedactor(name string, pattern *regexp.Regexp, replace string) *PatternRedactor {
	return &PatternRedactor{
		name:    name,
		pattern: pattern,
		replace: replace,
	}
}

// Redact replaces matches with the replacement string.
func (r *PatternRedactor) Redact(input string) string {
	return r.pattern.ReplaceAllString(input, r.replace)
}

// Name returns the redactor name.
func (r *PatternRedactor) Name() string {
	return r.name
}

// =============================================================================
// BUILT-IN SECRET PATTERNS
// =============================================================================

// secretPatterns defines patterns for credentials that must never reach the
// audit trail. SECURITY: the trail records that an attempt happened, never
// what was typed.
var secretPatterns = []struct {
	name    string
	pattern *regexp.Regexp
	replace string
}{
	{"Password", regexp.MustCompile(`(?i)(password|passwd|pwd)\s*[=:]\s*\S+`), "[PASSWORD_REDACTED]"},
	{"TOTPSecret", regexp.MustCompile(`(?i)(secret|totp)\s*[=:]\s*[A-Z2-7]{16,}`), "[TOTP_SECRET_REDACTED]"},
	{"SMTPAuth", regexp.MustCompile(`(?i)(smtp_pass|smtp_password)\s*[=:]\s*\S+`), "[SMTP_PASSWORD_REDACTED]"},
	{"SaltHex", regexp.MustCompile(`(?i)salt\s*[=:]\s*[0-9a-f]{32,}`), "[SALT_REDACTED]"},
	{"HashHex", regexp.MustCompile(`(?i)hash\s*[=:]\s*[0-9a-f]{32,}`), "[HASH_REDACTED]"},
	{"Bearer", regexp.MustCompile(`Bearer\s+[a-zA-Z0-9\-_.]+`), "Bearer [TOKEN_REDACTED]"},
}

// defaultRedactors returns the default set of secret redactors.
func defaultRedactors() []Redactor {
	redactors := make([]Redactor, 0, len(secretPatterns))
	for _, sp := range secretPatterns {
		redactors = append(redactors, NewPatternRedactor(sp.name, sp.pattern, sp.replace))
	}
	return redactors
}

// =============================================================================
// AUDIT LOGGER
// =============================================================================

// FailureCallback is called synchronously when audit logging fails, so the
// caller can surface the failure before continuing.
type FailureCallback func(err error)

// Logger provides thread-safe append-only audit logging with secret
// redaction and size-based rotation.
type Logger struct {
	path      string
	file      *os.File
	mu        sync.Mutex
	enabled   bool
	maxSize   int64
	redactors []Redactor

	// Failure tracking. The trail is evidence: a write failure is reported
	// to the callback and to stderr, never silently dropped.
	lastFailure  error
	failureCount int
	onFailure    FailureCallback
}

// NewLogger creates a new audit logger appending to the file at path.
func NewLogger(path string) (*Logger, error) {
	if path == "" {
		return nil, fmt.Errorf("audit log path is empty")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log file: %w", err)
	}

	return &Logger{
		path:      path,
		file:      file,
		enabled:   true,
		maxSize:   DefaultMaxFileSize,
		redactors: defaultRedactors(),
	}, nil
}

// =============================================================================
// LOGGING METHODS
// =============================================================================

// Log writes an audit event to the log file. Sensitive data in the detail,
// error, and metadata fields is redacted before it touches disk.
func (l *Logger) Log(event Event) error {
	l.mu.Lock()

	// SECURITY: Collect pending callbacks to execute after releasing lock.
	var pendingCallbacks []func()

	if !l.enabled || l.file == nil {
		l.mu.Unlock()
		return nil
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if event.Detail != "" {
		event.Detail = l.redactLocked(truncate(event.Detail, MaxDetailLength))
	}
	if event.Metadata != nil {
		for k, v := range event.Metadata {
			event.Metadata[k] = l.redactLocked(v)
		}
	}
	if event.Error != "" {
		event.Error = l.redactLocked(event.Error)
	}

	// Check if rotation needed
	if err := l.checkRotationLocked(); err != nil {
		if cb := l.handleFailureLocked(err); cb != nil {
			pendingCallbacks = append(pendingCallbacks, cb)
		}
	}

	// Write log line
	if _, err := fmt.Fprintln(l.file, event.ToLogLine()); err != nil {
		writeErr := fmt.Errorf("failed to write audit log: %w", err)
		if cb := l.handleFailureLocked(writeErr); cb != nil {
			pendingCallbacks = append(pendingCallbacks, cb)
		}
		l.mu.Unlock()
		for _, callback := range pendingCallbacks {
			callback()
		}
		return writeErr
	}

	// Sync to disk to ensure durability
	if err := l.file.Sync(); err != nil {
		syncErr := fmt.Errorf("failed to sync audit log: %w", err)
		if cb := l.handleFailureLocked(syncErr); cb != nil {
			pendingCallbacks = append(pendingCallbacks, cb)
		}
		l.mu.Unlock()
		for _, callback := range pendingCallbacks {
			callback()
		}
		return syncErr
	}

	l.failureCount = 0
	l.mu.Unlock()

	for _, callback := range pendingCallbacks {
		callback()
	}
	return nil
}

// AuthAttempt records an authentication attempt against the given surface.
func (l *Logger) AuthAttempt(surface, episodeID string, success bool, errMsg string) error {
	eventType := EventAuthSuccess
	if !success {
		eventType = EventAuthFailure
	}
	return l.Log(Event{
		EventType: eventType,
		Surface:   surface,
		EpisodeID: episodeID,
		Success:   success,
		Error:     errMsg,
	})
}

// BlockChange records a camera block-state transition.
func (l *Logger) BlockChange(blocked bool, mechanisms []string, err error) error {
	eventType := EventCameraBlocked
	if !blocked {
		eventType = EventCameraUnblocked
	}
	event := Event{
		EventType: eventType,
		Success:   err == nil,
		Metadata:  map[string]string{"mechanisms": strings.Join(mechanisms, ",")},
	}
	if err != nil {
		event.EventType = EventBlockFailed
		event.Error = err.Error()
	}
	return l.Log(event)
}

// Episode records an intrusion episode lifecycle event.
func (l *Logger) Episode(eventType, episodeID string, metadata map[string]string) error {
	return l.Log(Event{
		EventType: eventType,
		EpisodeID: episodeID,
		Success:   true,
		Metadata:  metadata,
	})
}

// =============================================================================
// FAILURE HANDLING
// =============================================================================

// handleFailureLocked records an audit failure (caller must hold lock).
// The returned closure, if any, must be invoked after releasing the lock.
func (l *Logger) handleFailureLocked(err error) func() {
	l.failureCount++
	l.lastFailure = err

	// Fallback channel: the failure itself must be visible somewhere.
	fmt.Fprintf(os.Stderr, "[AUDIT FAILURE %d] %v\n", l.failureCount, err)

	if l.onFailure == nil {
		return nil
	}
	cb := l.onFailure
	errCopy := err
	return func() { cb(errCopy) }
}

// SetFailureCallback sets the callback invoked when audit logging fails.
func (l *Logger) SetFailureCallback(cb FailureCallback) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onFailure = cb
}

// LastFailure returns the most recent audit failure, if any.
func (l *Logger) LastFailure() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastFailure
}

// =============================================================================
// ROTATION
// =============================================================================

// Rotate forces rotation of the current log file.
func (l *Logger) Rotate() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rotateLocked()
}

// rotateLocked performs rotation without locking (caller must hold lock).
func (l *Logger) rotateLocked() error {
	if l.file == nil {
		return nil
	}

	if err := l.file.Close(); err != nil {
		return fmt.Errorf("failed to close audit log for rotation: %w", err)
	}

	timestamp := time.Now().Format("20060102_150405")
	ext := filepath.Ext(l.path)
	base := strings.TrimSuffix(l.path, ext)
	rotatedPath := fmt.Sprintf("%s_%s%s", base, timestamp, ext)

	if err := os.Rename(l.path, rotatedPath); err != nil {
		// Try to reopen original file if rename fails
		l.file, _ = os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
		return fmt.Errorf("failed to rotate audit log: %w", err)
	}

	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to create new audit log after rotation: %w", err)
	}
	l.file = file
	return nil
}

// checkRotationLocked checks if rotation is needed based on file size.
func (l *Logger) checkRotationLocked() error {
	if l.maxSize <= 0 {
		return nil
	}
	info, err := l.file.Stat()
	if err != nil {
		return nil // Ignore stat errors
	}
	if info.Size() >= l.maxSize {
		return l.rotateLocked()
	}
	return nil
}

// SetMaxSize sets the maximum file size before rotation.
func (l *Logger) SetMaxSize(size int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.maxSize = size
}

// =============================================================================
// CONFIGURATION
// =============================================================================

// SetEnabled enables or disables logging.
func (l *Logger) SetEnabled(enabled bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enabled = enabled
}

// IsEnabled returns whether logging is enabled.
func (l *Logger) IsEnabled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enabled
}

// Path returns the audit log file path.
func (l *Logger) Path() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.path
}

// AddRedactor appends a custom redactor to the chain.
func (l *Logger) AddRedactor(r Redactor) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.redactors = append(l.redactors, r)
}

// Close closes the underlying log file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// redactLocked runs input through every redactor (caller must hold lock).
func (l *Logger) redactLocked(input string) string {
	for _, r := range l.redactors {
		input = r.Redact(input)
	}
	return input
}

// truncate bounds a detail string by rune count. Byte slicing would split
// multi-byte runes and write invalid UTF-8 into the trail.
func truncate(s string, max int) string {
	return util.TruncateRunes(s, max)
}
