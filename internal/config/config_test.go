// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Intrusion.WindowSecs != 60 {
		t.Errorf("Expected window 60s, got %d", cfg.Intrusion.WindowSecs)
	}
	if cfg.Intrusion.SuspectThreshold != 3 {
		t.Errorf("Expected threshold 3, got %d", cfg.Intrusion.SuspectThreshold)
	}
	if cfg.Intrusion.CaptureCap != 3 {
		t.Errorf("Expected capture cap 3, got %d", cfg.Intrusion.CaptureCap)
	}
	if cfg.Camera.StatusCacheTTLSecs != 5 {
		t.Errorf("Expected cache TTL 5s, got %d", cfg.Camera.StatusCacheTTLSecs)
	}
	if cfg.Capture.VideoDurationSecs != 10 {
		t.Errorf("Expected video duration 10s, got %d", cfg.Capture.VideoDurationSecs)
	}
	if cfg.Auth.SaltLength != 32 {
		t.Errorf("Expected salt length 32, got %d", cfg.Auth.SaltLength)
	}
}

func TestLoadTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	content := `
version = "1.0.0"

[intrusion]
window_secs = 120
suspect_threshold = 5
capture_cap = 2

[alerts]
enabled = true
smtp_host = "smtp.example.com"
smtp_port = 587
to = "owner@example.com"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}

	if cfg.Intrusion.WindowSecs != 120 {
		t.Errorf("Expected window 120, got %d", cfg.Intrusion.WindowSecs)
	}
	if cfg.Intrusion.SuspectThreshold != 5 {
		t.Errorf("Expected threshold 5, got %d", cfg.Intrusion.SuspectThreshold)
	}
	if !cfg.Alerts.Enabled {
		t.Error("Expected alerts enabled")
	}
	if cfg.Alerts.SMTPHost != "smtp.example.com" {
		t.Errorf("Unexpected SMTP host: %s", cfg.Alerts.SMTPHost)
	}
	// Unspecified sections keep defaults.
	if cfg.Capture.VideoDurationSecs != 10 {
		t.Errorf("Expected default video duration, got %d", cfg.Capture.VideoDurationSecs)
	}
}

func TestValidateClampsBadValues(t *testing.T) {
	cfg := Default()
	cfg.Auth.MinPasswordLength = 2
	cfg.Auth.SaltLength = 4
	cfg.Intrusion.WindowSecs = -10
	cfg.Intrusion.CaptureCap = 0
	cfg.Camera.StatusCacheTTLSecs = 0
	cfg.Alerts.SMTPPort = 99999

	cfg.Validate()

	if cfg.Auth.MinPasswordLength != 8 {
		t.Errorf("MinPasswordLength not clamped: %d", cfg.Auth.MinPasswordLength)
	}
	if cfg.Auth.SaltLength != 32 {
		t.Errorf("SaltLength not clamped: %d", cfg.Auth.SaltLength)
	}
	if cfg.Intrusion.WindowSecs != 60 {
		t.Errorf("WindowSecs not clamped: %d", cfg.Intrusion.WindowSecs)
	}
	if cfg.Intrusion.CaptureCap != 3 {
		t.Errorf("CaptureCap not clamped: %d", cfg.Intrusion.CaptureCap)
	}
	if cfg.Camera.StatusCacheTTLSecs != 5 {
		t.Errorf("StatusCacheTTLSecs not clamped: %d", cfg.Camera.StatusCacheTTLSecs)
	}
	if cfg.Alerts.SMTPPort != 2525 {
		t.Errorf("SMTPPort not clamped: %d", cfg.Alerts.SMTPPort)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("CAMGUARD_SMTP_HOST", "mail.test")
	t.Setenv("CAMGUARD_WINDOW_SECS", "90")
	t.Setenv("CAMGUARD_ALERTS_ENABLED", "true")

	cfg := Default()
	cfg.ApplyEnvOverrides()

	if cfg.Alerts.SMTPHost != "mail.test" {
		t.Errorf("SMTP host override not applied: %s", cfg.Alerts.SMTPHost)
	}
	if cfg.Intrusion.WindowSecs != 90 {
		t.Errorf("Window override not applied: %d", cfg.Intrusion.WindowSecs)
	}
	if !cfg.Alerts.Enabled {
		t.Error("Alerts enabled override not applied")
	}
}

func TestSaveAndReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	cfg := Default()
	cfg.Intrusion.WindowSecs = 45
	cfg.Alerts.To = "alerts@example.com"

	if err := cfg.SaveTo(path); err != nil {
		t.Fatalf("SaveTo failed: %v", err)
	}

	// Saved file must not be world-readable.
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("Expected 0600 permissions, got %o", perm)
	}

	loaded, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}
	if loaded.Intrusion.WindowSecs != 45 {
		t.Errorf("Round-trip lost window: %d", loaded.Intrusion.WindowSecs)
	}
	if loaded.Alerts.To != "alerts@example.com" {
		t.Errorf("Round-trip lost recipient: %s", loaded.Alerts.To)
	}
}

func TestSaveToLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	// Overwrite an existing config; the atomic write path must leave
	// exactly the target file behind.
	for i := 0; i < 2; i++ {
		if err := Default().SaveTo(path); err != nil {
			t.Fatalf("SaveTo %d failed: %v", i, err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "config.toml" {
		names := make([]string, len(entries))
		for i, e := range entries {
			names[i] = e.Name()
		}
		t.Errorf("Expected only config.toml, got %v", names)
	}
}

func TestDurationHelpers(t *testing.T) {
	cfg := Default()
	if cfg.StatusCacheTTL() != 5*time.Second {
		t.Errorf("StatusCacheTTL = %v", cfg.StatusCacheTTL())
	}
	if cfg.FailureWindow() != 60*time.Second {
		t.Errorf("FailureWindow = %v", cfg.FailureWindow())
	}
	if cfg.VideoDuration() != 10*time.Second {
		t.Errorf("VideoDuration = %v", cfg.VideoDuration())
	}
}
