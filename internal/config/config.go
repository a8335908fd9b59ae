// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides unified configuration loading and management for camguard.
//
// Supports TOML configuration with sensible defaults, environment variable
// overrides, and validation.
//
// Configuration file locations (in order of precedence):
//   - ~/.camguard/config.toml
//   - Built-in defaults
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/camguard/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete camguard configuration.
type Config struct {
	Version string `toml:"version"`

	// Auth configuration (credential policy, lockout-style failure tracking)
	Auth AuthConfig `toml:"auth"`

	// Camera block controller configuration
	Camera CameraConfig `toml:"camera"`

	// Evidence capture configuration
	Capture CaptureConfig `toml:"capture"`

	// Intrusion responder configuration
	Intrusion IntrusionConfig `toml:"intrusion"`

	// Audit log configuration
	Audit AuditConfig `toml:"audit"`

	// Email alert configuration
	Alerts AlertConfig `toml:"alerts"`

	// Storage configuration
	Storage StorageConfig `toml:"storage"`
}

// AuthConfig contains credential and password policy configuration.
type AuthConfig struct {
	// MinPasswordLength is the minimum password length accepted at setup.
	MinPasswordLength int `toml:"min_password_length"`
	// RequireUpper requires at least one uppercase letter.
	RequireUpper bool `toml:"require_upper"`
	// RequireLower requires at least one lowercase letter.
	RequireLower bool `toml:"require_lower"`
	// RequireDigit requires at least one digit.
	RequireDigit bool `toml:"require_digit"`
	// SaltLength is the salt length in bytes for new credentials.
	// Minimum 16; default 32.
	SaltLength int `toml:"salt_length"`
	// TOTPRequired requires a TOTP code alongside the password once enrolled.
	TOTPRequired bool `toml:"totp_required"`
}

// CameraConfig contains camera block controller configuration.
type CameraConfig struct {
	// MediaDir is the directory for the lock file and captured evidence.
	// Empty means ~/.camguard/intrusion_media.
	MediaDir string `toml:"media_dir"`
	// StatusCacheTTLSecs is how long a probed block state stays fresh.
	StatusCacheTTLSecs int `toml:"status_cache_ttl_secs"`
	// ProbeTimeoutMillis bounds each mechanism probe; an overrun reports
	// Unknown rather than an error.
	ProbeTimeoutMillis int `toml:"probe_timeout_millis"`
}

// CaptureConfig contains evidence capture configuration.
type CaptureConfig struct {
	// VideoDurationSecs is the capture time box in seconds. The timer is a
	// hard ceiling; the capture process is killed when it elapses.
	VideoDurationSecs int `toml:"video_duration_secs"`
	// FFmpegPath is the ffmpeg binary to invoke. Empty means "ffmpeg" on PATH.
	FFmpegPath string `toml:"ffmpeg_path"`
	// Device is the capture device identifier. Empty selects a per-OS default.
	Device string `toml:"device"`
	// StartupDeadlineMillis is how long video capture may take to produce
	// output before the photo fallback is attempted.
	StartupDeadlineMillis int `toml:"startup_deadline_millis"`
	// RetentionDays is how many days of evidence to keep. 0 keeps everything.
	RetentionDays int `toml:"retention_days"`
}

// IntrusionConfig contains intrusion responder configuration.
//
// These values are product decisions, not engineering constraints; they are
// deliberately configuration rather than constants.
type IntrusionConfig struct {
	// WindowSecs is the sliding failure window in seconds.
	WindowSecs int `toml:"window_secs"`
	// SuspectThreshold is the failure count that classifies an episode as a
	// suspected intrusion and triggers notification.
	SuspectThreshold int `toml:"suspect_threshold"`
	// CaptureCap is the maximum evidence captures per episode.
	CaptureCap int `toml:"capture_cap"`
}

// AuditConfig contains audit log configuration.
type AuditConfig struct {
	// Enabled enables audit logging.
	Enabled bool `toml:"enabled"`
	// Path is the audit log file path (empty = ~/.camguard/audit.log).
	Path string `toml:"path"`
	// MaxSizeMB is the file size that triggers rotation.
	MaxSizeMB int64 `toml:"max_size_mb"`
}

// AlertConfig contains intrusion alert email configuration.
type AlertConfig struct {
	// Enabled enables email alerts for suspected intrusions.
	Enabled bool `toml:"enabled"`
	// SMTPHost is the SMTP server hostname.
	SMTPHost string `toml:"smtp_host"`
	// SMTPPort is the SMTP server port.
	SMTPPort int `toml:"smtp_port"`
	// Username is the SMTP auth username (empty = no auth).
	Username string `toml:"username"`
	// Password is the SMTP auth password.
	Password string `toml:"password"`
	// From is the sender address.
	From string `toml:"from"`
	// To is the recipient address for alerts.
	To string `toml:"to"`
	// TimeoutSecs bounds the SMTP dial and send.
	TimeoutSecs int `toml:"timeout_secs"`
	// RatePerMinute caps alert delivery; excess alerts are dropped and audited.
	RatePerMinute int `toml:"rate_per_minute"`
	// Burst is the alert rate limiter burst size.
	Burst int `toml:"burst"`
}

// StorageConfig contains persistence configuration.
type StorageConfig struct {
	// DBPath is the SQLite database path (empty = ~/.camguard/camguard.db).
	DBPath string `toml:"db_path"`
	// AttemptRetentionDays is how many days of auth attempt records to keep.
	// 0 keeps everything.
	AttemptRetentionDays int `toml:"attempt_retention_days"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Version: "1.0.0",

		Auth: AuthConfig{
			MinPasswordLength: 8,
			RequireUpper:      true,
			RequireLower:      true,
			RequireDigit:      true,
			SaltLength:        32,
			TOTPRequired:      false,
		},

		Camera: CameraConfig{
			MediaDir:           "",
			StatusCacheTTLSecs: 5,
			ProbeTimeoutMillis: 1500,
		},

		Capture: CaptureConfig{
			VideoDurationSecs:     10,
			FFmpegPath:            "",
			Device:                "",
			StartupDeadlineMillis: 3000,
			RetentionDays:         30,
		},

		Intrusion: IntrusionConfig{
			WindowSecs:       60,
			SuspectThreshold: 3,
			CaptureCap:       3,
		},

		Audit: AuditConfig{
			Enabled:   true,
			Path:      "",
			MaxSizeMB: 10,
		},

		Alerts: AlertConfig{
			Enabled:       false,
			SMTPPort:      2525,
			TimeoutSecs:   30,
			RatePerMinute: 1,
			Burst:         3,
		},

		Storage: StorageConfig{
			DBPath:               "",
			AttemptRetentionDays: 0,
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the camguard configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".camguard"), nil
}

// ConfigPath returns the path to the TOML config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0700)
}

// ensureSecurePermissions checks and fixes permissions on config files.
// SECURITY: Config files should be 0600 to protect SMTP credentials.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the config file, falling back to defaults.
// Environment overrides are applied last, then validation clamps out-of-range
// values.
func Load() (*Config, error) {
	cfg := Default()

	path, err := ConfigPath()
	if err == nil {
		if _, statErr := os.Stat(path); statErr == nil {
			if err := LoadTOML(cfg, path); err != nil {
				return nil, fmt.Errorf("failed to load config: %w", err)
			}
		}
	}

	cfg.ApplyEnvOverrides()
	cfg.Validate()
	return cfg, nil
}

// LoadTOML loads configuration from a TOML file into cfg.
// SECURITY: Checks and fixes file permissions on load.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		// Permissions might not be fixable on all systems; warn and continue.
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	return nil
}

// LoadFrom loads configuration from an explicit path, applying env overrides
// and validation. Used by tests and the -config flag.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()
	if err := LoadTOML(cfg, path); err != nil {
		return nil, err
	}
	cfg.ApplyEnvOverrides()
	cfg.Validate()
	return cfg, nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies CAMGUARD_* environment variables on top of the
// loaded configuration.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("CAMGUARD_MEDIA_DIR"); v != "" {
		c.Camera.MediaDir = v
	}
	if v := os.Getenv("CAMGUARD_DB_PATH"); v != "" {
		c.Storage.DBPath = v
	}
	if v := os.Getenv("CAMGUARD_AUDIT_PATH"); v != "" {
		c.Audit.Path = v
	}
	if v := os.Getenv("CAMGUARD_FFMPEG"); v != "" {
		c.Capture.FFmpegPath = v
	}
	if v := os.Getenv("CAMGUARD_SMTP_HOST"); v != "" {
		c.Alerts.SMTPHost = v
	}
	if v := os.Getenv("CAMGUARD_SMTP_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n < 65536 {
			c.Alerts.SMTPPort = n
		}
	}
	if v := os.Getenv("CAMGUARD_SMTP_PASSWORD"); v != "" {
		c.Alerts.Password = v
	}
	if v := os.Getenv("CAMGUARD_ALERTS_ENABLED"); v != "" {
		c.Alerts.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("CAMGUARD_WINDOW_SECS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Intrusion.WindowSecs = n
		}
	}
	if v := os.Getenv("CAMGUARD_SUSPECT_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Intrusion.SuspectThreshold = n
		}
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

// Validate clamps out-of-range values to safe bounds. Configuration mistakes
// degrade to defaults instead of disabling protection.
func (c *Config) Validate() {
	if c.Auth.MinPasswordLength < 8 {
		c.Auth.MinPasswordLength = 8
	}
	if c.Auth.SaltLength < 16 {
		c.Auth.SaltLength = 32
	}
	if c.Camera.StatusCacheTTLSecs <= 0 {
		c.Camera.StatusCacheTTLSecs = 5
	}
	if c.Camera.ProbeTimeoutMillis <= 0 {
		c.Camera.ProbeTimeoutMillis = 1500
	}
	if c.Capture.VideoDurationSecs <= 0 {
		c.Capture.VideoDurationSecs = 10
	}
	if c.Capture.StartupDeadlineMillis <= 0 {
		c.Capture.StartupDeadlineMillis = 3000
	}
	if c.Capture.RetentionDays < 0 {
		c.Capture.RetentionDays = 0
	}
	if c.Intrusion.WindowSecs <= 0 {
		c.Intrusion.WindowSecs = 60
	}
	if c.Intrusion.SuspectThreshold <= 0 {
		c.Intrusion.SuspectThreshold = 3
	}
	if c.Intrusion.CaptureCap <= 0 {
		c.Intrusion.CaptureCap = 3
	}
	if c.Audit.MaxSizeMB <= 0 {
		c.Audit.MaxSizeMB = 10
	}
	if c.Alerts.TimeoutSecs <= 0 {
		c.Alerts.TimeoutSecs = 30
	}
	if c.Alerts.RatePerMinute <= 0 {
		c.Alerts.RatePerMinute = 1
	}
	if c.Alerts.Burst <= 0 {
		c.Alerts.Burst = 3
	}
	if c.Alerts.SMTPPort <= 0 || c.Alerts.SMTPPort > 65535 {
		c.Alerts.SMTPPort = 2525
	}
}

// =============================================================================
// SAVE
// =============================================================================

// Save writes the configuration to the default config path with 0600
// permissions.
func (c *Config) Save() error {
	if err := EnsureConfigDir(); err != nil {
		return err
	}
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return c.SaveTo(path)
}

// SaveTo writes the configuration to an explicit path. The write is atomic:
// a crash mid-save leaves the previous config intact.
func (c *Config) SaveTo(path string) error {
	var sb strings.Builder
	if err := toml.NewEncoder(&sb).Encode(c); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, []byte(sb.String()), 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// =============================================================================
// DERIVED VALUES
// =============================================================================

// MediaDir resolves the evidence/lock-file directory, creating it if needed.
func (c *Config) ResolveMediaDir() (string, error) {
	dir := c.Camera.MediaDir
	if dir == "" {
		base, err := ConfigDir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(base, "intrusion_media")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("failed to create media directory: %w", err)
	}
	return dir, nil
}

// ResolveDBPath resolves the SQLite database path.
func (c *Config) ResolveDBPath() (string, error) {
	if c.Storage.DBPath != "" {
		return c.Storage.DBPath, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "camguard.db"), nil
}

// ResolveAuditPath resolves the audit log path.
func (c *Config) ResolveAuditPath() (string, error) {
	if c.Audit.Path != "" {
		return c.Audit.Path, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "audit.log"), nil
}

// StatusCacheTTL returns the status cache TTL as a duration.
func (c *Config) StatusCacheTTL() time.Duration {
	return time.Duration(c.Camera.StatusCacheTTLSecs) * time.Second
}

// ProbeTimeout returns the per-mechanism probe timeout as a duration.
func (c *Config) ProbeTimeout() time.Duration {
	return time.Duration(c.Camera.ProbeTimeoutMillis) * time.Millisecond
}

// FailureWindow returns the intrusion sliding window as a duration.
func (c *Config) FailureWindow() time.Duration {
	return time.Duration(c.Intrusion.WindowSecs) * time.Second
}

// VideoDuration returns the capture time box as a duration.
func (c *Config) VideoDuration() time.Duration {
	return time.Duration(c.Capture.VideoDurationSecs) * time.Second
}
