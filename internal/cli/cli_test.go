// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/jeranaias/camguard/internal/gate"
)

// =============================================================================
// COMMAND PARSING TESTS
// =============================================================================

func TestParseCommands(t *testing.T) {
	cases := []struct {
		argv []string
		want Command
	}{
		{[]string{"setup"}, CmdSetup},
		{[]string{"enable"}, CmdEnable},
		{[]string{"unblock"}, CmdEnable},
		{[]string{"on"}, CmdEnable},
		{[]string{"disable"}, CmdDisable},
		{[]string{"block"}, CmdDisable},
		{[]string{"status"}, CmdStatus},
		{[]string{"s"}, CmdStatus},
		{[]string{"logs"}, CmdLogs},
		{[]string{"history"}, CmdLogs},
		{[]string{"change-password"}, CmdChangePassword},
		{[]string{"passwd"}, CmdChangePassword},
		{[]string{"totp"}, CmdTOTP},
		{[]string{"2fa"}, CmdTOTP},
		{[]string{"sweep"}, CmdSweep},
		{[]string{"version"}, CmdVersion},
		{[]string{"help"}, CmdHelp},
		{[]string{}, CmdStatus}, // bare invocation defaults to status
		{[]string{"bogus"}, CmdHelp},
	}

	for _, tc := range cases {
		cmd, _ := parseArgs(tc.argv)
		if cmd != tc.want {
			t.Errorf("parseArgs(%v) = %v, want %v", tc.argv, cmd, tc.want)
		}
	}
}

func TestParseGlobalFlags(t *testing.T) {
	cmd, args := parseArgs([]string{"--json", "status"})
	if cmd != CmdStatus || !args.JSON {
		t.Fatalf("expected status with JSON, got %v json=%v", cmd, args.JSON)
	}

	cmd, args = parseArgs([]string{"logs", "episodes", "--limit", "5"})
	if cmd != CmdLogs {
		t.Fatalf("expected logs, got %v", cmd)
	}
	if args.Subcommand != "episodes" {
		t.Errorf("subcommand = %q, want episodes", args.Subcommand)
	}
	if len(args.Raw) != 3 {
		t.Errorf("raw = %v, want 3 remaining args", args.Raw)
	}

	_, args = parseArgs([]string{"--config=/tmp/alt.toml", "-q", "enable"})
	if args.Config != "/tmp/alt.toml" {
		t.Errorf("config = %q", args.Config)
	}
	if !args.Quiet {
		t.Error("expected quiet")
	}

	_, args = parseArgs([]string{"totp", "remove", "--confirm"})
	if args.Subcommand != "remove" || !args.Confirm {
		t.Errorf("subcommand=%q confirm=%v", args.Subcommand, args.Confirm)
	}
}

// =============================================================================
// ARG PARSER TESTS
// =============================================================================

func TestArgParser(t *testing.T) {
	p := NewArgParser([]string{"attempts", "--limit", "50", "--since=2024-01-01", "--json"})

	if p.Subcommand() != "attempts" {
		t.Errorf("subcommand = %q", p.Subcommand())
	}
	if p.Flag("limit") != "50" {
		t.Errorf("limit = %q", p.Flag("limit"))
	}
	if p.Flag("since") != "2024-01-01" {
		t.Errorf("since = %q", p.Flag("since"))
	}
	if !p.BoolFlag("json") {
		t.Error("expected json bool flag")
	}

	n, err := p.FlagInt("limit", 20)
	if err != nil || n != 50 {
		t.Errorf("FlagInt = %d, %v", n, err)
	}
	n, err = p.FlagInt("missing", 20)
	if err != nil || n != 20 {
		t.Errorf("FlagInt default = %d, %v", n, err)
	}
}

func TestArgParserBadInt(t *testing.T) {
	p := NewArgParser([]string{"--limit", "lots"})
	if _, err := p.FlagInt("limit", 20); err == nil {
		t.Fatal("expected error for non-numeric flag value")
	}
}

func TestArgParserExplicitBool(t *testing.T) {
	p := NewArgParser([]string{"--json=false", "--quiet=true"})
	if p.BoolFlag("json") {
		t.Error("--json=false should be false")
	}
	if !p.BoolFlag("quiet") {
		t.Error("--quiet=true should be true")
	}
}

// =============================================================================
// EXIT CODE TESTS
// =============================================================================

func TestExitCode(t *testing.T) {
	if ExitCode(nil) != ExitSuccess {
		t.Error("nil should map to success")
	}
	if ExitCode(errors.New("boom")) != ExitGeneralError {
		t.Error("plain error should map to general error")
	}
	if ExitCode(errAccessDenied) != ExitAuthError {
		t.Error("denial should map to auth error")
	}
	wrapped := fmt.Errorf("while running: %w", exitErr(ExitUsageError, errors.New("bad flag")))
	if ExitCode(wrapped) != ExitUsageError {
		t.Error("exit code should survive wrapping")
	}
}

// =============================================================================
// APP WIRING TESTS
// =============================================================================

// writeTestConfig points every camguard path at a temp directory.
func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.toml")
	content := fmt.Sprintf(`
[camera]
media_dir = %q

[storage]
db_path = %q

[audit]
enabled = true
path = %q
`, filepath.Join(dir, "media"), filepath.Join(dir, "camguard.db"), filepath.Join(dir, "audit.log"))
	if err := os.WriteFile(cfgPath, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return cfgPath
}

func TestNewAppWiring(t *testing.T) {
	app, err := NewApp(Args{Config: writeTestConfig(t)})
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	defer app.Close()

	if app.Store == nil || app.Auth == nil || app.Gate == nil ||
		app.Controller == nil || app.Cache == nil || app.Tracker == nil {
		t.Fatal("app wiring left a component nil")
	}

	// A fresh install has no credential, so the gate refuses outright.
	_, err = app.Gate.Attempt(context.Background(), gate.ActionEnableCamera, "anything", "")
	if !errors.Is(err, gate.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured on fresh install, got %v", err)
	}
}

func TestNewAppStatusProbe(t *testing.T) {
	app, err := NewApp(Args{Config: writeTestConfig(t)})
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	defer app.Close()

	status, err := app.Cache.Get(context.Background())
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if status.Blocked {
		t.Error("fresh install should not report a blocked camera")
	}
}
