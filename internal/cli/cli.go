// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - CLI parsing and command routing for camguard.
//
// CLI: Comprehensive help and examples for all commands
package cli

import (
	"fmt"
	"os"
	"strings"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdHelp Command = iota
	CmdSetup
	CmdEnable
	CmdDisable
	CmdStatus
	CmdLogs
	CmdChangePassword
	CmdTOTP
	CmdSweep
	CmdVersion
)

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	JSON    bool   // Output in JSON format
	Quiet   bool   // Suppress non-essential output
	Config  string // Alternate config file path
	Confirm bool   // Skip interactive confirmation prompts

	// Subcommand is the first positional after the command
	// (e.g. "camguard totp enroll" -> "enroll").
	Subcommand string

	// Raw args (remaining after command extraction)
	Raw []string
}

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	// ExitSuccess indicates successful execution
	ExitSuccess = 0
	// ExitGeneralError indicates a general/unknown error
	ExitGeneralError = 1
	// ExitUsageError indicates invalid command usage or arguments
	ExitUsageError = 2
	// ExitConfigError indicates configuration file or settings error
	ExitConfigError = 3
	// ExitAuthError indicates an access attempt was denied
	ExitAuthError = 4
	// ExitNotConfigured indicates setup has not been run yet
	ExitNotConfigured = 5
)

const usageText = `camguard %s - password-gated camera control with intrusion response

Camguard keeps the camera blocked until the owner authenticates, and treats
repeated failed attempts as a suspected intrusion: it silently captures
evidence and alerts the owner.

Usage:
  camguard setup                  First-run password creation
  camguard enable                 Unblock the camera (password required)
  camguard disable                Block the camera (password required)
  camguard status                 Show block state and episode summary
  camguard logs [attempts|episodes] View access history (password required)
  camguard change-password        Rotate the owner password
  camguard totp [enroll|remove|status] Second-factor management
  camguard sweep                  Prune old evidence and attempt records
  camguard version                Show version information
  camguard help                   Show this help

Global flags:
  --json          Structured output (status, logs)
  --quiet, -q     Suppress non-essential output
  --config PATH   Use an alternate config file
  --confirm       Skip interactive confirmation prompts

Environment:
  CAMGUARD_MEDIA_DIR    Override evidence/lock-file directory
  CAMGUARD_DB_PATH      Override database path
  CAMGUARD_AUDIT_PATH   Override audit log path
`

// PrintUsage prints command usage information.
func PrintUsage() {
	fmt.Printf(usageText, Version)
}

// PrintVersion prints version information.
func PrintVersion() {
	fmt.Printf("camguard version %s\n", Version)
	fmt.Printf("  Git commit: %s\n", GitCommit)
	fmt.Printf("  Build date: %s\n", BuildDate)
}

// Parse parses command-line arguments and returns the command and args.
func Parse() (Command, Args) {
	return parseArgs(os.Args[1:])
}

// parseArgs is Parse with injectable argv, for tests.
func parseArgs(argv []string) (Command, Args) {
	remaining, parsed := parseGlobalFlags(argv)

	// No command defaults to status: the most common question is
	// "is the camera blocked right now".
	if len(remaining) == 0 {
		return CmdStatus, parsed
	}

	cmd := strings.ToLower(remaining[0])
	remaining = remaining[1:]
	parsed.Raw = remaining
	if len(remaining) > 0 && !strings.HasPrefix(remaining[0], "-") {
		parsed.Subcommand = strings.ToLower(remaining[0])
	}

	switch cmd {
	case "setup":
		return CmdSetup, parsed
	case "enable", "unblock", "on":
		return CmdEnable, parsed
	case "disable", "block", "off":
		return CmdDisable, parsed
	case "status", "s":
		return CmdStatus, parsed
	case "logs", "log", "history":
		return CmdLogs, parsed
	case "change-password", "passwd":
		return CmdChangePassword, parsed
	case "totp", "2fa":
		return CmdTOTP, parsed
	case "sweep", "prune":
		return CmdSweep, parsed
	case "version", "-v", "--version":
		return CmdVersion, parsed
	case "help", "-h", "--help":
		return CmdHelp, parsed
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		return CmdHelp, parsed
	}
}

// parseGlobalFlags extracts global flags and returns the remaining args.
func parseGlobalFlags(argv []string) ([]string, Args) {
	var parsed Args
	remaining := make([]string, 0, len(argv))

	i := 0
	for i < len(argv) {
		arg := argv[i]
		switch {
		case arg == "--json":
			parsed.JSON = true
		case arg == "--quiet" || arg == "-q":
			parsed.Quiet = true
		case arg == "--confirm" || arg == "--yes" || arg == "-y":
			parsed.Confirm = true
		case arg == "--config":
			if i+1 < len(argv) {
				parsed.Config = argv[i+1]
				i++
			}
		case strings.HasPrefix(arg, "--config="):
			parsed.Config = strings.TrimPrefix(arg, "--config=")
		default:
			remaining = append(remaining, arg)
		}
		i++
	}

	return remaining, parsed
}
