// camguard - password-gated camera control with silent intrusion response.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"fmt"
	"os"

	"github.com/jeranaias/camguard/internal/cli"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func init() {
	// Sync version info with cli package
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
}

func main() {
	cmd, args := cli.Parse()

	var err error
	switch cmd {
	case cli.CmdSetup:
		err = cli.HandleSetup(args)
	case cli.CmdEnable:
		err = cli.HandleEnable(args)
	case cli.CmdDisable:
		err = cli.HandleDisable(args)
	case cli.CmdStatus:
		err = cli.HandleStatus(args)
	case cli.CmdLogs:
		err = cli.HandleLogs(args)
	case cli.CmdChangePassword:
		err = cli.HandleChangePassword(args)
	case cli.CmdTOTP:
		err = cli.HandleTOTP(args)
	case cli.CmdSweep:
		err = cli.HandleSweep(args)
	case cli.CmdVersion:
		cli.PrintVersion()
	case cli.CmdHelp:
		cli.PrintUsage()
	default:
		cli.PrintUsage()
		os.Exit(cli.ExitUsageError)
	}

	if err != nil {
		// Denials already printed their uniform message.
		if cli.ExitCode(err) != cli.ExitAuthError {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(cli.ExitCode(err))
	}
}
