// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// prompt.go - Terminal prompting helpers for camguard commands.
//
// SECURITY: Passwords are read without echo.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"
)

// promptPassword reads a password from the terminal without echoing it.
func promptPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println() // newline after hidden input
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(password), nil
}

// errPasswordMismatch distinguishes a typo from a terminal read failure, so
// callers can re-prompt on the former and abort on the latter.
var errPasswordMismatch = errors.New("passwords do not match")

// promptNewPassword reads a password twice and requires the entries to match.
func promptNewPassword(prompt string) (string, error) {
	password, err := promptPassword(prompt)
	if err != nil {
		return "", err
	}
	confirmed, err := promptPassword("Confirm password: ")
	if err != nil {
		return "", err
	}
	if password != confirmed {
		return "", errPasswordMismatch
	}
	return password, nil
}

// promptLine reads a single visible line from stdin.
func promptLine(prompt string) (string, error) {
	fmt.Print(prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// promptCredentials collects the password and, when the second factor is in
// play, a TOTP code. The code prompt is shown whenever TOTP is enrolled or
// forced by configuration; a wrong or missing code fails exactly like a
// wrong password.
func (a *App) promptCredentials() (password, totpCode string, err error) {
	password, err = promptPassword("Password: ")
	if err != nil {
		return "", "", err
	}

	enrolled, terr := a.Auth.TOTPEnrolled(context.Background())
	if terr != nil {
		enrolled = false
	}
	if enrolled || a.Cfg.Auth.TOTPRequired {
		totpCode, err = promptLine("TOTP code: ")
		if err != nil {
			return "", "", err
		}
	}
	return password, totpCode, nil
}

// confirmAction asks a yes/no question unless --confirm was passed.
func confirmAction(args Args, action string) (bool, error) {
	if args.Confirm {
		return true, nil
	}
	answer, err := promptLine(fmt.Sprintf("%s? [y/N]: ", action))
	if err != nil {
		return false, err
	}
	answer = strings.ToLower(answer)
	return answer == "y" || answer == "yes", nil
}
