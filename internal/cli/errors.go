// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// errors.go - Error handling shared by camguard CLI commands.
//
// ERROR HANDLING: Handlers always return errors; main decides display and
// exit code.
package cli

import (
	"errors"
	"fmt"
)

// ExitError carries a process exit code with an error.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// exitErr wraps an error with an exit code.
func exitErr(code int, err error) error {
	return &ExitError{Code: code, Err: err}
}

// ExitCode extracts the exit code from an error chain.
// Plain errors map to ExitGeneralError; nil maps to ExitSuccess.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return ExitGeneralError
}

// errAccessDenied is the uniform denial shown to the caller. Deliberately
// free of detail: which factor failed and what happened next stay internal.
var errAccessDenied = exitErr(ExitAuthError, errors.New("access denied"))
