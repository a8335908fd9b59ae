// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// =============================================================================
// TOTP SECOND FACTOR
// =============================================================================

// TOTPIssuer is the issuer label embedded in the enrollment URL.
const TOTPIssuer = "camguard"

// ErrTOTPNotEnrolled indicates a TOTP code was supplied or required but no
// secret is enrolled.
var ErrTOTPNotEnrolled = errors.New("no TOTP second factor enrolled")

// EnrollTOTP generates a new TOTP secret, verifies the owner password, and
// stores the secret on the credential. It returns the otpauth:// key so the
// caller can display the provisioning URL or secret for the authenticator app.
func (m *Manager) EnrollTOTP(ctx context.Context, password string) (*otp.Key, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cred, err := m.persistence.LoadCredential(ctx)
	if err != nil {
		return nil, err
	}
	if err := verifyAgainst(cred, password); err != nil {
		return nil, err
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      TOTPIssuer,
		AccountName: "owner",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate TOTP secret: %w", err)
	}

	cred.TOTPSecret = key.Secret()
	if err := m.persistence.SaveCredential(ctx, cred); err != nil {
		return nil, err
	}
	return key, nil
}

// UnenrollTOTP removes the TOTP secret. It demands the password AND a valid
// current code: stripping the second factor with the password alone would
// let a password thief downgrade the account to single-factor.
func (m *Manager) UnenrollTOTP(ctx context.Context, password, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cred, err := m.persistence.LoadCredential(ctx)
	if err != nil {
		return err
	}
	if err := verifyAgainst(cred, password); err != nil {
		return err
	}
	if cred.TOTPSecret == "" {
		return ErrTOTPNotEnrolled
	}
	if !totp.Validate(code, cred.TOTPSecret) {
		return ErrInvalidCredentials
	}
	cred.TOTPSecret = ""
	return m.persistence.SaveCredential(ctx, cred)
}

// TOTPEnrolled reports whether a second factor is enrolled.
func (m *Manager) TOTPEnrolled(ctx context.Context) (bool, error) {
	cred, err := m.persistence.LoadCredential(ctx)
	if errors.Is(err, ErrNoCredential) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return cred.TOTPSecret != "", nil
}

// VerifyTOTP validates a TOTP code against the enrolled secret. Like password
// verification, a bad code maps to the uniform ErrInvalidCredentials.
func (m *Manager) VerifyTOTP(ctx context.Context, code string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cred, err := m.persistence.LoadCredential(ctx)
	if err != nil {
		return err
	}
	if cred.TOTPSecret == "" {
		return ErrTOTPNotEnrolled
	}
	if !totp.Validate(code, cred.TOTPSecret) {
		return ErrInvalidCredentials
	}
	return nil
}
