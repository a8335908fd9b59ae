// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package auth implements camguard's password credential store: salted
// PBKDF2-SHA-256 hashing, constant-time verification, and password strength
// enforcement. Verification failures are deliberately uniform: callers learn
// that credentials were rejected, never why.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
	"unicode"

	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/text/unicode/norm"

	"github.com/jeranaias/camguard/internal/util"
)

// =============================================================================
// CONSTANTS
// =============================================================================

// Hash algorithm identifiers stored alongside the credential. Legacy
// credentials created by older versions used a single unsalted-iteration
// SHA-256 over salt||password; they still verify but new credentials are
// always PBKDF2.
const (
	AlgorithmPBKDF2 = "pbkdf2-sha256"
	AlgorithmSHA256 = "sha256"
)

// PBKDF2Iterations is the iteration count for new credentials.
// OWASP recommends 310,000+ for PBKDF2-SHA-256.
const PBKDF2Iterations = 310000

// HashSize is the derived key length in bytes.
const HashSize = 32

// DefaultSaltSize is the salt length in bytes for new credentials.
const DefaultSaltSize = 32

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrInvalidCredentials is the single verification failure. It carries no
	// detail about which check failed.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrNoCredential indicates no credential has been configured yet.
	ErrNoCredential = errors.New("no credential configured")

	// ErrCredentialExists indicates setup was attempted over an existing credential.
	ErrCredentialExists = errors.New("credential already configured")

	// ErrWeakPassword indicates the candidate password failed the strength policy.
	ErrWeakPassword = errors.New("password does not meet strength requirements")
)

// =============================================================================
// CREDENTIAL
// =============================================================================

// Credential is the stored verifier for the owner password. The plaintext
// never persists; only the salt and derived hash do.
type Credential struct {
	Algorithm  string
	Iterations int
	Salt       []byte
	Hash       []byte
	TOTPSecret string // empty unless a second factor is enrolled
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Persistence abstracts credential storage.
type Persistence interface {
	// LoadCredential returns the stored credential, or ErrNoCredential.
	LoadCredential(ctx context.Context) (*Credential, error)
	// SaveCredential stores the credential, replacing any existing one.
	SaveCredential(ctx context.Context, cred *Credential) error
}

// =============================================================================
// STRENGTH POLICY
// =============================================================================

// StrengthPolicy defines minimum password requirements, checked at
// setup/change time only. Verification never re-checks strength, so
// tightening the policy cannot lock an owner out.
type StrengthPolicy struct {
	MinLength    int
	RequireUpper bool
	RequireLower bool
	RequireDigit bool
}

// DefaultStrengthPolicy returns the baseline policy: 8+ characters with at
// least one uppercase letter, one lowercase letter, and one digit.
func DefaultStrengthPolicy() StrengthPolicy {
	return StrengthPolicy{
		MinLength:    8,
		RequireUpper: true,
		RequireLower: true,
		RequireDigit: true,
	}
}

// Check validates a candidate password against the policy.
// Returns ErrWeakPassword wrapped with the first unmet requirement.
func (p StrengthPolicy) Check(password string) error {
	// Length is counted in runes so multi-byte characters are not
	// shortchanged against the minimum.
	if util.RuneLen(password) < p.MinLength {
		return fmt.Errorf("%w: must be at least %d characters", ErrWeakPassword, p.MinLength)
	}

	var hasUpper, hasLower, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}

	if p.RequireUpper && !hasUpper {
		return fmt.Errorf("%w: must contain an uppercase letter", ErrWeakPassword)
	}
	if p.RequireLower && !hasLower {
		return fmt.Errorf("%w: must contain a lowercase letter", ErrWeakPassword)
	}
	if p.RequireDigit && !hasDigit {
		return fmt.Errorf("%w: must contain a digit", ErrWeakPassword)
	}
	return nil
}

// =============================================================================
// MANAGER
// =============================================================================

// Manager owns the credential lifecycle: setup, verification, and change.
type Manager struct {
	mu          sync.RWMutex
	persistence Persistence
	policy      StrengthPolicy
	saltSize    int
}

// Option configures a Manager.
type Option func(*Manager)

// WithStrengthPolicy overrides the default strength policy.
func WithStrengthPolicy(p StrengthPolicy) Option {
	return func(m *Manager) { m.policy = p }
}

// WithSaltSize overrides the salt length for new credentials.
func WithSaltSize(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.saltSize = n
		}
	}
}

// NewManager creates a credential manager backed by the given persistence.
func NewManager(p Persistence, opts ...Option) *Manager {
	m := &Manager{
		persistence: p,
		policy:      DefaultStrengthPolicy(),
		saltSize:    DefaultSaltSize,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// IsConfigured reports whether a credential exists.
func (m *Manager) IsConfigured(ctx context.Context) (bool, error) {
	_, err := m.persistence.LoadCredential(ctx)
	if errors.Is(err, ErrNoCredential) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Setup creates the initial credential. Fails if one already exists or the
// password does not meet the strength policy.
func (m *Manager) Setup(ctx context.Context, password string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.persistence.LoadCredential(ctx); err == nil {
		return ErrCredentialExists
	} else if !errors.Is(err, ErrNoCredential) {
		return err
	}

	if err := m.policy.Check(password); err != nil {
		return err
	}

	cred, err := m.deriveCredential(password)
	if err != nil {
		return err
	}
	return m.persistence.SaveCredential(ctx, cred)
}

// Verify checks a plaintext password against the stored credential.
// The comparison is constant-time, and every failure path returns the same
// ErrInvalidCredentials.
func (m *Manager) Verify(ctx context.Context, password string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cred, err := m.persistence.LoadCredential(ctx)
	if errors.Is(err, ErrNoCredential) {
		return ErrNoCredential
	}
	if err != nil {
		return err
	}
	return verifyAgainst(cred, password)
}

// ChangePassword verifies the current password and replaces the credential
// with a fresh salt and hash for the new one. The new password must meet the
// strength policy; an enrolled TOTP secret carries over.
func (m *Manager) ChangePassword(ctx context.Context, current, next string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cred, err := m.persistence.LoadCredential(ctx)
	if err != nil {
		return err
	}
	if err := verifyAgainst(cred, current); err != nil {
		return err
	}
	if err := m.policy.Check(next); err != nil {
		return err
	}

	newCred, err := m.deriveCredential(next)
	if err != nil {
		return err
	}
	newCred.TOTPSecret = cred.TOTPSecret
	newCred.CreatedAt = cred.CreatedAt
	return m.persistence.SaveCredential(ctx, newCred)
}

// deriveCredential builds a fresh PBKDF2 credential for the password.
func (m *Manager) deriveCredential(password string) (*Credential, error) {
	salt := make([]byte, m.saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	now := time.Now()
	return &Credential{
		Algorithm:  AlgorithmPBKDF2,
		Iterations: PBKDF2Iterations,
		Salt:       salt,
		Hash:       deriveHash(password, salt, PBKDF2Iterations),
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// =============================================================================
// HASHING
// =============================================================================

// normalize applies NFKC so visually identical Unicode input verifies
// regardless of how the platform composed it.
func normalize(password string) string {
	return norm.NFKC.String(password)
}

// deriveHash computes the PBKDF2-SHA-256 hash of a normalized password.
func deriveHash(password string, salt []byte, iterations int) []byte {
	return pbkdf2.Key([]byte(normalize(password)), salt, iterations, HashSize, sha256.New)
}

// legacyHash computes the pre-PBKDF2 verifier: SHA-256(salt || password).
// Legacy credentials were hashed over raw bytes, so no normalization here.
func legacyHash(password string, salt []byte) []byte {
	h := sha256.New()
	h.Write(salt)
	h.Write([]byte(password))
	return h.Sum(nil)
}

// verifyAgainst checks password against cred in constant time.
func verifyAgainst(cred *Credential, password string) error {
	var candidate []byte
	switch cred.Algorithm {
	case AlgorithmSHA256:
		candidate = legacyHash(password, cred.Salt)
	default:
		candidate = deriveHash(password, cred.Salt, cred.Iterations)
	}

	// SECURITY: constant-time compare; no early exit on prefix mismatch.
	if subtle.ConstantTimeCompare(candidate, cred.Hash) != 1 {
		return ErrInvalidCredentials
	}
	return nil
}
