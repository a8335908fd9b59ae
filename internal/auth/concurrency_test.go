// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// This file contains tests for concurrent use of the credential manager:
// - Parallel verification against one credential
// - Verification racing a password change
// - Concurrent access safety
package auth

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// lockedPersistence is a goroutine-safe in-memory Persistence.
type lockedPersistence struct {
	mu   sync.Mutex
	cred *Credential
}

func (p *lockedPersistence) LoadCredential(_ context.Context) (*Credential, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cred == nil {
		return nil, ErrNoCredential
	}
	c := *p.cred
	return &c, nil
}

func (p *lockedPersistence) SaveCredential(_ context.Context, cred *Credential) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	c := *cred
	p.cred = &c
	return nil
}

// TestManager_ConcurrentVerify tests that parallel verifications against one
// credential do not race or panic, and all agree on the outcome.
func TestManager_ConcurrentVerify(t *testing.T) {
	ctx := context.Background()
	mgr := NewManager(&lockedPersistence{})
	require.NoError(t, mgr.Setup(ctx, "Sunshine!234"))

	var wg sync.WaitGroup
	errs := make([]error, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				errs[i] = mgr.Verify(ctx, "Sunshine!234")
			} else {
				errs[i] = mgr.Verify(ctx, "wrong-guess")
			}
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if i%2 == 0 {
			require.NoError(t, err, "correct password must verify")
		} else {
			require.ErrorIs(t, err, ErrInvalidCredentials, "wrong password must be rejected")
		}
	}
}

// TestManager_VerifyDuringChange tests that verification racing a password
// change always sees a consistent credential: either the old or the new
// password verifies, never neither and never a panic.
func TestManager_VerifyDuringChange(t *testing.T) {
	ctx := context.Background()
	mgr := NewManager(&lockedPersistence{})
	require.NoError(t, mgr.Setup(ctx, "OldSecret1"))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		require.NoError(t, mgr.ChangePassword(ctx, "OldSecret1", "NewSecret2"))
	}()

	for i := 0; i < 16; i++ {
		oldErr := mgr.Verify(ctx, "OldSecret1")
		newErr := mgr.Verify(ctx, "NewSecret2")
		require.False(t, oldErr != nil && newErr != nil,
			"one of the two passwords must verify at every point")
	}
	wg.Wait()

	// After the change only the new password verifies.
	require.Error(t, mgr.Verify(ctx, "OldSecret1"))
	require.NoError(t, mgr.Verify(ctx, "NewSecret2"))
}

// TestManager_ConcurrentTOTPChecks tests enrollment state reads racing an
// enrollment.
func TestManager_ConcurrentTOTPChecks(t *testing.T) {
	ctx := context.Background()
	mgr := NewManager(&lockedPersistence{})
	require.NoError(t, mgr.Setup(ctx, "Sunshine!234"))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := mgr.EnrollTOTP(ctx, "Sunshine!234")
		require.NoError(t, err)
	}()

	for i := 0; i < 16; i++ {
		_, err := mgr.TOTPEnrolled(ctx)
		require.NoError(t, err)
	}
	wg.Wait()

	enrolled, err := mgr.TOTPEnrolled(ctx)
	require.NoError(t, err)
	require.True(t, enrolled)
}
