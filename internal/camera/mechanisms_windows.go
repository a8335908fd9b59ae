// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

//go:build windows
// +build windows

// Windows camera enforcement surfaces.
//
// Windows gates camera access through the capability access manager consent
// store (system-wide and per-app) and through machine group policy. All three
// live in the registry; the consent store uses the string value "Deny"/"Allow"
// and group policy uses the AllowCamera DWORD.
package camera

import (
	"context"
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/windows"
	"golang.org/x/sys/windows/registry"
)

// =============================================================================
// REGISTRY PATHS
// =============================================================================

const (
	consentStorePath = `SOFTWARE\Microsoft\Windows\CurrentVersion\CapabilityAccessManager\ConsentStore\webcam`
	groupPolicyPath  = `SOFTWARE\Policies\Microsoft\Camera`

	consentValueName = "Value"
	consentDeny      = "Deny"
	consentAllow     = "Allow"

	allowCameraValueName = "AllowCamera"
)

// appConsentSubkeys are the per-app consent entries managed by the app
// consent mechanism: the built-in camera app and the bucket covering
// classic desktop applications.
var appConsentSubkeys = []string{
	`Microsoft.WindowsCamera_8wekyb3d8bbwe`,
	`NonPackaged`,
}

// PlatformMechanisms returns the full mechanism chain for Windows, in apply
// order. The lock file goes last: it records intent even when every
// registry surface is refused.
func PlatformMechanisms(mediaDir string) []Mechanism {
	return []Mechanism{
		&ConsentRegistryMechanism{},
		&AppConsentMechanism{},
		&GroupPolicyMechanism{},
		NewLockFileMechanism(mediaDir),
	}
}

// =============================================================================
// CONSENT REGISTRY MECHANISM
// =============================================================================

// ConsentRegistryMechanism toggles the system-wide webcam consent value in
// both the machine and user hives. The machine hive needs elevation; the
// user hive does not, so a non-elevated apply still takes partial effect.
type ConsentRegistryMechanism struct{}

// ID returns the mechanism identifier.
func (m *ConsentRegistryMechanism) ID() string { return MechanismConsentRegistry }

// Probe reports blocked if either hive denies the webcam.
func (m *ConsentRegistryMechanism) Probe(ctx context.Context) (State, error) {
	if err := ctx.Err(); err != nil {
		return StateUnknown, err
	}
	var sawValue bool
	for _, hive := range []registry.Key{registry.LOCAL_MACHINE, registry.CURRENT_USER} {
		value, err := readStringValue(hive, consentStorePath, consentValueName)
		if err != nil {
			continue
		}
		sawValue = true
		if value == consentDeny {
			return StateBlocked, nil
		}
	}
	if !sawValue {
		return StateUnknown, fmt.Errorf("webcam consent store not readable")
	}
	return StateUnblocked, nil
}

// Apply writes Deny/Allow to both hives. Succeeds if at least one hive takes
// the write; an elevation refusal on both maps to AdminRequiredError.
func (m *ConsentRegistryMechanism) Apply(ctx context.Context, block bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	value := consentAllow
	if block {
		value = consentDeny
	}

	var firstErr error
	applied := 0
	for _, hive := range []registry.Key{registry.LOCAL_MACHINE, registry.CURRENT_USER} {
		if err := writeStringValue(hive, consentStorePath, consentValueName, value); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		applied++
	}

	if applied == 0 {
		return wrapRegistryErr(m.ID(), firstErr)
	}
	return nil
}

// =============================================================================
// APP CONSENT MECHANISM
// =============================================================================

// AppConsentMechanism toggles per-app webcam consent in the user hive for
// the camera app and for non-packaged (classic desktop) applications.
type AppConsentMechanism struct{}

// ID returns the mechanism identifier.
func (m *AppConsentMechanism) ID() string { return MechanismAppConsent }

// Probe reports blocked if any managed app entry denies the webcam.
func (m *AppConsentMechanism) Probe(ctx context.Context) (State, error) {
	if err := ctx.Err(); err != nil {
		return StateUnknown, err
	}
	var sawValue bool
	for _, subkey := range appConsentSubkeys {
		path := consentStorePath + `\` + subkey
		value, err := readStringValue(registry.CURRENT_USER, path, consentValueName)
		if err != nil {
			continue
		}
		sawValue = true
		if value == consentDeny {
			return StateBlocked, nil
		}
	}
	if !sawValue {
		return StateUnknown, fmt.Errorf("app consent entries not readable")
	}
	return StateUnblocked, nil
}

// Apply writes Deny/Allow to every managed app entry, creating missing keys.
func (m *AppConsentMechanism) Apply(ctx context.Context, block bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	value := consentAllow
	if block {
		value = consentDeny
	}

	var firstErr error
	applied := 0
	for _, subkey := range appConsentSubkeys {
		path := consentStorePath + `\` + subkey
		if err := writeStringValue(registry.CURRENT_USER, path, consentValueName, value); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		applied++
	}

	if applied == 0 {
		return wrapRegistryErr(m.ID(), firstErr)
	}
	return nil
}

// =============================================================================
// GROUP POLICY MECHANISM
// =============================================================================

// GroupPolicyMechanism sets the machine camera policy. This is the strongest
// surface and always needs elevation.
type GroupPolicyMechanism struct{}

// ID returns the mechanism identifier.
func (m *GroupPolicyMechanism) ID() string { return MechanismGroupPolicy }

// Probe reports blocked when AllowCamera is explicitly 0. A missing policy
// key means no policy is set, which leaves the camera allowed.
func (m *GroupPolicyMechanism) Probe(ctx context.Context) (State, error) {
	if err := ctx.Err(); err != nil {
		return StateUnknown, err
	}
	k, err := registry.OpenKey(registry.LOCAL_MACHINE, groupPolicyPath, registry.QUERY_VALUE)
	if err != nil {
		if errors.Is(err, registry.ErrNotExist) {
			return StateUnblocked, nil
		}
		return StateUnknown, fmt.Errorf("failed to open camera policy key: %w", err)
	}
	defer k.Close()

	v, _, err := k.GetIntegerValue(allowCameraValueName)
	if err != nil {
		if errors.Is(err, registry.ErrNotExist) {
			return StateUnblocked, nil
		}
		return StateUnknown, fmt.Errorf("failed to read AllowCamera: %w", err)
	}
	if v == 0 {
		return StateBlocked, nil
	}
	return StateUnblocked, nil
}

// Apply sets AllowCamera to 0 (block) or 1 (unblock).
func (m *GroupPolicyMechanism) Apply(ctx context.Context, block bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	k, _, err := registry.CreateKey(registry.LOCAL_MACHINE, groupPolicyPath, registry.SET_VALUE)
	if err != nil {
		return wrapRegistryErr(m.ID(), fmt.Errorf("failed to open camera policy key: %w", err))
	}
	defer k.Close()

	var value uint32 = 1
	if block {
		value = 0
	}
	if err := k.SetDWordValue(allowCameraValueName, value); err != nil {
		return wrapRegistryErr(m.ID(), fmt.Errorf("failed to set AllowCamera: %w", err))
	}
	return nil
}

// =============================================================================
// REGISTRY HELPERS
// =============================================================================

func readStringValue(hive registry.Key, path, name string) (string, error) {
	k, err := registry.OpenKey(hive, path, registry.QUERY_VALUE)
	if err != nil {
		return "", err
	}
	defer k.Close()

	v, _, err := k.GetStringValue(name)
	return v, err
}

func writeStringValue(hive registry.Key, path, name, value string) error {
	k, _, err := registry.CreateKey(hive, path, registry.SET_VALUE)
	if err != nil {
		return err
	}
	defer k.Close()
	return k.SetStringValue(name, value)
}

// wrapRegistryErr maps access-denied registry failures to AdminRequiredError.
func wrapRegistryErr(mechanism string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, windows.ERROR_ACCESS_DENIED) || os.IsPermission(err) {
		return &AdminRequiredError{Mechanism: mechanism, Err: err}
	}
	return fmt.Errorf("%s: %w", mechanism, err)
}
