// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package core

import (
	"errors"
	"fmt"

	"flintwallet.org/flint/encrypt"
	"flintwallet.org/flint/wallet"
)

// StateManager keeps the durable wallet flags consistent with credential
// store truth. The store is the arbiter: a flag that disagrees with the store
// is wrong, not the store. Flags can drift from truth, e.g. a crash between
// the credential write and the flag write, so consistency is validated and
// repaired through explicit passes rather than silently on read.
type StateManager struct {
	log     wallet.Logger
	store   CredentialStore
	crypter encrypt.Crypter
	notify  func(Notification)
	// onReset clears session state cached outside the manager (wallet info
	// snapshot). Set by the composition root.
	onReset func()
}

// NewStateManager is the constructor for a StateManager.
func NewStateManager(store CredentialStore, crypter encrypt.Crypter,
	notify func(Notification), log wallet.Logger) *StateManager {

	return &StateManager{
		log:     log,
		store:   store,
		crypter: crypter,
		notify:  notify,
	}
}

// HasWallet reads the durable hasWallet flag. Read errors are logged and
// reported as false.
func (m *StateManager) HasWallet() bool {
	v, err := m.store.HasWallet()
	if err != nil {
		m.log.Errorf("hasWallet read error: %v", err)
	}
	return v
}

// IsLoggedIn reads the durable isLoggedIn flag. Read errors are logged and
// reported as false.
func (m *StateManager) IsLoggedIn() bool {
	v, err := m.store.IsLoggedIn()
	if err != nil {
		m.log.Errorf("isLoggedIn read error: %v", err)
	}
	return v
}

// SetHasWallet writes the durable hasWallet flag and notifies subscribers.
// All writers must go through this setter.
func (m *StateManager) SetHasWallet(v bool) error {
	if err := m.store.SetHasWallet(v); err != nil {
		return codedError(storeErr, err)
	}
	m.notify(newWalletStateNote("hasWallet", fmt.Sprintf("hasWallet = %t", v), Data))
	return nil
}

// SetIsLoggedIn writes the durable isLoggedIn flag and notifies subscribers.
// All writers must go through this setter.
func (m *StateManager) SetIsLoggedIn(v bool) error {
	if err := m.store.SetIsLoggedIn(v); err != nil {
		return codedError(storeErr, err)
	}
	m.notify(newWalletStateNote("isLoggedIn", fmt.Sprintf("isLoggedIn = %t", v), Data))
	return nil
}

// CheckWalletExists re-derives hasWallet from store truth and writes it back,
// healing a drifted flag on read.
func (m *StateManager) CheckWalletExists() (bool, error) {
	exists, err := m.store.Exists()
	if err != nil {
		return false, codedError(storeErr, err)
	}
	if exists != m.HasWallet() {
		m.log.Warnf("hasWallet flag drifted from store truth, correcting to %t", exists)
	}
	return exists, m.SetHasWallet(exists)
}

// ValidateWalletState checks the flags against credential store truth. The
// rules are evaluated in order and the first hit wins. A Warning result is
// non-fatal and does not justify rewriting flags: a valid session can
// legitimately hold an expired credential cache pending re-authentication.
func (m *StateManager) ValidateWalletState() (*Validation, error) {
	exists, err := m.store.Exists()
	if err != nil {
		return nil, codedError(storeErr, err)
	}
	hasWallet, isLoggedIn := m.HasWallet(), m.IsLoggedIn()

	switch {
	case hasWallet && !exists:
		return &Validation{
			Status: StateInconsistent,
			Reason: "hasWallet is set but no credential is stored",
		}, nil
	case exists && !hasWallet:
		return &Validation{
			Status: StateInconsistent,
			Reason: "a credential is stored but hasWallet is not set",
		}, nil
	case isLoggedIn && !hasWallet:
		return &Validation{
			Status: StateInconsistent,
			Reason: "isLoggedIn is set but hasWallet is not",
		}, nil
	case isLoggedIn && !m.store.IsCacheValid():
		return &Validation{
			Status: StateWarning,
			Reason: "logged in with an expired credential cache",
		}, nil
	}
	return &Validation{Status: StateValid}, nil
}

// RepairWalletState validates and, on an Inconsistent result, rewrites the
// flags from store truth: hasWallet follows credential existence, and a
// missing credential forces isLoggedIn off. Valid and Warning results are
// logged and left alone.
func (m *StateManager) RepairWalletState() (*Validation, error) {
	v, err := m.ValidateWalletState()
	if err != nil {
		return nil, err
	}
	if v.Status != StateInconsistent {
		m.log.Debugf("wallet state %s, nothing to repair", v.Status)
		return v, nil
	}

	m.log.Warnf("repairing inconsistent wallet state: %s", v.Reason)
	m.notify(newWalletStateNote("inconsistent state", v.Reason, WarningLevel))

	exists, err := m.store.Exists()
	if err != nil {
		return nil, codedError(storeErr, err)
	}
	if err := m.SetHasWallet(exists); err != nil {
		return nil, err
	}
	if !exists {
		if err := m.SetIsLoggedIn(false); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// ExportMnemonic performs an authenticated read of the recovery phrase. The
// store is checked for the credential directly, independent of the hasWallet
// flag.
func (m *StateManager) ExportMnemonic() (string, error) {
	exists, err := m.store.Exists()
	if err != nil {
		return "", codedError(storeErr, err)
	}
	if !exists {
		return "", newError(credentialNotFoundErr, "no wallet to export")
	}
	seed, err := m.store.Retrieve(m.crypter, "reveal your recovery phrase")
	if err != nil {
		if errors.Is(err, wallet.ErrAuthenticationFailed) {
			return "", codedError(authErr, err)
		}
		return "", codedError(exportErr, err)
	}
	return seed, nil
}

// DeleteWallet deletes the stored credential and then unconditionally resets
// the wallet state, whether or not the delete succeeded. A delete failure is
// propagated after the reset is attempted.
func (m *StateManager) DeleteWallet() error {
	delErr := m.store.Delete()
	if err := m.ResetWalletState(); err != nil {
		m.log.Errorf("error resetting wallet state during delete: %v", err)
	}
	if delErr != nil {
		return codedError(deleteErr, delErr)
	}
	return nil
}

// ResetWalletState zeroes both flags, the transient credential cache, and any
// session-cached wallet info.
func (m *StateManager) ResetWalletState() error {
	m.store.ClearCache()
	if m.onReset != nil {
		m.onReset()
	}
	if err := m.SetIsLoggedIn(false); err != nil {
		return err
	}
	return m.SetHasWallet(false)
}
