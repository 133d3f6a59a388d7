// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package core

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"flintwallet.org/flint/encrypt"
	"flintwallet.org/flint/mnemonic"
	"flintwallet.org/flint/wallet"
)

// ConnectionManager drives the connect lifecycle for the wallet session. It
// owns credential acquisition and generation, and guards initialization
// against concurrent re-entry. The connection status is runtime-only state.
type ConnectionManager struct {
	log      wallet.Logger
	svc      wallet.Service
	store    CredentialStore
	crypter  encrypt.Crypter
	currency CurrencySelector
	notify   func(Notification)
	// onDisconnect stops the dependent refresh subscriptions. Set by the
	// composition root.
	onDisconnect func()

	// initializing single-flights InitializeWallet and ImportWallet.
	// Concurrent callers are rejected, not queued.
	initializing atomic.Bool

	mtx     sync.RWMutex
	status  wallet.ConnectionStatus
	lastErr error
}

// NewConnectionManager is the constructor for a ConnectionManager.
func NewConnectionManager(svc wallet.Service, store CredentialStore, crypter encrypt.Crypter,
	currency CurrencySelector, notify func(Notification), log wallet.Logger) *ConnectionManager {

	if currency == nil {
		currency = noCurrency{}
	}
	return &ConnectionManager{
		log:      log,
		svc:      svc,
		store:    store,
		crypter:  crypter,
		currency: currency,
		notify:   notify,
	}
}

// Status returns the current connection status.
func (m *ConnectionManager) Status() wallet.ConnectionStatus {
	m.mtx.RLock()
	defer m.mtx.RUnlock()
	return m.status
}

// IsConnected is true when the session is connected and synchronized.
func (m *ConnectionManager) IsConnected() bool {
	return m.Status() == wallet.Connected
}

// LastError returns the error recorded by the most recent failed connect
// sequence, or nil.
func (m *ConnectionManager) LastError() error {
	m.mtx.RLock()
	defer m.mtx.RUnlock()
	return m.lastErr
}

// setStatus transitions the connection status and reports the transition to
// the notification feed.
func (m *ConnectionManager) setStatus(status wallet.ConnectionStatus) {
	m.mtx.Lock()
	if m.status == status {
		m.mtx.Unlock()
		return
	}
	m.status = status
	m.mtx.Unlock()
	m.log.Debugf("connection status -> %s", status)
	m.notify(newConnEventNote(status))
}

func (m *ConnectionManager) setLastErr(err error) {
	m.mtx.Lock()
	m.lastErr = err
	m.mtx.Unlock()
}

// InitializeWallet begins a wallet session. If a credential exists in the
// store it is retrieved with an authenticated read, otherwise a new
// credential is generated from fresh entropy and stored. Either path then
// connects to the wallet service. InitializeWallet is single-flighted; a
// concurrent call fails immediately with a coded error and triggers no
// connection attempt. Failures are not retried internally.
func (m *ConnectionManager) InitializeWallet(ctx context.Context) error {
	if !m.initializing.CompareAndSwap(false, true) {
		m.log.Warnf("rejecting re-entrant wallet initialization")
		return newError(alreadyInitializingErr, "wallet initialization already in progress")
	}
	defer m.initializing.Store(false)

	exists, err := m.store.Exists()
	if err != nil {
		return codedError(storeErr, err)
	}

	var seed string
	if exists {
		seed, err = m.store.Retrieve(m.crypter, "unlock your wallet")
		if err != nil {
			err = retrieveError(err)
			m.setLastErr(err)
			return err
		}
	} else {
		seed, err = mnemonic.New()
		if err != nil {
			err = newError(credentialGenErr, "credential generation error: %w", err)
			m.setLastErr(err)
			return err
		}
		if err := m.store.StoreSeed(m.crypter, seed); err != nil {
			err = newError(storeErr, "error storing new credential: %w", err)
			m.setLastErr(err)
			return err
		}
		m.log.Infof("generated and stored a new wallet credential")
	}

	return m.connectToWallet(ctx, seed)
}

// ImportWallet replaces the stored credential with a user-supplied recovery
// phrase and connects. The candidate is normalized and validated before any
// side effect; invalid input is rejected with no changes to storage. A
// successful import clears the currency selection tied to the previous
// wallet. ImportWallet shares InitializeWallet's single-flight guard.
func (m *ConnectionManager) ImportWallet(ctx context.Context, words string) error {
	if !m.initializing.CompareAndSwap(false, true) {
		m.log.Warnf("rejecting wallet import during active initialization")
		return newError(alreadyInitializingErr, "wallet initialization already in progress")
	}
	defer m.initializing.Store(false)

	seed := mnemonic.Normalize(words)
	if err := mnemonic.Validate(seed); err != nil {
		return codedError(invalidCredentialErr, err)
	}

	if err := m.store.StoreSeed(m.crypter, seed); err != nil {
		return newError(storeErr, "error storing imported credential: %w", err)
	}
	m.currency.Clear()

	return m.connectToWallet(ctx, seed)
}

// InitializeFromCache is the fast path that skips the authenticated read by
// using the transiently cached credential. Returns false without error when
// the cache is absent or expired, letting the caller fall back to
// InitializeWallet. A connect failure on a valid cached credential is
// returned alongside ok = true.
func (m *ConnectionManager) InitializeFromCache(ctx context.Context) (bool, error) {
	if !m.initializing.CompareAndSwap(false, true) {
		return false, newError(alreadyInitializingErr, "wallet initialization already in progress")
	}
	defer m.initializing.Store(false)

	seed, err := m.store.RetrieveCached()
	if err != nil {
		m.log.Debugf("no valid cached credential: %v", err)
		return false, nil
	}
	return true, m.connectToWallet(ctx, seed)
}

// Disconnect tears down the wallet session. Disconnecting when already
// disconnected is a no-op. Dependent refresh subscriptions are stopped.
func (m *ConnectionManager) Disconnect() {
	if m.Status() == wallet.Disconnected {
		return
	}
	if m.onDisconnect != nil {
		m.onDisconnect()
	}
	if err := m.svc.Disconnect(); err != nil {
		// The session is considered disconnected regardless.
		m.log.Errorf("wallet service disconnect error: %v", err)
	}
	m.setStatus(wallet.Disconnected)
}

// connectToWallet runs the connect sequence: Connecting -> service connect ->
// Syncing -> Connected. Any failure transitions back to Disconnected, records
// a typed error, and propagates it. On success the credential is cached
// transiently for fast reconnects.
func (m *ConnectionManager) connectToWallet(ctx context.Context, seed string) error {
	m.setStatus(wallet.Connecting)
	if err := m.svc.Connect(ctx, seed); err != nil {
		m.setStatus(wallet.Disconnected)
		cerr := newError(connectErr, "wallet service connect error: %w", err)
		m.setLastErr(cerr)
		return cerr
	}
	m.setStatus(wallet.Syncing)
	m.store.CacheTransiently(seed)
	m.setStatus(wallet.Connected)
	m.setLastErr(nil)
	return nil
}

// retrieveError converts a credential store retrieval error to a coded error.
func retrieveError(err error) error {
	switch {
	case errors.Is(err, wallet.ErrNotFound):
		return codedError(credentialNotFoundErr, err)
	case errors.Is(err, wallet.ErrAuthenticationFailed):
		return codedError(authErr, err)
	}
	return codedError(storeErr, err)
}
