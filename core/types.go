// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package core

import (
	"context"
	"sync"
	"time"

	"flintwallet.org/flint/encrypt"
	"flintwallet.org/flint/wallet"
)

// CredentialStore is the secure, durable home of the wallet credential and
// the wallet flags. *credstore.Store is the production implementation. The
// durable store is always the source of truth for credential existence.
type CredentialStore interface {
	// Exists reports whether a credential is stored.
	Exists() (bool, error)
	// StoreSeed encrypts and stores the seed, overwriting any previous
	// credential.
	StoreSeed(crypter encrypt.Crypter, seed string) error
	// Retrieve performs an authenticated read of the credential.
	Retrieve(crypter encrypt.Crypter, reason string) (string, error)
	// Delete removes the stored credential.
	Delete() error
	// CacheTransiently stores the plaintext seed in a short-lived in-memory
	// cache.
	CacheTransiently(seed string)
	// RetrieveCached returns the cached seed if the cache is still valid.
	RetrieveCached() (string, error)
	// IsCacheValid reports whether the transient cache is inside its
	// validity window.
	IsCacheValid() bool
	// ClearCache zeroes and discards the transient cache.
	ClearCache()
	// HasWallet reads the durable hasWallet flag.
	HasWallet() (bool, error)
	// SetHasWallet writes the durable hasWallet flag.
	SetHasWallet(bool) error
	// IsLoggedIn reads the durable isLoggedIn flag.
	IsLoggedIn() (bool, error)
	// SetIsLoggedIn writes the durable isLoggedIn flag.
	SetIsLoggedIn(bool) error
	// KeyParams returns the serialized encryption key parameters, or nil.
	KeyParams() ([]byte, error)
	// SetKeyParams stores the serialized encryption key parameters.
	SetKeyParams([]byte) error
}

// CurrencySelector is the side-channel for the wallet-scoped fiat currency
// selection. The session only ever clears it, when the underlying wallet
// changes or the session ends.
type CurrencySelector interface {
	Clear()
}

// noCurrency is the default CurrencySelector.
type noCurrency struct{}

func (noCurrency) Clear() {}

// ValidationStatus grades the consistency of the durable wallet flags against
// credential store truth.
type ValidationStatus uint8

const (
	// StateValid means flags and store agree.
	StateValid ValidationStatus = iota
	// StateWarning means a non-fatal oddity was found. A warning never
	// rewrites flags.
	StateWarning
	// StateInconsistent means the flags contradict store truth and a repair
	// is needed.
	StateInconsistent
)

// String satisfies fmt.Stringer.
func (s ValidationStatus) String() string {
	switch s {
	case StateValid:
		return "valid"
	case StateWarning:
		return "warning"
	case StateInconsistent:
		return "inconsistent"
	}
	return "unknown"
}

// Validation is the result of a wallet state consistency check. Validation is
// computed on demand and never persisted.
type Validation struct {
	Status ValidationStatus `json:"status"`
	Reason string           `json:"reason,omitempty"`
}

// AmountStatus grades a proposed payment amount.
type AmountStatus uint8

const (
	// AmountValid means the amount is payable with the current balance.
	AmountValid AmountStatus = iota
	// AmountInvalid means the amount violates a static rule (zero, or
	// outside the configured limits).
	AmountInvalid
	// AmountInsufficient means the balance cannot cover amount plus fee.
	AmountInsufficient
)

// AmountValidation is the result of a payment amount check.
type AmountValidation struct {
	Status AmountStatus `json:"status"`
	Reason string       `json:"reason,omitempty"`
}

// SessionState is a snapshot of the session for a consuming UI, in the
// fashion of a read-only view model.
type SessionState struct {
	Status       wallet.ConnectionStatus `json:"status"`
	HasWallet    bool                    `json:"hasWallet"`
	IsLoggedIn   bool                    `json:"isLoggedIn"`
	BalanceSat   uint64                  `json:"balanceSat"`
	PaymentCount int                     `json:"paymentCount"`
	WalletInfo   *wallet.Info            `json:"walletInfo,omitempty"`
}

// refresher runs a periodic refresh function on its own goroutine. Start
// replaces any running loop, so restarting is idempotent. The loop is bound
// to the context given to start and is stopped deterministically by stop, so
// no callbacks can fire into a torn-down session.
type refresher struct {
	mtx    sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// start launches the refresh loop, replacing any existing one. The tick
// function runs every interval until stop is called or the parent context is
// canceled.
func (r *refresher) start(ctx context.Context, interval time.Duration, tick func(context.Context)) {
	r.stop()
	ctx, cancel := context.WithCancel(ctx)
	r.mtx.Lock()
	r.cancel = cancel
	r.mtx.Unlock()
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				tick(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// stop terminates the refresh loop and waits for the in-flight tick, if any.
// Calling stop when no loop is running is a no-op.
func (r *refresher) stop() {
	r.mtx.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.mtx.Unlock()
	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
}
