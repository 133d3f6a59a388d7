// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"flintwallet.org/flint/wallet"
)

const (
	// defaultBalanceInterval is the period of the balance refresh loop.
	defaultBalanceInterval = 30 * time.Second
	// defaultMinPaymentSat is the smallest payment amount accepted by
	// ValidatePaymentAmount.
	defaultMinPaymentSat = 1
	// defaultMaxPaymentSat is the largest payment amount accepted by
	// ValidatePaymentAmount. 0.25 BTC.
	defaultMaxPaymentSat = 25_000_000
)

// BalanceManager maintains a best-effort view of the wallet balance and
// exposes balance-aware validation for proposed payments. The balance is
// session state only, refetched on reconnect.
type BalanceManager struct {
	log    wallet.Logger
	svc    wallet.Service
	notify func(Notification)

	interval      time.Duration
	minPaymentSat uint64
	maxPaymentSat uint64

	loop refresher

	mtx        sync.RWMutex
	balanceSat uint64
	lastErr    error
}

// BalanceConfig adjusts a BalanceManager's refresh period and payment
// limits. The zero value selects the defaults.
type BalanceConfig struct {
	Interval      time.Duration
	MinPaymentSat uint64
	MaxPaymentSat uint64
}

// NewBalanceManager is the constructor for a BalanceManager.
func NewBalanceManager(svc wallet.Service, cfg *BalanceConfig, notify func(Notification), log wallet.Logger) *BalanceManager {
	if cfg == nil {
		cfg = &BalanceConfig{}
	}
	interval := cfg.Interval
	if interval == 0 {
		interval = defaultBalanceInterval
	}
	minSat := cfg.MinPaymentSat
	if minSat == 0 {
		minSat = defaultMinPaymentSat
	}
	maxSat := cfg.MaxPaymentSat
	if maxSat == 0 {
		maxSat = defaultMaxPaymentSat
	}
	return &BalanceManager{
		log:           log,
		svc:           svc,
		notify:        notify,
		interval:      interval,
		minPaymentSat: minSat,
		maxPaymentSat: maxSat,
	}
}

// BalanceSat returns the last known balance.
func (m *BalanceManager) BalanceSat() uint64 {
	m.mtx.RLock()
	defer m.mtx.RUnlock()
	return m.balanceSat
}

// Err returns the error recorded by the last failed refresh, or nil if the
// last refresh succeeded.
func (m *BalanceManager) Err() error {
	m.mtx.RLock()
	defer m.mtx.RUnlock()
	return m.lastErr
}

// UpdateBalance refreshes the balance from the wallet service. Calling while
// disconnected is a silent no-op, not an error. A query failure preserves the
// last known balance and records the error; it never zeroes the balance.
func (m *BalanceManager) UpdateBalance(ctx context.Context) error {
	if !m.svc.IsConnected() {
		m.log.Tracef("skipping balance update while disconnected")
		return nil
	}
	info, err := m.svc.WalletInfo(ctx)
	if err != nil {
		cerr := newError(balanceRefreshErr, "balance refresh error: %w", err)
		m.mtx.Lock()
		m.lastErr = cerr
		m.mtx.Unlock()
		m.log.Errorf("balance refresh failed, keeping %d sat: %v", m.BalanceSat(), err)
		return cerr
	}

	m.mtx.Lock()
	changed := m.balanceSat != info.BalanceSat
	m.balanceSat = info.BalanceSat
	m.lastErr = nil
	m.mtx.Unlock()
	if changed {
		m.notify(newBalanceNote(info.BalanceSat))
	}
	return nil
}

// StartBalanceUpdates begins the periodic balance refresh. Starting replaces
// any running loop. Starting while disconnected is refused.
func (m *BalanceManager) StartBalanceUpdates(ctx context.Context) error {
	if !m.svc.IsConnected() {
		return newError(notConnectedErr, "cannot start balance updates while disconnected")
	}
	m.loop.start(ctx, m.interval, func(ctx context.Context) {
		m.UpdateBalance(ctx)
	})
	m.log.Debugf("balance updates started, period %s", m.interval)
	return nil
}

// StopBalanceUpdates stops the periodic refresh. A no-op if not running.
func (m *BalanceManager) StopBalanceUpdates() {
	m.loop.stop()
}

// HasSufficientBalance reports whether the current balance covers the
// amount.
func (m *BalanceManager) HasSufficientBalance(amountSat uint64) bool {
	return amountSat <= m.BalanceSat()
}

// AvailableBalance returns the balance spendable above the fee reserve, floor
// zero.
func (m *BalanceManager) AvailableBalance(feeReserveSat uint64) uint64 {
	balance := m.BalanceSat()
	if balance < feeReserveSat {
		return 0
	}
	return balance - feeReserveSat
}

// ValidatePaymentAmount grades a proposed payment against the current
// balance and the configured limits. Checks run in a fixed order: a zero
// amount is invalid regardless of balance, then coverage of amount plus
// estimated fee, then the maximum, then the minimum.
func (m *BalanceManager) ValidatePaymentAmount(amountSat, estimatedFeeSat uint64) *AmountValidation {
	if amountSat == 0 {
		return &AmountValidation{Status: AmountInvalid, Reason: "amount must be greater than zero"}
	}
	balance := m.BalanceSat()
	total := amountSat + estimatedFeeSat
	if total < amountSat { // uint64 overflow
		return &AmountValidation{
			Status: AmountInsufficient,
			Reason: "amount plus fee is out of range",
		}
	}
	if total > balance {
		return &AmountValidation{
			Status: AmountInsufficient,
			Reason: fmt.Sprintf("insufficient balance: %d sat needed, %d sat available, short %d sat",
				total, balance, total-balance),
		}
	}
	if amountSat > m.maxPaymentSat {
		return &AmountValidation{
			Status: AmountInvalid,
			Reason: fmt.Sprintf("amount exceeds the %d sat maximum", m.maxPaymentSat),
		}
	}
	if amountSat < m.minPaymentSat {
		return &AmountValidation{
			Status: AmountInvalid,
			Reason: fmt.Sprintf("amount is below the %d sat minimum", m.minPaymentSat),
		}
	}
	return &AmountValidation{Status: AmountValid}
}

// ResetBalance zeroes the balance, clears the recorded error and stops the
// refresh loop. For logout and wallet reset only.
func (m *BalanceManager) ResetBalance() {
	m.loop.stop()
	m.mtx.Lock()
	m.balanceSat = 0
	m.lastErr = nil
	m.mtx.Unlock()
}
