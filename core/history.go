// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package core

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"flintwallet.org/flint/wallet"
)

const (
	// historyPageSize is the number of payments requested per page.
	historyPageSize = 100
	// defaultHistoryInterval is the period of the payment history refresh
	// loop.
	defaultHistoryInterval = time.Minute
)

// TransactionManager maintains an in-memory cache of the wallet's payment
// history, ordered by timestamp descending and deduplicated by payment ID.
// The cache is owned exclusively by the manager; query helpers return copies.
type TransactionManager struct {
	log    wallet.Logger
	svc    wallet.Service
	notify func(Notification)

	interval time.Duration
	loop     refresher

	// loading guards LoadMorePayments against overlapping page fetches.
	loading atomic.Bool

	mtx      sync.RWMutex
	payments []*wallet.Payment
	lastErr  error
}

// NewTransactionManager is the constructor for a TransactionManager. A zero
// interval selects the default refresh period.
func NewTransactionManager(svc wallet.Service, interval time.Duration, notify func(Notification), log wallet.Logger) *TransactionManager {
	if interval == 0 {
		interval = defaultHistoryInterval
	}
	return &TransactionManager{
		log:      log,
		svc:      svc,
		notify:   notify,
		interval: interval,
	}
}

// Err returns the error recorded by the last failed load, or nil.
func (m *TransactionManager) Err() error {
	m.mtx.RLock()
	defer m.mtx.RUnlock()
	return m.lastErr
}

// Count returns the number of cached payments.
func (m *TransactionManager) Count() int {
	m.mtx.RLock()
	defer m.mtx.RUnlock()
	return len(m.payments)
}

// Payments returns a copy of the cached payment history, newest first.
func (m *TransactionManager) Payments() []*wallet.Payment {
	m.mtx.RLock()
	defer m.mtx.RUnlock()
	ps := make([]*wallet.Payment, len(m.payments))
	copy(ps, m.payments)
	return ps
}

// LoadPaymentHistory fetches the first page of payment history and replaces
// the cache. A fetch failure leaves the previous cache untouched and records
// the error.
func (m *TransactionManager) LoadPaymentHistory(ctx context.Context) error {
	page, err := m.svc.Payments(ctx, nil, historyPageSize, 0)
	if err != nil {
		cerr := newError(historyLoadErr, "payment history load error: %w", err)
		m.mtx.Lock()
		m.lastErr = cerr
		m.mtx.Unlock()
		m.log.Errorf("payment history load failed, keeping %d cached payments: %v", m.Count(), err)
		return cerr
	}
	m.mtx.Lock()
	m.payments = dedupeAndSort(page)
	m.lastErr = nil
	m.mtx.Unlock()
	return nil
}

// LoadMorePayments fetches the next page, using the current cache length as
// the offset, and appends it to the cache. A load already in progress makes
// this a no-op. The full cache is re-sorted after the append; O(n log n) per
// page is accepted over an incremental merge for simplicity.
func (m *TransactionManager) LoadMorePayments(ctx context.Context) error {
	if !m.loading.CompareAndSwap(false, true) {
		m.log.Tracef("skipping page load, one is already running")
		return nil
	}
	defer m.loading.Store(false)

	offset := uint64(m.Count())
	page, err := m.svc.Payments(ctx, nil, historyPageSize, offset)
	if err != nil {
		cerr := newError(historyLoadErr, "payment page load error: %w", err)
		m.mtx.Lock()
		m.lastErr = cerr
		m.mtx.Unlock()
		return cerr
	}
	m.mtx.Lock()
	m.payments = dedupeAndSort(append(m.payments, page...))
	m.lastErr = nil
	m.mtx.Unlock()
	return nil
}

// HasMorePayments is a heuristic: more pages are assumed to exist while the
// cache holds a whole number of full pages. The wallet service reports no
// total count or cursor, so an exact answer is not possible; a cache that
// ends exactly on a page boundary yields a false positive.
func (m *TransactionManager) HasMorePayments() bool {
	n := m.Count()
	return n > 0 && n%historyPageSize == 0
}

// StartPaymentUpdates begins the periodic history refresh. Starting replaces
// any running loop.
func (m *TransactionManager) StartPaymentUpdates(ctx context.Context) error {
	if !m.svc.IsConnected() {
		return newError(notConnectedErr, "cannot start payment updates while disconnected")
	}
	m.loop.start(ctx, m.interval, func(ctx context.Context) {
		m.LoadPaymentHistory(ctx)
	})
	m.log.Debugf("payment updates started, period %s", m.interval)
	return nil
}

// StopPaymentUpdates stops the periodic refresh. A no-op if not running.
func (m *TransactionManager) StopPaymentUpdates() {
	m.loop.stop()
}

// PaymentsByDirection returns the cached payments with the specified
// direction, newest first.
func (m *TransactionManager) PaymentsByDirection(dir wallet.Direction) []*wallet.Payment {
	m.mtx.RLock()
	defer m.mtx.RUnlock()
	var ps []*wallet.Payment
	for _, p := range m.payments {
		if p.Direction == dir {
			ps = append(ps, p)
		}
	}
	return ps
}

// PaymentsBetween returns the cached payments with from <= Stamp <= to,
// newest first.
func (m *TransactionManager) PaymentsBetween(from, to uint64) []*wallet.Payment {
	m.mtx.RLock()
	defer m.mtx.RUnlock()
	var ps []*wallet.Payment
	for _, p := range m.payments {
		if p.Stamp >= from && p.Stamp <= to {
			ps = append(ps, p)
		}
	}
	return ps
}

// FindPayment returns the cached payment with the transaction ID, or nil.
func (m *TransactionManager) FindPayment(id string) *wallet.Payment {
	m.mtx.RLock()
	defer m.mtx.RUnlock()
	for _, p := range m.payments {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// TotalAmount sums the cached payment amounts with the specified direction.
func (m *TransactionManager) TotalAmount(dir wallet.Direction) uint64 {
	m.mtx.RLock()
	defer m.mtx.RUnlock()
	var total uint64
	for _, p := range m.payments {
		if p.Direction == dir {
			total += p.AmountSat
		}
	}
	return total
}

// AverageAmount averages the cached payment amounts with the specified
// direction, zero when there are none.
func (m *TransactionManager) AverageAmount(dir wallet.Direction) uint64 {
	m.mtx.RLock()
	defer m.mtx.RUnlock()
	var total, n uint64
	for _, p := range m.payments {
		if p.Direction == dir {
			total += p.AmountSat
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return total / n
}

// ClearPaymentHistory empties the cache, clears the recorded error and stops
// the refresh loop. For logout and wallet reset only.
func (m *TransactionManager) ClearPaymentHistory() {
	m.loop.stop()
	m.mtx.Lock()
	m.payments = nil
	m.lastErr = nil
	m.mtx.Unlock()
}

// dedupeAndSort drops duplicate payment IDs, keeping the first occurrence,
// and orders the result newest first with the payment ID as tiebreaker.
func dedupeAndSort(ps []*wallet.Payment) []*wallet.Payment {
	seen := make(map[string]bool, len(ps))
	deduped := make([]*wallet.Payment, 0, len(ps))
	for _, p := range ps {
		if seen[p.ID] {
			continue
		}
		seen[p.ID] = true
		deduped = append(deduped, p)
	}
	sort.SliceStable(deduped, func(i, j int) bool {
		if deduped[i].Stamp != deduped[j].Stamp {
			return deduped[i].Stamp > deduped[j].Stamp
		}
		return deduped[i].ID < deduped[j].ID
	})
	return deduped
}
