// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package wallet

import "context"

// ConnectionStatus is the state of the session's connection to the backing
// wallet service. It is runtime-only state and is never persisted.
type ConnectionStatus uint8

const (
	// Disconnected means no connection to the wallet service is active.
	Disconnected ConnectionStatus = iota
	// Connecting means a connect attempt is in progress.
	Connecting
	// Syncing means the service accepted the connection and is synchronizing
	// chain and channel state.
	Syncing
	// Connected means the service is connected and synchronized.
	Connected
)

// String satisfies fmt.Stringer.
func (s ConnectionStatus) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Syncing:
		return "syncing"
	case Connected:
		return "connected"
	}
	return "unknown"
}

// Direction distinguishes sent from received payments.
type Direction uint8

const (
	// Send is an outgoing payment.
	Send Direction = iota
	// Receive is an incoming payment.
	Receive
)

// String satisfies fmt.Stringer.
func (d Direction) String() string {
	if d == Send {
		return "send"
	}
	return "receive"
}

// PaymentStatus is the payment lifecycle state as reported by the wallet
// service.
type PaymentStatus uint8

// Payment statuses, in rough lifecycle order.
const (
	StatusCreated PaymentStatus = iota
	StatusPending
	StatusComplete
	StatusFailed
	StatusTimedOut
	StatusRefundable
	StatusRefundPending
	StatusWaitingFeeAcceptance
)

var statusStrings = map[PaymentStatus]string{
	StatusCreated:              "created",
	StatusPending:              "pending",
	StatusComplete:             "complete",
	StatusFailed:               "failed",
	StatusTimedOut:             "timedOut",
	StatusRefundable:           "refundable",
	StatusRefundPending:        "refundPending",
	StatusWaitingFeeAcceptance: "waitingFeeAcceptance",
}

// String satisfies fmt.Stringer.
func (s PaymentStatus) String() string {
	if str, ok := statusStrings[s]; ok {
		return str
	}
	return "unknown"
}

// Payment is a single entry of the wallet's payment history. Amounts are in
// satoshis, the smallest Bitcoin unit.
type Payment struct {
	// ID is the payment's transaction ID, unique within a wallet.
	ID string `json:"id"`
	// Direction is send or receive.
	Direction Direction `json:"direction"`
	// AmountSat is the payment amount.
	AmountSat uint64 `json:"amountSat"`
	// FeeSat is the fee paid, zero for receives.
	FeeSat uint64 `json:"feeSat"`
	// Stamp is the payment's unix timestamp in seconds.
	Stamp uint64 `json:"stamp"`
	// Status is the payment lifecycle state.
	Status PaymentStatus `json:"status"`
	// Description is the optional invoice description.
	Description string `json:"description,omitempty"`
}

// Info is a snapshot of the wallet's aggregate state as reported by the
// wallet service.
type Info struct {
	// BalanceSat is the confirmed spendable balance.
	BalanceSat uint64 `json:"balanceSat"`
	// PendingReceiveSat is the sum of incoming amounts not yet confirmed.
	PendingReceiveSat uint64 `json:"pendingReceiveSat"`
	// PendingSendSat is the sum of outgoing amounts not yet settled.
	PendingSendSat uint64 `json:"pendingSendSat"`
	// Fingerprint identifies the wallet without revealing key material.
	Fingerprint string `json:"fingerprint"`
}

// PaymentFilter restricts a Payments query. A nil filter or zero field means
// no restriction.
type PaymentFilter struct {
	// Direction restricts results to one payment direction.
	Direction *Direction `json:"direction,omitempty"`
	// From is the earliest unix timestamp to include.
	From uint64 `json:"from,omitempty"`
	// To is the latest unix timestamp to include.
	To uint64 `json:"to,omitempty"`
}

// Service is the contract with the backing payment SDK. The session core
// never re-implements payment logic; routing, invoices and swaps live
// entirely behind this interface.
type Service interface {
	// Connect establishes the wallet session for the seed. Connect blocks
	// through initial sync or until the context is canceled.
	Connect(ctx context.Context, seed string) error
	// Disconnect tears down the wallet session.
	Disconnect() error
	// IsConnected reports whether a wallet session is active.
	IsConnected() bool
	// WalletInfo fetches the current wallet state snapshot.
	WalletInfo(ctx context.Context) (*Info, error)
	// Payments fetches a page of payment history, newest first.
	Payments(ctx context.Context, filter *PaymentFilter, limit, offset uint64) ([]*Payment, error)
}
