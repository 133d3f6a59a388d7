// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package core

import (
	"time"

	"flintwallet.org/flint/wallet"
)

// Severity indicates the level of required action for a notification.
type Severity uint8

const (
	// Data notifications convey internal state for the UI and are not meant
	// for direct display.
	Data Severity = iota
	// Poke notifications are informational and require no user action.
	Poke
	// WarningLevel notifications involve something that might need attention.
	WarningLevel
	// ErrorLevel notifications involve a failure that the user should see.
	ErrorLevel
)

// String satisfies fmt.Stringer.
func (s Severity) String() string {
	switch s {
	case Data:
		return "data"
	case Poke:
		return "poke"
	case WarningLevel:
		return "warning"
	case ErrorLevel:
		return "error"
	}
	return "unknown severity"
}

// Notification is an interface for a user notification.
type Notification interface {
	// Type is a string ID unique to the concrete type.
	Type() string
	// Subject is a short description of the notification contents.
	Subject() string
	// Details should contain more detailed information.
	Details() string
	// Severity is the notification severity.
	Severity() Severity
	// Time is the notification's UNIX timestamp, in milliseconds.
	Time() uint64
}

// note is the base Notification implementation embedded by the concrete note
// types.
type note struct {
	noteType string
	subject  string
	details  string
	severity Severity
	stamp    uint64
}

func newNote(noteType, subject, details string, severity Severity) note {
	return note{
		noteType: noteType,
		subject:  subject,
		details:  details,
		severity: severity,
		stamp:    uint64(time.Now().UnixMilli()),
	}
}

func (n note) Type() string       { return n.noteType }
func (n note) Subject() string    { return n.subject }
func (n note) Details() string    { return n.details }
func (n note) Severity() Severity { return n.severity }
func (n note) Time() uint64       { return n.stamp }

// ConnEventNote is a notification of a connection status transition. This is
// the session's event sink for UI connectivity indicators, so the UI does not
// need to poll.
type ConnEventNote struct {
	note
	Status wallet.ConnectionStatus `json:"status"`
}

func newConnEventNote(status wallet.ConnectionStatus) *ConnEventNote {
	return &ConnEventNote{
		note:   newNote("conn", "connection status", status.String(), Data),
		Status: status,
	}
}

// BalanceNote is a notification of a balance change.
type BalanceNote struct {
	note
	BalanceSat uint64 `json:"balanceSat"`
}

func newBalanceNote(balanceSat uint64) *BalanceNote {
	return &BalanceNote{
		note:       newNote("balance", "balance updated", "", Data),
		BalanceSat: balanceSat,
	}
}

// WalletStateNote is a notification of a flag change or a detected state
// inconsistency.
type WalletStateNote struct {
	note
}

func newWalletStateNote(subject, details string, severity Severity) *WalletStateNote {
	return &WalletStateNote{
		note: newNote("walletstate", subject, details, severity),
	}
}

// notify sends a notification to all subscribers.
func (c *Core) notify(n Notification) {
	c.noteMtx.RLock()
	for _, ch := range c.noteChans {
		select {
		case ch <- n:
		default:
			c.log.Errorf("blocking notification channel")
		}
	}
	c.noteMtx.RUnlock()
}

// NotificationFeed returns a new receiving channel for notifications. The
// channel has capacity 16, and should be monitored for the lifetime of the
// Core. Blocking channels are silently ignored.
func (c *Core) NotificationFeed() <-chan Notification {
	ch := make(chan Notification, 16)
	c.noteMtx.Lock()
	c.noteChans = append(c.noteChans, ch)
	c.noteMtx.Unlock()
	return ch
}
