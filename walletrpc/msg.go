// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

// Package walletrpc implements the websocket JSON-RPC client for the remote
// wallet daemon. It is the production wallet.Service.
package walletrpc

import (
	"encoding/json"
	"fmt"

	"flintwallet.org/flint/wallet"
)

// MessageType is the message type.
type MessageType uint8

const (
	// InvalidMessageType is the zero value for a MessageType.
	InvalidMessageType MessageType = iota
	// Request is a request message, with a response expected.
	Request
	// Response is a response to a Request.
	Response
	// Notification is a server-push message with no response expected.
	Notification
)

// Routes spoken by the wallet daemon.
const (
	// ConnectRoute binds the session to a wallet credential.
	ConnectRoute = "connect"
	// DisconnectRoute releases the session.
	DisconnectRoute = "disconnect"
	// WalletInfoRoute requests the wallet info snapshot.
	WalletInfoRoute = "walletinfo"
	// PaymentsRoute requests a page of payment history.
	PaymentsRoute = "payments"
)

// Error is a daemon-reported RPC error.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error satisfies the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Message is the wire envelope. Requests carry a route and an ID, responses
// echo the ID and carry either a payload or an error, notifications carry a
// route and no ID.
type Message struct {
	Type    MessageType     `json:"type"`
	Route   string          `json:"route,omitempty"`
	ID      uint64          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// NewRequest is a constructor for a request Message. The payload is
// marshaled to JSON.
func NewRequest(id uint64, route string, payload any) (*Message, error) {
	if id == 0 {
		return nil, fmt.Errorf("id = 0 is reserved")
	}
	if route == "" {
		return nil, fmt.Errorf("a request message needs a route")
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("payload marshal error: %w", err)
	}
	return &Message{
		Type:    Request,
		Route:   route,
		ID:      id,
		Payload: b,
	}, nil
}

// UnmarshalResult unmarshals the response payload into result, or returns
// the daemon's error if the response carries one.
func (msg *Message) UnmarshalResult(result any) error {
	if msg.Error != nil {
		return msg.Error
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(msg.Payload, result); err != nil {
		return fmt.Errorf("payload unmarshal error: %w", err)
	}
	return nil
}

// ConnectParams is the payload for a ConnectRoute request.
type ConnectParams struct {
	Seed string `json:"seed"`
}

// PaymentsParams is the payload for a PaymentsRoute request.
type PaymentsParams struct {
	Filter *wallet.PaymentFilter `json:"filter,omitempty"`
	Limit  uint64                `json:"limit"`
	Offset uint64                `json:"offset"`
}

// PaymentsResult is the payload of a PaymentsRoute response.
type PaymentsResult struct {
	Payments []*wallet.Payment `json:"payments"`
}
