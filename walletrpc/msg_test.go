// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package walletrpc

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestNewRequest(t *testing.T) {
	if _, err := NewRequest(0, ConnectRoute, nil); err == nil {
		t.Fatalf("no error for the reserved id 0")
	}
	if _, err := NewRequest(1, "", nil); err == nil {
		t.Fatalf("no error for an empty route")
	}
	msg, err := NewRequest(5, PaymentsRoute, &PaymentsParams{Limit: 100, Offset: 200})
	if err != nil {
		t.Fatalf("NewRequest error: %v", err)
	}
	if msg.Type != Request || msg.ID != 5 || msg.Route != PaymentsRoute {
		t.Fatalf("bad request envelope: %+v", msg)
	}
	var params PaymentsParams
	if err := json.Unmarshal(msg.Payload, &params); err != nil {
		t.Fatalf("payload unmarshal error: %v", err)
	}
	if params.Limit != 100 || params.Offset != 200 {
		t.Fatalf("payload round trip: %+v", params)
	}
}

func TestUnmarshalResult(t *testing.T) {
	// A daemon error takes precedence over any payload.
	msg := &Message{
		Type:    Response,
		ID:      1,
		Payload: json.RawMessage(`{"payments":[]}`),
		Error:   &Error{Code: 12, Message: "session not bound"},
	}
	var res PaymentsResult
	err := msg.UnmarshalResult(&res)
	var rpcErr *Error
	if !errors.As(err, &rpcErr) || rpcErr.Code != 12 {
		t.Fatalf("wanted the daemon error, got %v", err)
	}

	// A nil result discards the payload without error.
	msg.Error = nil
	if err := msg.UnmarshalResult(nil); err != nil {
		t.Fatalf("UnmarshalResult(nil) error: %v", err)
	}
	if err := msg.UnmarshalResult(&res); err != nil {
		t.Fatalf("UnmarshalResult error: %v", err)
	}
	if res.Payments == nil {
		t.Fatalf("payments not decoded")
	}
}
