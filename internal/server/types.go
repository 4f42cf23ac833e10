// Package server defines the wire envelope exchanged with clients and utility
// helpers that are reused across client and hub logic.
package server

import (
	"encoding/json"
	"strings"
)

// Envelope is the JSON frame carried by every websocket text message in
// both directions. Data holds the event-specific payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// inboundEvent is a decoded client frame waiting for the hub loop.
type inboundEvent struct {
	client   *Client
	envelope Envelope
}

// encodeEnvelope marshals an outbound event.
func encodeEnvelope(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
