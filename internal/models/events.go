package models

import "encoding/json"

// StatusUpdate is the discriminated-union payload published on
// job:<id>:updates and forwarded to stream subscribers. Producers and
// consumers agree on the tag field name "status": a bare transition to
// processing carries no result/error, a completed transition carries
// Result, a failed transition carries Error.
type StatusUpdate struct {
	Type   string  `json:"type"` // always "status_update"
	Status Status  `json:"status"`
	Result *Result `json:"result,omitempty"`
	Error  string  `json:"error,omitempty"`
	Ts     int64   `json:"ts"`
}

// NewStatusUpdate builds a StatusUpdate tagged for the wire.
func NewStatusUpdate(status Status, ts int64) StatusUpdate {
	return StatusUpdate{Type: "status_update", Status: status, Ts: ts}
}

// WSMessage is the envelope for every inbound/outbound frame on a stream
// connection. Inbound, only Type=="ping" is honored. Outbound, Type is one
// of "status_update", "pong", "error".
type WSMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// PongMessage is the server's reply to a client ping.
type PongMessage struct {
	Type      string `json:"type"` // "pong"
	Timestamp int64  `json:"timestamp"`
}

// ErrorMessage is sent on the stream when a server-side error occurs
// without closing the connection outright.
type ErrorMessage struct {
	Type    string `json:"type"` // "error"
	Message string `json:"message"`
}
