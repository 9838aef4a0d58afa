// Package driver defines the connection driver contract: the opaque handle
// that performs the actual handshake and transport with the remote
// messaging service. Driver events arrive on an explicit channel per
// session so the manager's state machine can be fed deterministically.
package driver

import (
	"context"
	"time"

	"gowa-hub/internal/model"
)

type EventKind string

const (
	EventQR           EventKind = "qr"
	EventReady        EventKind = "ready"
	EventAuthFailure  EventKind = "auth_failure"
	EventDisconnected EventKind = "disconnected"
	EventMessage      EventKind = "message"
	EventMessageAck   EventKind = "message_ack"
)

// Event is one asynchronous notification from a driver. Only the fields for
// its kind are set.
type Event struct {
	Kind        EventKind
	QR          string   // EventQR: opaque pairing payload
	Phone       string   // EventReady: account identity
	Credentials string   // EventReady: key for re-binding stored credentials
	Reason      string   // EventAuthFailure / EventDisconnected
	Message     *Inbound // EventMessage
	Ack         *Ack     // EventMessageAck
}

// Inbound is a message received by the remote service.
type Inbound struct {
	ExternalID string
	From       string
	To         string
	Content    string
	Type       model.MessageType
	Timestamp  time.Time
}

// Ack is a delivery-confirmation receipt for an outbound message.
type Ack struct {
	ExternalID string
	Level      int
}

// Driver is one live binding to the remote service. Initialize may block
// for the whole handshake; SendMessage returns the driver's own message id.
// Logout unlinks the account and removes its on-disk credential artifacts;
// Destroy only tears the handle down, credentials survive for a later
// re-bind.
type Driver interface {
	Initialize(ctx context.Context, credentialsKey string) error
	SendMessage(ctx context.Context, to, content string, msgType model.MessageType) (string, error)
	Logout(ctx context.Context) error
	Destroy(ctx context.Context) error
}

// Factory creates one isolated driver per session. Events emitted by the
// driver go to the given channel; the factory must never share a binding
// between sessions.
type Factory interface {
	New(sessionID string, events chan<- Event) (Driver, error)
}
