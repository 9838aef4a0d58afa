// Package event defines the envelope raised by the lifecycle manager and
// fanned out to realtime subscribers and webhooks. The JSON shape here is
// also the webhook wire format.
package event

import "time"

const (
	KindSessionStatus   = "session-status"
	KindQRGenerated     = "qr-generated"
	KindMessageReceived = "message-received"
	KindMessageFromMe   = "message-from-me"
	KindMessageAck      = "message-ack"
)

// Kinds lists every event kind a webhook can subscribe to.
func Kinds() []string {
	return []string{
		KindSessionStatus,
		KindQRGenerated,
		KindMessageReceived,
		KindMessageFromMe,
		KindMessageAck,
	}
}

// Known reports whether kind is a dispatchable event name.
func Known(kind string) bool {
	for _, k := range Kinds() {
		if k == kind {
			return true
		}
	}
	return false
}

type Event struct {
	Kind      string      `json:"event"`
	SessionID string      `json:"sessionId"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// SessionStatusData rides on session-status events.
type SessionStatusData struct {
	SessionID   string     `json:"sessionId"`
	Name        string     `json:"name"`
	Status      string     `json:"status"`
	Phone       string     `json:"phone,omitempty"`
	IsConnected bool       `json:"isConnected"`
	ConnectedAt *time.Time `json:"connectedAt,omitempty"`
	Reason      string     `json:"reason,omitempty"`
}

// QRGeneratedData rides on qr-generated events. The payload is opaque; the
// dashboard renders it as-is.
type QRGeneratedData struct {
	SessionID string `json:"sessionId"`
	QR        string `json:"qr"`
}

// MessageData rides on message-received and message-from-me events.
type MessageData struct {
	MessageID  string    `json:"messageId"`
	ExternalID string    `json:"externalId,omitempty"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	Content    string    `json:"content"`
	Type       string    `json:"type"`
	Status     string    `json:"status"`
	Timestamp  time.Time `json:"timestamp"`
}

// AckData rides on message-ack events after a delivery receipt advanced a
// stored message.
type AckData struct {
	ExternalID string `json:"externalId"`
	Status     string `json:"status"`
}
