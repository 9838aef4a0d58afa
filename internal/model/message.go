package model

import "time"

type MessageType string

const (
	MessageText     MessageType = "text"
	MessageImage    MessageType = "image"
	MessageDocument MessageType = "document"
	MessageAudio    MessageType = "audio"
	MessageVideo    MessageType = "video"
)

// MessageStatus is the delivery state of a message. It only moves forward:
// pending -> sent -> delivered -> read, or to the terminal failed.
type MessageStatus string

const (
	MessagePending   MessageStatus = "pending"
	MessageSent      MessageStatus = "sent"
	MessageDelivered MessageStatus = "delivered"
	MessageRead      MessageStatus = "read"
	MessageFailed    MessageStatus = "failed"
)

// Rank orders statuses for the monotonic-forward rule. failed ranks above
// everything so it can terminate any in-flight message, and nothing ranks
// above it.
func (s MessageStatus) Rank() int {
	switch s {
	case MessagePending:
		return 0
	case MessageSent:
		return 1
	case MessageDelivered:
		return 2
	case MessageRead:
		return 3
	case MessageFailed:
		return 9
	}
	return -1
}

// CanAdvanceTo reports whether status may move from s to next.
func (s MessageStatus) CanAdvanceTo(next MessageStatus) bool {
	if s == MessageFailed {
		return false
	}
	return next.Rank() > s.Rank()
}

// AckStatus maps a driver ack level to the message status it confirms.
// Unknown positive levels are dropped by the caller (ok == false).
func AckStatus(level int) (MessageStatus, bool) {
	switch {
	case level < 0:
		return MessageFailed, true
	case level == 1:
		return MessageSent, true
	case level == 2:
		return MessageDelivered, true
	case level == 3:
		return MessageRead, true
	}
	return "", false
}

// Message is one inbound or outbound message tied to a session by id.
// ExternalID correlates it to the driver's own message id so out-of-band
// acks can find it later.
type Message struct {
	ID         string        `json:"id"`
	SessionID  string        `json:"sessionId"`
	From       string        `json:"from"`
	To         string        `json:"to"`
	Content    string        `json:"content"`
	Type       MessageType   `json:"type"`
	Status     MessageStatus `json:"status"`
	Timestamp  time.Time     `json:"timestamp"`
	ExternalID string        `json:"messageId,omitempty"`
}
