package model

import "time"

// SessionStatus is the lifecycle state of one account connection.
type SessionStatus string

const (
	StatusInitializing SessionStatus = "initializing"
	StatusQRReady      SessionStatus = "qr_ready"
	StatusConnected    SessionStatus = "connected"
	StatusDisconnected SessionStatus = "disconnected"
	StatusAuthFailure  SessionStatus = "auth_failure"
)

// Session is one logical account login. The lifecycle manager owns the
// in-memory copy; the store holds the durable projection.
type Session struct {
	ID             string        `json:"id"`
	Name           string        `json:"name"`
	Status         SessionStatus `json:"status"`
	QRPayload      string        `json:"qrPayload,omitempty"`
	Phone          string        `json:"phone,omitempty"`
	CredentialsKey string        `json:"-"`
	LastError      string        `json:"lastError,omitempty"`
	CreatedAt      time.Time     `json:"createdAt"`
	ConnectedAt    *time.Time    `json:"connectedAt,omitempty"`
	LastActivityAt time.Time     `json:"lastActivityAt"`
}

// IsActive reports whether the session currently holds a live connection.
func (s *Session) IsActive() bool {
	return s.Status == StatusConnected
}

// CanReconnect reports whether a manual reconnect is allowed. Only sessions
// that already fell out of the handshake can be re-driven through it.
func (s SessionStatus) CanReconnect() bool {
	return s == StatusDisconnected || s == StatusAuthFailure
}
