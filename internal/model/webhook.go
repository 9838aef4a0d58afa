package model

import "time"

// EventWildcard subscribes a webhook to every event kind.
const EventWildcard = "all"

// Webhook is a user-registered HTTP endpoint subscribed to a subset of one
// session's events. Subscription fields are edited by the user only; the
// dispatcher touches nothing but the delivery bookkeeping.
type Webhook struct {
	ID              string     `json:"id"`
	SessionID       string     `json:"sessionId"`
	URL             string     `json:"url"`
	Events          []string   `json:"events"`
	Secret          string     `json:"-"`
	IsActive        bool       `json:"isActive"`
	TriggerCount    int64      `json:"triggerCount"`
	LastTriggeredAt *time.Time `json:"lastTriggeredAt,omitempty"`
	LastError       string     `json:"lastError,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
}

// Subscribes reports whether the webhook wants events of the given kind.
func (w *Webhook) Subscribes(kind string) bool {
	for _, e := range w.Events {
		if e == kind || e == EventWildcard {
			return true
		}
	}
	return false
}
