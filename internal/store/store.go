// Package store holds the durable projection of sessions, messages and
// webhooks behind one CRUD interface. The manager and dispatcher never see
// a concrete storage technology; the adapter is picked from the DSN.
package store

import (
	"context"
	"errors"
	"time"

	"gowa-hub/internal/model"
)

// ErrNotFound is returned when a keyed read misses.
var ErrNotFound = errors.New("record not found")

type Store interface {
	// Sessions. SaveSession is an upsert; DeleteSession cascades to the
	// session's messages and webhooks.
	GetSession(ctx context.Context, id string) (*model.Session, error)
	GetSessions(ctx context.Context) ([]*model.Session, error)
	SaveSession(ctx context.Context, s *model.Session) error
	DeleteSession(ctx context.Context, id string) error

	// Messages, ordered by timestamp descending. sessionID == "" lists
	// across sessions. UpdateMessageStatus keys by the driver's external
	// id and enforces the monotonic-forward rule atomically; it reports
	// whether a row actually advanced.
	SaveMessage(ctx context.Context, m *model.Message) error
	GetMessages(ctx context.Context, sessionID string, limit int) ([]*model.Message, error)
	UpdateMessageStatus(ctx context.Context, externalID string, status model.MessageStatus) (bool, error)

	// Webhooks. RecordDelivery is the dispatcher's only write: one atomic
	// bump of the bookkeeping fields (deliveryErr == "" clears lastError).
	GetWebhook(ctx context.Context, id string) (*model.Webhook, error)
	GetWebhooks(ctx context.Context, sessionID string) ([]*model.Webhook, error)
	SaveWebhook(ctx context.Context, w *model.Webhook) error
	DeleteWebhook(ctx context.Context, id string) error
	RecordDelivery(ctx context.Context, id string, at time.Time, deliveryErr string) error

	Ping(ctx context.Context) error
	Close() error
}
