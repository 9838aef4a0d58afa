package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"gowa-hub/internal/model"
)

// Memory is the in-process adapter: same contract, no durability. Used for
// tests and throwaway local runs (DATABASE_URL=memory).
type Memory struct {
	mu       sync.RWMutex
	sessions map[string]*model.Session
	messages map[string]*model.Message
	webhooks map[string]*model.Webhook
}

func NewMemory() *Memory {
	return &Memory{
		sessions: make(map[string]*model.Session),
		messages: make(map[string]*model.Message),
		webhooks: make(map[string]*model.Webhook),
	}
}

func copySession(s *model.Session) *model.Session {
	c := *s
	if s.ConnectedAt != nil {
		t := *s.ConnectedAt
		c.ConnectedAt = &t
	}
	return &c
}

func copyWebhook(w *model.Webhook) *model.Webhook {
	c := *w
	c.Events = append([]string(nil), w.Events...)
	if w.LastTriggeredAt != nil {
		t := *w.LastTriggeredAt
		c.LastTriggeredAt = &t
	}
	return &c
}

func (m *Memory) GetSession(ctx context.Context, id string) (*model.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copySession(s), nil
}

func (m *Memory) GetSessions(ctx context.Context) ([]*model.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*model.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, copySession(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) SaveSession(ctx context.Context, s *model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = copySession(s)
	return nil
}

func (m *Memory) DeleteSession(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	for mid, msg := range m.messages {
		if msg.SessionID == id {
			delete(m.messages, mid)
		}
	}
	for wid, w := range m.webhooks {
		if w.SessionID == id {
			delete(m.webhooks, wid)
		}
	}
	return nil
}

func (m *Memory) SaveMessage(ctx context.Context, msg *model.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *msg
	m.messages[msg.ID] = &c
	return nil
}

func (m *Memory) GetMessages(ctx context.Context, sessionID string, limit int) ([]*model.Message, error) {
	if limit <= 0 {
		limit = 100
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Message
	for _, msg := range m.messages {
		if sessionID != "" && msg.SessionID != sessionID {
			continue
		}
		c := *msg
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) UpdateMessageStatus(ctx context.Context, externalID string, status model.MessageStatus) (bool, error) {
	if externalID == "" {
		return false, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range m.messages {
		if msg.ExternalID != externalID {
			continue
		}
		if !msg.Status.CanAdvanceTo(status) {
			return false, nil
		}
		msg.Status = status
		return true, nil
	}
	return false, nil
}

func (m *Memory) GetWebhook(ctx context.Context, id string) (*model.Webhook, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.webhooks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyWebhook(w), nil
}

func (m *Memory) GetWebhooks(ctx context.Context, sessionID string) ([]*model.Webhook, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Webhook
	for _, w := range m.webhooks {
		if sessionID != "" && w.SessionID != sessionID {
			continue
		}
		out = append(out, copyWebhook(w))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) SaveWebhook(ctx context.Context, w *model.Webhook) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.webhooks[w.ID]; ok {
		// subscription config is caller-owned, bookkeeping stays ours
		existing.URL = w.URL
		existing.Events = append([]string(nil), w.Events...)
		existing.Secret = w.Secret
		existing.IsActive = w.IsActive
		return nil
	}
	m.webhooks[w.ID] = copyWebhook(w)
	return nil
}

func (m *Memory) DeleteWebhook(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.webhooks[id]; !ok {
		return ErrNotFound
	}
	delete(m.webhooks, id)
	return nil
}

func (m *Memory) RecordDelivery(ctx context.Context, id string, at time.Time, deliveryErr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.webhooks[id]
	if !ok {
		return nil
	}
	w.TriggerCount++
	t := at
	w.LastTriggeredAt = &t
	w.LastError = deliveryErr
	return nil
}

func (m *Memory) Ping(ctx context.Context) error { return nil }
func (m *Memory) Close() error                   { return nil }

var _ Store = (*Memory)(nil)
