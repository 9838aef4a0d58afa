package manager

import (
	"context"
	"log"
	"time"

	"gowa-hub/internal/driver"
	"gowa-hub/internal/event"
	"gowa-hub/internal/helper"
	"gowa-hub/internal/model"

	"github.com/google/uuid"
)

// step applies one driver event to the session state machine. Events that
// arrive in a state with no matching edge are ignored; the driver is not
// trusted to know our state. Persistence always happens before the event
// is raised.
func (m *Manager) step(e *entry, ev driver.Event) {
	ctx := context.Background()

	switch ev.Kind {
	case driver.EventQR:
		m.stepQR(ctx, e, ev)
	case driver.EventReady:
		m.stepReady(ctx, e, ev)
	case driver.EventAuthFailure:
		m.stepFailure(ctx, e, model.StatusAuthFailure, ev.Reason)
	case driver.EventDisconnected:
		m.stepFailure(ctx, e, model.StatusDisconnected, ev.Reason)
	case driver.EventMessage:
		m.stepMessage(ctx, e, ev)
	case driver.EventMessageAck:
		m.stepAck(ctx, e, ev)
	}
}

func (m *Manager) stepQR(ctx context.Context, e *entry, ev driver.Event) {
	e.mu.Lock()
	switch e.sess.Status {
	case model.StatusInitializing, model.StatusQRReady:
	default:
		e.mu.Unlock()
		return
	}
	e.sess.Status = model.StatusQRReady
	e.sess.QRPayload = ev.QR
	if err := m.store.SaveSession(ctx, &e.sess); err != nil {
		log.Printf("manager: failed to persist qr for %s: %v", e.sess.ID, err)
	}
	id := e.sess.ID
	e.mu.Unlock()

	m.emitter.Emit(event.Event{
		Kind:      event.KindQRGenerated,
		SessionID: id,
		Data:      event.QRGeneratedData{SessionID: id, QR: ev.QR},
	})
}

func (m *Manager) stepReady(ctx context.Context, e *entry, ev driver.Event) {
	e.mu.Lock()
	switch e.sess.Status {
	case model.StatusInitializing, model.StatusQRReady:
	default:
		e.mu.Unlock()
		return
	}
	now := time.Now().UTC()
	e.sess.Status = model.StatusConnected
	e.sess.QRPayload = ""
	e.sess.LastError = ""
	e.sess.LastActivityAt = now
	if ev.Phone != "" {
		e.sess.Phone = helper.NormalizePhone(ev.Phone)
	}
	if ev.Credentials != "" {
		e.sess.CredentialsKey = ev.Credentials
	}
	// set once per session lifetime, reconnects keep the original
	if e.sess.ConnectedAt == nil {
		e.sess.ConnectedAt = &now
	}
	if err := m.store.SaveSession(ctx, &e.sess); err != nil {
		log.Printf("manager: failed to persist connect for %s: %v", e.sess.ID, err)
	}
	data := statusData(&e.sess, "")
	id := e.sess.ID
	startHB := m.heartbeat > 0 && !e.hbRunning
	if startHB {
		e.hbRunning = true
	}
	hbCtx := e.ctx
	e.mu.Unlock()

	if startHB {
		go m.heartbeatLoop(e, hbCtx)
	}

	m.emitter.Emit(event.Event{Kind: event.KindSessionStatus, SessionID: id, Data: data})
}

// stepFailure mirrors a driver-side drop into disconnected or auth_failure.
func (m *Manager) stepFailure(ctx context.Context, e *entry, to model.SessionStatus, reason string) {
	e.mu.Lock()
	if e.loggingOut {
		// the logout command already forces the transition
		e.mu.Unlock()
		return
	}
	switch e.sess.Status {
	case model.StatusInitializing, model.StatusQRReady, model.StatusConnected:
	default:
		e.mu.Unlock()
		return
	}
	e.sess.Status = to
	e.sess.QRPayload = ""
	if to == model.StatusAuthFailure {
		e.sess.LastError = reason
	}
	if err := m.store.SaveSession(ctx, &e.sess); err != nil {
		log.Printf("manager: failed to persist %s for %s: %v", to, e.sess.ID, err)
	}
	data := statusData(&e.sess, reason)
	id := e.sess.ID
	e.mu.Unlock()

	m.emitter.Emit(event.Event{Kind: event.KindSessionStatus, SessionID: id, Data: data})
}

func (m *Manager) stepMessage(ctx context.Context, e *entry, ev driver.Event) {
	if ev.Message == nil {
		return
	}
	e.mu.Lock()
	if e.sess.Status != model.StatusConnected {
		e.mu.Unlock()
		return
	}
	now := time.Now().UTC()
	ts := ev.Message.Timestamp
	if ts.IsZero() {
		ts = now
	}
	msg := &model.Message{
		ID:         uuid.NewString(),
		SessionID:  e.sess.ID,
		From:       ev.Message.From,
		To:         ev.Message.To,
		Content:    ev.Message.Content,
		Type:       ev.Message.Type,
		Status:     model.MessageDelivered, // inbound receipt is immediate
		Timestamp:  ts,
		ExternalID: ev.Message.ExternalID,
	}
	if msg.Type == "" {
		msg.Type = model.MessageText
	}
	if err := m.store.SaveMessage(ctx, msg); err != nil {
		log.Printf("manager: failed to persist inbound message for %s: %v", e.sess.ID, err)
		e.mu.Unlock()
		return
	}
	e.sess.LastActivityAt = now
	if err := m.store.SaveSession(ctx, &e.sess); err != nil {
		log.Printf("manager: failed to touch session %s: %v", e.sess.ID, err)
	}
	id := e.sess.ID
	e.mu.Unlock()

	m.emitter.Emit(event.Event{
		Kind:      event.KindMessageReceived,
		SessionID: id,
		Data:      messageData(msg),
	})
}

// stepAck advances a stored message by its external id. An ack with no
// matching message, or one that would move the status backward, is dropped
// silently; the remote resends receipts and out-of-order arrival is normal.
func (m *Manager) stepAck(ctx context.Context, e *entry, ev driver.Event) {
	if ev.Ack == nil {
		return
	}
	status, ok := model.AckStatus(ev.Ack.Level)
	if !ok {
		return
	}
	updated, err := m.store.UpdateMessageStatus(ctx, ev.Ack.ExternalID, status)
	if err != nil {
		log.Printf("manager: failed to apply ack for %s: %v", ev.Ack.ExternalID, err)
		return
	}
	if !updated {
		return
	}

	e.mu.Lock()
	id := e.sess.ID
	e.mu.Unlock()

	m.emitter.Emit(event.Event{
		Kind:      event.KindMessageAck,
		SessionID: id,
		Data:      event.AckData{ExternalID: ev.Ack.ExternalID, Status: string(status)},
	})
}

// heartbeatLoop touches lastActivityAt while the session stays connected.
func (m *Manager) heartbeatLoop(e *entry, ctx context.Context) {
	ticker := time.NewTicker(m.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.mu.Lock()
			e.hbRunning = false
			e.mu.Unlock()
			return
		case <-ticker.C:
			e.mu.Lock()
			if e.sess.Status != model.StatusConnected {
				e.hbRunning = false
				e.mu.Unlock()
				return
			}
			e.sess.LastActivityAt = time.Now().UTC()
			if err := m.store.SaveSession(context.Background(), &e.sess); err != nil {
				log.Printf("manager: heartbeat persist failed for %s: %v", e.sess.ID, err)
			}
			e.mu.Unlock()
		}
	}
}

func statusData(s *model.Session, reason string) event.SessionStatusData {
	data := event.SessionStatusData{
		SessionID:   s.ID,
		Name:        s.Name,
		Status:      string(s.Status),
		Phone:       s.Phone,
		IsConnected: s.IsActive(),
		Reason:      reason,
	}
	if s.ConnectedAt != nil {
		t := *s.ConnectedAt
		data.ConnectedAt = &t
	}
	return data
}

func messageData(m *model.Message) event.MessageData {
	return event.MessageData{
		MessageID:  m.ID,
		ExternalID: m.ExternalID,
		From:       m.From,
		To:         m.To,
		Content:    m.Content,
		Type:       string(m.Type),
		Status:     string(m.Status),
		Timestamp:  m.Timestamp,
	}
}
