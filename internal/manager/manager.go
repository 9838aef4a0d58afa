// Package manager owns the registry of live sessions and drives each one's
// connection driver through the handshake state machine. Every transition
// is persisted before the matching event is raised, and state is
// serialized per session: one goroutine drains each driver's event channel
// while commands coming from the API share the same per-entry lock.
package manager

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"gowa-hub/internal/driver"
	"gowa-hub/internal/event"
	"gowa-hub/internal/model"
	"gowa-hub/internal/store"

	"github.com/google/uuid"
)

// Emitter receives every event the manager raises, in per-session order.
type Emitter interface {
	Emit(evt event.Event)
}

type Options struct {
	// HeartbeatInterval is how often a connected session touches
	// lastActivityAt. Zero disables the heartbeat.
	HeartbeatInterval time.Duration
	// EventBuffer is the per-session driver event channel size.
	EventBuffer int
}

type Manager struct {
	store     store.Store
	factory   driver.Factory
	emitter   Emitter
	heartbeat time.Duration
	buffer    int

	mu      sync.RWMutex
	entries map[string]*entry
	closed  bool
}

// entry is one resident session. mu guards the session fields; driver
// calls that can block are always made outside of it.
type entry struct {
	mu         sync.Mutex
	sess       model.Session
	drv        driver.Driver
	loggingOut bool
	hbRunning  bool

	// cancel stops the event loop and heartbeat of the current binding.
	ctx    context.Context
	cancel context.CancelFunc
}

func New(st store.Store, factory driver.Factory, emitter Emitter, opts Options) *Manager {
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = 32
	}
	return &Manager{
		store:     st,
		factory:   factory,
		emitter:   emitter,
		heartbeat: opts.HeartbeatInterval,
		buffer:    opts.EventBuffer,
		entries:   make(map[string]*entry),
	}
}

func (m *Manager) entry(id string) *entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.entries[id]
}

// bind attaches a fresh driver to the entry and starts its event loop.
// Caller holds e.mu.
func (m *Manager) bind(e *entry) error {
	events := make(chan driver.Event, m.buffer)
	drv, err := m.factory.New(e.sess.ID, events)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.drv = drv
	e.ctx = ctx
	e.cancel = cancel
	go m.eventLoop(e, events, ctx)
	return nil
}

// unbind cancels the current binding. Caller holds e.mu.
func (e *entry) unbind() {
	if e.cancel != nil {
		e.cancel()
	}
	e.drv = nil
}

// eventLoop serializes all driver events for one session. Different
// sessions run their loops in parallel; a slow handshake on one never
// stalls another.
func (m *Manager) eventLoop(e *entry, events <-chan driver.Event, ctx context.Context) {
	for {
		select {
		case ev := <-events:
			m.step(e, ev)
		case <-ctx.Done():
			return
		}
	}
}

// Create allocates a new session, persists it in initializing and starts
// the driver handshake. A failed start leaves the session in auth_failure
// with the cause stored for inspection.
func (m *Manager) Create(ctx context.Context, name string) (*model.Session, error) {
	now := time.Now().UTC()
	e := &entry{sess: model.Session{
		ID:             uuid.NewString(),
		Name:           name,
		Status:         model.StatusInitializing,
		CreatedAt:      now,
		LastActivityAt: now,
	}}

	// Register first and keep the registry lock out of the DB write; one
	// slow persist must not stall every other session's command lookup.
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrManagerClosed
	}
	m.entries[e.sess.ID] = e
	m.mu.Unlock()

	e.mu.Lock()
	if err := m.store.SaveSession(ctx, &e.sess); err != nil {
		e.mu.Unlock()
		m.mu.Lock()
		delete(m.entries, e.sess.ID)
		m.mu.Unlock()
		return nil, fmt.Errorf("persist session: %w", err)
	}
	// A failed bind leaves the registered entry in auth_failure so the
	// user can still reconnect it.
	if err := m.bind(e); err != nil {
		e.mu.Unlock()
		return nil, m.failInit(ctx, e, err)
	}
	drv := e.drv
	e.mu.Unlock()

	// The handshake may block for a while; no locks held here so driver
	// events for this and other sessions keep flowing. drv is a local
	// copy: a logout interleaving here unbinds the entry, not our handle.
	if err := drv.Initialize(ctx, ""); err != nil {
		return nil, m.failInit(ctx, e, err)
	}

	return m.snapshot(e), nil
}

// failInit marks the session auth_failure after a failed driver start.
func (m *Manager) failInit(ctx context.Context, e *entry, cause error) error {
	e.mu.Lock()
	e.sess.Status = model.StatusAuthFailure
	e.sess.QRPayload = ""
	e.sess.LastError = cause.Error()
	if err := m.store.SaveSession(ctx, &e.sess); err != nil {
		log.Printf("manager: failed to persist auth_failure for %s: %v", e.sess.ID, err)
	}
	data := statusData(&e.sess, cause.Error())
	id := e.sess.ID
	e.mu.Unlock()

	m.emitter.Emit(event.Event{Kind: event.KindSessionStatus, SessionID: id, Data: data})
	return fmt.Errorf("%w: %v", ErrDriverInit, cause)
}

// Send delivers one outbound message through the session's driver and
// records it as sent. The session status is untouched by send failures.
func (m *Manager) Send(ctx context.Context, sessionID, to, content string, msgType model.MessageType) (*model.Message, error) {
	e := m.entry(sessionID)
	if e == nil {
		return nil, ErrSessionNotFound
	}
	if msgType == "" {
		msgType = model.MessageText
	}

	e.mu.Lock()
	if e.sess.Status != model.StatusConnected {
		e.mu.Unlock()
		return nil, ErrSessionNotConnected
	}
	drv := e.drv
	from := e.sess.Phone
	e.mu.Unlock()

	extID, err := drv.SendMessage(ctx, to, content, msgType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDriverCommand, err)
	}

	now := time.Now().UTC()
	msg := &model.Message{
		ID:         uuid.NewString(),
		SessionID:  sessionID,
		From:       from,
		To:         to,
		Content:    content,
		Type:       msgType,
		Status:     model.MessageSent,
		Timestamp:  now,
		ExternalID: extID,
	}
	if err := m.store.SaveMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("persist message: %w", err)
	}

	e.mu.Lock()
	e.sess.LastActivityAt = now
	if err := m.store.SaveSession(ctx, &e.sess); err != nil {
		log.Printf("manager: failed to touch session %s: %v", sessionID, err)
	}
	e.mu.Unlock()

	m.emitter.Emit(event.Event{
		Kind:      event.KindMessageFromMe,
		SessionID: sessionID,
		Data:      messageData(msg),
	})
	return msg, nil
}

// Logout forces the session to disconnected. Calling it on an already
// disconnected session is a no-op, not an error.
func (m *Manager) Logout(ctx context.Context, sessionID string) error {
	e := m.entry(sessionID)
	if e == nil {
		return ErrSessionNotFound
	}

	e.mu.Lock()
	if e.sess.Status == model.StatusDisconnected {
		e.mu.Unlock()
		return nil
	}
	e.loggingOut = true
	drv := e.drv
	e.mu.Unlock()

	if drv != nil {
		if err := drv.Logout(ctx); err != nil {
			// the disconnect is forced regardless
			log.Printf("manager: driver logout for %s: %v", sessionID, err)
		}
		_ = drv.Destroy(ctx)
	}

	e.mu.Lock()
	e.unbind()
	e.sess.Status = model.StatusDisconnected
	e.sess.QRPayload = ""
	e.sess.CredentialsKey = ""
	e.loggingOut = false
	if err := m.store.SaveSession(ctx, &e.sess); err != nil {
		log.Printf("manager: failed to persist logout for %s: %v", sessionID, err)
	}
	data := statusData(&e.sess, "logged out")
	e.mu.Unlock()

	m.emitter.Emit(event.Event{Kind: event.KindSessionStatus, SessionID: sessionID, Data: data})
	return nil
}

// Delete logs the session out if needed, drops it from the registry and
// removes every persisted record. Driver callbacks arriving afterwards hit
// an unknown session and are dropped silently.
func (m *Manager) Delete(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	e := m.entries[sessionID]
	delete(m.entries, sessionID)
	m.mu.Unlock()

	if e == nil {
		if _, err := m.store.GetSession(ctx, sessionID); err != nil {
			return ErrSessionNotFound
		}
		return m.store.DeleteSession(ctx, sessionID)
	}

	e.mu.Lock()
	e.loggingOut = true
	// Stored credentials outlive a driver-side disconnect, so the unlink
	// must run whenever they exist, not just while connected.
	needsLogout := e.sess.IsActive() || e.sess.CredentialsKey != ""
	drv := e.drv
	e.unbind()
	e.mu.Unlock()

	if drv != nil {
		if needsLogout {
			if err := drv.Logout(ctx); err != nil {
				log.Printf("manager: driver logout for %s: %v", sessionID, err)
			}
		}
		_ = drv.Destroy(ctx)
	}

	if err := m.store.DeleteSession(ctx, sessionID); err != nil {
		return fmt.Errorf("delete session records: %w", err)
	}
	return nil
}

// Reconnect re-binds a driver for a session that fell out of the
// handshake and drives it through initializing again. connectedAt is
// preserved from the first lifetime.
func (m *Manager) Reconnect(ctx context.Context, sessionID string) (*model.Session, error) {
	e := m.entry(sessionID)
	if e == nil {
		return nil, ErrSessionNotFound
	}

	e.mu.Lock()
	if !e.sess.Status.CanReconnect() {
		e.mu.Unlock()
		return nil, ErrCannotReconnect
	}
	e.unbind()
	e.sess.Status = model.StatusInitializing
	e.sess.QRPayload = ""
	e.sess.LastError = ""
	credKey := e.sess.CredentialsKey
	if err := m.store.SaveSession(ctx, &e.sess); err != nil {
		e.mu.Unlock()
		return nil, fmt.Errorf("persist session: %w", err)
	}
	if err := m.bind(e); err != nil {
		e.mu.Unlock()
		return nil, m.failInit(ctx, e, err)
	}
	drv := e.drv
	data := statusData(&e.sess, "reconnecting")
	e.mu.Unlock()

	m.emitter.Emit(event.Event{Kind: event.KindSessionStatus, SessionID: sessionID, Data: data})

	// Local copy again: a concurrent logout nils e.drv, and its destroy
	// already makes this handle drop everything it would emit.
	if err := drv.Initialize(ctx, credKey); err != nil {
		return nil, m.failInit(ctx, e, err)
	}
	return m.snapshot(e), nil
}

// Get returns a copy of the session; resident state wins over the store.
func (m *Manager) Get(ctx context.Context, sessionID string) (*model.Session, error) {
	if e := m.entry(sessionID); e != nil {
		return m.snapshot(e), nil
	}
	sess, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// List returns copies of all resident sessions, oldest first.
func (m *Manager) List(ctx context.Context) []*model.Session {
	m.mu.RLock()
	entries := make([]*entry, 0, len(m.entries))
	for _, e := range m.entries {
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	out := make([]*model.Session, 0, len(entries))
	for _, e := range entries {
		out = append(out, m.snapshot(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (m *Manager) snapshot(e *entry) *model.Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	c := e.sess
	if e.sess.ConnectedAt != nil {
		t := *e.sess.ConnectedAt
		c.ConnectedAt = &t
	}
	return &c
}

// Restore reloads persisted sessions on boot. Sessions that were mid
// handshake come back as disconnected; previously connected ones get a new
// binding and go through initializing with their stored credentials.
func (m *Manager) Restore(ctx context.Context) error {
	sessions, err := m.store.GetSessions(ctx)
	if err != nil {
		return fmt.Errorf("load sessions: %w", err)
	}

	log.Printf("manager: restoring %d saved sessions", len(sessions))

	for _, sess := range sessions {
		e := &entry{sess: *sess}
		wasConnected := sess.Status == model.StatusConnected

		e.mu.Lock()
		switch sess.Status {
		case model.StatusInitializing, model.StatusQRReady, model.StatusConnected:
			// stale handshake state from the previous process
			e.sess.Status = model.StatusDisconnected
			e.sess.QRPayload = ""
		}
		if wasConnected && e.sess.CredentialsKey != "" {
			e.sess.Status = model.StatusInitializing
			if err := m.bind(e); err != nil {
				log.Printf("manager: failed to bind driver for %s: %v", sess.ID, err)
				e.sess.Status = model.StatusDisconnected
			}
		}
		if err := m.store.SaveSession(ctx, &e.sess); err != nil {
			log.Printf("manager: failed to persist restored session %s: %v", sess.ID, err)
		}
		drv := e.drv
		credKey := e.sess.CredentialsKey
		e.mu.Unlock()

		m.mu.Lock()
		m.entries[sess.ID] = e
		m.mu.Unlock()

		if drv != nil {
			if err := drv.Initialize(ctx, credKey); err != nil {
				_ = m.failInit(ctx, e, err)
				log.Printf("manager: failed to restore %s: %v", sess.ID, err)
				continue
			}
			log.Printf("manager: restored session %s (%s)", sess.ID, sess.Name)
		}
	}
	return nil
}

// Shutdown releases every driver handle without logging sessions out, so
// credentials survive a restart. The manager accepts no commands after.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	m.closed = true
	entries := make([]*entry, 0, len(m.entries))
	for _, e := range m.entries {
		entries = append(entries, e)
	}
	m.mu.Unlock()

	for _, e := range entries {
		e.mu.Lock()
		drv := e.drv
		e.unbind()
		e.mu.Unlock()
		if drv != nil {
			_ = drv.Destroy(ctx)
		}
	}
}
