package driver

import (
	"context"
	"fmt"
	"sync"

	"gowa-hub/internal/model"

	"github.com/google/uuid"
)

// FakeFactory creates scripted in-memory drivers. It backs the DRIVER=fake
// mode for local dashboard work and lets tests feed the manager a fixed
// event sequence without a real connection.
type FakeFactory struct {
	mu      sync.Mutex
	drivers map[string]*FakeDriver

	// NewErr, when set, makes the factory refuse to create drivers.
	NewErr error
	// InitErr, when set, makes every Initialize fail.
	InitErr error
	// SendErr, when set, makes every SendMessage fail.
	SendErr error
	// Script is replayed on the event channel after a successful
	// Initialize. Nil means emit a QR followed by ready, which is enough
	// to drive a session to connected on its own.
	Script []Event
}

func NewFakeFactory() *FakeFactory {
	return &FakeFactory{drivers: make(map[string]*FakeDriver)}
}

func (f *FakeFactory) New(sessionID string, events chan<- Event) (Driver, error) {
	if f.NewErr != nil {
		return nil, f.NewErr
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &FakeDriver{
		factory:   f,
		sessionID: sessionID,
		events:    events,
		ctx:       ctx,
		cancel:    cancel,
	}
	f.mu.Lock()
	f.drivers[sessionID] = d
	f.mu.Unlock()
	return d, nil
}

// Driver returns the live fake binding for a session, if any.
func (f *FakeFactory) Driver(sessionID string) *FakeDriver {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.drivers[sessionID]
}

type FakeDriver struct {
	factory   *FakeFactory
	sessionID string
	events    chan<- Event
	ctx       context.Context
	cancel    context.CancelFunc

	mu        sync.Mutex
	sent      []SentMessage
	loggedOut bool
	destroyed bool
}

type SentMessage struct {
	To         string
	Content    string
	Type       model.MessageType
	ExternalID string
}

func (d *FakeDriver) Initialize(ctx context.Context, credentialsKey string) error {
	if d.factory.InitErr != nil {
		return d.factory.InitErr
	}
	script := d.factory.Script
	if script == nil {
		script = []Event{
			{Kind: EventQR, QR: "FAKE-QR-" + d.sessionID},
			{Kind: EventReady, Phone: "15550000000", Credentials: "15550000000@fake"},
		}
	}
	go func() {
		for _, ev := range script {
			d.Emit(ev)
		}
	}()
	return nil
}

// Emit pushes one event at the manager, dropping it once the binding is
// destroyed. Tests use this to play arbitrary sequences.
func (d *FakeDriver) Emit(ev Event) {
	select {
	case d.events <- ev:
	case <-d.ctx.Done():
	}
}

func (d *FakeDriver) SendMessage(ctx context.Context, to, content string, msgType model.MessageType) (string, error) {
	if d.factory.SendErr != nil {
		return "", d.factory.SendErr
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.loggedOut || d.destroyed {
		return "", fmt.Errorf("driver is closed")
	}
	ext := "EXT-" + uuid.NewString()
	d.sent = append(d.sent, SentMessage{To: to, Content: content, Type: msgType, ExternalID: ext})
	return ext, nil
}

// Sent returns a copy of everything sent through this binding.
func (d *FakeDriver) Sent() []SentMessage {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]SentMessage, len(d.sent))
	copy(out, d.sent)
	return out
}

func (d *FakeDriver) Logout(ctx context.Context) error {
	d.mu.Lock()
	d.loggedOut = true
	d.mu.Unlock()
	return nil
}

func (d *FakeDriver) Destroy(ctx context.Context) error {
	d.cancel()
	d.mu.Lock()
	d.destroyed = true
	d.mu.Unlock()
	return nil
}

// Destroyed reports whether Destroy was called.
func (d *FakeDriver) Destroyed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.destroyed
}

// LoggedOut reports whether Logout was called.
func (d *FakeDriver) LoggedOut() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.loggedOut
}

var _ Driver = (*FakeDriver)(nil)
var _ Factory = (*FakeFactory)(nil)
