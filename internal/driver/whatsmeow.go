package driver

import (
	"context"
	"fmt"
	"strings"

	"gowa-hub/internal/helper"
	"gowa-hub/internal/model"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"
)

// NewContainer opens the whatsmeow credential store. Postgres when the DSN
// says so, otherwise a local sqlite file.
func NewContainer(ctx context.Context, dsn string) (*sqlstore.Container, error) {
	dialect := "sqlite"
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		dialect = "postgres"
	} else if !strings.Contains(dsn, "?") {
		dsn += "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	}
	return sqlstore.New(ctx, dialect, dsn, waLog.Stdout("Database", "WARN", true))
}

// WhatsmeowFactory binds sessions to real WhatsApp connections, one client
// per session.
type WhatsmeowFactory struct {
	container *sqlstore.Container
}

func NewWhatsmeowFactory(container *sqlstore.Container) *WhatsmeowFactory {
	store.DeviceProps.Os = proto.String("GOWA Hub")
	return &WhatsmeowFactory{container: container}
}

func (f *WhatsmeowFactory) New(sessionID string, events chan<- Event) (Driver, error) {
	ctx, cancel := context.WithCancel(context.Background())
	return &whatsmeowDriver{
		container: f.container,
		sessionID: sessionID,
		events:    events,
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

type whatsmeowDriver struct {
	container *sqlstore.Container
	sessionID string
	events    chan<- Event
	ctx       context.Context
	cancel    context.CancelFunc
	client    *whatsmeow.Client
}

// emit forwards one driver event unless the binding was destroyed. A
// destroyed session must never block the whatsmeow callback goroutine.
func (d *whatsmeowDriver) emit(ev Event) {
	select {
	case d.events <- ev:
	case <-d.ctx.Done():
	}
}

func (d *whatsmeowDriver) Initialize(ctx context.Context, credentialsKey string) error {
	var device *store.Device
	if credentialsKey != "" {
		jid, err := types.ParseJID(credentialsKey)
		if err != nil {
			return fmt.Errorf("parse credentials key: %w", err)
		}
		device, err = d.container.GetDevice(ctx, jid)
		if err != nil {
			return fmt.Errorf("get device: %w", err)
		}
	}
	if device == nil {
		device = d.container.NewDevice()
	}

	client := whatsmeow.NewClient(device, waLog.Stdout("Client", "INFO", true))
	client.AddEventHandler(d.handleEvent)
	d.client = client

	// Fresh device: stream QR codes until paired. With stored credentials
	// the client connects straight away and only emits ready.
	if client.Store.ID == nil {
		qrChan, err := client.GetQRChannel(d.ctx)
		if err != nil {
			return fmt.Errorf("get qr channel: %w", err)
		}
		go d.pumpQR(qrChan)
	}

	if err := client.Connect(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	return nil
}

func (d *whatsmeowDriver) pumpQR(qrChan <-chan whatsmeow.QRChannelItem) {
	for item := range qrChan {
		switch item.Event {
		case "code":
			d.emit(Event{Kind: EventQR, QR: item.Code})
		case "success":
			// pairing done, events.Connected follows
		case "timeout":
			d.emit(Event{Kind: EventAuthFailure, Reason: "qr pairing timed out"})
		default:
			d.emit(Event{Kind: EventAuthFailure, Reason: "qr pairing failed: " + item.Event})
		}
	}
}

func (d *whatsmeowDriver) handleEvent(evt interface{}) {
	switch v := evt.(type) {
	case *events.Connected:
		phone, creds := "", ""
		if d.client.Store.ID != nil {
			creds = d.client.Store.ID.String()
			phone = helper.ExtractPhoneFromJID(creds)
		}
		d.emit(Event{Kind: EventReady, Phone: phone, Credentials: creds})

	case *events.LoggedOut:
		d.emit(Event{Kind: EventDisconnected, Reason: "logged out from remote device"})

	case *events.StreamReplaced:
		d.emit(Event{Kind: EventDisconnected, Reason: "stream replaced"})

	case *events.Disconnected:
		d.emit(Event{Kind: EventDisconnected, Reason: "connection lost"})

	case *events.Message:
		if v.Info.IsFromMe {
			return
		}
		to := ""
		if d.client.Store.ID != nil {
			to = d.client.Store.ID.User
		}
		d.emit(Event{Kind: EventMessage, Message: &Inbound{
			ExternalID: v.Info.ID,
			From:       v.Info.Sender.User,
			To:         to,
			Content:    inboundContent(v),
			Type:       inboundType(v),
			Timestamp:  v.Info.Timestamp,
		}})

	case *events.Receipt:
		level := 0
		switch v.Type {
		case types.ReceiptTypeDelivered:
			level = 2
		case types.ReceiptTypeRead, types.ReceiptTypeReadSelf:
			level = 3
		default:
			return
		}
		for _, id := range v.MessageIDs {
			d.emit(Event{Kind: EventMessageAck, Ack: &Ack{ExternalID: id, Level: level}})
		}
	}
}

func inboundContent(v *events.Message) string {
	if c := v.Message.GetConversation(); c != "" {
		return c
	}
	if ext := v.Message.GetExtendedTextMessage(); ext != nil {
		return ext.GetText()
	}
	if img := v.Message.GetImageMessage(); img != nil {
		return img.GetCaption()
	}
	if vid := v.Message.GetVideoMessage(); vid != nil {
		return vid.GetCaption()
	}
	if doc := v.Message.GetDocumentMessage(); doc != nil {
		return doc.GetFileName()
	}
	return ""
}

func inboundType(v *events.Message) model.MessageType {
	switch {
	case v.Message.GetImageMessage() != nil:
		return model.MessageImage
	case v.Message.GetVideoMessage() != nil:
		return model.MessageVideo
	case v.Message.GetAudioMessage() != nil:
		return model.MessageAudio
	case v.Message.GetDocumentMessage() != nil:
		return model.MessageDocument
	}
	return model.MessageText
}

func (d *whatsmeowDriver) SendMessage(ctx context.Context, to, content string, msgType model.MessageType) (string, error) {
	if d.client == nil {
		return "", fmt.Errorf("driver not initialized")
	}

	recipient, err := helper.ToJID(to)
	if err != nil {
		return "", err
	}

	// Media payloads are out of scope here; non-text types go out as plain
	// text and keep their declared type on the stored record.
	msg := &waE2E.Message{Conversation: proto.String(content)}

	resp, err := d.client.SendMessage(ctx, recipient, msg)
	if err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}
	return string(resp.ID), nil
}

// Logout unlinks the device. A successful client logout already removes the
// stored credentials; when the client cannot reach the server we delete the
// device store ourselves so no artifacts linger.
func (d *whatsmeowDriver) Logout(ctx context.Context) error {
	if d.client == nil {
		return nil
	}
	err := d.client.Logout(ctx)
	d.client.Disconnect()
	if err != nil {
		if d.client.Store != nil && d.client.Store.ID != nil {
			if delErr := d.client.Store.Delete(ctx); delErr != nil {
				return fmt.Errorf("logout: %v; delete device store: %w", err, delErr)
			}
			return nil
		}
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// Destroy releases the handle only; credentials stay for a later re-bind.
func (d *whatsmeowDriver) Destroy(ctx context.Context) error {
	d.cancel()
	if d.client != nil {
		d.client.Disconnect()
	}
	return nil
}

var _ Driver = (*whatsmeowDriver)(nil)
