package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"gowa-hub/internal/model"
)

// every adapter must satisfy the same contract, so the suite runs against
// both the in-memory store and a sqlite file in a temp dir
func openStores(t *testing.T) map[string]Store {
	t.Helper()

	sqlite, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(func() { sqlite.Close() })

	return map[string]Store{
		"memory": NewMemory(),
		"sqlite": sqlite,
	}
}

func newSession(id string) *model.Session {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &model.Session{
		ID:             id,
		Name:           "session " + id,
		Status:         model.StatusInitializing,
		CreatedAt:      now,
		LastActivityAt: now,
	}
}

func TestSessionCRUD(t *testing.T) {
	for name, st := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if _, err := st.GetSession(ctx, "nope"); err != ErrNotFound {
				t.Fatalf("GetSession(missing) = %v, want ErrNotFound", err)
			}

			sess := newSession("s1")
			if err := st.SaveSession(ctx, sess); err != nil {
				t.Fatalf("SaveSession: %v", err)
			}

			got, err := st.GetSession(ctx, "s1")
			if err != nil {
				t.Fatalf("GetSession: %v", err)
			}
			if got.Name != sess.Name || got.Status != model.StatusInitializing {
				t.Errorf("got %+v, want name=%q status=initializing", got, sess.Name)
			}
			if got.ConnectedAt != nil {
				t.Errorf("fresh session should have nil connectedAt, got %v", got.ConnectedAt)
			}

			// upsert moves the session forward
			now := time.Now().UTC().Truncate(time.Microsecond)
			sess.Status = model.StatusConnected
			sess.Phone = "+15551234567"
			sess.CredentialsKey = "15551234567@wire"
			sess.ConnectedAt = &now
			if err := st.SaveSession(ctx, sess); err != nil {
				t.Fatalf("SaveSession(update): %v", err)
			}

			got, err = st.GetSession(ctx, "s1")
			if err != nil {
				t.Fatalf("GetSession after update: %v", err)
			}
			if got.Status != model.StatusConnected || got.Phone != "+15551234567" {
				t.Errorf("update not persisted: %+v", got)
			}
			if got.CredentialsKey != "15551234567@wire" {
				t.Errorf("credentials key not persisted: %q", got.CredentialsKey)
			}
			if got.ConnectedAt == nil || !got.ConnectedAt.Equal(now) {
				t.Errorf("connectedAt = %v, want %v", got.ConnectedAt, now)
			}

			all, err := st.GetSessions(ctx)
			if err != nil {
				t.Fatalf("GetSessions: %v", err)
			}
			if len(all) != 1 {
				t.Fatalf("GetSessions returned %d sessions, want 1", len(all))
			}
		})
	}
}

func TestDeleteSessionCascades(t *testing.T) {
	for name, st := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if err := st.SaveSession(ctx, newSession("s1")); err != nil {
				t.Fatal(err)
			}
			if err := st.SaveSession(ctx, newSession("s2")); err != nil {
				t.Fatal(err)
			}

			msg := &model.Message{
				ID: "m1", SessionID: "s1", From: "+1", To: "+2",
				Content: "hi", Type: model.MessageText,
				Status: model.MessageSent, Timestamp: time.Now().UTC(),
			}
			if err := st.SaveMessage(ctx, msg); err != nil {
				t.Fatal(err)
			}
			other := *msg
			other.ID = "m2"
			other.SessionID = "s2"
			if err := st.SaveMessage(ctx, &other); err != nil {
				t.Fatal(err)
			}

			hook := &model.Webhook{
				ID: "w1", SessionID: "s1", URL: "https://example.com/hook",
				Events: []string{model.EventWildcard}, IsActive: true,
				CreatedAt: time.Now().UTC(),
			}
			if err := st.SaveWebhook(ctx, hook); err != nil {
				t.Fatal(err)
			}

			if err := st.DeleteSession(ctx, "s1"); err != nil {
				t.Fatalf("DeleteSession: %v", err)
			}

			if _, err := st.GetSession(ctx, "s1"); err != ErrNotFound {
				t.Errorf("session survived delete: %v", err)
			}
			msgs, err := st.GetMessages(ctx, "s1", 0)
			if err != nil {
				t.Fatal(err)
			}
			if len(msgs) != 0 {
				t.Errorf("messages survived cascade: %d left", len(msgs))
			}
			hooks, err := st.GetWebhooks(ctx, "s1")
			if err != nil {
				t.Fatal(err)
			}
			if len(hooks) != 0 {
				t.Errorf("webhooks survived cascade: %d left", len(hooks))
			}

			// the other session's data is untouched
			msgs, err = st.GetMessages(ctx, "s2", 0)
			if err != nil {
				t.Fatal(err)
			}
			if len(msgs) != 1 {
				t.Errorf("sibling session lost messages: %d left", len(msgs))
			}
		})
	}
}

func TestGetMessagesOrderAndLimit(t *testing.T) {
	for name, st := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := st.SaveSession(ctx, newSession("s1")); err != nil {
				t.Fatal(err)
			}

			base := time.Now().UTC().Add(-time.Hour)
			for i := 0; i < 5; i++ {
				msg := &model.Message{
					ID:        "m" + string(rune('0'+i)),
					SessionID: "s1",
					Content:   "msg",
					Type:      model.MessageText,
					Status:    model.MessageSent,
					Timestamp: base.Add(time.Duration(i) * time.Minute),
				}
				if err := st.SaveMessage(ctx, msg); err != nil {
					t.Fatal(err)
				}
			}

			msgs, err := st.GetMessages(ctx, "s1", 3)
			if err != nil {
				t.Fatal(err)
			}
			if len(msgs) != 3 {
				t.Fatalf("limit ignored: got %d messages", len(msgs))
			}
			for i := 1; i < len(msgs); i++ {
				if msgs[i].Timestamp.After(msgs[i-1].Timestamp) {
					t.Errorf("messages not in descending order at %d", i)
				}
			}
			if msgs[0].ID != "m4" {
				t.Errorf("newest first: got %s, want m4", msgs[0].ID)
			}
		})
	}
}

func TestUpdateMessageStatusMonotonic(t *testing.T) {
	for name, st := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			msg := &model.Message{
				ID: "m1", SessionID: "s1", Content: "hi",
				Type: model.MessageText, Status: model.MessageSent,
				Timestamp: time.Now().UTC(), ExternalID: "EXT-1",
			}
			if err := st.SaveMessage(ctx, msg); err != nil {
				t.Fatal(err)
			}

			updated, err := st.UpdateMessageStatus(ctx, "EXT-1", model.MessageDelivered)
			if err != nil || !updated {
				t.Fatalf("advance to delivered = (%v, %v), want (true, nil)", updated, err)
			}

			// backward move is refused, not an error
			updated, err = st.UpdateMessageStatus(ctx, "EXT-1", model.MessageSent)
			if err != nil {
				t.Fatal(err)
			}
			if updated {
				t.Error("status moved backward")
			}

			// same status is a no-op too
			updated, err = st.UpdateMessageStatus(ctx, "EXT-1", model.MessageDelivered)
			if err != nil {
				t.Fatal(err)
			}
			if updated {
				t.Error("same-status update reported as advance")
			}

			updated, err = st.UpdateMessageStatus(ctx, "EXT-1", model.MessageRead)
			if err != nil || !updated {
				t.Fatalf("advance to read = (%v, %v), want (true, nil)", updated, err)
			}

			// unknown external id affects nothing
			updated, err = st.UpdateMessageStatus(ctx, "EXT-MISSING", model.MessageRead)
			if err != nil {
				t.Fatal(err)
			}
			if updated {
				t.Error("unknown external id reported as advance")
			}

			got, err := st.GetMessages(ctx, "s1", 0)
			if err != nil {
				t.Fatal(err)
			}
			if got[0].Status != model.MessageRead {
				t.Errorf("final status = %s, want read", got[0].Status)
			}
		})
	}
}

func TestUpdateMessageStatusFailedIsTerminal(t *testing.T) {
	for name, st := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			msg := &model.Message{
				ID: "m1", SessionID: "s1", Content: "hi",
				Type: model.MessageText, Status: model.MessageSent,
				Timestamp: time.Now().UTC(), ExternalID: "EXT-1",
			}
			if err := st.SaveMessage(ctx, msg); err != nil {
				t.Fatal(err)
			}

			updated, err := st.UpdateMessageStatus(ctx, "EXT-1", model.MessageFailed)
			if err != nil || !updated {
				t.Fatalf("move to failed = (%v, %v), want (true, nil)", updated, err)
			}

			updated, err = st.UpdateMessageStatus(ctx, "EXT-1", model.MessageRead)
			if err != nil {
				t.Fatal(err)
			}
			if updated {
				t.Error("failed message advanced")
			}
		})
	}
}

func TestWebhookCRUDAndBookkeeping(t *testing.T) {
	for name, st := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if _, err := st.GetWebhook(ctx, "nope"); err != ErrNotFound {
				t.Fatalf("GetWebhook(missing) = %v, want ErrNotFound", err)
			}
			if err := st.DeleteWebhook(ctx, "nope"); err != ErrNotFound {
				t.Fatalf("DeleteWebhook(missing) = %v, want ErrNotFound", err)
			}

			hook := &model.Webhook{
				ID: "w1", SessionID: "s1", URL: "https://example.com/hook",
				Events: []string{"message-received"}, Secret: "shh",
				IsActive: true, CreatedAt: time.Now().UTC(),
			}
			if err := st.SaveWebhook(ctx, hook); err != nil {
				t.Fatalf("SaveWebhook: %v", err)
			}

			at := time.Now().UTC().Truncate(time.Microsecond)
			if err := st.RecordDelivery(ctx, "w1", at, "connection refused"); err != nil {
				t.Fatalf("RecordDelivery: %v", err)
			}
			if err := st.RecordDelivery(ctx, "w1", at.Add(time.Second), ""); err != nil {
				t.Fatalf("RecordDelivery: %v", err)
			}

			got, err := st.GetWebhook(ctx, "w1")
			if err != nil {
				t.Fatal(err)
			}
			if got.TriggerCount != 2 {
				t.Errorf("triggerCount = %d, want 2", got.TriggerCount)
			}
			if got.LastError != "" {
				t.Errorf("success should clear lastError, got %q", got.LastError)
			}
			if got.LastTriggeredAt == nil {
				t.Error("lastTriggeredAt not set")
			}
			if got.Secret != "shh" {
				t.Errorf("secret = %q, want shh", got.Secret)
			}

			// updating the subscription keeps the bookkeeping
			got.URL = "https://example.com/hook2"
			got.Events = []string{model.EventWildcard}
			if err := st.SaveWebhook(ctx, got); err != nil {
				t.Fatal(err)
			}
			again, err := st.GetWebhook(ctx, "w1")
			if err != nil {
				t.Fatal(err)
			}
			if again.URL != "https://example.com/hook2" {
				t.Errorf("url not updated: %q", again.URL)
			}
			if again.TriggerCount != 2 {
				t.Errorf("update clobbered triggerCount: %d", again.TriggerCount)
			}

			if err := st.DeleteWebhook(ctx, "w1"); err != nil {
				t.Fatalf("DeleteWebhook: %v", err)
			}
			if _, err := st.GetWebhook(ctx, "w1"); err != ErrNotFound {
				t.Errorf("webhook survived delete: %v", err)
			}
		})
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	st := NewMemory()

	sess := newSession("s1")
	if err := st.SaveSession(ctx, sess); err != nil {
		t.Fatal(err)
	}

	got, err := st.GetSession(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	got.Name = "mutated"

	again, err := st.GetSession(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if again.Name == "mutated" {
		t.Error("store returned a shared pointer, not a copy")
	}
}
