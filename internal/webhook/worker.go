// Package webhook performs the outbound HTTP calls for registered
// webhooks. Delivery is best-effort, at-most-once: one POST per event, a
// hard timeout, no retry. Every attempt - success or failure - lands in the
// webhook's bookkeeping fields through a single atomic store update.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"gowa-hub/internal/event"
	"gowa-hub/internal/model"
	"gowa-hub/internal/store"
)

// DefaultTimeout bounds one delivery attempt end to end.
const DefaultTimeout = 10 * time.Second

const signatureHeader = "X-Gowa-Signature-256"

type Worker struct {
	client *http.Client
	store  store.Store
}

func NewWorker(st store.Store, timeout time.Duration) *Worker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Worker{
		client: &http.Client{Timeout: timeout},
		store:  st,
	}
}

// DeliveryResult is the outcome of one attempt. Err is never propagated to
// the dispatcher; it only surfaces through the bookkeeping and the manual
// test endpoint.
type DeliveryResult struct {
	StatusCode int
	Err        error
}

func (r DeliveryResult) Success() bool {
	return r.Err == nil
}

// Deliver POSTs the event envelope to the webhook target and records the
// outcome. A 2xx within the timeout clears lastError; anything else is
// written there verbatim.
func (w *Worker) Deliver(ctx context.Context, hook *model.Webhook, evt event.Event) DeliveryResult {
	res := w.post(ctx, hook, evt)

	errMsg := ""
	if res.Err != nil {
		errMsg = res.Err.Error()
		log.Printf("webhook: delivery to %s failed: %v", hook.URL, res.Err)
	}
	if err := w.store.RecordDelivery(ctx, hook.ID, time.Now().UTC(), errMsg); err != nil {
		log.Printf("webhook: failed to record delivery for %s: %v", hook.ID, err)
	}
	return res
}

// Test sends a synthetic payload through the identical delivery and
// bookkeeping path, for user-triggered checks from the dashboard.
func (w *Worker) Test(ctx context.Context, hook *model.Webhook) DeliveryResult {
	evt := event.Event{
		Kind:      "test",
		SessionID: hook.SessionID,
		Timestamp: time.Now().UTC(),
		Data: map[string]interface{}{
			"webhookId": hook.ID,
			"message":   "test delivery",
		},
	}
	return w.Deliver(ctx, hook, evt)
}

func (w *Worker) post(ctx context.Context, hook *model.Webhook, evt event.Event) DeliveryResult {
	body, err := json.Marshal(evt)
	if err != nil {
		return DeliveryResult{Err: fmt.Errorf("marshal payload: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(body))
	if err != nil {
		return DeliveryResult{Err: fmt.Errorf("new request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	if hook.Secret != "" {
		mac := hmac.New(sha256.New, []byte(hook.Secret))
		mac.Write(body)
		req.Header.Set(signatureHeader, "sha256="+hex.EncodeToString(mac.Sum(nil)))
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return DeliveryResult{Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return DeliveryResult{
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}
	return DeliveryResult{StatusCode: resp.StatusCode}
}
