// Package dispatcher fans lifecycle and message events out to the realtime
// hub and to registered webhooks. It is stateless relative to the manager:
// events come in, deliveries go out, nothing blocks the caller.
package dispatcher

import (
	"context"
	"log"
	"sync"
	"time"

	"gowa-hub/internal/event"
	"gowa-hub/internal/model"
	"gowa-hub/internal/store"
	"gowa-hub/internal/webhook"
	"gowa-hub/internal/ws"
)

// lookupTimeout bounds the webhook lookup per event; delivery itself is
// bounded by the worker's own timeout.
const lookupTimeout = 5 * time.Second

type Dispatcher struct {
	store    store.Store
	realtime ws.RealtimePublisher
	worker   *webhook.Worker

	wg sync.WaitGroup
}

func New(st store.Store, realtime ws.RealtimePublisher, worker *webhook.Worker) *Dispatcher {
	return &Dispatcher{
		store:    st,
		realtime: realtime,
		worker:   worker,
	}
}

// Emit publishes one event. The realtime publish is fire-and-forget and the
// webhook fan-out runs on its own goroutines, so the manager's event loop
// is never held up by a slow target.
func (d *Dispatcher) Emit(evt event.Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}

	d.realtime.Publish(evt)

	d.wg.Add(1)
	go d.fanout(evt)
}

func (d *Dispatcher) fanout(evt event.Event) {
	defer d.wg.Done()

	if d.worker == nil {
		// webhook delivery disabled, realtime only
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
	hooks, err := d.store.GetWebhooks(ctx, evt.SessionID)
	cancel()
	if err != nil {
		log.Printf("dispatcher: webhook lookup failed for %s: %v", evt.SessionID, err)
		return
	}

	for _, hook := range hooks {
		if !hook.IsActive || !hook.Subscribes(evt.Kind) {
			continue
		}
		// each target is an independent attempt; one failing or hanging
		// webhook must not touch the others
		d.wg.Add(1)
		go func(h *model.Webhook) {
			defer d.wg.Done()
			d.worker.Deliver(context.Background(), h, evt)
		}(hook)
	}
}

// Wait blocks until all in-flight deliveries finish. Called on shutdown.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
