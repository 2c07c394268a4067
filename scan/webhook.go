package scan

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jmcleod/assettag/internal/uuid"
	"github.com/jmcleod/assettag/registry"
)

// webhookQueueSize is the bounded channel capacity for outbound events.
const webhookQueueSize = 1024

// EventScanned is the event name sent for every recorded scan.
const EventScanned = "asset_scanned"

// webhookEvent is the JSON payload POSTed to the external endpoint.
type webhookEvent struct {
	ID        string `json:"id"`
	Event     string `json:"event"`
	Asset     string `json:"asset"`
	Device    string `json:"device"`
	Timestamp string `json:"timestamp"`
}

// Webhook delivers scan events to an external HTTP endpoint. Events are
// enqueued without blocking into a bounded channel and sent by a single
// background goroutine. If the channel is full, events are dropped.
type Webhook struct {
	url        string
	authHeader string // "Header: Value", e.g. "Authorization: Bearer xxx"
	client     *http.Client
	events     chan webhookEvent
	logger     *slog.Logger
	wg         sync.WaitGroup

	mu     sync.Mutex // guards closed and sends on events
	closed bool
}

// NewWebhook creates a webhook dispatcher and starts its background loop.
func NewWebhook(url, authHeader string, logger *slog.Logger) *Webhook {
	if logger == nil {
		logger = slog.Default()
	}
	w := &Webhook{
		url:        url,
		authHeader: authHeader,
		client:     &http.Client{Timeout: 10 * time.Second},
		events:     make(chan webhookEvent, webhookQueueSize),
		logger:     logger.With("component", "webhook"),
	}
	w.wg.Add(1)
	go w.loop()
	return w
}

// Notify implements Notifier.
func (w *Webhook) Notify(name string, ev registry.ScanEvent) {
	w.enqueue(webhookEvent{
		ID:        uuid.New(),
		Event:     EventScanned,
		Asset:     name,
		Device:    ev.Device,
		Timestamp: ev.Timestamp.UTC().Format(time.RFC3339Nano),
	})
}

func (w *Webhook) enqueue(evt webhookEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		w.logger.Warn("webhook closed, dropping event", "event", evt.Event, "asset", evt.Asset)
		return
	}
	select {
	case w.events <- evt:
	default:
		w.logger.Warn("queue full, dropping event", "event", evt.Event, "asset", evt.Asset)
	}
}

// Close stops the dispatcher after draining queued events. Events notified
// after Close are dropped.
func (w *Webhook) Close() {
	w.stop()
	w.wg.Wait()
}

func (w *Webhook) stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.closed = true
	close(w.events)
}

func (w *Webhook) loop() {
	defer w.wg.Done()
	for evt := range w.events {
		w.send(evt)
	}
}

// send POSTs the event with one retry on 5xx or transport errors.
func (w *Webhook) send(evt webhookEvent) {
	body, err := json.Marshal(evt)
	if err != nil {
		w.logger.Warn("marshal failed", "error", err)
		return
	}

	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Second)
		}

		req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, w.url, bytes.NewReader(body))
		if err != nil {
			w.logger.Warn("request creation failed", "error", err)
			return
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "AssetTag-Webhook/1.0")
		if w.authHeader != "" {
			if k, v, ok := strings.Cut(w.authHeader, ":"); ok {
				req.Header.Set(strings.TrimSpace(k), strings.TrimSpace(v))
			}
		}

		resp, err := w.client.Do(req)
		if err != nil {
			w.logger.Warn("request failed", "error", err, "attempt", attempt+1)
			continue
		}
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return
		}
		if resp.StatusCode >= 500 {
			w.logger.Warn("server error", "status", resp.StatusCode, "attempt", attempt+1)
			continue
		}
		w.logger.Warn("client error", "status", resp.StatusCode)
		return
	}
}
