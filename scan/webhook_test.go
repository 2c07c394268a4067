package scan

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/assettag/registry"
)

var testEvent = registry.ScanEvent{
	Timestamp: time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC),
	Device:    "Mozilla/5.0",
}

func TestWebhook_Payload(t *testing.T) {
	var body []byte
	var mu sync.Mutex

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		body, _ = io.ReadAll(r.Body)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	wh := NewWebhook(srv.URL, "", nil)
	wh.Notify("desk-1", testEvent)
	wh.Close()

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, body)

	var parsed map[string]any
	require.NoError(t, json.Unmarshal(body, &parsed))
	assert.Equal(t, "asset_scanned", parsed["event"])
	assert.Equal(t, "desk-1", parsed["asset"])
	assert.Equal(t, "Mozilla/5.0", parsed["device"])
	assert.Equal(t, "2025-06-15T12:00:00Z", parsed["timestamp"])
	assert.NotEmpty(t, parsed["id"])
}

func TestWebhook_RetryOn500(t *testing.T) {
	var attempts atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	wh := NewWebhook(srv.URL, "", nil)
	wh.Notify("desk-1", testEvent)
	wh.Close()

	assert.Equal(t, int32(2), attempts.Load(), "should have retried once after 500")
}

func TestWebhook_NoRetryOn400(t *testing.T) {
	var attempts atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	wh := NewWebhook(srv.URL, "", nil)
	wh.Notify("desk-1", testEvent)
	wh.Close()

	assert.Equal(t, int32(1), attempts.Load(), "should not retry on 4xx")
}

func TestWebhook_Headers(t *testing.T) {
	var gotAuth, gotType string
	var mu sync.Mutex

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		gotAuth = r.Header.Get("Authorization")
		gotType = r.Header.Get("Content-Type")
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	wh := NewWebhook(srv.URL, "Authorization: Bearer my-token-123", nil)
	wh.Notify("desk-1", testEvent)
	wh.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "Bearer my-token-123", gotAuth)
	assert.Equal(t, "application/json", gotType)
}

func TestWebhook_QueueFullNonBlocking(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	wh := &Webhook{
		url:    srv.URL,
		client: &http.Client{Timeout: 100 * time.Millisecond},
		events: make(chan webhookEvent, 2),
		logger: discardLogger(),
	}
	wh.wg.Add(1)
	go wh.loop()

	for i := 0; i < 10; i++ {
		wh.Notify("desk-1", testEvent)
	}
	// Reaching this point means Notify never blocked.
	wh.stop()
}

func TestWebhook_NotifyAfterCloseDropped(t *testing.T) {
	var count atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	wh := NewWebhook(srv.URL, "", discardLogger())
	wh.Close()

	assert.NotPanics(t, func() {
		wh.Notify("desk-1", testEvent)
	})
	assert.Zero(t, count.Load())
}

func TestWebhook_ConcurrentNotifyAndClose(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	wh := NewWebhook(srv.URL, "", discardLogger())
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				wh.Notify("desk-1", testEvent)
			}
		}()
	}
	assert.NotPanics(t, wh.Close)
	wg.Wait()
}

func TestWebhook_CloseDrains(t *testing.T) {
	var count atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	wh := NewWebhook(srv.URL, "", nil)
	for i := 0; i < 5; i++ {
		wh.Notify("desk-1", testEvent)
	}
	wh.Close()
	wh.Close()

	assert.Equal(t, int32(5), count.Load(), "all queued events should be delivered on close")
}
