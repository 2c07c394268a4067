// Package scan records asset views that arrive via a scanned code. Each
// qualifying request appends exactly one event to the asset's history.
package scan

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/jmcleod/assettag/internal/util"
	"github.com/jmcleod/assettag/registry"
)

// ErrAlreadyRecorded is returned when the request's ticket was already used.
var ErrAlreadyRecorded = errors.New("scan already recorded for this request")

const (
	// maxDeviceLen bounds the device descriptor stored per event.
	maxDeviceLen = 256
	// UnknownDevice is recorded when the client sends no User-Agent.
	UnknownDevice = "unknown device"
)

// Store is the registry surface the recorder needs.
type Store interface {
	RecordScan(ctx context.Context, name, device string) (registry.ScanEvent, error)
}

// Notifier is told about every recorded scan. Notify must not block.
type Notifier interface {
	Notify(name string, ev registry.ScanEvent)
}

// Recorder appends scan events and fans them out to notifiers.
type Recorder struct {
	store     Store
	notifiers []Notifier
	logger    *slog.Logger
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) { r.logger = logger }
}

// WithNotifier adds a notifier. A nil notifier is ignored.
func WithNotifier(n Notifier) Option {
	return func(r *Recorder) {
		if n != nil {
			r.notifiers = append(r.notifiers, n)
		}
	}
}

// NewRecorder creates a Recorder writing to store.
func NewRecorder(store Store, opts ...Option) *Recorder {
	r := &Recorder{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record appends one scan event for name. When ctx carries a ticket (see
// WithTicket) the ticket is consumed, and a second call on the same
// ticket returns ErrAlreadyRecorded without touching the registry.
func (r *Recorder) Record(ctx context.Context, name, device string) (registry.ScanEvent, error) {
	t := ticketFrom(ctx)
	if t != nil && !t.CompareAndSwap(false, true) {
		return registry.ScanEvent{}, ErrAlreadyRecorded
	}
	ev, err := r.store.RecordScan(ctx, name, device)
	if err != nil {
		if t != nil {
			t.Store(false)
		}
		return registry.ScanEvent{}, err
	}
	r.logger.Info("scan recorded", "asset", name, "device", device)
	for _, n := range r.notifiers {
		n.Notify(name, ev)
	}
	return ev, nil
}

type ticketKey struct{}

// WithTicket returns a context carrying a fresh single-use recording ticket.
func WithTicket(ctx context.Context) context.Context {
	return context.WithValue(ctx, ticketKey{}, new(atomic.Bool))
}

func ticketFrom(ctx context.Context) *atomic.Bool {
	t, _ := ctx.Value(ticketKey{}).(*atomic.Bool)
	return t
}

// Middleware attaches a ticket to every request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(WithTicket(r.Context())))
	})
}

// DeviceFromRequest derives the device descriptor from the User-Agent.
func DeviceFromRequest(r *http.Request) string {
	ua := util.Truncate(r.UserAgent(), maxDeviceLen)
	if ua == "" {
		return UnknownDevice
	}
	return ua
}
