package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jmcleod/assettag/credential"
	"github.com/jmcleod/assettag/internal/util"
	"github.com/jmcleod/assettag/storage"
)

const displayIDLen = 8

// Health reports whether the in-memory registry and the durable snapshot
// are known to agree.
type Health struct {
	// Degraded is true while the most recent snapshot write failed.
	Degraded    bool      `json:"degraded"`
	LastError   string    `json:"last_error,omitempty"`
	LastErrorAt time.Time `json:"last_error_at,omitempty"`
	LastSavedAt time.Time `json:"last_saved_at,omitempty"`
}

// Registry maps asset names to records. A single RWMutex guards the map and
// is held for writing across every mutation and its snapshot write, so
// mutations (including scan appends) are totally ordered and each saved
// snapshot reflects a consistent state.
type Registry struct {
	mu     sync.RWMutex
	order  []string
	assets map[string]*Asset
	health Health

	store  storage.Snapshotter
	logger *slog.Logger
	now    func() time.Time
	hash   func(string) (string, error)
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithClock overrides the time source used for scan timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// WithHasher overrides the secret hashing function. Defaults to
// credential.Hash.
func WithHasher(hash func(string) (string, error)) Option {
	return func(r *Registry) {
		r.hash = hash
	}
}

// New creates a Registry and loads the snapshot held by store. A missing or
// unreadable snapshot is not fatal: the registry starts empty and the
// problem is logged.
func New(ctx context.Context, store storage.Snapshotter, opts ...Option) *Registry {
	r := &Registry{
		assets: make(map[string]*Asset),
		store:  store,
		logger: slog.Default(),
		now:    time.Now,
		hash:   credential.Hash,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "registry")
	r.load(ctx)
	return r
}

func (r *Registry) load(ctx context.Context) {
	data, err := r.store.Load(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		r.logger.Info("no snapshot found, starting with an empty registry")
		return
	}
	if err != nil {
		r.logger.Error("failed to load snapshot, starting with an empty registry", "error", err)
		return
	}
	assets, err := DecodeSnapshot(data)
	if err != nil {
		r.logger.Warn("snapshot is corrupt, starting with an empty registry", "error", err)
		return
	}
	for i := range assets {
		a := assets[i]
		r.order = append(r.order, a.Name)
		r.assets[a.Name] = &a
	}
	r.logger.Info("snapshot loaded", "assets", len(assets))
}

// Create inserts a new asset named name with the given fields and viewing
// secret. The secret is hashed before it is stored.
func (r *Registry) Create(ctx context.Context, name string, fields Fields, secret string) (Asset, error) {
	name = strings.TrimSpace(name)
	fields, err := validateCreate(name, fields, secret)
	if err != nil {
		return Asset{}, err
	}

	r.mu.RLock()
	_, exists := r.assets[name]
	r.mu.RUnlock()
	if exists {
		return Asset{}, fmt.Errorf("%w: %s", ErrConflict, name)
	}

	// Hash outside the lock; bcrypt is deliberately slow.
	digest, err := r.hash(secret)
	if err != nil {
		return Asset{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if fields.ID == "" {
		suffix, err := util.RandomChars(displayIDLen)
		if err != nil {
			return Asset{}, err
		}
		fields.ID = "AST-" + suffix
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.assets[name]; exists {
		return Asset{}, fmt.Errorf("%w: %s", ErrConflict, name)
	}
	a := &Asset{
		ID:         fields.ID,
		Name:       name,
		Location:   fields.Location,
		Department: fields.Department,
		SetupDate:  fields.SetupDate,
		SecretHash: digest,
		History:    []ScanEvent{},
	}
	r.assets[name] = a
	r.order = append(r.order, name)
	r.persistLocked(ctx, "create", name)
	return a.clone(), nil
}

func validateCreate(name string, fields Fields, secret string) (Fields, error) {
	if name == "" {
		return fields, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if strings.Contains(name, "/") {
		return fields, fmt.Errorf("%w: name must not contain '/'", ErrInvalidInput)
	}
	fields.ID = strings.TrimSpace(fields.ID)
	fields.Location = strings.TrimSpace(fields.Location)
	fields.Department = strings.TrimSpace(fields.Department)
	fields.SetupDate = strings.TrimSpace(fields.SetupDate)
	if fields.Location == "" {
		return fields, fmt.Errorf("%w: location is required", ErrInvalidInput)
	}
	if secret == "" {
		return fields, fmt.Errorf("%w: secret is required", ErrInvalidInput)
	}
	if fields.SetupDate != "" {
		if _, err := time.Parse(SetupDateLayout, fields.SetupDate); err != nil {
			return fields, fmt.Errorf("%w: setup date must be YYYY-MM-DD", ErrInvalidInput)
		}
	}
	return fields, nil
}

// Get returns a copy of the named asset.
func (r *Registry) Get(name string) (Asset, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.assets[name]
	if !ok {
		return Asset{}, false
	}
	return a.clone(), true
}

// List returns copies of all assets in insertion order.
func (r *Registry) List() []Asset {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Asset, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.assets[name].clone())
	}
	return out
}

// Len returns the number of assets.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Delete removes the named asset and its scan history.
func (r *Registry) Delete(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.assets[name]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	delete(r.assets, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.persistLocked(ctx, "delete", name)
	return nil
}

// ChangeSecret replaces the viewing secret of the named asset.
func (r *Registry) ChangeSecret(ctx context.Context, name, secret string) error {
	r.mu.RLock()
	_, ok := r.assets[name]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if secret == "" {
		return fmt.Errorf("%w: secret is required", ErrInvalidInput)
	}
	digest, err := r.hash(secret)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.assets[name]
	if !ok {
		// Deleted while the secret was being hashed.
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	a.SecretHash = digest
	r.persistLocked(ctx, "change_secret", name)
	return nil
}

// VerifySecret checks secret against the named asset's stored hash.
func (r *Registry) VerifySecret(name, secret string) (bool, error) {
	r.mu.RLock()
	a, ok := r.assets[name]
	var digest string
	if ok {
		digest = a.SecretHash
	}
	r.mu.RUnlock()
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return credential.Verify(secret, digest), nil
}

// RecordScan appends a scan event stamped with the current time. Events for
// one asset are strictly serialized and their timestamps never decrease.
func (r *Registry) RecordScan(ctx context.Context, name, device string) (ScanEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.assets[name]
	if !ok {
		return ScanEvent{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	ts := r.now().UTC()
	if last, ok := a.LastScan(); ok && ts.Before(last.Timestamp) {
		ts = last.Timestamp
	}
	ev := ScanEvent{Timestamp: ts, Device: device}
	a.History = append(a.History, ev)
	r.persistLocked(ctx, "record_scan", name)
	return ev, nil
}

// Health returns the persistence health of the registry.
func (r *Registry) Health() Health {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.health
}

// persistLocked writes the full snapshot. The caller must hold r.mu for
// writing. Failures are logged and mark the registry degraded; the
// in-memory mutation is kept.
func (r *Registry) persistLocked(ctx context.Context, op, name string) {
	assets := make([]Asset, 0, len(r.order))
	for _, n := range r.order {
		assets = append(assets, *r.assets[n])
	}
	data, err := EncodeSnapshot(assets)
	if err == nil {
		// A client disconnect must not abort a write that already
		// happened in memory.
		err = r.store.Save(context.WithoutCancel(ctx), data)
	}
	if err != nil {
		r.health.Degraded = true
		r.health.LastError = err.Error()
		r.health.LastErrorAt = r.now().UTC()
		r.logger.Error("failed to persist snapshot",
			"op", op, "asset", name, "error", err)
		return
	}
	r.health.Degraded = false
	r.health.LastSavedAt = r.now().UTC()
}
