// Package session is the process-lifetime table of opaque bearer tokens.
// Each token maps to exactly one of two payload variants: an administrator
// session, or a verification session scoped to a single asset.
package session

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmcleod/assettag/internal/util"
)

// Kind discriminates the payload variants.
type Kind uint8

const (
	// KindAdmin grants every administrator operation.
	KindAdmin Kind = iota + 1
	// KindAsset grants viewing rights to one named asset.
	KindAsset
)

func (k Kind) String() string {
	switch k {
	case KindAdmin:
		return "admin"
	case KindAsset:
		return "asset"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Payload is the server-side state behind a token. Asset is set only for
// KindAsset.
type Payload struct {
	Kind      Kind
	Asset     string
	CreatedAt time.Time
}

// Admin returns an administrator payload.
func Admin() Payload {
	return Payload{Kind: KindAdmin, CreatedAt: time.Now()}
}

// AssetScoped returns a payload scoped to the named asset.
func AssetScoped(name string) Payload {
	return Payload{Kind: KindAsset, Asset: name, CreatedAt: time.Now()}
}

// ErrEmptyAsset is returned when creating an asset session without a name.
var ErrEmptyAsset = errors.New("asset session requires an asset name")

const (
	// tokenEntropyBytes is the random part of a token (256 bits).
	tokenEntropyBytes = 32
	// maxTokenDraws bounds the collision re-draw loop.
	maxTokenDraws = 4
)

// Table maps tokens to payloads. It is safe for concurrent use.
type Table struct {
	mu       sync.RWMutex
	data     map[string]Payload
	adminTTL time.Duration
	assetTTL time.Duration
	now      func() time.Time
}

// Option configures a Table.
type Option func(*Table)

// WithAdminTTL expires administrator sessions after d. Zero disables expiry.
func WithAdminTTL(d time.Duration) Option {
	return func(t *Table) { t.adminTTL = d }
}

// WithAssetTTL expires asset sessions after d. Zero disables expiry.
func WithAssetTTL(d time.Duration) Option {
	return func(t *Table) { t.assetTTL = d }
}

// WithClock overrides the time source used for expiry.
func WithClock(now func() time.Time) Option {
	return func(t *Table) { t.now = now }
}

// NewTable creates an empty table. By default sessions never expire; they
// live until Destroy or process exit.
func NewTable(opts ...Option) *Table {
	t := &Table{
		data: make(map[string]Payload),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// CreateAdminSession issues a token for an administrator session.
func (t *Table) CreateAdminSession() (string, error) {
	p := Admin()
	p.CreatedAt = t.now()
	return t.insert(p)
}

// CreateAssetSession issues a token scoped to the named asset.
func (t *Table) CreateAssetSession(name string) (string, error) {
	if name == "" {
		return "", ErrEmptyAsset
	}
	p := AssetScoped(name)
	p.CreatedAt = t.now()
	return t.insert(p)
}

// Lookup resolves token. Expired sessions are evicted and reported missing.
func (t *Table) Lookup(token string) (Payload, bool) {
	if token == "" {
		return Payload{}, false
	}
	t.mu.RLock()
	p, ok := t.data[token]
	t.mu.RUnlock()
	if !ok {
		return Payload{}, false
	}
	if t.expired(p) {
		t.Destroy(token)
		return Payload{}, false
	}
	return p, true
}

// Destroy removes token. Destroying an unknown token is a no-op.
func (t *Table) Destroy(token string) {
	t.mu.Lock()
	delete(t.data, token)
	t.mu.Unlock()
}

// RevokeAsset destroys every asset session scoped to name and returns how
// many were removed.
func (t *Table) RevokeAsset(name string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for token, p := range t.data {
		if p.Kind == KindAsset && p.Asset == name {
			delete(t.data, token)
			n++
		}
	}
	return n
}

// Len returns the number of live entries, including any expired entries
// not yet evicted.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.data)
}

func (t *Table) expired(p Payload) bool {
	var ttl time.Duration
	switch p.Kind {
	case KindAdmin:
		ttl = t.adminTTL
	case KindAsset:
		ttl = t.assetTTL
	default:
		return true
	}
	return ttl > 0 && t.now().Sub(p.CreatedAt) > ttl
}

func (t *Table) insert(p Payload) (string, error) {
	for i := 0; i < maxTokenDraws; i++ {
		token, err := newToken(p.CreatedAt)
		if err != nil {
			return "", err
		}
		t.mu.Lock()
		if _, taken := t.data[token]; !taken {
			t.data[token] = p
			t.mu.Unlock()
			return token, nil
		}
		t.mu.Unlock()
	}
	return "", errors.New("session: could not allocate a unique token")
}

// newToken encodes 256 random bits followed by the creation time in
// nanoseconds.
func newToken(at time.Time) (string, error) {
	random, err := util.RandomBytes(tokenEntropyBytes)
	if err != nil {
		return "", fmt.Errorf("session token: %w", err)
	}
	buf := make([]byte, tokenEntropyBytes+8)
	copy(buf, random)
	binary.BigEndian.PutUint64(buf[tokenEntropyBytes:], uint64(at.UnixNano()))
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
