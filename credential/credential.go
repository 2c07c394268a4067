// Package credential holds the two credential domains: the fixed
// administrator pair, and the hashed per-asset viewing secrets.
package credential

import (
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/awnumar/memguard"
	"golang.org/x/crypto/bcrypt"

	"github.com/jmcleod/assettag/internal/util"
)

// DefaultCost is the bcrypt work factor applied to asset secrets.
const DefaultCost = 10

// MaxSecretLen is the longest normalized secret, in bytes, that bcrypt
// can hash without truncation.
const MaxSecretLen = 72

var (
	// ErrEmptySecret is returned when hashing an empty plaintext.
	ErrEmptySecret = errors.New("secret must not be empty")
	// ErrEmptyAdmin is returned when the administrator pair is incomplete.
	ErrEmptyAdmin = errors.New("administrator username and password are required")
	// ErrSecretTooLong is returned when a secret exceeds MaxSecretLen bytes.
	ErrSecretTooLong = fmt.Errorf("secret must be at most %d bytes", MaxSecretLen)
)

// Hash returns a salted one-way digest of plaintext using DefaultCost.
func Hash(plaintext string) (string, error) {
	return HashWithCost(plaintext, DefaultCost)
}

// HashWithCost is Hash with an explicit bcrypt cost. Tests use
// bcrypt.MinCost to keep suites fast.
func HashWithCost(plaintext string, cost int) (string, error) {
	if plaintext == "" {
		return "", ErrEmptySecret
	}
	normalized := util.Normalize(plaintext)
	if len(normalized) > MaxSecretLen {
		return "", ErrSecretTooLong
	}
	digest, err := bcrypt.GenerateFromPassword([]byte(normalized), cost)
	if err != nil {
		return "", fmt.Errorf("hashing secret: %w", err)
	}
	return string(digest), nil
}

// Verify reports whether plaintext matches digest. A malformed or empty
// digest never matches, and neither does a secret longer than MaxSecretLen,
// since bcrypt compares only the first MaxSecretLen bytes.
func Verify(plaintext, digest string) bool {
	if digest == "" {
		return false
	}
	normalized := util.Normalize(plaintext)
	if len(normalized) > MaxSecretLen {
		return false
	}
	err := bcrypt.CompareHashAndPassword([]byte(digest), []byte(normalized))
	return err == nil
}

// WellFormed reports whether digest parses as a bcrypt hash.
func WellFormed(digest string) bool {
	_, err := bcrypt.Cost([]byte(digest))
	return err == nil
}

// Admin is the static administrator credential pair. Both values are kept
// in memguard enclaves so they are encrypted while at rest in memory.
type Admin struct {
	user *memguard.Enclave
	pass *memguard.Enclave
}

// NewAdmin seals the configured pair.
func NewAdmin(user, pass string) (*Admin, error) {
	if user == "" || pass == "" {
		return nil, ErrEmptyAdmin
	}
	return &Admin{
		user: memguard.NewEnclave([]byte(user)),
		pass: memguard.NewEnclave([]byte(pass)),
	}, nil
}

// Check compares user and pass against the configured pair by exact string
// equality, in constant time with respect to the contents.
func (a *Admin) Check(user, pass string) bool {
	if a == nil || a.user == nil || a.pass == nil {
		return false
	}
	u, err := a.user.Open()
	if err != nil {
		return false
	}
	defer u.Destroy()
	p, err := a.pass.Open()
	if err != nil {
		return false
	}
	defer p.Destroy()

	userOK := subtle.ConstantTimeCompare(u.Bytes(), []byte(user))
	passOK := subtle.ConstantTimeCompare(p.Bytes(), []byte(pass))
	return userOK&passOK == 1
}

// Destroy drops the enclaves. Subsequent checks fail.
func (a *Admin) Destroy() {
	if a == nil {
		return
	}
	a.user = nil
	a.pass = nil
}
