package api

import (
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"
)

// attemptLimiter tracks failed credential attempts per key and enforces
// exponential backoff once a threshold is reached. Login keys on the client
// IP; asset verification keys on client IP and asset name.
type attemptLimiter struct {
	mu          sync.Mutex
	attempts    map[string]*attemptRecord
	maxFailures int
	baseLockout time.Duration
	maxLockout  time.Duration
	now         func() time.Time
}

type attemptRecord struct {
	failures    int
	lastFailure time.Time
	lockedUntil time.Time
}

const (
	loginMaxFailures  = 5
	loginBaseLockout  = 1 * time.Minute
	loginMaxLockout   = 15 * time.Minute
	verifyMaxFailures = 5
	verifyBaseLockout = 1 * time.Minute
	verifyMaxLockout  = 30 * time.Minute

	// attemptExpiry is how long after the last failure before the record is
	// garbage-collected.
	attemptExpiry = 1 * time.Hour
	// sweepThreshold triggers an inline sweep when this many keys are tracked.
	sweepThreshold = 10000
)

func newAttemptLimiter(maxFailures int, base, max time.Duration) *attemptLimiter {
	return &attemptLimiter{
		attempts:    make(map[string]*attemptRecord),
		maxFailures: maxFailures,
		baseLockout: base,
		maxLockout:  max,
		now:         time.Now,
	}
}

// check reports whether key is locked out and for how long.
func (rl *attemptLimiter) check(key string) (blocked bool, retryAfter time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rec, ok := rl.attempts[key]
	if !ok {
		return false, 0
	}
	now := rl.now()
	if now.Sub(rec.lastFailure) > attemptExpiry {
		delete(rl.attempts, key)
		return false, 0
	}
	if now.Before(rec.lockedUntil) {
		return true, rec.lockedUntil.Sub(now)
	}
	return false, 0
}

// recordFailure increments the failure counter and applies exponential
// backoff once maxFailures is reached.
func (rl *attemptLimiter) recordFailure(key string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if len(rl.attempts) >= sweepThreshold {
		rl.sweepLocked()
	}
	rec, ok := rl.attempts[key]
	if !ok {
		rec = &attemptRecord{}
		rl.attempts[key] = rec
	}
	now := rl.now()
	rec.failures++
	rec.lastFailure = now

	if rec.failures >= rl.maxFailures {
		// baseLockout * 2^(failures - maxFailures), capped.
		shift := rec.failures - rl.maxFailures
		lockout := rl.baseLockout
		for i := 0; i < shift; i++ {
			lockout *= 2
			if lockout > rl.maxLockout {
				lockout = rl.maxLockout
				break
			}
		}
		rec.lockedUntil = now.Add(lockout)
	}
}

// recordSuccess resets the failure counter.
func (rl *attemptLimiter) recordSuccess(key string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.attempts, key)
}

// sweep removes expired records.
func (rl *attemptLimiter) sweep() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.sweepLocked()
}

func (rl *attemptLimiter) sweepLocked() {
	now := rl.now()
	for key, rec := range rl.attempts {
		if now.Sub(rec.lastFailure) > attemptExpiry {
			delete(rl.attempts, key)
		}
	}
}

func verifyLimiterKey(ip, asset string) string {
	return ip + "|" + asset
}

func retryAfterString(d time.Duration) string {
	secs := int(d.Seconds())
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

const (
	globalWindow      = 1 * time.Minute
	globalMaxFailures = 100
	globalLockout     = 5 * time.Minute
)

// globalRateLimiter tracks failed logins across all clients using a
// sliding window.
type globalRateLimiter struct {
	mu          sync.Mutex
	failures    []time.Time
	lockedUntil time.Time
}

func newGlobalRateLimiter() *globalRateLimiter {
	return &globalRateLimiter{}
}

func (rl *globalRateLimiter) check() (blocked bool, retryAfter time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if time.Now().Before(rl.lockedUntil) {
		return true, time.Until(rl.lockedUntil)
	}
	return false, 0
}

func (rl *globalRateLimiter) recordFailure() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	rl.failures = trimWindow(append(rl.failures, now), now, globalWindow)
	if len(rl.failures) >= globalMaxFailures {
		rl.lockedUntil = now.Add(globalLockout)
	}
}

// extractClientIP returns the client IP, honoring proxy headers only from
// the configured trusted proxies.
func (a *API) extractClientIP(r *http.Request) string {
	return extractClientIPWithProxies(r, a.trustedProxies)
}

// extractClientIP returns the RemoteAddr host. Handlers call it after
// resolveClientIP has rewritten RemoteAddr for trusted proxies.
func extractClientIP(r *http.Request) string {
	return extractClientIPWithProxies(r, nil)
}

// extractClientIPWithProxies returns the RemoteAddr host unless the peer
// lies inside one of trustedProxies, in which case the first usable address
// from X-Forwarded-For, then Forwarded, then X-Real-IP wins.
func extractClientIPWithProxies(r *http.Request, trustedProxies []netip.Prefix) string {
	peer, _ := parseIPCandidate(r.RemoteAddr)
	if !peerTrusted(peer, trustedProxies) {
		return peer
	}
	for _, candidate := range forwardedCandidates(r.Header) {
		if ip, ok := parseIPCandidate(candidate); ok {
			return ip
		}
	}
	return peer
}

func peerTrusted(peer string, trustedProxies []netip.Prefix) bool {
	if peer == "" || len(trustedProxies) == 0 {
		return false
	}
	addr, err := netip.ParseAddr(peer)
	if err != nil {
		return false
	}
	for _, prefix := range trustedProxies {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// forwardedCandidates lists client address candidates in priority order.
func forwardedCandidates(h http.Header) []string {
	var out []string
	out = append(out, strings.Split(h.Get("X-Forwarded-For"), ",")...)
	for _, elem := range strings.Split(h.Get("Forwarded"), ",") {
		for _, pair := range strings.Split(elem, ";") {
			key, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
			if ok && strings.EqualFold(key, "for") {
				out = append(out, value)
			}
		}
	}
	return append(out, h.Get("X-Real-IP"))
}

// parseIPCandidate canonicalizes an address that may carry a port,
// brackets, quotes or an IPv6 zone.
func parseIPCandidate(raw string) (string, bool) {
	s := strings.Trim(strings.TrimSpace(raw), `"`)
	if s == "" {
		return "", false
	}
	if host, _, err := net.SplitHostPort(s); err == nil {
		s = host
	}
	s = strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
	if zone := strings.IndexByte(s, '%'); zone >= 0 {
		s = s[:zone]
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return "", false
	}
	return addr.Unmap().String(), true
}
