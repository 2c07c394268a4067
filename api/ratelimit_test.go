package api

import (
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLoginLimiter() *attemptLimiter {
	return newAttemptLimiter(loginMaxFailures, loginBaseLockout, loginMaxLockout)
}

func TestAttemptLimiter_AllowsBeforeThreshold(t *testing.T) {
	rl := newLoginLimiter()

	for i := 0; i < loginMaxFailures-1; i++ {
		rl.recordFailure("192.168.1.1")
		blocked, _ := rl.check("192.168.1.1")
		assert.False(t, blocked, "should not block before reaching maxFailures")
	}
}

func TestAttemptLimiter_BlocksAfterThreshold(t *testing.T) {
	rl := newLoginLimiter()

	for i := 0; i < loginMaxFailures; i++ {
		rl.recordFailure("192.168.1.1")
	}

	blocked, retryAfter := rl.check("192.168.1.1")
	require.True(t, blocked, "should block after maxFailures")
	assert.Greater(t, retryAfter, time.Duration(0))
	assert.LessOrEqual(t, retryAfter, loginBaseLockout)
}

func TestAttemptLimiter_ExponentialBackoff(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rl := newLoginLimiter()
	rl.now = func() time.Time { return now }

	for i := 0; i < loginMaxFailures; i++ {
		rl.recordFailure("192.168.1.1")
	}
	_, first := rl.check("192.168.1.1")
	assert.Equal(t, loginBaseLockout, first)

	rl.recordFailure("192.168.1.1")
	_, second := rl.check("192.168.1.1")
	assert.Equal(t, 2*loginBaseLockout, second)
}

func TestAttemptLimiter_LockoutExpires(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rl := newLoginLimiter()
	rl.now = func() time.Time { return now }

	for i := 0; i < loginMaxFailures; i++ {
		rl.recordFailure("192.168.1.1")
	}
	blocked, _ := rl.check("192.168.1.1")
	require.True(t, blocked)

	now = now.Add(loginBaseLockout + time.Second)
	blocked, _ = rl.check("192.168.1.1")
	assert.False(t, blocked)
}

func TestAttemptLimiter_SuccessResetsCounter(t *testing.T) {
	rl := newLoginLimiter()

	for i := 0; i < loginMaxFailures; i++ {
		rl.recordFailure("192.168.1.1")
	}
	blocked, _ := rl.check("192.168.1.1")
	require.True(t, blocked)

	rl.recordSuccess("192.168.1.1")

	blocked, _ = rl.check("192.168.1.1")
	assert.False(t, blocked, "should not block after a successful attempt")
}

func TestAttemptLimiter_IsolatesKeys(t *testing.T) {
	rl := newAttemptLimiter(verifyMaxFailures, verifyBaseLockout, verifyMaxLockout)

	for i := 0; i < verifyMaxFailures; i++ {
		rl.recordFailure(verifyLimiterKey("192.168.1.1", "desk-1"))
	}
	blocked, _ := rl.check(verifyLimiterKey("192.168.1.1", "desk-1"))
	require.True(t, blocked)

	blocked, _ = rl.check(verifyLimiterKey("192.168.1.1", "desk-2"))
	assert.False(t, blocked, "other assets are unaffected")
	blocked, _ = rl.check(verifyLimiterKey("10.0.0.1", "desk-1"))
	assert.False(t, blocked, "other clients are unaffected")
}

func TestAttemptLimiter_UnknownKeyNotBlocked(t *testing.T) {
	rl := newLoginLimiter()

	blocked, _ := rl.check("unknown")
	assert.False(t, blocked)
}

func TestAttemptLimiter_SweepRemovesExpired(t *testing.T) {
	rl := newLoginLimiter()

	rl.mu.Lock()
	rl.attempts["old"] = &attemptRecord{
		failures:    loginMaxFailures + 1,
		lastFailure: time.Now().Add(-2 * attemptExpiry),
		lockedUntil: time.Now().Add(-attemptExpiry),
	}
	rl.mu.Unlock()

	rl.sweep()

	rl.mu.Lock()
	_, exists := rl.attempts["old"]
	rl.mu.Unlock()
	assert.False(t, exists, "sweep should remove expired records")
}

func TestAttemptLimiter_MaxLockoutCap(t *testing.T) {
	for _, tc := range []struct {
		name string
		rl   *attemptLimiter
		max  time.Duration
	}{
		{"login", newLoginLimiter(), loginMaxLockout},
		{"verify", newAttemptLimiter(verifyMaxFailures, verifyBaseLockout, verifyMaxLockout), verifyMaxLockout},
	} {
		t.Run(tc.name, func(t *testing.T) {
			for i := 0; i < 30; i++ {
				tc.rl.recordFailure("k")
			}
			_, retryAfter := tc.rl.check("k")
			assert.LessOrEqual(t, retryAfter, tc.max)
			assert.Greater(t, retryAfter, tc.max/2)
		})
	}
}

func TestRetryAfterString(t *testing.T) {
	assert.Equal(t, "1", retryAfterString(0))
	assert.Equal(t, "1", retryAfterString(300*time.Millisecond))
	assert.Equal(t, "60", retryAfterString(time.Minute))
}

func TestGlobalRateLimiter_AllowsBeforeThreshold(t *testing.T) {
	rl := newGlobalRateLimiter()

	for i := 0; i < globalMaxFailures-1; i++ {
		rl.recordFailure()
		blocked, _ := rl.check()
		assert.False(t, blocked, "should not block before globalMaxFailures")
	}
}

func TestGlobalRateLimiter_BlocksAfterThreshold(t *testing.T) {
	rl := newGlobalRateLimiter()

	for i := 0; i < globalMaxFailures; i++ {
		rl.recordFailure()
	}

	blocked, retryAfter := rl.check()
	require.True(t, blocked, "should block after globalMaxFailures in window")
	assert.Greater(t, retryAfter, time.Duration(0))
	assert.LessOrEqual(t, retryAfter, globalLockout+time.Second)
}

func TestGlobalRateLimiter_SlidingWindowExpiry(t *testing.T) {
	rl := newGlobalRateLimiter()

	rl.mu.Lock()
	for i := 0; i < globalMaxFailures; i++ {
		rl.failures = append(rl.failures, time.Now().Add(-2*globalWindow))
	}
	rl.mu.Unlock()

	// Old failures are outside the window and do not count.
	rl.recordFailure()
	blocked, _ := rl.check()
	assert.False(t, blocked, "expired failures outside window should not count")
}

func TestExtractClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{
			name:       "remote ipv4",
			remoteAddr: "192.168.1.1:12345",
			want:       "192.168.1.1",
		},
		{
			name:       "remote ipv6",
			remoteAddr: "[::1]:8080",
			want:       "::1",
		},
		{
			name:       "bare address after rewrite",
			remoteAddr: "198.51.100.25",
			want:       "198.51.100.25",
		},
		{
			name:       "xff ignored",
			remoteAddr: "10.0.0.1:80",
			headers:    map[string]string{"X-Forwarded-For": "198.51.100.25"},
			want:       "10.0.0.1",
		},
		{
			name:       "x-real-ip ignored",
			remoteAddr: "10.0.0.1:80",
			headers:    map[string]string{"X-Real-IP": "203.0.113.11"},
			want:       "10.0.0.1",
		},
		{
			name:       "empty when nothing parseable",
			remoteAddr: "not-a-hostport",
			want:       "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &http.Request{RemoteAddr: tt.remoteAddr}
			r.Header = make(http.Header)
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, extractClientIP(r))
		})
	}
}

func TestExtractClientIPWithTrustedProxies(t *testing.T) {
	trustedCIDR := netip.MustParsePrefix("10.0.0.0/8")

	tests := []struct {
		name           string
		remoteAddr     string
		headers        map[string]string
		trustedProxies []netip.Prefix
		want           string
	}{
		{
			name:           "trusted proxy honors XFF",
			remoteAddr:     "10.0.0.1:80",
			headers:        map[string]string{"X-Forwarded-For": "198.51.100.25"},
			trustedProxies: []netip.Prefix{trustedCIDR},
			want:           "198.51.100.25",
		},
		{
			name:           "xff skips invalid entries",
			remoteAddr:     "10.0.0.1:80",
			headers:        map[string]string{"X-Forwarded-For": "unknown, not-an-ip, 203.0.113.7"},
			trustedProxies: []netip.Prefix{trustedCIDR},
			want:           "203.0.113.7",
		},
		{
			name:           "forwarded fallback",
			remoteAddr:     "10.0.0.1:80",
			headers:        map[string]string{"Forwarded": `for=198.51.100.1;proto=https;by=203.0.113.43`},
			trustedProxies: []netip.Prefix{trustedCIDR},
			want:           "198.51.100.1",
		},
		{
			name:           "x-real-ip fallback",
			remoteAddr:     "10.0.0.1:80",
			headers:        map[string]string{"X-Real-IP": "203.0.113.11"},
			trustedProxies: []netip.Prefix{trustedCIDR},
			want:           "203.0.113.11",
		},
		{
			name:           "untrusted peer ignores XFF",
			remoteAddr:     "192.168.1.1:80",
			headers:        map[string]string{"X-Forwarded-For": "198.51.100.25"},
			trustedProxies: []netip.Prefix{trustedCIDR},
			want:           "192.168.1.1",
		},
		{
			name:           "untrusted peer ignores Forwarded",
			remoteAddr:     "192.168.1.1:80",
			headers:        map[string]string{"Forwarded": "for=198.51.100.25"},
			trustedProxies: []netip.Prefix{trustedCIDR},
			want:           "192.168.1.1",
		},
		{
			name:           "no trusted proxies configured ignores headers",
			remoteAddr:     "192.168.1.1:80",
			headers:        map[string]string{"X-Forwarded-For": "198.51.100.25"},
			trustedProxies: nil,
			want:           "192.168.1.1",
		},
		{
			name:           "trusted proxy with no headers falls back to remote",
			remoteAddr:     "10.0.0.1:80",
			trustedProxies: []netip.Prefix{trustedCIDR},
			want:           "10.0.0.1",
		},
		{
			name:           "multiple CIDRs second matches",
			remoteAddr:     "172.16.0.1:80",
			headers:        map[string]string{"X-Forwarded-For": "198.51.100.25"},
			trustedProxies: []netip.Prefix{trustedCIDR, netip.MustParsePrefix("172.16.0.0/12")},
			want:           "198.51.100.25",
		},
		{
			name:           "trusted IPv6 proxy with Forwarded quoted IPv6",
			remoteAddr:     "[fd00::1]:80",
			headers:        map[string]string{"Forwarded": `for="[2001:db8::42]:1234"`},
			trustedProxies: []netip.Prefix{netip.MustParsePrefix("fd00::/8")},
			want:           "2001:db8::42",
		},
		{
			name:           "multi-hop XFF returns the original client",
			remoteAddr:     "10.0.0.5:80",
			headers:        map[string]string{"X-Forwarded-For": "198.51.100.25, 10.0.0.3, 10.0.0.4"},
			trustedProxies: []netip.Prefix{trustedCIDR},
			want:           "198.51.100.25",
		},
		{
			name:           "IPv4-mapped peer matches IPv4 CIDR",
			remoteAddr:     "[::ffff:10.0.0.1]:80",
			headers:        map[string]string{"X-Forwarded-For": "198.51.100.25"},
			trustedProxies: []netip.Prefix{trustedCIDR},
			want:           "198.51.100.25",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &http.Request{RemoteAddr: tt.remoteAddr}
			r.Header = make(http.Header)
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, extractClientIPWithProxies(r, tt.trustedProxies))
		})
	}
}

func TestWithTrustedProxies(t *testing.T) {
	t.Run("valid CIDRs", func(t *testing.T) {
		opt, err := WithTrustedProxies([]string{"10.0.0.0/8", "172.16.0.0/12"})
		require.NoError(t, err)
		a := &API{}
		opt(a)
		assert.Len(t, a.trustedProxies, 2)
	})

	t.Run("bare IPs become host prefixes", func(t *testing.T) {
		opt, err := WithTrustedProxies([]string{"10.0.0.1", "::1"})
		require.NoError(t, err)
		a := &API{}
		opt(a)
		require.Len(t, a.trustedProxies, 2)
		assert.Equal(t, 32, a.trustedProxies[0].Bits())
		assert.Equal(t, 128, a.trustedProxies[1].Bits())
	})

	t.Run("blank entries skipped", func(t *testing.T) {
		opt, err := WithTrustedProxies([]string{" ", ""})
		require.NoError(t, err)
		a := &API{}
		opt(a)
		assert.Empty(t, a.trustedProxies)
	})

	t.Run("invalid CIDR returns error", func(t *testing.T) {
		_, err := WithTrustedProxies([]string{"not-a-cidr"})
		require.Error(t, err)
	})

	t.Run("mixed valid and invalid returns error", func(t *testing.T) {
		_, err := WithTrustedProxies([]string{"10.0.0.0/8", "garbage"})
		require.Error(t, err)
	})
}

func TestResolveClientIP(t *testing.T) {
	opt, err := WithTrustedProxies([]string{"10.0.0.0/8"})
	require.NoError(t, err)
	a := &API{}
	opt(a)

	var seen string
	h := a.resolveClientIP(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = extractClientIP(r)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.2:4321"
	req.Header.Set("X-Forwarded-For", "198.51.100.25")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "198.51.100.25", seen)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.9:4321"
	req.Header.Set("X-Forwarded-For", "198.51.100.25")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "192.0.2.9", seen)
}
