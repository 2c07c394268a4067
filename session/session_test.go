package session

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminSession(t *testing.T) {
	tbl := NewTable()
	token, err := tbl.CreateAdminSession()
	require.NoError(t, err)
	require.NotEmpty(t, token)

	p, ok := tbl.Lookup(token)
	require.True(t, ok)
	assert.Equal(t, KindAdmin, p.Kind)
	assert.Empty(t, p.Asset)

	tbl.Destroy(token)
	_, ok = tbl.Lookup(token)
	assert.False(t, ok)
}

func TestAssetSessionScope(t *testing.T) {
	tbl := NewTable()
	token, err := tbl.CreateAssetSession("desk-1")
	require.NoError(t, err)

	p, ok := tbl.Lookup(token)
	require.True(t, ok)
	assert.Equal(t, KindAsset, p.Kind)
	assert.Equal(t, "desk-1", p.Asset)

	_, err = tbl.CreateAssetSession("")
	assert.ErrorIs(t, err, ErrEmptyAsset)
}

func TestLookupUnknown(t *testing.T) {
	tbl := NewTable()
	_, ok := tbl.Lookup("")
	assert.False(t, ok)
	_, ok = tbl.Lookup("no-such-token")
	assert.False(t, ok)

	// Should not panic.
	tbl.Destroy("never-existed")
}

func TestTokenShape(t *testing.T) {
	tbl := NewTable()
	token, err := tbl.CreateAdminSession()
	require.NoError(t, err)
	// 40 bytes base64url without padding.
	assert.Len(t, token, 54)
	assert.NotContains(t, token, "=")
}

func TestTokensUniqueUnderConcurrency(t *testing.T) {
	tbl := NewTable()
	const n = 500
	tokens := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var token string
			var err error
			if i%2 == 0 {
				token, err = tbl.CreateAdminSession()
			} else {
				token, err = tbl.CreateAssetSession(fmt.Sprintf("asset-%d", i))
			}
			assert.NoError(t, err)
			tokens <- token
		}(i)
	}
	wg.Wait()
	close(tokens)

	seen := make(map[string]struct{}, n)
	for tok := range tokens {
		_, dup := seen[tok]
		require.False(t, dup, "duplicate token issued")
		seen[tok] = struct{}{}
		_, ok := tbl.Lookup(tok)
		assert.True(t, ok, "every issued token resolves")
	}
	assert.Equal(t, n, tbl.Len())
}

func TestSessionsNeverExpireByDefault(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tbl := NewTable(WithClock(func() time.Time { return now }))
	admin, err := tbl.CreateAdminSession()
	require.NoError(t, err)
	asset, err := tbl.CreateAssetSession("desk-1")
	require.NoError(t, err)

	now = now.Add(365 * 24 * time.Hour)
	_, ok := tbl.Lookup(admin)
	assert.True(t, ok)
	_, ok = tbl.Lookup(asset)
	assert.True(t, ok)
}

func TestAssetTTL(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tbl := NewTable(
		WithAssetTTL(time.Hour),
		WithClock(func() time.Time { return now }),
	)
	admin, err := tbl.CreateAdminSession()
	require.NoError(t, err)
	asset, err := tbl.CreateAssetSession("desk-1")
	require.NoError(t, err)

	now = now.Add(30 * time.Minute)
	_, ok := tbl.Lookup(asset)
	assert.True(t, ok)

	now = now.Add(time.Hour)
	_, ok = tbl.Lookup(asset)
	assert.False(t, ok, "asset session should expire")
	_, ok = tbl.Lookup(admin)
	assert.True(t, ok, "asset TTL does not apply to admin sessions")
	assert.Equal(t, 1, tbl.Len(), "expired session is evicted on lookup")
}

func TestAdminTTL(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tbl := NewTable(
		WithAdminTTL(time.Minute),
		WithClock(func() time.Time { return now }),
	)
	admin, err := tbl.CreateAdminSession()
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, ok := tbl.Lookup(admin)
	assert.False(t, ok)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "admin", KindAdmin.String())
	assert.Equal(t, "asset", KindAsset.String())
	assert.Equal(t, "Kind(9)", Kind(9).String())
}

func TestRevokeAsset(t *testing.T) {
	tbl := NewTable()
	admin, err := tbl.CreateAdminSession()
	require.NoError(t, err)
	a1, err := tbl.CreateAssetSession("desk-1")
	require.NoError(t, err)
	a2, err := tbl.CreateAssetSession("desk-1")
	require.NoError(t, err)
	other, err := tbl.CreateAssetSession("desk-2")
	require.NoError(t, err)

	assert.Equal(t, 2, tbl.RevokeAsset("desk-1"))
	for _, tok := range []string{a1, a2} {
		_, ok := tbl.Lookup(tok)
		assert.False(t, ok)
	}
	for _, tok := range []string{admin, other} {
		_, ok := tbl.Lookup(tok)
		assert.True(t, ok)
	}
	assert.Zero(t, tbl.RevokeAsset("desk-1"))
}
