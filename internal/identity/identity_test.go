package identity

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProvider(t *testing.T) {
	t.Run("creates provider", func(t *testing.T) {
		p, err := NewProvider("test-secret")
		require.NoError(t, err)
		assert.NotNil(t, p)
	})

	t.Run("rejects empty secret", func(t *testing.T) {
		_, err := NewProvider("")
		assert.Error(t, err)
	})
}

func TestMintAndVerify(t *testing.T) {
	p, err := NewProvider("test-secret")
	require.NoError(t, err)

	t.Run("round trip", func(t *testing.T) {
		token, err := p.Mint("user-1", "Alice", time.Hour)
		require.NoError(t, err)

		id, err := p.Verify(token)
		require.NoError(t, err)
		assert.Equal(t, "user-1", id.UserID)
		assert.Equal(t, "Alice", id.Username)
	})

	t.Run("rejects empty user ID", func(t *testing.T) {
		_, err := p.Mint("", "Alice", time.Hour)
		assert.Error(t, err)
	})

	t.Run("rejects empty token", func(t *testing.T) {
		_, err := p.Verify("")
		assert.Error(t, err)

		_, err = p.Verify("   ")
		assert.Error(t, err)
	})

	t.Run("rejects garbage token", func(t *testing.T) {
		_, err := p.Verify("not-a-jwt")
		assert.Error(t, err)
	})

	t.Run("rejects token signed with another secret", func(t *testing.T) {
		other, err := NewProvider("different-secret")
		require.NoError(t, err)

		token, err := other.Mint("user-1", "Alice", time.Hour)
		require.NoError(t, err)

		_, err = p.Verify(token)
		assert.Error(t, err)
	})

	t.Run("rejects expired token", func(t *testing.T) {
		issued, err := NewProvider("test-secret")
		require.NoError(t, err)
		issued.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

		token, err := issued.Mint("user-1", "Alice", time.Hour)
		require.NoError(t, err)

		_, err = p.Verify(token)
		assert.Error(t, err)
	})
}

func TestFromRequest(t *testing.T) {
	p, err := NewProvider("test-secret")
	require.NoError(t, err)

	token, err := p.Mint("user-1", "Alice", time.Hour)
	require.NoError(t, err)

	t.Run("bearer header", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/api/rooms/ensure", nil)
		r.Header.Set("Authorization", "Bearer "+token)

		id, ok := p.FromRequest(r)
		require.True(t, ok)
		assert.Equal(t, "user-1", id.UserID)
	})

	t.Run("session query parameter", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/api/rooms/abc/stream?session="+token, nil)

		id, ok := p.FromRequest(r)
		require.True(t, ok)
		assert.Equal(t, "user-1", id.UserID)
	})

	t.Run("no token means no identity", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/api/rooms/ensure", nil)

		_, ok := p.FromRequest(r)
		assert.False(t, ok)
	})

	t.Run("invalid token means no identity", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/api/rooms/ensure", nil)
		r.Header.Set("Authorization", "Bearer garbage")

		_, ok := p.FromRequest(r)
		assert.False(t, ok)
	})
}
