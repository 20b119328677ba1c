package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealRoundTrip(t *testing.T) {
	s, err := NewSealer("correct horse", "salt-1")
	require.NoError(t, err)
	require.True(t, s.Enabled())

	sealed, err := s.Seal("refresh-token-value")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sealed, "v1:"))
	assert.NotContains(t, sealed, "refresh-token-value")

	again, err := s.Seal("refresh-token-value")
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again, "nonce must differ per seal")

	plain, err := s.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "refresh-token-value", plain)
}

func TestOpenWrongPassphrase(t *testing.T) {
	a, err := NewSealer("alpha", "salt")
	require.NoError(t, err)
	b, err := NewSealer("bravo", "salt")
	require.NoError(t, err)

	sealed, err := a.Seal("secret")
	require.NoError(t, err)

	_, err = b.Open(sealed)
	assert.Error(t, err)
}

func TestOpenRejectsUnsealed(t *testing.T) {
	s, err := NewSealer("alpha", "salt")
	require.NoError(t, err)

	_, err = s.Open("plain-token")
	assert.ErrorIs(t, err, ErrNotSealed)

	_, err = s.Open("v1:AAAA")
	assert.Error(t, err)
}

func TestDisabledSealerPassesThrough(t *testing.T) {
	s, err := NewSealer("", "")
	require.NoError(t, err)
	assert.False(t, s.Enabled())

	v, err := s.Seal("token")
	require.NoError(t, err)
	assert.Equal(t, "token", v)

	v, err = s.Open("token")
	require.NoError(t, err)
	assert.Equal(t, "token", v)
}

func TestNewSealerRequiresSalt(t *testing.T) {
	_, err := NewSealer("pass", "")
	assert.Error(t, err)
}
