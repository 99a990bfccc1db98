package security

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSessionID(t *testing.T) {
	id := GenerateSessionID()
	_, err := uuid.Parse(id)
	assert.NoError(t, err)
	assert.NotEqual(t, id, GenerateSessionID())
}

func TestGenerateClientID(t *testing.T) {
	id := GenerateClientID()
	_, err := ulid.Parse(id)
	assert.NoError(t, err)
}

func TestGenerateSecureToken(t *testing.T) {
	token, err := GenerateSecureToken(16)
	require.NoError(t, err)
	assert.Len(t, token, 32, "hex doubles the byte length")
	assert.NotEqual(t, token, func() string { s, _ := GenerateSecureToken(16); return s }())
}

func TestEmbedTokenRoundTrip(t *testing.T) {
	secret := []byte("test-secret")

	token, err := MintEmbedToken(secret, "store-1", "sess-1", 30*time.Minute)
	require.NoError(t, err)

	claims, err := ParseEmbedToken(secret, token)
	require.NoError(t, err)
	assert.Equal(t, "store-1", claims.StoreID)
	assert.Equal(t, "sess-1", claims.SessionID)
	assert.WithinDuration(t, time.Now().Add(30*time.Minute), claims.ExpiresAt.Time, 5*time.Second)
}

func TestEmbedTokenWrongSecretRejected(t *testing.T) {
	token, err := MintEmbedToken([]byte("right"), "store-1", "sess-1", time.Minute)
	require.NoError(t, err)

	_, err = ParseEmbedToken([]byte("wrong"), token)
	assert.Error(t, err)
}

func TestEmbedTokenExpiryEnforced(t *testing.T) {
	secret := []byte("test-secret")
	token, err := MintEmbedToken(secret, "store-1", "sess-1", -time.Minute)
	require.NoError(t, err)

	_, err = ParseEmbedToken(secret, token)
	assert.Error(t, err)
}
