package utils

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "0123456789abcdef0123456789abcdef"

func TestEncryptDecrypt(t *testing.T) {
	sealed, err := Encrypt([]byte("pina.access-token"), []byte(testKey))
	require.NoError(t, err)
	assert.NotContains(t, sealed, "pina.access-token")

	plain, err := Decrypt(sealed, []byte(testKey))
	require.NoError(t, err)
	assert.Equal(t, "pina.access-token", plain)

	other, err := Encrypt([]byte("pina.access-token"), []byte(testKey))
	require.NoError(t, err)
	assert.NotEqual(t, sealed, other, "nonce must differ per call")
}

func TestDecryptRejectsTampering(t *testing.T) {
	_, err := Decrypt("not base64!", []byte(testKey))
	assert.Error(t, err)

	_, err = Decrypt("YWJj", []byte(testKey))
	assert.Error(t, err)

	sealed, err := Encrypt([]byte("secret"), []byte(testKey))
	require.NoError(t, err)
	_, err = Decrypt(sealed, []byte(strings.Repeat("x", 32)))
	assert.Error(t, err)
}

func TestToken(t *testing.T) {
	token, err := GenerateToken(testKey, "user-1", time.Minute)
	require.NoError(t, err)

	claims, err := ValidateToken(testKey, token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)

	_, err = ValidateToken("another-secret-key-of-32-bytes!!", token)
	assert.Error(t, err)

	expired, err := GenerateToken(testKey, "user-1", -time.Minute)
	require.NoError(t, err)
	_, err = ValidateToken(testKey, expired)
	assert.Error(t, err)
}

func TestGenerateAPIKey(t *testing.T) {
	a, err := GenerateAPIKey(24)
	require.NoError(t, err)
	b, err := GenerateAPIKey(24)
	require.NoError(t, err)
	assert.Len(t, a, len(APIKeyPrefix)+32)
	assert.True(t, strings.HasPrefix(a, APIKeyPrefix))
	assert.NotEqual(t, a, b)
}
