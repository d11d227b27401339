package utils

import (
	"crypto/rand"
	"encoding/base64"
)

// APIKeyPrefix marks the keys issued by this service.
const APIKeyPrefix = "psk_"

// GenerateAPIKey returns APIKeyPrefix followed by size random bytes,
// URL safe and unpadded.
func GenerateAPIKey(size int) (string, error) {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return APIKeyPrefix + base64.RawURLEncoding.EncodeToString(b), nil
}
