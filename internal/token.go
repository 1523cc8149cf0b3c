package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
)

const secretSize = 32

// HashToken returns the hex SHA-256 digest of a token string. Stored session
// rows hold this digest, never the token itself.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// NewSecret returns 32 random bytes for HMAC keying.
func NewSecret() ([]byte, error) {
	secret := make([]byte, secretSize)
	if _, err := rand.Read(secret); err != nil {
		return nil, err
	}
	return secret, nil
}

// EncodeSecret renders a secret in the base64url form accepted by config.
func EncodeSecret(secret []byte) string {
	return base64.RawURLEncoding.EncodeToString(secret)
}

// DecodeSecret parses a base64url secret from config.
func DecodeSecret(encoded string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(encoded)
}
