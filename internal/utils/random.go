package utils

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

const refreshTokenSize = 32

// TokenGenerator produces opaque bearer token values.
type TokenGenerator interface {
	NewTokenValue() (string, error)
}

// RandomTokenGenerator draws token values from crypto/rand.
type RandomTokenGenerator struct{}

// NewTokenValue returns 32 random bytes encoded as unpadded base64url.
func (RandomTokenGenerator) NewTokenValue() (string, error) {
	var raw [refreshTokenSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}
