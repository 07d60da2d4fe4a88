package internal

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
)

const (
	sessionIDSize  = 32
	stateTokenSize = 32
)

// ErrInvalidSessionID is returned by ParseSessionID for malformed ids.
var ErrInvalidSessionID = errors.New("invalid session id")

// NewSessionID returns 256 random bits, base64url without padding.
func NewSessionID() (string, error) {
	return randomToken(sessionIDSize)
}

// NewStateToken returns a random OAuth state value.
func NewStateToken() (string, error) {
	return randomToken(stateTokenSize)
}

// ParseSessionID reports whether id has the shape produced by NewSessionID.
func ParseSessionID(id string) error {
	raw, err := base64.RawURLEncoding.Strict().DecodeString(id)
	if err != nil || len(raw) != sessionIDSize {
		return ErrInvalidSessionID
	}
	return nil
}

func randomToken(size int) (string, error) {
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	// base64url, no padding, compact
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
