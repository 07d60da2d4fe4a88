package cookie

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strings"
)

// ErrSignatureInvalid is returned for any cookie value that does not verify.
var ErrSignatureInvalid = errors.New("cookie signature invalid")

// ErrNoSecrets is returned when a codec is built without usable secrets.
var ErrNoSecrets = errors.New("cookie: at least one non-empty secret is required")

var encoding = base64.RawURLEncoding

// Codec signs and verifies cookie values with an ordered list of secrets.
// It is immutable and safe for concurrent use.
type Codec struct {
	keys [][]byte
}

// NewCodec copies secrets. secrets[0] signs; all of them verify.
func NewCodec(secrets []string) (*Codec, error) {
	if len(secrets) == 0 {
		return nil, ErrNoSecrets
	}
	keys := make([][]byte, 0, len(secrets))
	for _, s := range secrets {
		if s == "" {
			return nil, ErrNoSecrets
		}
		keys = append(keys, []byte(s))
	}
	return &Codec{keys: keys}, nil
}

// Sign returns the cookie value for id.
func (c *Codec) Sign(id string) string {
	sig := mac(c.keys[0], id)
	return encoding.EncodeToString([]byte(id)) + "." + encoding.EncodeToString(sig)
}

// Verify returns the session id carried by value.
func (c *Codec) Verify(value string) (string, error) {
	encodedID, encodedSig, ok := strings.Cut(value, ".")
	if !ok || encodedID == "" || encodedSig == "" {
		return "", ErrSignatureInvalid
	}
	rawID, err := encoding.DecodeString(encodedID)
	if err != nil || len(rawID) == 0 {
		return "", ErrSignatureInvalid
	}
	sig, err := encoding.DecodeString(encodedSig)
	if err != nil || len(sig) != sha256.Size {
		return "", ErrSignatureInvalid
	}

	id := string(rawID)
	matched := false
	for _, key := range c.keys {
		// Keep checking after a match so timing does not reveal which secret signed.
		if hmac.Equal(sig, mac(key, id)) {
			matched = true
		}
	}
	if !matched {
		return "", ErrSignatureInvalid
	}
	return id, nil
}

// Sign signs id with secrets[0].
func Sign(id string, secrets []string) (string, error) {
	c, err := NewCodec(secrets)
	if err != nil {
		return "", err
	}
	return c.Sign(id), nil
}

// Verify checks value against every secret in order.
func Verify(value string, secrets []string) (string, error) {
	c, err := NewCodec(secrets)
	if err != nil {
		return "", ErrSignatureInvalid
	}
	return c.Verify(value)
}

func mac(key []byte, id string) []byte {
	h := hmac.New(sha256.New, key)
	h.Write([]byte(id))
	return h.Sum(nil)
}
