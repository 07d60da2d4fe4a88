package internal

import (
	"encoding/base64"
	"testing"
)

// FuzzParseSessionID feeds arbitrary strings to ParseSessionID. Accepted
// inputs must decode to exactly 32 bytes and re-encode to themselves.
func FuzzParseSessionID(f *testing.F) {
	f.Add("")
	f.Add("abc")
	f.Add("AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA")
	if id, err := NewSessionID(); err == nil {
		f.Add(id)
	}
	f.Add("!!!not-base64!!!")
	f.Add("aGVsbG8=")

	f.Fuzz(func(t *testing.T, input string) {
		if err := ParseSessionID(input); err != nil {
			return
		}
		raw, err := base64.RawURLEncoding.DecodeString(input)
		if err != nil {
			t.Fatalf("accepted id %q does not decode: %v", input, err)
		}
		if len(raw) != sessionIDSize {
			t.Fatalf("accepted id %q decodes to %d bytes", input, len(raw))
		}
		if got := base64.RawURLEncoding.EncodeToString(raw); got != input {
			t.Fatalf("accepted non-canonical id %q (canonical %q)", input, got)
		}
	})
}
