// internal/extract/cfemail.go
package extract

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformed is returned for obfuscated payloads that cannot be decoded.
var ErrMalformed = errors.New("malformed input")

// DecodeCFEmail decodes a Cloudflare email-protection hex payload. The first
// byte is the XOR key for every following byte.
func DecodeCFEmail(payload string) (string, error) {
	payload = strings.TrimSpace(payload)
	if len(payload) < 4 || len(payload)%2 != 0 {
		return "", fmt.Errorf("%w: cfemail payload length %d", ErrMalformed, len(payload))
	}
	raw, err := hex.DecodeString(payload)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	key := raw[0]
	out := make([]byte, len(raw)-1)
	for i, b := range raw[1:] {
		out[i] = b ^ key
	}
	return string(out), nil
}

// EncodeCFEmail is the inverse of DecodeCFEmail.
func EncodeCFEmail(email string, key byte) string {
	raw := make([]byte, 0, len(email)+1)
	raw = append(raw, key)
	for i := 0; i < len(email); i++ {
		raw = append(raw, email[i]^key)
	}
	return hex.EncodeToString(raw)
}
