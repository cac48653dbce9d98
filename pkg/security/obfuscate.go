package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
)

var ErrMalformedToken = errors.New("malformed obfuscated identifier")

const tagSize = 8

// Obfuscator turns a voter identifier into a URL-safe token and back. The
// encoding is keyed: tokens minted with one secret do not decode under
// another. It hides identifiers from casual view; it is not encryption.
type Obfuscator struct {
	key []byte
}

func NewObfuscator(secret string) *Obfuscator {
	sum := sha256.Sum256([]byte(secret))
	return &Obfuscator{key: sum[:]}
}

func (o *Obfuscator) Encode(identifier string) string {
	stream := o.keystream(len(identifier))
	buf := make([]byte, len(identifier), len(identifier)+tagSize)
	for i := range identifier {
		buf[i] = identifier[i] ^ stream[i]
	}
	buf = append(buf, o.tag(identifier)...)
	return base64.RawURLEncoding.EncodeToString(buf)
}

func (o *Obfuscator) Decode(token string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	if len(raw) <= tagSize {
		return "", ErrMalformedToken
	}

	body, tag := raw[:len(raw)-tagSize], raw[len(raw)-tagSize:]
	stream := o.keystream(len(body))
	plain := make([]byte, len(body))
	for i := range body {
		plain[i] = body[i] ^ stream[i]
	}

	if !hmac.Equal(tag, o.tag(string(plain))) {
		return "", ErrMalformedToken
	}
	return string(plain), nil
}

func (o *Obfuscator) keystream(n int) []byte {
	out := make([]byte, 0, n+sha256.Size)
	for counter := byte(0); len(out) < n; counter++ {
		mac := hmac.New(sha256.New, o.key)
		mac.Write([]byte{'k', counter})
		out = mac.Sum(out)
	}
	return out[:n]
}

func (o *Obfuscator) tag(identifier string) []byte {
	mac := hmac.New(sha256.New, o.key)
	mac.Write([]byte{'t'})
	mac.Write([]byte(identifier))
	return mac.Sum(nil)[:tagSize]
}
