// Package crypto holds the low-level primitives shared by the auth engine:
// base64url codecs, random token generation, constant-time comparison, and
// PKCE S256 verification. Higher-level services (KEK, TOTP) live in sibling
// files of this package.
package crypto

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
)

// EncodeBase64URL encodes bytes as unpadded base64url, the encoding used for
// auth codes, PKCE challenges, and ZK parameters on the wire.
func EncodeBase64URL(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

// DecodeBase64URL decodes unpadded base64url. Padded input is rejected.
func DecodeBase64URL(s string) ([]byte, error) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode base64url: %w", err)
	}
	return b, nil
}

// RandomBytes returns n cryptographically secure random bytes.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("read random bytes: %w", err)
	}
	return b, nil
}

// RandomToken returns a base64url string carrying n random bytes.
// Used for auth codes (32 bytes), refresh secrets, and session ids.
func RandomToken(n int) (string, error) {
	b, err := RandomBytes(n)
	if err != nil {
		return "", err
	}
	return EncodeBase64URL(b), nil
}

// SHA256Base64URL returns the unpadded base64url encoding of SHA-256(data).
func SHA256Base64URL(data []byte) string {
	sum := sha256.Sum256(data)
	return EncodeBase64URL(sum[:])
}

// HashToken hashes an opaque secret for storage and lookup. Tokens are never
// persisted in the clear; the hash is the database key.
func HashToken(token string) string {
	return SHA256Base64URL([]byte(token))
}

// ConstantTimeEquals compares two secrets without leaking timing information.
// Unequal lengths are folded into the comparison rather than short-circuited.
func ConstantTimeEquals(a, b string) bool {
	// hmac.Equal on fixed-size digests avoids the length side channel of a
	// direct subtle.ConstantTimeCompare on variable-length inputs.
	ah := sha256.Sum256([]byte(a))
	bh := sha256.Sum256([]byte(b))
	return hmac.Equal(ah[:], bh[:])
}

// ConstantTimeBytesEquals compares two equal-purpose byte slices in constant
// time, hashing first so the lengths need not match.
func ConstantTimeBytesEquals(a, b []byte) bool {
	ah := sha256.Sum256(a)
	bh := sha256.Sum256(b)
	return subtle.ConstantTimeCompare(ah[:], bh[:]) == 1
}

// VerifyPKCES256 checks code_challenge == BASE64URL(SHA256(code_verifier))
// per RFC 7636 section 4.6, in constant time.
func VerifyPKCES256(verifier, challenge string) bool {
	computed := SHA256Base64URL([]byte(verifier))
	return ConstantTimeEquals(computed, challenge)
}
