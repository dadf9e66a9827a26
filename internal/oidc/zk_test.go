package oidc

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"testing"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darkauth/darkauth/internal/crypto"
)

func encodeJWK(t *testing.T, key jose.JSONWebKey) string {
	t.Helper()
	raw, err := key.MarshalJSON()
	require.NoError(t, err)
	return crypto.EncodeBase64URL(raw)
}

func TestParseZKPub(t *testing.T) {
	p256, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	t.Run("valid key without kid gets a thumbprint", func(t *testing.T) {
		param := encodeJWK(t, jose.JSONWebKey{Key: &p256.PublicKey})

		jwkJSON, kid, err := ParseZKPub(param)
		require.NoError(t, err)
		assert.NotEmpty(t, jwkJSON)
		assert.NotEmpty(t, kid)

		// Thumbprints are deterministic for the same key.
		_, again, err := ParseZKPub(param)
		require.NoError(t, err)
		assert.Equal(t, kid, again)
	})

	t.Run("explicit kid is kept", func(t *testing.T) {
		param := encodeJWK(t, jose.JSONWebKey{Key: &p256.PublicKey, KeyID: "client-key-1"})

		_, kid, err := ParseZKPub(param)
		require.NoError(t, err)
		assert.Equal(t, "client-key-1", kid)
	})

	t.Run("rejects non-base64url input", func(t *testing.T) {
		_, _, err := ParseZKPub("not base64!")
		assert.Error(t, err)
	})

	t.Run("rejects non-JSON payloads", func(t *testing.T) {
		_, _, err := ParseZKPub(crypto.EncodeBase64URL([]byte("plain text")))
		assert.Error(t, err)
	})

	t.Run("rejects non-P256 keys", func(t *testing.T) {
		p384, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
		require.NoError(t, err)
		param := encodeJWK(t, jose.JSONWebKey{Key: &p384.PublicKey})

		_, _, err = ParseZKPub(param)
		assert.Error(t, err)
	})

	t.Run("rejects private keys of the wrong shape", func(t *testing.T) {
		_, _, err := ParseZKPub(crypto.EncodeBase64URL([]byte(`{"kty":"oct","k":"AAAA"}`)))
		assert.Error(t, err)
	})
}
