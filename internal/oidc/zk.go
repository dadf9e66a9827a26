package oidc

import (
	stdcrypto "crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"encoding/json"
	"fmt"

	jose "github.com/go-jose/go-jose/v4"

	"github.com/darkauth/darkauth/internal/crypto"
)

// ParseZKPub validates a zk_pub parameter: unpadded base64url of a JSON JWK
// holding an EC P-256 public key. It returns the raw JWK JSON as received and
// a stable kid, computed as the RFC 7638 thumbprint when the JWK carries none.
func ParseZKPub(param string) (jwkJSON string, kid string, err error) {
	raw, err := crypto.DecodeBase64URL(param)
	if err != nil {
		return "", "", fmt.Errorf("zk_pub is not base64url: %w", err)
	}
	if !json.Valid(raw) {
		return "", "", fmt.Errorf("zk_pub is not valid JSON")
	}

	var key jose.JSONWebKey
	if err := key.UnmarshalJSON(raw); err != nil {
		return "", "", fmt.Errorf("zk_pub is not a JWK: %w", err)
	}
	pub, ok := key.Key.(*ecdsa.PublicKey)
	if !ok || pub.Curve != elliptic.P256() {
		return "", "", fmt.Errorf("zk_pub must be an EC P-256 public key")
	}

	kid = key.KeyID
	if kid == "" {
		thumb, err := key.Thumbprint(stdcrypto.SHA256)
		if err != nil {
			return "", "", fmt.Errorf("compute zk_pub thumbprint: %w", err)
		}
		kid = crypto.EncodeBase64URL(thumb)
	}
	return string(raw), kid, nil
}
