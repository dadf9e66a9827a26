package models

import (
	"time"

	"github.com/uptrace/bun"
)

// PendingAuth is an in-progress /authorize request awaiting authentication
// and consent. UserSub is bound at most once, after the user authenticates.
type PendingAuth struct {
	bun.BaseModel `bun:"table:pending_auths,alias:pa"`

	RequestID           string    `bun:"request_id,pk,type:uuid"`
	ClientID            string    `bun:"client_id,notnull"` // FK to clients(client_id)
	RedirectURI         string    `bun:"redirect_uri,notnull"`
	State               *string   `bun:"state"`
	Nonce               *string   `bun:"nonce"`
	CodeChallenge       *string   `bun:"code_challenge"`
	CodeChallengeMethod *string   `bun:"code_challenge_method"` // only S256
	ZKPubJWK            *string   `bun:"zk_pub_jwk"`            // base64url JSON JWK as received
	ZKPubKid            *string   `bun:"zk_pub_kid"`
	UserSub             *string   `bun:"user_sub"` // set once, after authentication
	Origin              string    `bun:"origin"`
	CreatedAt           time.Time `bun:"created_at,notnull,default:current_timestamp"`
	ExpiresAt           time.Time `bun:"expires_at,notnull"`
}

// AuthCode is a single-use authorization code. Consumed flips exactly once;
// the UPDATE ... WHERE consumed = false is the linearization point.
type AuthCode struct {
	bun.BaseModel `bun:"table:auth_codes,alias:ac"`

	Code                string    `bun:"code,pk"` // 256-bit random, base64url
	ClientID            string    `bun:"client_id,notnull"`
	UserSub             string    `bun:"user_sub,notnull"`
	RedirectURI         string    `bun:"redirect_uri,notnull"`
	Nonce               *string   `bun:"nonce"`
	CodeChallenge       *string   `bun:"code_challenge"`
	CodeChallengeMethod *string   `bun:"code_challenge_method"`
	Consumed            bool      `bun:"consumed,notnull,default:false"`
	HasZK               bool      `bun:"has_zk,notnull,default:false"`
	ZKPubKid            *string   `bun:"zk_pub_kid"`
	DRKHash             *string   `bun:"drk_hash"`
	CreatedAt           time.Time `bun:"created_at,notnull,default:current_timestamp"`
	ExpiresAt           time.Time `bun:"expires_at,notnull"`
}

// JWKSKey is a signing key pair. PrivateJWKEnc holds the KEK-wrapped private
// JWK; the public half is served verbatim at /.well-known/jwks.json.
type JWKSKey struct {
	bun.BaseModel `bun:"table:jwks_keys,alias:jk"`

	Kid           string     `bun:"kid,pk"`
	Alg           string     `bun:"alg,notnull"` // EdDSA | ES256
	PublicJWK     string     `bun:"public_jwk,notnull,type:text"`
	PrivateJWKEnc []byte     `bun:"private_jwk_enc,notnull,type:bytea"`
	Active        bool       `bun:"active,notnull,default:true"`
	CreatedAt     time.Time  `bun:"created_at,notnull,default:current_timestamp"`
	RotatedAt     *time.Time `bun:"rotated_at"`
}
