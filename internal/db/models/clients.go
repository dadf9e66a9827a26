package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Client types and auth methods.
const (
	ClientTypePublic       = "public"
	ClientTypeConfidential = "confidential"

	AuthMethodNone              = "none"
	AuthMethodClientSecretBasic = "client_secret_basic"

	ZKDeliveryNone        = "none"
	ZKDeliveryFragmentJWE = "fragment-jwe"
)

// Client is a registered OAuth/OIDC relying application.
// Public clients carry no secret and must use PKCE; confidential clients
// authenticate with client_secret_basic and a KEK-encrypted secret.
type Client struct {
	bun.BaseModel `bun:"table:clients,alias:c"`

	ClientID                    string     `bun:"client_id,pk"`
	Name                        string     `bun:"name"`
	Type                        string     `bun:"type,notnull"`                       // public | confidential
	TokenEndpointAuthMethod     string     `bun:"token_endpoint_auth_method,notnull"` // none | client_secret_basic
	RequirePKCE                 bool       `bun:"require_pkce,notnull,default:true"`
	RedirectURIs                StringList `bun:"redirect_uris,type:jsonb,notnull"`
	PostLogoutRedirectURIs      StringList `bun:"post_logout_redirect_uris,type:jsonb"`
	GrantTypes                  StringList `bun:"grant_types,type:jsonb,notnull"`
	ResponseTypes               StringList `bun:"response_types,type:jsonb,notnull"`
	Scopes                      StringList `bun:"scopes,type:jsonb,notnull"`
	AllowedZKOrigins            StringList `bun:"allowed_zk_origins,type:jsonb"`
	ZKDelivery                  string     `bun:"zk_delivery,notnull,default:'none'"` // none | fragment-jwe
	ZKRequired                  bool       `bun:"zk_required,notnull,default:false"`
	IDTokenLifetimeSeconds      *int       `bun:"id_token_lifetime_seconds"`
	RefreshTokenLifetimeSeconds *int       `bun:"refresh_token_lifetime_seconds"`
	ClientSecretEnc             []byte     `bun:"client_secret_enc,type:bytea"` // KEK-wrapped, confidential only
	CreatedAt                   time.Time  `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt                   time.Time  `bun:"updated_at,notnull,default:current_timestamp"`
}

// IsPublic reports whether the client is a public client.
func (c *Client) IsPublic() bool {
	return c.Type == ClientTypePublic
}

// HasRedirectURI checks the request redirect against the registered list.
// Comparison is byte-exact; normalization happens at registration time.
func (c *Client) HasRedirectURI(uri string) bool {
	return c.RedirectURIs.Contains(uri)
}

// HasGrantType reports whether the client may use the given grant.
func (c *Client) HasGrantType(grant string) bool {
	return c.GrantTypes.Contains(grant)
}
