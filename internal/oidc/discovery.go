package oidc

import (
	"strings"

	zoidc "github.com/zitadel/oidc/v3/pkg/oidc"
)

// Discovery builds the document served at /.well-known/openid-configuration.
func (s *Service) Discovery() *zoidc.DiscoveryConfiguration {
	issuer := strings.TrimRight(s.cfg.Issuer, "/")
	return &zoidc.DiscoveryConfiguration{
		Issuer:                issuer,
		AuthorizationEndpoint: issuer + "/authorize",
		TokenEndpoint:         issuer + "/token",
		JwksURI:               issuer + "/.well-known/jwks.json",
		ScopesSupported:       []string{"openid", "profile", "email"},
		ResponseTypesSupported: []string{
			"code",
		},
		GrantTypesSupported: []zoidc.GrantType{
			zoidc.GrantTypeCode,
			zoidc.GrantTypeRefreshToken,
			zoidc.GrantTypeClientCredentials,
		},
		SubjectTypesSupported:            []string{"public"},
		IDTokenSigningAlgValuesSupported: []string{s.keys.Alg()},
		TokenEndpointAuthMethodsSupported: []zoidc.AuthMethod{
			zoidc.AuthMethodNone,
			zoidc.AuthMethodBasic,
		},
		CodeChallengeMethodsSupported: []zoidc.CodeChallengeMethod{
			zoidc.CodeChallengeMethodS256,
		},
		ClaimsSupported: []string{
			"iss", "sub", "aud", "iat", "exp",
			"email", "email_verified", "name", "nonce",
			"permissions", "groups",
		},
	}
}
