package oidc

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"testing"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"

	"github.com/darkauth/darkauth/internal/crypto"
	"github.com/darkauth/darkauth/internal/db/bunx"
	"github.com/darkauth/darkauth/internal/db/models"
	"github.com/darkauth/darkauth/internal/jwks"
	"github.com/darkauth/darkauth/internal/migrations"
	"github.com/darkauth/darkauth/internal/repository"
	"github.com/darkauth/darkauth/internal/services/audit"
	"github.com/darkauth/darkauth/internal/services/iam"
	"github.com/darkauth/darkauth/internal/services/sessions"
)

type testEnv struct {
	svc     *Service
	db      *bun.DB
	keys    *jwks.Manager
	kek     *crypto.KEK
	users   repository.UserRepository
	clients repository.ClientRepository
	pending repository.PendingAuthRepository
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := bunx.NewDB("file::memory:", 1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = bunx.Close(db) })

	migrator := migrate.NewMigrator(db, migrations.Migrations)
	ctx := context.Background()
	require.NoError(t, migrator.Init(ctx))
	_, err = migrator.Migrate(ctx)
	require.NoError(t, err)

	kek, err := crypto.NewKEK("test-passphrase-0123456789", "https://auth.example.com")
	require.NoError(t, err)

	keys, err := jwks.NewManager(repository.NewBunJWKSRepository(db), kek, jwks.AlgEdDSA)
	require.NoError(t, err)
	require.NoError(t, keys.EnsureKey(ctx))

	auditSvc := audit.NewService(repository.NewBunAuditRepository(db))
	t.Cleanup(auditSvc.Close)

	users := repository.NewBunUserRepository(db)
	clients := repository.NewBunClientRepository(db)
	pending := repository.NewBunPendingAuthRepository(db)

	svc := NewService(Deps{
		Clients:  clients,
		Pending:  pending,
		Codes:    repository.NewBunAuthCodeRepository(db),
		Users:    users,
		Sessions: sessions.NewService(repository.NewBunSessionRepository(db), time.Hour, 24*time.Hour, true),
		IAM:      iam.NewService(iam.Deps{RBAC: repository.NewBunRBACRepository(db)}, iam.Config{}),
		Keys:     keys,
		KEK:      kek,
		Audit:    auditSvc,
	}, Config{
		Issuer:          "https://auth.example.com",
		UIOrigin:        "https://auth.example.com/ui",
		IDTokenLifetime: 5 * time.Minute,
		RefreshLifetime: 24 * time.Hour,
	})

	return &testEnv{svc: svc, db: db, keys: keys, kek: kek, users: users, clients: clients, pending: pending}
}

func (e *testEnv) createUser(t *testing.T, email string) *models.User {
	t.Helper()
	now := time.Now()
	verified := now.Add(-time.Hour)
	user := &models.User{
		Sub:             uuid.Must(uuid.NewV7()).String(),
		Email:           email,
		Name:            "Test User",
		EmailVerifiedAt: &verified,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	require.NoError(t, e.users.Create(context.Background(), user))
	return user
}

func (e *testEnv) createClient(t *testing.T, client *models.Client) *models.Client {
	t.Helper()
	now := time.Now()
	client.Name = "Test Client"
	client.GrantTypes = []string{GrantAuthorizationCode, GrantRefreshToken}
	client.ResponseTypes = []string{"code"}
	client.Scopes = []string{"openid", "profile"}
	client.CreatedAt = now
	client.UpdatedAt = now
	require.NoError(t, e.clients.Create(context.Background(), client))
	return client
}

func (e *testEnv) createPublicClient(t *testing.T, clientID string) *models.Client {
	return e.createClient(t, &models.Client{
		ClientID:                clientID,
		Type:                    models.ClientTypePublic,
		TokenEndpointAuthMethod: models.AuthMethodNone,
		RequirePKCE:             true,
		RedirectURIs:            []string{"https://app.example.com/cb"},
		ZKDelivery:              models.ZKDeliveryNone,
	})
}

func (e *testEnv) createConfidentialClient(t *testing.T, clientID, secret string) *models.Client {
	t.Helper()
	enc, err := e.kek.WrapString(secret)
	require.NoError(t, err)
	return e.createClient(t, &models.Client{
		ClientID:                clientID,
		Type:                    models.ClientTypeConfidential,
		TokenEndpointAuthMethod: models.AuthMethodClientSecretBasic,
		RedirectURIs:            []string{"https://backend.example.com/cb"},
		ZKDelivery:              models.ZKDeliveryNone,
		ClientSecretEnc:         enc,
	})
}

func userSession(sub string) *models.Session {
	return &models.Session{
		ID:        uuid.NewString(),
		ActorKind: models.ActorKindUser,
		UserSub:   &sub,
	}
}

// authorize opens a pending auth the way the /authorize handler would.
func (e *testEnv) authorize(t *testing.T, req AuthorizeRequest) *models.PendingAuth {
	t.Helper()
	if req.ResponseType == "" {
		req.ResponseType = "code"
	}
	if req.Scope == "" {
		req.Scope = "openid"
	}
	pa, err := e.svc.Authorize(context.Background(), req)
	require.NoError(t, err)
	return pa
}

// approve finalizes a pending auth and returns the minted code.
func (e *testEnv) approve(t *testing.T, session *models.Session, pa *models.PendingAuth, drkHash string) string {
	t.Helper()
	result, err := e.svc.Finalize(context.Background(), session, FinalizeRequest{
		RequestID: pa.RequestID,
		Approve:   true,
		DRKHash:   drkHash,
	})
	require.NoError(t, err)
	require.NotEmpty(t, result.Code)
	return result.Code
}

func assertOAuthError(t *testing.T, err error, code string) {
	t.Helper()
	var oauthErr *Error
	require.ErrorAs(t, err, &oauthErr)
	assert.Equal(t, code, oauthErr.Code)
}

// parseIDToken verifies the signature against the published JWKS and returns
// the claims.
func parseIDToken(t *testing.T, keys *jwks.Manager, token string) jwt.MapClaims {
	t.Helper()
	parsed, err := jwt.Parse(token, func(token *jwt.Token) (any, error) {
		set, err := keys.PublicJWKS(context.Background())
		if err != nil {
			return nil, err
		}
		kid, _ := token.Header["kid"].(string)
		for _, key := range set.Keys {
			if key.KeyID == kid {
				return key.Key, nil
			}
		}
		return nil, jwt.ErrTokenUnverifiable
	}, jwt.WithValidMethods([]string{"EdDSA"}))
	require.NoError(t, err)
	require.True(t, parsed.Valid)
	return parsed.Claims.(jwt.MapClaims)
}

func TestFinalize(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createPublicClient(t, "app")
	user := env.createUser(t, "alice@example.com")
	session := userSession(user.Sub)

	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	challenge := crypto.SHA256Base64URL([]byte(verifier))

	newPending := func(t *testing.T) *models.PendingAuth {
		return env.authorize(t, AuthorizeRequest{
			ClientID:            "app",
			RedirectURI:         "https://app.example.com/cb",
			State:               "xyz",
			CodeChallenge:       challenge,
			CodeChallengeMethod: "S256",
		})
	}

	t.Run("deny returns access_denied to the redirect uri", func(t *testing.T) {
		pa := newPending(t)
		result, err := env.svc.Finalize(ctx, session, FinalizeRequest{RequestID: pa.RequestID, Approve: false})
		require.NoError(t, err)
		assert.Empty(t, result.Code)
		assert.Equal(t, CodeAccessDenied, result.Error)
		assert.Equal(t, "https://app.example.com/cb", result.RedirectURI)
		require.NotNil(t, result.State)
		assert.Equal(t, "xyz", *result.State)

		// The request is gone; it cannot be approved afterwards.
		_, err = env.svc.Finalize(ctx, session, FinalizeRequest{RequestID: pa.RequestID, Approve: true})
		assertOAuthError(t, err, CodeInvalidRequest)
	})

	t.Run("approve mints a code and preserves state", func(t *testing.T) {
		pa := newPending(t)
		result, err := env.svc.Finalize(ctx, session, FinalizeRequest{RequestID: pa.RequestID, Approve: true})
		require.NoError(t, err)
		assert.NotEmpty(t, result.Code)
		assert.Empty(t, result.Error)
		require.NotNil(t, result.State)
		assert.Equal(t, "xyz", *result.State)
	})

	t.Run("request bound to another subject is refused", func(t *testing.T) {
		pa := newPending(t)
		other := env.createUser(t, "mallory@example.com")
		require.NoError(t, env.pending.BindUser(ctx, pa.RequestID, other.Sub))

		_, err := env.svc.Finalize(ctx, session, FinalizeRequest{RequestID: pa.RequestID, Approve: true})
		assertOAuthError(t, err, CodeForbidden)
	})

	t.Run("admin sessions cannot finalize", func(t *testing.T) {
		pa := newPending(t)
		adminID := "admin-1"
		admin := &models.Session{ID: uuid.NewString(), ActorKind: models.ActorKindAdmin, AdminID: &adminID}
		_, err := env.svc.Finalize(ctx, admin, FinalizeRequest{RequestID: pa.RequestID, Approve: true})
		assertOAuthError(t, err, CodeForbidden)
	})

	t.Run("pending second factor blocks finalize", func(t *testing.T) {
		pa := newPending(t)
		pending := userSession(user.Sub)
		pending.OtpRequired = true
		_, err := env.svc.Finalize(ctx, pending, FinalizeRequest{RequestID: pa.RequestID, Approve: true})
		assertOAuthError(t, err, CodeForbidden)
	})

	t.Run("expired request is rejected", func(t *testing.T) {
		pa := newPending(t)
		env.svc.now = func() time.Time { return time.Now().Add(pendingAuthTTL + time.Minute) }
		defer func() { env.svc.now = time.Now }()

		_, err := env.svc.Finalize(ctx, session, FinalizeRequest{RequestID: pa.RequestID, Approve: true})
		assertOAuthError(t, err, CodeInvalidRequest)
	})

	t.Run("drk hash must be base64url", func(t *testing.T) {
		pa := newPending(t)
		_, err := env.svc.Finalize(ctx, session, FinalizeRequest{RequestID: pa.RequestID, Approve: true, DRKHash: "not base64!"})
		assertOAuthError(t, err, CodeInvalidRequest)
	})

	t.Run("unknown request id", func(t *testing.T) {
		_, err := env.svc.Finalize(ctx, session, FinalizeRequest{RequestID: uuid.NewString(), Approve: true})
		assertOAuthError(t, err, CodeInvalidRequest)
	})
}

func TestTokenExchangeCode(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createPublicClient(t, "app")
	user := env.createUser(t, "alice@example.com")
	session := userSession(user.Sub)

	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	challenge := crypto.SHA256Base64URL([]byte(verifier))

	mintCode := func(t *testing.T, nonce string) string {
		pa := env.authorize(t, AuthorizeRequest{
			ClientID:            "app",
			RedirectURI:         "https://app.example.com/cb",
			Nonce:               nonce,
			CodeChallenge:       challenge,
			CodeChallengeMethod: "S256",
		})
		return env.approve(t, session, pa, "")
	}

	exchange := func(code string) TokenRequest {
		return TokenRequest{
			GrantType:    GrantAuthorizationCode,
			Code:         code,
			RedirectURI:  "https://app.example.com/cb",
			CodeVerifier: verifier,
			ClientID:     "app",
		}
	}

	t.Run("happy path carries the stored nonce into the id token", func(t *testing.T) {
		code := mintCode(t, "nonce-123")
		resp, err := env.svc.Token(ctx, exchange(code))
		require.NoError(t, err)
		assert.Equal(t, "Bearer", resp.TokenType)
		assert.NotEmpty(t, resp.RefreshToken)
		assert.Empty(t, resp.ZKDRKHash)

		claims := parseIDToken(t, env.keys, resp.IDToken)
		assert.Equal(t, "https://auth.example.com", claims["iss"])
		assert.Equal(t, user.Sub, claims["sub"])
		assert.Equal(t, "app", claims["aud"])
		assert.Equal(t, "alice@example.com", claims["email"])
		assert.Equal(t, true, claims["email_verified"])
		// The nonce comes from the authorization request, not the token
		// request, which has no way to supply one.
		assert.Equal(t, "nonce-123", claims["nonce"])
	})

	t.Run("code is single use", func(t *testing.T) {
		code := mintCode(t, "")
		_, err := env.svc.Token(ctx, exchange(code))
		require.NoError(t, err)

		_, err = env.svc.Token(ctx, exchange(code))
		assertOAuthError(t, err, CodeInvalidGrant)
	})

	t.Run("redirect_uri must match the authorization request", func(t *testing.T) {
		code := mintCode(t, "")
		req := exchange(code)
		req.RedirectURI = "https://app.example.com/cb/other"
		_, err := env.svc.Token(ctx, req)
		assertOAuthError(t, err, CodeInvalidGrant)
	})

	t.Run("wrong verifier fails", func(t *testing.T) {
		code := mintCode(t, "")
		req := exchange(code)
		req.CodeVerifier = "definitely-not-the-right-verifier-aaaa"
		_, err := env.svc.Token(ctx, req)
		assertOAuthError(t, err, CodeInvalidGrant)
	})

	t.Run("missing verifier fails", func(t *testing.T) {
		code := mintCode(t, "")
		req := exchange(code)
		req.CodeVerifier = ""
		_, err := env.svc.Token(ctx, req)
		assertOAuthError(t, err, CodeInvalidRequest)
	})

	t.Run("client_id mismatch fails", func(t *testing.T) {
		code := mintCode(t, "")
		req := exchange(code)
		req.ClientID = "someone-else"
		_, err := env.svc.Token(ctx, req)
		assertOAuthError(t, err, CodeUnauthorizedClient)
	})

	t.Run("public client must not send basic credentials", func(t *testing.T) {
		code := mintCode(t, "")
		req := exchange(code)
		req.HasBasic = true
		req.BasicID = "app"
		_, err := env.svc.Token(ctx, req)
		assertOAuthError(t, err, CodeUnauthorizedClient)
	})

	t.Run("expired code fails", func(t *testing.T) {
		code := mintCode(t, "")
		env.svc.now = func() time.Time { return time.Now().Add(authCodeTTL + time.Minute) }
		defer func() { env.svc.now = time.Now }()

		_, err := env.svc.Token(ctx, exchange(code))
		assertOAuthError(t, err, CodeInvalidGrant)
	})

	t.Run("unknown code fails", func(t *testing.T) {
		_, err := env.svc.Token(ctx, exchange("no-such-code"))
		assertOAuthError(t, err, CodeInvalidGrant)
	})
}

func TestTokenZKDeliveryPassthrough(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "alice@example.com")
	session := userSession(user.Sub)

	env.createClient(t, &models.Client{
		ClientID:                "zk-app",
		Type:                    models.ClientTypePublic,
		TokenEndpointAuthMethod: models.AuthMethodNone,
		RequirePKCE:             true,
		RedirectURIs:            []string{"https://app.example.com/cb"},
		ZKDelivery:              models.ZKDeliveryFragmentJWE,
	})

	p256, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	zkPub := encodeJWK(t, jose.JSONWebKey{Key: &p256.PublicKey})

	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	challenge := crypto.SHA256Base64URL([]byte(verifier))
	drkHash := crypto.SHA256Base64URL([]byte("drk-material"))

	pa := env.authorize(t, AuthorizeRequest{
		ClientID:            "zk-app",
		RedirectURI:         "https://app.example.com/cb",
		CodeChallenge:       challenge,
		CodeChallengeMethod: "S256",
		ZKPub:               zkPub,
	})
	code := env.approve(t, session, pa, drkHash)

	resp, err := env.svc.Token(ctx, TokenRequest{
		GrantType:    GrantAuthorizationCode,
		Code:         code,
		RedirectURI:  "https://app.example.com/cb",
		CodeVerifier: verifier,
		ClientID:     "zk-app",
	})
	require.NoError(t, err)
	// The hash rides the token response untouched; the server never sees the
	// DRK itself.
	assert.Equal(t, drkHash, resp.ZKDRKHash)

	t.Run("no zk delivery means no hash even when supplied", func(t *testing.T) {
		env.createPublicClient(t, "plain-app")
		pa := env.authorize(t, AuthorizeRequest{
			ClientID:            "plain-app",
			RedirectURI:         "https://app.example.com/cb",
			CodeChallenge:       challenge,
			CodeChallengeMethod: "S256",
		})
		code := env.approve(t, session, pa, drkHash)

		resp, err := env.svc.Token(ctx, TokenRequest{
			GrantType:    GrantAuthorizationCode,
			Code:         code,
			RedirectURI:  "https://app.example.com/cb",
			CodeVerifier: verifier,
			ClientID:     "plain-app",
		})
		require.NoError(t, err)
		assert.Empty(t, resp.ZKDRKHash)
	})
}

func TestTokenConfidentialClient(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createConfidentialClient(t, "backend", "s3cret-s3cret")
	user := env.createUser(t, "alice@example.com")
	session := userSession(user.Sub)

	mintCode := func(t *testing.T) string {
		pa := env.authorize(t, AuthorizeRequest{
			ClientID:    "backend",
			RedirectURI: "https://backend.example.com/cb",
		})
		return env.approve(t, session, pa, "")
	}

	t.Run("basic auth with the right secret succeeds", func(t *testing.T) {
		resp, err := env.svc.Token(ctx, TokenRequest{
			GrantType:   GrantAuthorizationCode,
			Code:        mintCode(t),
			RedirectURI: "https://backend.example.com/cb",
			HasBasic:    true,
			BasicID:     "backend",
			BasicSecret: "s3cret-s3cret",
		})
		require.NoError(t, err)
		assert.NotEmpty(t, resp.IDToken)
	})

	t.Run("missing credentials fail", func(t *testing.T) {
		_, err := env.svc.Token(ctx, TokenRequest{
			GrantType:   GrantAuthorizationCode,
			Code:        mintCode(t),
			RedirectURI: "https://backend.example.com/cb",
			ClientID:    "backend",
		})
		assertOAuthError(t, err, CodeUnauthorizedClient)
	})

	t.Run("wrong secret fails", func(t *testing.T) {
		_, err := env.svc.Token(ctx, TokenRequest{
			GrantType:   GrantAuthorizationCode,
			Code:        mintCode(t),
			RedirectURI: "https://backend.example.com/cb",
			HasBasic:    true,
			BasicID:     "backend",
			BasicSecret: "wrong",
		})
		assertOAuthError(t, err, CodeUnauthorizedClient)
	})
}

func TestTokenRefreshGrant(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createPublicClient(t, "app")
	user := env.createUser(t, "alice@example.com")
	session := userSession(user.Sub)

	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	challenge := crypto.SHA256Base64URL([]byte(verifier))

	pa := env.authorize(t, AuthorizeRequest{
		ClientID:            "app",
		RedirectURI:         "https://app.example.com/cb",
		CodeChallenge:       challenge,
		CodeChallengeMethod: "S256",
	})
	code := env.approve(t, session, pa, "")
	initial, err := env.svc.Token(ctx, TokenRequest{
		GrantType:    GrantAuthorizationCode,
		Code:         code,
		RedirectURI:  "https://app.example.com/cb",
		CodeVerifier: verifier,
		ClientID:     "app",
	})
	require.NoError(t, err)

	t.Run("rotation issues a new id token and refresh token", func(t *testing.T) {
		resp, err := env.svc.Token(ctx, TokenRequest{
			GrantType:    GrantRefreshToken,
			RefreshToken: initial.RefreshToken,
			ClientID:     "app",
		})
		require.NoError(t, err)
		assert.NotEmpty(t, resp.IDToken)
		assert.NotEqual(t, initial.RefreshToken, resp.RefreshToken)

		claims := parseIDToken(t, env.keys, resp.IDToken)
		assert.Equal(t, user.Sub, claims["sub"])
		assert.Equal(t, "app", claims["aud"])
		// No authorization request backs a refresh, so no nonce.
		assert.NotContains(t, claims, "nonce")

		t.Run("the replaced token is dead", func(t *testing.T) {
			_, err := env.svc.Token(ctx, TokenRequest{
				GrantType:    GrantRefreshToken,
				RefreshToken: initial.RefreshToken,
				ClientID:     "app",
			})
			assertOAuthError(t, err, CodeInvalidGrant)
		})

		t.Run("a different client cannot use the chain", func(t *testing.T) {
			env.createPublicClient(t, "other-app")
			_, err := env.svc.Token(ctx, TokenRequest{
				GrantType:    GrantRefreshToken,
				RefreshToken: resp.RefreshToken,
				ClientID:     "other-app",
			})
			assertOAuthError(t, err, CodeUnauthorizedClient)
		})
	})

	t.Run("missing refresh token", func(t *testing.T) {
		_, err := env.svc.Token(ctx, TokenRequest{GrantType: GrantRefreshToken, ClientID: "app"})
		assertOAuthError(t, err, CodeInvalidRequest)
	})

	t.Run("unknown refresh token", func(t *testing.T) {
		_, err := env.svc.Token(ctx, TokenRequest{GrantType: GrantRefreshToken, RefreshToken: "bogus", ClientID: "app"})
		assertOAuthError(t, err, CodeInvalidGrant)
	})
}

func TestTokenClientCredentials(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	client := env.createClient(t, &models.Client{
		ClientID:                "machine",
		Type:                    models.ClientTypeConfidential,
		TokenEndpointAuthMethod: models.AuthMethodClientSecretBasic,
		ZKDelivery:              models.ZKDeliveryNone,
	})
	client.GrantTypes = append(client.GrantTypes, GrantClientCredentials)
	enc, err := env.kek.WrapString("machine-secret-1")
	require.NoError(t, err)
	client.ClientSecretEnc = enc
	require.NoError(t, env.clients.Update(ctx, client))

	t.Run("issues a scoped access token", func(t *testing.T) {
		resp, err := env.svc.Token(ctx, TokenRequest{
			GrantType:   GrantClientCredentials,
			Scope:       "openid profile",
			HasBasic:    true,
			BasicID:     "machine",
			BasicSecret: "machine-secret-1",
		})
		require.NoError(t, err)
		assert.Empty(t, resp.IDToken)
		require.NotEmpty(t, resp.AccessToken)

		claims := parseIDToken(t, env.keys, resp.AccessToken)
		assert.Equal(t, "machine", claims["sub"])
		assert.Equal(t, "openid profile", claims["scope"])
	})

	t.Run("scope beyond the client grant fails", func(t *testing.T) {
		_, err := env.svc.Token(ctx, TokenRequest{
			GrantType:   GrantClientCredentials,
			Scope:       "admin",
			HasBasic:    true,
			BasicID:     "machine",
			BasicSecret: "machine-secret-1",
		})
		assertOAuthError(t, err, CodeInvalidScope)
	})

	t.Run("public clients are refused", func(t *testing.T) {
		env.createPublicClient(t, "spa")
		_, err := env.svc.Token(ctx, TokenRequest{
			GrantType: GrantClientCredentials,
			HasBasic:  true,
			BasicID:   "spa",
		})
		assertOAuthError(t, err, CodeUnauthorizedClient)
	})

	t.Run("unsupported grant type", func(t *testing.T) {
		_, err := env.svc.Token(ctx, TokenRequest{GrantType: "password"})
		assertOAuthError(t, err, CodeUnsupportedGrantType)
	})
}
