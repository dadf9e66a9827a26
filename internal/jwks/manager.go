package jwks

import (
	"context"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/google/uuid"

	"github.com/darkauth/darkauth/internal/crypto"
	"github.com/darkauth/darkauth/internal/db/models"
	"github.com/darkauth/darkauth/internal/repository"
)

// Supported signing algorithms.
const (
	AlgEdDSA = "EdDSA"
	AlgES256 = "ES256"
)

// ErrUnsupportedAlgorithm is returned for any algorithm other than EdDSA or
// ES256.
var ErrUnsupportedAlgorithm = errors.New("unsupported signing algorithm")

// Manager owns the token signing keys. Private JWKs are stored KEK-wrapped;
// the active key is cached in memory and replaced under an exclusive lock on
// rotation.
type Manager struct {
	repo repository.JWKSRepository
	kek  *crypto.KEK
	alg  string

	mu     sync.RWMutex
	active *signingKey
}

type signingKey struct {
	kid     string
	alg     jose.SignatureAlgorithm
	private jose.JSONWebKey
}

// NewManager creates a key manager for the given algorithm.
func NewManager(repo repository.JWKSRepository, kek *crypto.KEK, alg string) (*Manager, error) {
	if alg != AlgEdDSA && alg != AlgES256 {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, alg)
	}
	return &Manager{repo: repo, kek: kek, alg: alg}, nil
}

// EnsureKey loads the active key, generating and persisting one when the
// store is empty (first boot).
func (m *Manager) EnsureKey(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil {
		return nil
	}

	row, err := m.repo.GetActive(ctx)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("load active signing key: %w", err)
		}
		row, err = m.generate()
		if err != nil {
			return err
		}
		if err := m.repo.Create(ctx, row); err != nil {
			return fmt.Errorf("persist signing key: %w", err)
		}
	}

	key, err := m.unwrap(row)
	if err != nil {
		return err
	}
	m.active = key
	return nil
}

// Rotate generates a fresh key pair, deactivates all previous keys, and swaps
// the in-memory signer. Old public keys stay in the JWKS so outstanding
// tokens still verify.
func (m *Manager) Rotate(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	row, err := m.generate()
	if err != nil {
		return err
	}
	if err := m.repo.Rotate(ctx, row); err != nil {
		return fmt.Errorf("rotate signing key: %w", err)
	}

	key, err := m.unwrap(row)
	if err != nil {
		return err
	}
	m.active = key
	return nil
}

// ActiveKid returns the key id of the current signer, empty before EnsureKey.
func (m *Manager) ActiveKid() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.active == nil {
		return ""
	}
	return m.active.kid
}

// Alg returns the configured signing algorithm.
func (m *Manager) Alg() string {
	return m.alg
}

// SignClaims serializes claims to JSON and signs them as a compact JWS with
// the active key, setting the kid header and typ JWT.
func (m *Manager) SignClaims(claims any) (string, error) {
	m.mu.RLock()
	key := m.active
	m.mu.RUnlock()
	if key == nil {
		return "", errors.New("no active signing key")
	}

	payload, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("marshal claims: %w", err)
	}

	opts := (&jose.SignerOptions{}).WithType("JWT").WithHeader("kid", key.kid)
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: key.alg, Key: key.private.Key}, opts)
	if err != nil {
		return "", fmt.Errorf("create signer: %w", err)
	}

	jws, err := signer.Sign(payload)
	if err != nil {
		return "", fmt.Errorf("sign claims: %w", err)
	}
	token, err := jws.CompactSerialize()
	if err != nil {
		return "", fmt.Errorf("serialize jws: %w", err)
	}
	return token, nil
}

// PublicJWKS returns the public half of every stored key, active first.
func (m *Manager) PublicJWKS(ctx context.Context) (*jose.JSONWebKeySet, error) {
	rows, err := m.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list signing keys: %w", err)
	}

	set := &jose.JSONWebKeySet{Keys: make([]jose.JSONWebKey, 0, len(rows))}
	for _, row := range rows {
		var pub jose.JSONWebKey
		if err := json.Unmarshal([]byte(row.PublicJWK), &pub); err != nil {
			return nil, fmt.Errorf("parse public jwk %s: %w", row.Kid, err)
		}
		set.Keys = append(set.Keys, pub)
	}
	return set, nil
}

// generate builds a new key pair row with the private JWK wrapped by the KEK.
func (m *Manager) generate() (*models.JWKSKey, error) {
	kid := uuid.Must(uuid.NewV7()).String()

	var priv jose.JSONWebKey
	switch m.alg {
	case AlgEdDSA:
		_, key, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("generate ed25519 key: %w", err)
		}
		priv = jose.JSONWebKey{Key: key, KeyID: kid, Algorithm: AlgEdDSA, Use: "sig"}
	case AlgES256:
		key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("generate p-256 key: %w", err)
		}
		priv = jose.JSONWebKey{Key: key, KeyID: kid, Algorithm: AlgES256, Use: "sig"}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, m.alg)
	}

	privJSON, err := priv.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("marshal private jwk: %w", err)
	}
	privEnc, err := m.kek.Wrap(privJSON)
	if err != nil {
		return nil, fmt.Errorf("wrap private jwk: %w", err)
	}

	pubJSON, err := priv.Public().MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("marshal public jwk: %w", err)
	}

	return &models.JWKSKey{
		Kid:           kid,
		Alg:           m.alg,
		PublicJWK:     string(pubJSON),
		PrivateJWKEnc: privEnc,
		Active:        true,
	}, nil
}

// unwrap decrypts a stored row into an in-memory signer.
func (m *Manager) unwrap(row *models.JWKSKey) (*signingKey, error) {
	privJSON, err := m.kek.Unwrap(row.PrivateJWKEnc)
	if err != nil {
		return nil, fmt.Errorf("unwrap private jwk %s: %w", row.Kid, err)
	}
	var priv jose.JSONWebKey
	if err := json.Unmarshal(privJSON, &priv); err != nil {
		return nil, fmt.Errorf("parse private jwk %s: %w", row.Kid, err)
	}
	return &signingKey{
		kid:     row.Kid,
		alg:     jose.SignatureAlgorithm(row.Alg),
		private: priv,
	}, nil
}
