package pake

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bytemare/opaque"

	"github.com/darkauth/darkauth/internal/crypto"
	"github.com/darkauth/darkauth/internal/db/models"
	"github.com/darkauth/darkauth/internal/repository"
)

// Session lifetime between start and finish. A finish after this window, or a
// second finish on the same session, fails.
const sessionTTL = 120 * time.Second

// Settings keys for the KEK-wrapped server key material.
const (
	settingServerPrivateKey = "pake.server_private_key"
	settingServerPublicKey  = "pake.server_public_key"
	settingOPRFSeed         = "pake.oprf_seed"
)

var (
	// ErrSessionNotFound is returned when a finish references an unknown,
	// expired, or already-finished session.
	ErrSessionNotFound = errors.New("pake session not found")

	// ErrAuthenticationFailed is the single error surfaced for any login
	// failure, wrong password and unknown account alike.
	ErrAuthenticationFailed = errors.New("authentication failed")
)

type sessionKind int

const (
	kindRegister sessionKind = iota
	kindLogin
)

// session is the single-use server-side transcript between start and finish.
type session struct {
	kind      sessionKind
	server    *opaque.Server
	actorRef  string
	fake      bool
	createdAt time.Time
}

// Service wraps the OPAQUE protocol for both realms. One instance carries the
// server AKE key pair and OPRF seed, KEK-wrapped at rest, plus the in-memory
// single-use session table.
type Service struct {
	conf             *opaque.Configuration
	serverID         []byte
	serverPrivateKey []byte
	serverPublicKey  []byte
	oprfSeed         []byte

	mu       sync.Mutex
	sessions map[string]*session
	now      func() time.Time
}

// NewService loads the server key material from settings, generating and
// persisting it on first boot. The issuer doubles as the OPAQUE server
// identity.
func NewService(ctx context.Context, settings repository.SettingsRepository, kek *crypto.KEK, issuer string) (*Service, error) {
	conf := opaque.DefaultConfiguration()

	s := &Service{
		conf:     conf,
		serverID: []byte(issuer),
		sessions: make(map[string]*session),
		now:      time.Now,
	}

	priv, err := loadWrapped(ctx, settings, kek, settingServerPrivateKey)
	if err != nil {
		return nil, err
	}
	if priv == nil {
		sk, pk := conf.KeyGen()
		seed := conf.GenerateOPRFSeed()
		if err := storeWrapped(ctx, settings, kek, settingServerPrivateKey, sk); err != nil {
			return nil, err
		}
		if err := storeWrapped(ctx, settings, kek, settingServerPublicKey, pk); err != nil {
			return nil, err
		}
		if err := storeWrapped(ctx, settings, kek, settingOPRFSeed, seed); err != nil {
			return nil, err
		}
		s.serverPrivateKey, s.serverPublicKey, s.oprfSeed = sk, pk, seed
		return s, nil
	}

	pub, err := loadWrapped(ctx, settings, kek, settingServerPublicKey)
	if err != nil {
		return nil, err
	}
	seed, err := loadWrapped(ctx, settings, kek, settingOPRFSeed)
	if err != nil {
		return nil, err
	}
	if pub == nil || seed == nil {
		return nil, errors.New("pake key material incomplete")
	}
	s.serverPrivateKey, s.serverPublicKey, s.oprfSeed = priv, pub, seed
	return s, nil
}

// ServerPublicKey returns the server AKE public key, stored alongside each
// registration record.
func (s *Service) ServerPublicKey() []byte {
	return s.serverPublicKey
}

// RegisterStart evaluates the blinded registration request. Registration is
// stateless on the server side; the returned session id only binds the
// subsequent finish to the same actor.
func (s *Service) RegisterStart(actorRef string, request []byte) (response []byte, sessionID string, err error) {
	server, err := s.conf.Server()
	if err != nil {
		return nil, "", fmt.Errorf("init opaque server: %w", err)
	}

	req, err := server.Deserialize.RegistrationRequest(request)
	if err != nil {
		return nil, "", fmt.Errorf("parse registration request: %w", err)
	}
	pks, err := server.Deserialize.DecodeAkePublicKey(s.serverPublicKey)
	if err != nil {
		return nil, "", fmt.Errorf("decode server public key: %w", err)
	}

	resp := server.RegistrationResponse(req, pks, []byte(actorRef), s.oprfSeed)

	sessionID, err = s.put(&session{kind: kindRegister, server: server, actorRef: actorRef})
	if err != nil {
		return nil, "", err
	}
	return resp.Serialize(), sessionID, nil
}

// RegisterFinish validates the client's registration record and returns the
// serialized record for storage. The session is consumed either way.
func (s *Service) RegisterFinish(sessionID, actorRef string, record []byte) ([]byte, error) {
	sess, err := s.take(sessionID)
	if err != nil {
		return nil, err
	}
	if sess.kind != kindRegister || sess.actorRef != actorRef {
		return nil, ErrSessionNotFound
	}

	rec, err := sess.server.Deserialize.RegistrationRecord(record)
	if err != nil {
		return nil, fmt.Errorf("parse registration record: %w", err)
	}
	return rec.Serialize(), nil
}

// LoginStart runs KE1 to KE2. A nil envelope means the account does not
// exist; the exchange proceeds against a deterministic fake record so the
// response is indistinguishable from a real one.
func (s *Service) LoginStart(actorRef string, envelope []byte, ke1 []byte) (ke2 []byte, sessionID string, err error) {
	server, err := s.conf.Server()
	if err != nil {
		return nil, "", fmt.Errorf("init opaque server: %w", err)
	}

	msg, err := server.Deserialize.KE1(ke1)
	if err != nil {
		return nil, "", fmt.Errorf("parse ke1: %w", err)
	}

	var record *opaque.ClientRecord
	fake := envelope == nil
	if fake {
		record, err = s.conf.GetFakeRecord([]byte(actorRef))
		if err != nil {
			return nil, "", fmt.Errorf("build fake record: %w", err)
		}
	} else {
		rec, err := server.Deserialize.RegistrationRecord(envelope)
		if err != nil {
			return nil, "", fmt.Errorf("parse stored record: %w", err)
		}
		record = &opaque.ClientRecord{
			CredentialIdentifier: []byte(actorRef),
			ClientIdentity:       []byte(actorRef),
			RegistrationRecord:   rec,
		}
	}

	if err := server.SetKeyMaterial(s.serverID, s.serverPrivateKey, s.serverPublicKey, s.oprfSeed); err != nil {
		return nil, "", fmt.Errorf("set key material: %w", err)
	}
	resp, err := server.LoginInit(msg, record)
	if err != nil {
		return nil, "", fmt.Errorf("generate ke2: %w", err)
	}

	sessionID, err = s.put(&session{kind: kindLogin, server: server, actorRef: actorRef, fake: fake})
	if err != nil {
		return nil, "", err
	}
	return resp.Serialize(), sessionID, nil
}

// LoginFinish verifies KE3 and returns the shared session key. The session is
// removed before verification, so the first finish wins and a replay sees
// ErrSessionNotFound.
func (s *Service) LoginFinish(sessionID string, ke3 []byte) (sessionKey []byte, actorRef string, err error) {
	sess, err := s.take(sessionID)
	if err != nil {
		return nil, "", err
	}
	if sess.kind != kindLogin {
		return nil, "", ErrSessionNotFound
	}

	msg, err := sess.server.Deserialize.KE3(ke3)
	if err != nil {
		return nil, "", ErrAuthenticationFailed
	}
	if err := sess.server.LoginFinish(msg); err != nil {
		return nil, "", ErrAuthenticationFailed
	}
	// A fake-record exchange can never produce a valid KE3, but guard anyway.
	if sess.fake {
		return nil, "", ErrAuthenticationFailed
	}
	return sess.server.SessionKey(), sess.actorRef, nil
}

// Sweep drops expired sessions; called periodically by the background sweeper.
func (s *Service) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Add(-sessionTTL)
	n := 0
	for id, sess := range s.sessions {
		if sess.createdAt.Before(cutoff) {
			delete(s.sessions, id)
			n++
		}
	}
	return n
}

func (s *Service) put(sess *session) (string, error) {
	id, err := crypto.RandomToken(16)
	if err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	sess.createdAt = s.now()
	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()
	return id, nil
}

// take removes and returns the session, enforcing single use and TTL.
func (s *Service) take(id string) (*session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	delete(s.sessions, id)
	if s.now().Sub(sess.createdAt) > sessionTTL {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

func loadWrapped(ctx context.Context, settings repository.SettingsRepository, kek *crypto.KEK, key string) ([]byte, error) {
	setting, err := settings.Get(ctx, key)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load %s: %w", key, err)
	}
	enc, ok := setting.Value["enc"].(string)
	if !ok {
		return nil, fmt.Errorf("setting %s malformed", key)
	}
	wrapped, err := crypto.DecodeBase64URL(enc)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	plain, err := kek.Unwrap(wrapped)
	if err != nil {
		return nil, fmt.Errorf("unwrap %s: %w", key, err)
	}
	return plain, nil
}

func storeWrapped(ctx context.Context, settings repository.SettingsRepository, kek *crypto.KEK, key string, value []byte) error {
	wrapped, err := kek.Wrap(value)
	if err != nil {
		return fmt.Errorf("wrap %s: %w", key, err)
	}
	setting := &models.Setting{
		Key:   key,
		Value: models.JSONMap{"enc": crypto.EncodeBase64URL(wrapped)},
	}
	if err := settings.Put(ctx, setting); err != nil {
		return fmt.Errorf("store %s: %w", key, err)
	}
	return nil
}
