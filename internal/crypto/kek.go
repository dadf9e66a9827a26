package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
)

const (
	kekKeyLen = 32

	// Argon2id parameters for deriving the KEK from the operator passphrase.
	// The derivation runs once per process start, so the cost can be high.
	kekArgonTime    = 3
	kekArgonMemory  = 64 * 1024
	kekArgonThreads = 4
)

// ErrKEKPassphraseTooShort is returned when the configured passphrase does not
// meet the production minimum.
var ErrKEKPassphraseTooShort = errors.New("kek passphrase must be at least 16 characters")

// KEK is the process-level key-encryption-key. It wraps at-rest secrets
// (client secrets, OTP seeds, JWK private keys) with AES-256-GCM. The key is
// derived once from the operator passphrase and held in memory for the
// process lifetime; access is lock-free.
type KEK struct {
	aead cipher.AEAD
}

// NewKEK derives the symmetric key from the passphrase with Argon2id. The
// salt is fixed per deployment: SHA-256 of the issuer URL, so the same
// passphrase yields the same KEK across restarts without persisting salt
// material next to the ciphertexts.
func NewKEK(passphrase, issuer string) (*KEK, error) {
	if len(passphrase) < 16 {
		return nil, ErrKEKPassphraseTooShort
	}
	salt := sha256.Sum256([]byte("darkauth-kek:" + issuer))
	key := argon2.IDKey([]byte(passphrase), salt[:], kekArgonTime, kekArgonMemory, kekArgonThreads, kekKeyLen)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init kek cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init kek gcm: %w", err)
	}
	return &KEK{aead: aead}, nil
}

// Wrap encrypts plaintext under the KEK. The nonce is prepended to the
// returned ciphertext.
func (k *KEK) Wrap(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, k.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("kek nonce: %w", err)
	}
	return k.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Unwrap decrypts a ciphertext produced by Wrap.
func (k *KEK) Unwrap(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < k.aead.NonceSize() {
		return nil, errors.New("kek ciphertext too short")
	}
	nonce, data := ciphertext[:k.aead.NonceSize()], ciphertext[k.aead.NonceSize():]
	plaintext, err := k.aead.Open(nil, nonce, data, nil)
	if err != nil {
		return nil, fmt.Errorf("kek unwrap: %w", err)
	}
	return plaintext, nil
}

// WrapString is a convenience for wrapping text secrets.
func (k *KEK) WrapString(s string) ([]byte, error) {
	return k.Wrap([]byte(s))
}

// UnwrapString unwraps a ciphertext produced by WrapString.
func (k *KEK) UnwrapString(ciphertext []byte) (string, error) {
	b, err := k.Unwrap(ciphertext)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
