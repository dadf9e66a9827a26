package crypto

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestBase64URLRoundTrip(t *testing.T) {
	encoded := EncodeBase64URL([]byte{0xff, 0x00, 0x7f, 0x3e})
	decoded, err := DecodeBase64URL(encoded)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xff, 0x00, 0x7f, 0x3e}, decoded)

	// Padded input is rejected.
	_, err = DecodeBase64URL("AA==")
	assert.Error(t, err)
}

func TestRandomToken(t *testing.T) {
	a, err := RandomToken(32)
	require.NoError(t, err)
	b, err := RandomToken(32)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	raw, err := DecodeBase64URL(a)
	require.NoError(t, err)
	assert.Len(t, raw, 32)
}

func TestConstantTimeEquals(t *testing.T) {
	assert.True(t, ConstantTimeEquals("secret", "secret"))
	assert.False(t, ConstantTimeEquals("secret", "secret2"))
	assert.False(t, ConstantTimeEquals("", "secret"))
	assert.True(t, ConstantTimeEquals("", ""))
}

func TestVerifyPKCES256(t *testing.T) {
	// Appendix B of RFC 7636.
	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	challenge := "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"

	assert.True(t, VerifyPKCES256(verifier, challenge))
	assert.False(t, VerifyPKCES256("wrong-verifier", challenge))
	assert.False(t, VerifyPKCES256(verifier, "wrong-challenge"))

	t.Run("agrees with the oauth2 client helpers", func(t *testing.T) {
		clientVerifier := oauth2.GenerateVerifier()
		clientChallenge := oauth2.S256ChallengeFromVerifier(clientVerifier)
		assert.True(t, VerifyPKCES256(clientVerifier, clientChallenge))
	})
}

func TestKEK(t *testing.T) {
	kek, err := NewKEK("a-long-enough-passphrase", "https://auth.example.com")
	require.NoError(t, err)

	t.Run("wrap round-trips", func(t *testing.T) {
		wrapped, err := kek.WrapString("the secret")
		require.NoError(t, err)
		assert.NotContains(t, string(wrapped), "the secret")

		got, err := kek.UnwrapString(wrapped)
		require.NoError(t, err)
		assert.Equal(t, "the secret", got)
	})

	t.Run("same derivation unwraps across restarts", func(t *testing.T) {
		wrapped, err := kek.WrapString("persisted")
		require.NoError(t, err)

		again, err := NewKEK("a-long-enough-passphrase", "https://auth.example.com")
		require.NoError(t, err)
		got, err := again.UnwrapString(wrapped)
		require.NoError(t, err)
		assert.Equal(t, "persisted", got)
	})

	t.Run("different issuer cannot unwrap", func(t *testing.T) {
		wrapped, err := kek.WrapString("bound to issuer")
		require.NoError(t, err)

		other, err := NewKEK("a-long-enough-passphrase", "https://other.example.com")
		require.NoError(t, err)
		_, err = other.UnwrapString(wrapped)
		assert.Error(t, err)
	})

	t.Run("tampered ciphertext is rejected", func(t *testing.T) {
		wrapped, err := kek.WrapString("integrity")
		require.NoError(t, err)
		wrapped[len(wrapped)-1] ^= 0x01

		_, err = kek.Unwrap(wrapped)
		assert.Error(t, err)
	})

	t.Run("short passphrase is refused", func(t *testing.T) {
		_, err := NewKEK("short", "https://auth.example.com")
		assert.ErrorIs(t, err, ErrKEKPassphraseTooShort)
	})
}

func TestTOTP(t *testing.T) {
	secret, err := GenerateTOTPSecret()
	require.NoError(t, err)

	now := time.Now()
	step := TOTPStep(now)

	t.Run("accepts the current and adjacent steps", func(t *testing.T) {
		for _, s := range []int64{step - 1, step, step + 1} {
			code, err := TOTPCodeAt(secret, TOTPAlgorithmSHA1, s)
			require.NoError(t, err)

			matched, ok := MatchTOTP(secret, TOTPAlgorithmSHA1, code, now)
			require.True(t, ok)
			assert.Equal(t, s, matched)
		}
	})

	t.Run("rejects codes outside the window", func(t *testing.T) {
		code, err := TOTPCodeAt(secret, TOTPAlgorithmSHA1, step-2)
		require.NoError(t, err)
		_, ok := MatchTOTP(secret, TOTPAlgorithmSHA1, code, now)
		assert.False(t, ok)
	})

	t.Run("rejects garbage", func(t *testing.T) {
		_, ok := MatchTOTP(secret, TOTPAlgorithmSHA1, "000000", now)
		assert.False(t, ok)
	})

	t.Run("provisioning uri carries the parameters", func(t *testing.T) {
		uri := TOTPProvisioningURI("DarkAuth", "user@example.com", secret, TOTPAlgorithmSHA1)
		assert.Contains(t, uri, "otpauth://totp/DarkAuth:user@example.com")
		assert.Contains(t, uri, "secret="+secret)
		assert.Contains(t, uri, "issuer=DarkAuth")
		assert.Contains(t, uri, "period=30")
	})
}
