package crypto

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	// TOTPSecretBytes is the raw secret size (160 bits per RFC 4226).
	TOTPSecretBytes = 20

	// TOTPPeriod is the step size in seconds.
	TOTPPeriod = 30

	// TOTPDigits is the code length.
	TOTPDigits = 6
)

// TOTPAlgorithm names the supported HMAC variants for provisioning URIs.
type TOTPAlgorithm string

const (
	TOTPAlgorithmSHA1   TOTPAlgorithm = "SHA1"
	TOTPAlgorithmSHA256 TOTPAlgorithm = "SHA256"
	TOTPAlgorithmSHA512 TOTPAlgorithm = "SHA512"
)

func (a TOTPAlgorithm) otpAlgorithm() otp.Algorithm {
	switch a {
	case TOTPAlgorithmSHA256:
		return otp.AlgorithmSHA256
	case TOTPAlgorithmSHA512:
		return otp.AlgorithmSHA512
	default:
		return otp.AlgorithmSHA1
	}
}

// GenerateTOTPSecret returns a fresh base32 (no padding) secret.
func GenerateTOTPSecret() (string, error) {
	raw := make([]byte, TOTPSecretBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate totp secret: %w", err)
	}
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(raw), nil
}

// TOTPStep returns the counter value for t.
func TOTPStep(t time.Time) int64 {
	return t.Unix() / TOTPPeriod
}

// TOTPCodeAt computes the code for the secret at the given step. Exposed for
// the replay guard, which must know WHICH step matched, not just that one did.
func TOTPCodeAt(secret string, alg TOTPAlgorithm, step int64) (string, error) {
	at := time.Unix(step*TOTPPeriod, 0).UTC()
	code, err := totp.GenerateCodeCustom(secret, at, totp.ValidateOpts{
		Period:    TOTPPeriod,
		Digits:    otp.Digits(TOTPDigits),
		Algorithm: alg.otpAlgorithm(),
	})
	if err != nil {
		return "", fmt.Errorf("generate totp code: %w", err)
	}
	return code, nil
}

// MatchTOTP checks the submitted code against steps now-1, now, now+1 and
// returns the matching step. The comparison per candidate is constant time.
// Returns (0, false) when no step matches.
func MatchTOTP(secret string, alg TOTPAlgorithm, code string, now time.Time) (int64, bool) {
	current := TOTPStep(now)
	for _, step := range []int64{current - 1, current, current + 1} {
		expected, err := TOTPCodeAt(secret, alg, step)
		if err != nil {
			return 0, false
		}
		if ConstantTimeEquals(expected, code) {
			return step, true
		}
	}
	return 0, false
}

// TOTPProvisioningURI builds the otpauth:// URI for enrollment QR codes.
func TOTPProvisioningURI(issuer, account, secret string, alg TOTPAlgorithm) string {
	label := url.PathEscape(issuer) + ":" + url.PathEscape(account)
	v := url.Values{}
	v.Set("secret", secret)
	v.Set("issuer", issuer)
	v.Set("algorithm", strings.ToUpper(string(alg)))
	v.Set("digits", fmt.Sprintf("%d", TOTPDigits))
	v.Set("period", fmt.Sprintf("%d", TOTPPeriod))
	return "otpauth://totp/" + label + "?" + v.Encode()
}
