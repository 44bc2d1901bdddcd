package stationauth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// 160-bit secrets, the RFC 4226 recommended minimum for SHA-1.
const totpSecretBytes = 20

var totpHashes = map[string]func() hash.Hash{
	"SHA1":   sha1.New,
	"SHA256": sha256.New,
	"SHA512": sha512.New,
}

// decimalPow[n] is 10^n; validateConfig caps Digits at 8.
var decimalPow = [...]int64{1, 10, 100, 1000, 10000, 100000, 1000000, 10000000, 100000000}

// totpManager implements RFC 6238 time-based one-time passwords. A code
// is only valid if it matches the shared secret within the configured
// step window; there is no accept-anything fallback.
type totpManager struct {
	config SecondFactorConfig
}

func newTOTPManager(cfg SecondFactorConfig) *totpManager {
	if cfg.Algorithm == "" {
		cfg.Algorithm = "SHA1"
	}
	return &totpManager{config: cfg}
}

// GenerateSecret returns a fresh raw secret and its base32 encoding
// (no padding, the form provisioning apps expect).
func (m *totpManager) GenerateSecret() ([]byte, string, error) {
	if m == nil {
		return nil, "", ErrEngineNotReady
	}
	raw := make([]byte, totpSecretBytes)
	if _, err := rand.Read(raw); err != nil {
		return nil, "", err
	}

	enc := base32.StdEncoding.WithPadding(base32.NoPadding)
	return raw, enc.EncodeToString(raw), nil
}

// ProvisionURI builds the otpauth:// URI embedding the issuer, account
// email, and secret for authenticator-app enrollment.
func (m *totpManager) ProvisionURI(secretBase32, account string) string {
	issuer := m.config.Issuer

	params := url.Values{}
	params.Set("secret", secretBase32)
	params.Set("issuer", issuer)
	params.Set("period", strconv.Itoa(m.config.Period))
	params.Set("digits", strconv.Itoa(m.config.Digits))
	params.Set("algorithm", strings.ToUpper(m.config.Algorithm))

	return "otpauth://totp/" + url.PathEscape(issuer+":"+account) + "?" + params.Encode()
}

// VerifyCode checks code against secret at the given time, scanning the
// configured skew window. On success it returns the matched step counter
// so callers can enforce replay protection.
func (m *totpManager) VerifyCode(secret []byte, code string, now time.Time) (bool, int64, error) {
	if m == nil {
		return false, 0, ErrEngineNotReady
	}

	code = strings.TrimSpace(code)
	if !isNumericString(code) || len(code) != m.config.Digits {
		return false, 0, nil
	}
	if len(secret) == 0 {
		return false, 0, errors.New("empty totp secret")
	}

	current := now.Unix() / int64(m.config.Period)
	for offset := -m.config.Skew; offset <= m.config.Skew; offset++ {
		step := current + int64(offset)
		if step < 0 {
			continue
		}
		want, err := hotpCode(secret, step, m.config.Digits, m.config.Algorithm)
		if err != nil {
			return false, 0, err
		}
		if subtle.ConstantTimeCompare([]byte(want), []byte(code)) == 1 {
			return true, step, nil
		}
	}

	return false, 0, nil
}

func hotpCode(secret []byte, counter int64, digits int, algorithm string) (string, error) {
	if digits < 1 || digits >= len(decimalPow) {
		return "", fmt.Errorf("totp digits %d out of range", digits)
	}
	newHash, err := totpHash(algorithm)
	if err != nil {
		return "", err
	}

	var counterBytes [8]byte
	binary.BigEndian.PutUint64(counterBytes[:], uint64(counter))

	mac := hmac.New(newHash, secret)
	_, _ = mac.Write(counterBytes[:])
	digest := mac.Sum(nil)

	// dynamic truncation, RFC 4226 section 5.3
	cut := digest[len(digest)-1] & 0xf
	truncated := int64(binary.BigEndian.Uint32(digest[cut:cut+4]) & 0x7fffffff)

	return fmt.Sprintf("%0*d", digits, truncated%decimalPow[digits]), nil
}

func totpHash(algorithm string) (func() hash.Hash, error) {
	if algorithm == "" {
		algorithm = "SHA1"
	}
	newHash, ok := totpHashes[strings.ToUpper(algorithm)]
	if !ok {
		return nil, fmt.Errorf("unsupported totp algorithm %q", algorithm)
	}
	return newHash, nil
}

func isNumericString(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
