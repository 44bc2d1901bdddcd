// Package jwt issues and validates the HS256 access tokens backing
// dashboard sessions. Refresh tokens are opaque and live in the session
// package; only access tokens are JWTs.
package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrTokenInvalid covers every parse or validation failure; callers get
// no detail about why a token was rejected.
var ErrTokenInvalid = errors.New("jwt: token invalid")

// Config controls token issuance and validation.
type Config struct {
	// Secret signs and verifies tokens. Minimum 32 bytes.
	Secret []byte
	// AccessTTL bounds token lifetime.
	AccessTTL time.Duration
	Issuer    string
	// Leeway tolerates clock skew during validation, capped at two
	// minutes.
	Leeway time.Duration
}

// AccessClaims is the payload of a dashboard access token. Role travels
// in the token for display only; authorization always re-reads the
// profile.
type AccessClaims struct {
	UID   string `json:"uid"`
	SID   string `json:"sid"`
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Manager issues and parses access tokens. Safe for concurrent use.
type Manager struct {
	config Config
}

// NewManager validates the configuration and returns a ready manager.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.Secret) < 32 {
		return nil, errors.New("jwt: secret must be at least 32 bytes")
	}
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("jwt: access TTL must be positive")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("jwt: leeway must be within [0, 2m]")
	}
	return &Manager{config: cfg}, nil
}

// Issue signs a token for the given user and session. The returned
// expiry matches the token's exp claim.
func (m *Manager) Issue(uid, sid, email, role string) (string, time.Time, error) {
	now := time.Now()
	expires := now.Add(m.config.AccessTTL)

	claims := AccessClaims{
		UID:   uid,
		SID:   sid,
		Email: email,
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			Issuer:    m.config.Issuer,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.config.Secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expires, nil
}

// Parse validates a token and returns its claims. Expired, malformed,
// alg-confused, and wrong-issuer tokens all map to [ErrTokenInvalid].
func (m *Manager) Parse(tokenStr string) (*AccessClaims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}

	token, err := jwt.NewParser(options...).ParseWithClaims(tokenStr, &AccessClaims{},
		func(t *jwt.Token) (interface{}, error) {
			return m.config.Secret, nil
		})
	if err != nil {
		return nil, ErrTokenInvalid
	}

	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid || claims.UID == "" || claims.SID == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
