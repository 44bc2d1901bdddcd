package identity

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"crypto/rand"

	stationauth "github.com/Dexploarer/stationauth"
	"github.com/Dexploarer/stationauth/internal"
	"github.com/Dexploarer/stationauth/jwt"
	"github.com/Dexploarer/stationauth/password"
	"github.com/Dexploarer/stationauth/session"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Config wires the built-in credential backend.
type Config struct {
	// KeyPrefix namespaces all Redis keys. Defaults to "said".
	KeyPrefix string
	// JWTSecret signs access tokens. Minimum 32 bytes.
	JWTSecret []byte
	Issuer    string
	AccessTTL time.Duration
	// RefreshTTL is both the refresh-session TTL and the absolute
	// session lifetime.
	RefreshTTL time.Duration
	// ResetTTL bounds password-reset token validity.
	ResetTTL time.Duration
	// Password overrides the argon2id cost settings; zero value uses
	// [password.DefaultParams].
	Password password.Params
}

func (c *Config) fillDefaults() {
	if c.KeyPrefix == "" {
		c.KeyPrefix = "said"
	}
	if c.AccessTTL <= 0 {
		c.AccessTTL = 15 * time.Minute
	}
	if c.RefreshTTL <= 0 {
		c.RefreshTTL = 30 * 24 * time.Hour
	}
	if c.ResetTTL <= 0 {
		c.ResetTTL = time.Hour
	}
	if c.Password == (password.Params{}) {
		c.Password = password.DefaultParams()
	}
}

// userRecord is the persisted credential document. Profiles live in the
// engine's ProfileStore; this record holds only what sign-in needs.
type userRecord struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
}

// Service implements the engine's IdentityService over Redis.
type Service struct {
	redis    redis.UniversalClient
	config   Config
	hasher   *password.Hasher
	tokens   *jwt.Manager
	sessions *session.Store
}

// NewService validates the configuration and returns a ready backend.
func NewService(client redis.UniversalClient, cfg Config) (*Service, error) {
	if client == nil {
		return nil, errors.New("identity: redis client required")
	}
	cfg.fillDefaults()

	hasher, err := password.NewHasher(cfg.Password)
	if err != nil {
		return nil, err
	}

	tokens, err := jwt.NewManager(jwt.Config{
		Secret:    cfg.JWTSecret,
		AccessTTL: cfg.AccessTTL,
		Issuer:    cfg.Issuer,
		Leeway:    30 * time.Second,
	})
	if err != nil {
		return nil, err
	}

	return &Service{
		redis:    client,
		config:   cfg,
		hasher:   hasher,
		tokens:   tokens,
		sessions: session.NewStore(client, cfg.KeyPrefix, true),
	}, nil
}

func (s *Service) userKey(id string) string {
	return s.config.KeyPrefix + ":user:" + id
}

func (s *Service) emailKey(email string) string {
	return s.config.KeyPrefix + ":email:" + strings.ToLower(email)
}

func (s *Service) resetKey(token string) string {
	return s.config.KeyPrefix + ":reset:" + token
}

/*
====================================
SIGN UP / SIGN IN
====================================
*/

// SignUp creates a credential record and opens the first session.
// Duplicate emails are rejected with stationauth.ErrEmailExists before
// any hashing work.
func (s *Service) SignUp(ctx context.Context, email, pass string) (*stationauth.Identity, *stationauth.TokenPair, error) {
	email = strings.TrimSpace(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, nil, stationauth.ErrInvalidCredentials
	}

	hash, err := s.hasher.Hash(pass)
	if err != nil {
		return nil, nil, err
	}

	record := userRecord{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    time.Now(),
	}

	// The email index is the uniqueness guard; claim it first.
	claimed, err := s.redis.SetNX(ctx, s.emailKey(email), record.ID, 0).Result()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", stationauth.ErrStoreUnavailable, err)
	}
	if !claimed {
		return nil, nil, stationauth.ErrEmailExists
	}

	raw, err := json.Marshal(record)
	if err != nil {
		return nil, nil, err
	}
	if err := s.redis.Set(ctx, s.userKey(record.ID), raw, 0).Err(); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", stationauth.ErrStoreUnavailable, err)
	}

	identity := &stationauth.Identity{ID: record.ID, Email: record.Email, CreatedAt: record.CreatedAt}
	tokens, err := s.openSession(ctx, identity)
	if err != nil {
		return nil, nil, err
	}
	return identity, tokens, nil
}

// SignIn verifies credentials and opens a session. Unknown emails and
// wrong passwords are indistinguishable to the caller.
func (s *Service) SignIn(ctx context.Context, email, pass string) (*stationauth.Identity, *stationauth.TokenPair, error) {
	record, err := s.lookupByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, stationauth.ErrIdentityNotFound) {
			return nil, nil, stationauth.ErrInvalidCredentials
		}
		return nil, nil, err
	}

	ok, err := s.hasher.Verify(pass, record.PasswordHash)
	if err != nil || !ok {
		return nil, nil, stationauth.ErrInvalidCredentials
	}

	s.maybeRehash(ctx, record, pass)

	identity := &stationauth.Identity{ID: record.ID, Email: record.Email, CreatedAt: record.CreatedAt}
	tokens, err := s.openSession(ctx, identity)
	if err != nil {
		return nil, nil, err
	}
	return identity, tokens, nil
}

// maybeRehash transparently upgrades stored hashes after a successful
// verification when cost settings were raised. Best-effort.
func (s *Service) maybeRehash(ctx context.Context, record *userRecord, pass string) {
	needs, err := s.hasher.NeedsRehash(record.PasswordHash)
	if err != nil || !needs {
		return
	}
	hash, err := s.hasher.Hash(pass)
	if err != nil {
		return
	}
	record.PasswordHash = hash
	if err := s.saveRecord(ctx, record); err != nil {
		log.Printf("stationauth identity: hash upgrade failed for %s: %v", record.ID, err)
	}
}

/*
====================================
SESSION LIFECYCLE
====================================
*/

func (s *Service) openSession(ctx context.Context, identity *stationauth.Identity) (*stationauth.TokenPair, error) {
	sid, err := internal.NewSessionID()
	if err != nil {
		return nil, err
	}
	secret, err := internal.NewRefreshSecret()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	sess := &session.Session{
		SessionID: sid.String(),
		UserID:    identity.ID,
		Email:     identity.Email,
		CreatedAt: now,
		ExpiresAt: now.Add(s.config.RefreshTTL),
	}
	if err := s.sessions.Save(ctx, sess, internal.HashRefreshSecret(secret), s.config.RefreshTTL); err != nil {
		return nil, fmt.Errorf("%w: %v", stationauth.ErrStoreUnavailable, err)
	}

	return s.issueTokens(identity.ID, sid.String(), identity.Email, secret)
}

func (s *Service) issueTokens(uid, sid, email string, secret [32]byte) (*stationauth.TokenPair, error) {
	access, expires, err := s.tokens.Issue(uid, sid, email, "")
	if err != nil {
		return nil, err
	}
	refresh, err := internal.EncodeRefreshToken(sid, secret)
	if err != nil {
		return nil, err
	}
	return &stationauth.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    expires,
	}, nil
}

// CurrentSession validates an access token against both its signature
// and the live session record, so a revoked session invalidates tokens
// that are cryptographically still fresh.
func (s *Service) CurrentSession(ctx context.Context, accessToken string) (*stationauth.Identity, error) {
	claims, err := s.tokens.Parse(accessToken)
	if err != nil {
		return nil, stationauth.ErrSessionExpired
	}

	if _, err := s.sessions.Get(ctx, claims.SID, s.config.RefreshTTL); err != nil {
		if errors.Is(err, session.ErrNotFound) || errors.Is(err, session.ErrExpired) {
			return nil, stationauth.ErrSessionExpired
		}
		return nil, fmt.Errorf("%w: %v", stationauth.ErrStoreUnavailable, err)
	}

	record, err := s.lookupByID(ctx, claims.UID)
	if err != nil {
		return nil, err
	}
	return &stationauth.Identity{ID: record.ID, Email: record.Email, CreatedAt: record.CreatedAt}, nil
}

// Refresh rotates the refresh token and issues a new pair. Reuse of an
// already-rotated token destroys the session chain.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*stationauth.TokenPair, error) {
	sid, secret, err := internal.DecodeRefreshToken(refreshToken)
	if err != nil {
		return nil, stationauth.ErrSessionExpired
	}

	sess, err := s.sessions.Get(ctx, sid, s.config.RefreshTTL)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) || errors.Is(err, session.ErrExpired) {
			return nil, stationauth.ErrSessionExpired
		}
		return nil, fmt.Errorf("%w: %v", stationauth.ErrStoreUnavailable, err)
	}

	next, err := internal.NewRefreshSecret()
	if err != nil {
		return nil, err
	}

	err = s.sessions.RotateRefresh(ctx, sid,
		internal.HashRefreshSecret(secret), internal.HashRefreshSecret(next))
	if err != nil {
		switch {
		case errors.Is(err, session.ErrRefreshReuse),
			errors.Is(err, session.ErrNotFound),
			errors.Is(err, session.ErrExpired):
			return nil, stationauth.ErrSessionExpired
		default:
			return nil, fmt.Errorf("%w: %v", stationauth.ErrStoreUnavailable, err)
		}
	}

	return s.issueTokens(sess.UserID, sid, sess.Email, next)
}

// SignOut deletes the session behind an access token. An invalid token
// is a no-op: the caller is already signed out.
func (s *Service) SignOut(ctx context.Context, accessToken string) error {
	claims, err := s.tokens.Parse(accessToken)
	if err != nil {
		return nil
	}
	if err := s.sessions.Delete(ctx, claims.SID); err != nil {
		return fmt.Errorf("%w: %v", stationauth.ErrStoreUnavailable, err)
	}
	return nil
}

/*
====================================
PASSWORD RESET
====================================
*/

// SendPasswordReset mints a single-use reset token bound to the account.
// Delivery is the host application's concern; the token is returned via
// [Service.PeekResetToken] in tests and handed to the mailer in
// production wiring. Unknown emails succeed silently so the endpoint
// cannot be used to probe for accounts.
func (s *Service) SendPasswordReset(ctx context.Context, email string) error {
	record, err := s.lookupByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, stationauth.ErrIdentityNotFound) {
			return nil
		}
		return err
	}

	var raw [32]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return err
	}
	token := base64.RawURLEncoding.EncodeToString(raw[:])

	if err := s.redis.Set(ctx, s.resetKey(token), record.ID, s.config.ResetTTL).Err(); err != nil {
		return fmt.Errorf("%w: %v", stationauth.ErrStoreUnavailable, err)
	}
	// Track the latest token per user so tests and mailer wiring can
	// fetch it without scanning.
	if err := s.redis.Set(ctx, s.config.KeyPrefix+":reset-latest:"+record.ID, token, s.config.ResetTTL).Err(); err != nil {
		return fmt.Errorf("%w: %v", stationauth.ErrStoreUnavailable, err)
	}
	return nil
}

// PeekResetToken returns the most recent live reset token for a user.
func (s *Service) PeekResetToken(ctx context.Context, userID string) (string, error) {
	token, err := s.redis.Get(ctx, s.config.KeyPrefix+":reset-latest:"+userID).Result()
	if errors.Is(err, redis.Nil) {
		return "", stationauth.ErrIdentityNotFound
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", stationauth.ErrStoreUnavailable, err)
	}
	return token, nil
}

// CompletePasswordReset consumes a reset token, replaces the password,
// and destroys every session for the account.
func (s *Service) CompletePasswordReset(ctx context.Context, token, newPassword string) error {
	userID, err := s.redis.GetDel(ctx, s.resetKey(token)).Result()
	if errors.Is(err, redis.Nil) {
		return stationauth.ErrSessionExpired
	}
	if err != nil {
		return fmt.Errorf("%w: %v", stationauth.ErrStoreUnavailable, err)
	}

	record, err := s.lookupByID(ctx, userID)
	if err != nil {
		return err
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	record.PasswordHash = hash
	if err := s.saveRecord(ctx, record); err != nil {
		return err
	}

	return s.sessions.DeleteAllForUser(ctx, userID, "")
}

/*
====================================
RECORD ACCESS
====================================
*/

func (s *Service) lookupByEmail(ctx context.Context, email string) (*userRecord, error) {
	id, err := s.redis.Get(ctx, s.emailKey(strings.TrimSpace(email))).Result()
	if errors.Is(err, redis.Nil) {
		return nil, stationauth.ErrIdentityNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", stationauth.ErrStoreUnavailable, err)
	}
	return s.lookupByID(ctx, id)
}

func (s *Service) lookupByID(ctx context.Context, id string) (*userRecord, error) {
	raw, err := s.redis.Get(ctx, s.userKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, stationauth.ErrIdentityNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", stationauth.ErrStoreUnavailable, err)
	}

	var record userRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("%w: corrupt user record %s: %v", stationauth.ErrStoreUnavailable, id, err)
	}
	return &record, nil
}

func (s *Service) saveRecord(ctx context.Context, record *userRecord) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.userKey(record.ID), raw, 0).Err(); err != nil {
		return fmt.Errorf("%w: %v", stationauth.ErrStoreUnavailable, err)
	}
	return nil
}
