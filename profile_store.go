package stationauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// applyProfileUpdate copies the set fields of u onto p and stamps
// UpdatedAt. Nil pointer fields are left untouched; the double-pointer
// time fields distinguish "leave alone" from "set to null".
func applyProfileUpdate(p *Profile, u ProfileUpdate) {
	if u.FullName != nil {
		p.FullName = *u.FullName
	}
	if u.Role != nil {
		p.Role = *u.Role
	}
	if u.Department != nil {
		p.Department = *u.Department
	}
	if u.IsActive != nil {
		p.IsActive = *u.IsActive
	}
	if u.Security != nil {
		p.Security = *u.Security
	}
	if u.TwoFactor != nil {
		p.TwoFactor = *u.TwoFactor
	}
	if u.FailedLoginAttempts != nil {
		p.FailedLoginAttempts = *u.FailedLoginAttempts
	}
	if u.AccountLockedUntil != nil {
		p.AccountLockedUntil = *u.AccountLockedUntil
	}
	if u.PasswordChangedAt != nil {
		p.PasswordChangedAt = *u.PasswordChangedAt
	}
	if u.MustChangePassword != nil {
		p.MustChangePassword = *u.MustChangePassword
	}
	p.UpdatedAt = time.Now()
}

func cloneProfile(p *Profile) *Profile {
	if p == nil {
		return nil
	}
	out := *p
	if p.AccountLockedUntil != nil {
		t := *p.AccountLockedUntil
		out.AccountLockedUntil = &t
	}
	if p.PasswordChangedAt != nil {
		t := *p.PasswordChangedAt
		out.PasswordChangedAt = &t
	}
	if p.TwoFactor.Secret != nil {
		out.TwoFactor.Secret = append([]byte(nil), p.TwoFactor.Secret...)
	}
	if p.TwoFactor.BackupCodes != nil {
		out.TwoFactor.BackupCodes = append([]BackupCodeRecord(nil), p.TwoFactor.BackupCodes...)
	}
	return &out
}

/*
====================================
MEMORY PROFILE STORE
====================================
*/

// MemoryProfileStore is a map-backed [ProfileStore] for tests and
// single-process deployments. Profiles are deep-copied at the boundary
// so callers never alias store state.
type MemoryProfileStore struct {
	mu       sync.Mutex
	profiles map[string]*Profile
}

// NewMemoryProfileStore returns an empty in-memory store.
func NewMemoryProfileStore() *MemoryProfileStore {
	return &MemoryProfileStore{profiles: make(map[string]*Profile)}
}

// GetByID implements [ProfileStore].
func (s *MemoryProfileStore) GetByID(ctx context.Context, id string) (*Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[id]
	if !ok {
		return nil, ErrProfileNotFound
	}
	return cloneProfile(p), nil
}

// GetByEmail implements [ProfileStore]. Email comparison is
// case-insensitive.
func (s *MemoryProfileStore) GetByEmail(ctx context.Context, email string) (*Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	needle := strings.ToLower(email)
	for _, p := range s.profiles {
		if strings.ToLower(p.Email) == needle {
			return cloneProfile(p), nil
		}
	}
	return nil, ErrProfileNotFound
}

// Insert implements [ProfileStore].
func (s *MemoryProfileStore) Insert(ctx context.Context, p *Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.profiles[p.ID]; exists {
		return fmt.Errorf("%w: profile %s already exists", ErrStoreUnavailable, p.ID)
	}
	s.profiles[p.ID] = cloneProfile(p)
	return nil
}

// Update implements [ProfileStore].
func (s *MemoryProfileStore) Update(ctx context.Context, id string, u ProfileUpdate) (*Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[id]
	if !ok {
		return nil, ErrProfileNotFound
	}
	applyProfileUpdate(p, u)
	return cloneProfile(p), nil
}

// Upsert implements [ProfileStore].
func (s *MemoryProfileStore) Upsert(ctx context.Context, p *Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.profiles[p.ID] = cloneProfile(p)
	return nil
}

/*
====================================
REDIS PROFILE STORE
====================================
*/

const (
	redisProfileKeyPrefix   = "stationauth:profile:"
	redisProfileEmailPrefix = "stationauth:profile:email:"
)

// RedisProfileStore persists profiles as JSON documents keyed by user
// id, with a secondary email index for the lockout pre-check. Records
// have no TTL; profiles outlive sessions.
type RedisProfileStore struct {
	client *redis.Client
}

// NewRedisProfileStore wraps an existing Redis client.
func NewRedisProfileStore(client *redis.Client) *RedisProfileStore {
	return &RedisProfileStore{client: client}
}

func (s *RedisProfileStore) key(id string) string {
	return redisProfileKeyPrefix + id
}

func (s *RedisProfileStore) emailKey(email string) string {
	return redisProfileEmailPrefix + strings.ToLower(email)
}

// GetByID implements [ProfileStore].
func (s *RedisProfileStore) GetByID(ctx context.Context, id string) (*Profile, error) {
	raw, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	var p Profile
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: corrupt profile %s: %v", ErrStoreUnavailable, id, err)
	}
	return &p, nil
}

// GetByEmail implements [ProfileStore].
func (s *RedisProfileStore) GetByEmail(ctx context.Context, email string) (*Profile, error) {
	id, err := s.client.Get(ctx, s.emailKey(email)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return s.GetByID(ctx, id)
}

// Insert implements [ProfileStore]. The email index is written in the
// same pipeline as the document.
func (s *RedisProfileStore) Insert(ctx context.Context, p *Profile) error {
	ok, err := s.client.SetNX(ctx, s.key(p.ID), mustMarshalProfile(p), 0).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !ok {
		return fmt.Errorf("%w: profile %s already exists", ErrStoreUnavailable, p.ID)
	}
	if err := s.client.Set(ctx, s.emailKey(p.Email), p.ID, 0).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Update implements [ProfileStore] as read-modify-write. Single-writer
// per user is assumed; the engine serializes its own profile writes.
func (s *RedisProfileStore) Update(ctx context.Context, id string, u ProfileUpdate) (*Profile, error) {
	p, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	applyProfileUpdate(p, u)

	if err := s.client.Set(ctx, s.key(id), mustMarshalProfile(p), 0).Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return p, nil
}

// Upsert implements [ProfileStore].
func (s *RedisProfileStore) Upsert(ctx context.Context, p *Profile) error {
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key(p.ID), mustMarshalProfile(p), 0)
	pipe.Set(ctx, s.emailKey(p.Email), p.ID, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func mustMarshalProfile(p *Profile) []byte {
	raw, err := json.Marshal(p)
	if err != nil {
		// Profile contains only marshalable fields; this cannot fail at
		// runtime.
		panic(err)
	}
	return raw
}
