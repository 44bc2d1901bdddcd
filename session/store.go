package session

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when the session does not exist.
var ErrNotFound = errors.New("session not found")

// ErrExpired is returned when the session's absolute lifetime has
// passed. The record is deleted as a side effect.
var ErrExpired = errors.New("session expired")

// ErrRefreshReuse is returned when a presented refresh secret does not
// match the stored hash. The session is destroyed: a mismatch means the
// token was already rotated once, i.e. someone replayed an old token.
var ErrRefreshReuse = errors.New("refresh token reuse detected")

// ErrRedisUnavailable wraps transport-level Redis failures.
var ErrRedisUnavailable = errors.New("redis unavailable")

const (
	rotateStatusNotFound int64 = 0
	rotateStatusExpired  int64 = 1
	rotateStatusReuse    int64 = 2
	rotateStatusRotated  int64 = 3
)

// rotateRefreshScript compares the stored refresh hash against the
// presented one and swaps in the next hash, all under Redis's
// single-threaded execution. A mismatch deletes the whole session.
const rotateRefreshScript = `
local stored = redis.call("GET", KEYS[2])
if not stored then
  redis.call("DEL", KEYS[1])
  redis.call("SREM", KEYS[3], ARGV[3])
  return 0
end
if stored ~= ARGV[1] then
  redis.call("DEL", KEYS[1], KEYS[2])
  redis.call("SREM", KEYS[3], ARGV[3])
  return 2
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl <= 0 then
  redis.call("DEL", KEYS[1], KEYS[2])
  redis.call("SREM", KEYS[3], ARGV[3])
  return 1
end
redis.call("SET", KEYS[2], ARGV[2], "PX", ttl)
return 3
`

var rotateRefreshLua = redis.NewScript(rotateRefreshScript)

// Store is a Redis-backed refresh-session store with sliding renewal,
// an absolute lifetime bound, and atomic refresh-hash rotation.
type Store struct {
	redis   redis.UniversalClient
	prefix  string
	sliding bool
}

// NewStore creates a [Store] on the given client. prefix namespaces all
// keys; sliding controls whether reads renew the TTL.
func NewStore(client redis.UniversalClient, prefix string, sliding bool) *Store {
	if prefix == "" {
		prefix = "sa"
	}
	return &Store{redis: client, prefix: prefix, sliding: sliding}
}

func (s *Store) key(sessionID string) string {
	return s.prefix + ":s:" + sessionID
}

func (s *Store) hashKey(sessionID string) string {
	return s.prefix + ":h:" + sessionID
}

func (s *Store) userKey(userID string) string {
	return s.prefix + ":u:" + userID
}

// Save persists a session and its refresh hash with the given TTL and
// indexes it under the user's session set.
func (s *Store) Save(ctx context.Context, sess *Session, refreshHash [32]byte, ttl time.Duration) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(sess.SessionID), data, ttl)
		pipe.Set(ctx, s.hashKey(sess.SessionID), hex.EncodeToString(refreshHash[:]), ttl)
		pipe.SAdd(ctx, s.userKey(sess.UserID), sess.SessionID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Get retrieves a session. An expired record is deleted and reported as
// [ErrExpired]; with sliding enabled a successful read renews the TTL up
// to the absolute bound.
func (s *Store) Get(ctx context.Context, sessionID string, ttl time.Duration) (*Session, error) {
	data, err := s.redis.Get(ctx, s.key(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("corrupt session %s: %w", sessionID, err)
	}

	remaining := time.Until(sess.ExpiresAt)
	if remaining <= 0 {
		if err := s.Delete(ctx, sessionID); err != nil {
			return nil, err
		}
		return nil, ErrExpired
	}

	if s.sliding {
		next := ttl
		if next > remaining {
			next = remaining
		}
		_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Expire(ctx, s.key(sessionID), next)
			pipe.Expire(ctx, s.hashKey(sessionID), next)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return &sess, nil
}

// RotateRefresh atomically swaps the stored refresh hash. The provided
// hash must match the stored one; any mismatch destroys the session and
// returns [ErrRefreshReuse].
func (s *Store) RotateRefresh(ctx context.Context, sessionID string, provided, next [32]byte) error {
	status, err := rotateRefreshLua.Run(ctx, s.redis,
		[]string{s.key(sessionID), s.hashKey(sessionID), s.userKey(s.ownerOf(ctx, sessionID))},
		hex.EncodeToString(provided[:]),
		hex.EncodeToString(next[:]),
		sessionID,
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	switch status {
	case rotateStatusRotated:
		return nil
	case rotateStatusExpired:
		return ErrExpired
	case rotateStatusReuse:
		return ErrRefreshReuse
	default:
		return ErrNotFound
	}
}

// ownerOf resolves the user set key for the Lua script's SREM. A
// missing or unreadable session falls back to an empty owner; the
// script's SREM against it is a harmless no-op.
func (s *Store) ownerOf(ctx context.Context, sessionID string) string {
	data, err := s.redis.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		return ""
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return ""
	}
	return sess.UserID
}

// Delete removes one session. Deleting a missing session is a no-op.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	owner := s.ownerOf(ctx, sessionID)

	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key(sessionID), s.hashKey(sessionID))
		if owner != "" {
			pipe.SRem(ctx, s.userKey(owner), sessionID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// DeleteAllForUser removes every session in the user's index except the
// given one (pass "" to remove all). Sessions created concurrently with
// this call may survive; they expire naturally.
func (s *Store) DeleteAllForUser(ctx context.Context, userID, exceptSessionID string) error {
	userKey := s.userKey(userID)

	sessionIDs, err := s.redis.SMembers(ctx, userKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range sessionIDs {
			if id == exceptSessionID {
				continue
			}
			pipe.Del(ctx, s.key(id), s.hashKey(id))
			pipe.SRem(ctx, userKey, id)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// SessionIDsForUser lists the user's live session ids.
func (s *Store) SessionIDsForUser(ctx context.Context, userID string) ([]string, error) {
	ids, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return ids, nil
}
