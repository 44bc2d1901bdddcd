package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	phcAlgorithm = "argon2id"

	minMemoryKB    uint32 = 8 * 1024
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
	minPasswordLen        = 8
)

// ErrPasswordTooShort rejects passwords under the minimum length before
// any hashing work is done.
var ErrPasswordTooShort = fmt.Errorf("password must be at least %d bytes", minPasswordLen)

// Params are the argon2id cost settings. Raising them only affects new
// hashes; existing hashes verify with the parameters they embed.
type Params struct {
	MemoryKB    uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultParams returns the baseline cost settings: 64 MB, 3 passes,
// 2 lanes.
func DefaultParams() Params {
	return Params{
		MemoryKB:    64 * 1024,
		Iterations:  3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// Hasher produces and verifies PHC-format argon2id hashes.
type Hasher struct {
	params Params
}

// NewHasher validates the cost settings and returns a ready hasher.
func NewHasher(p Params) (*Hasher, error) {
	switch {
	case p.MemoryKB < minMemoryKB:
		return nil, errors.New("password: memory must be >= 8192 KB")
	case p.Iterations < 1:
		return nil, errors.New("password: iterations must be >= 1")
	case p.Parallelism < 1:
		return nil, errors.New("password: parallelism must be >= 1")
	case p.SaltLength < minSaltLength:
		return nil, errors.New("password: salt length must be >= 16")
	case p.KeyLength < minKeyLength:
		return nil, errors.New("password: key length must be >= 16")
	}
	return &Hasher{params: p}, nil
}

// Hash derives a PHC string for the given password. Raw password bytes
// are used as provided; no Unicode normalization.
func (h *Hasher) Hash(password string) (string, error) {
	if len(password) < minPasswordLen {
		return "", ErrPasswordTooShort
	}

	salt := make([]byte, h.params.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}

	key := argon2.IDKey([]byte(password), salt,
		h.params.Iterations, h.params.MemoryKB, h.params.Parallelism, h.params.KeyLength)

	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		phcAlgorithm, argon2.Version,
		h.params.MemoryKB, h.params.Iterations, h.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether password matches the PHC hash. Comparison is
// constant-time over the derived key.
func (h *Hasher) Verify(password, phc string) (bool, error) {
	p, salt, key, err := decodePHC(phc)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey([]byte(password), salt,
		p.Iterations, p.MemoryKB, p.Parallelism, uint32(len(key)))

	return subtle.ConstantTimeCompare(computed, key) == 1, nil
}

// NeedsRehash reports whether the hash was produced with weaker
// parameters than the hasher's current policy.
func (h *Hasher) NeedsRehash(phc string) (bool, error) {
	p, _, key, err := decodePHC(phc)
	if err != nil {
		return false, err
	}

	return p.MemoryKB < h.params.MemoryKB ||
		p.Iterations < h.params.Iterations ||
		p.Parallelism < h.params.Parallelism ||
		uint32(len(key)) != h.params.KeyLength, nil
}

func decodePHC(phc string) (Params, []byte, []byte, error) {
	var p Params

	parts := strings.Split(phc, "$")
	if len(parts) != 6 || parts[0] != "" {
		return p, nil, nil, errors.New("password: malformed PHC string")
	}
	if parts[1] != phcAlgorithm {
		return p, nil, nil, errors.New("password: unsupported algorithm")
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return p, nil, nil, errors.New("password: malformed version field")
	}
	if version != argon2.Version {
		return p, nil, nil, errors.New("password: unsupported argon2 version")
	}

	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d",
		&p.MemoryKB, &p.Iterations, &p.Parallelism); err != nil {
		return p, nil, nil, errors.New("password: malformed parameter field")
	}
	if p.MemoryKB < minMemoryKB || p.Iterations < 1 || p.Parallelism < 1 {
		return p, nil, nil, errors.New("password: parameters below minimums")
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || uint32(len(salt)) < minSaltLength {
		return p, nil, nil, errors.New("password: malformed salt")
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return p, nil, nil, errors.New("password: malformed key")
	}

	return p, salt, key, nil
}
