// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// Bounds on parameters accepted from a stored hash. A hash outside these
// bounds is treated as malformed rather than computed.
const (
	maxArgon2Memory     = 1 << 20 // 1 GiB in KiB
	maxArgon2Iterations = 64
	minArgon2SaltLen    = 8
	maxArgon2KeyLen     = 1024
)

// Argon2Params are the argon2id cost parameters.
type Argon2Params struct {
	Memory      uint32 // KiB
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultArgon2Params returns the OWASP-recommended argon2id parameters.
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{
		Memory:      64 * 1024,
		Iterations:  1,
		Parallelism: 4,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// Validate checks that p can be used to hash.
func (p Argon2Params) Validate() error {
	switch {
	case p.Iterations < 1 || p.Iterations > maxArgon2Iterations:
		return oops.Code("AUTH_INVALID_HASH_PARAMS").With("iterations", p.Iterations).Errorf("iterations out of range")
	case p.Parallelism < 1:
		return oops.Code("AUTH_INVALID_HASH_PARAMS").Errorf("parallelism must be at least 1")
	case p.Memory < 8*uint32(p.Parallelism) || p.Memory > maxArgon2Memory:
		return oops.Code("AUTH_INVALID_HASH_PARAMS").With("memory", p.Memory).Errorf("memory out of range")
	case p.SaltLength < minArgon2SaltLen:
		return oops.Code("AUTH_INVALID_HASH_PARAMS").With("salt_length", p.SaltLength).Errorf("salt too short")
	case p.KeyLength < 16 || p.KeyLength > maxArgon2KeyLen:
		return oops.Code("AUTH_INVALID_HASH_PARAMS").With("key_length", p.KeyLength).Errorf("key length out of range")
	}
	return nil
}

// PasswordHasher provides password hashing and verification.
type PasswordHasher interface {
	// Hash produces a self-describing hash of the password.
	Hash(password string) (string, error)

	// Verify reports whether password matches hash. A malformed hash never
	// matches.
	Verify(password, hash string) bool

	// NeedsUpgrade returns true if hash was not produced with the hasher's
	// current algorithm and parameters.
	NeedsUpgrade(hash string) bool
}

// Argon2idHasher implements PasswordHasher using argon2id. It also verifies
// legacy bcrypt hashes so they can be upgraded on login.
type Argon2idHasher struct {
	params Argon2Params

	dummyOnce sync.Once
	dummy     string
}

// NewArgon2idHasher creates an Argon2idHasher with the default parameters.
func NewArgon2idHasher() *Argon2idHasher {
	return &Argon2idHasher{params: DefaultArgon2Params()}
}

// NewArgon2idHasherWithParams creates an Argon2idHasher with custom parameters.
func NewArgon2idHasherWithParams(params Argon2Params) (*Argon2idHasher, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Argon2idHasher{params: params}, nil
}

// Params returns the parameters new hashes are produced with.
func (h *Argon2idHasher) Params() Argon2Params {
	return h.params
}

// Hash produces an argon2id hash of the password in PHC string format:
// $argon2id$v=19$m=65536,t=1,p=4$<salt>$<hash>
func (h *Argon2idHasher) Hash(password string) (string, error) {
	switch {
	case password == "":
		return "", oops.Code(CodeEncodingError).With("field", "password").Errorf("password cannot be empty")
	case len(password) > MaxPasswordLength:
		return "", oops.Code(CodeEncodingError).With("field", "password").Errorf("password too long")
	case !utf8.ValidString(password):
		return "", oops.Code(CodeEncodingError).With("field", "password").Errorf("password must be valid UTF-8")
	}

	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code("AUTH_SALT_FAILED").Wrap(err)
	}

	key := argon2.IDKey([]byte(password), salt, h.params.Iterations, h.params.Memory, h.params.Parallelism, h.params.KeyLength)

	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.Memory,
		h.params.Iterations,
		h.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify checks if the password matches the hash.
func (h *Argon2idHasher) Verify(password, encodedHash string) bool {
	if isBcryptHash(encodedHash) {
		return bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(password)) == nil
	}

	decoded, err := decodeArgon2id(encodedHash)
	if err != nil {
		return false
	}

	computed := argon2.IDKey([]byte(password), decoded.salt,
		decoded.params.Iterations, decoded.params.Memory, decoded.params.Parallelism, decoded.params.KeyLength)

	return subtle.ConstantTimeCompare(computed, decoded.key) == 1
}

// NeedsUpgrade returns true if the hash is not argon2id at the current
// parameters (bcrypt, or argon2id with different costs).
func (h *Argon2idHasher) NeedsUpgrade(hash string) bool {
	decoded, err := decodeArgon2id(hash)
	if err != nil {
		return true
	}
	p := decoded.params
	return p.Memory != h.params.Memory ||
		p.Iterations != h.params.Iterations ||
		p.Parallelism != h.params.Parallelism ||
		p.KeyLength != h.params.KeyLength
}

// DummyHash returns a valid hash of a random password, computed once with
// the current parameters. Verifying against it costs the same as verifying a
// real user's hash and never succeeds in practice.
func (h *Argon2idHasher) DummyHash() string {
	h.dummyOnce.Do(func() {
		secret := make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			h.dummy = dummyPasswordHash
			return
		}
		hash, err := h.Hash(base64.RawStdEncoding.EncodeToString(secret))
		if err != nil {
			h.dummy = dummyPasswordHash
			return
		}
		h.dummy = hash
	})
	return h.dummy
}

type argon2idHash struct {
	params Argon2Params
	salt   []byte
	key    []byte
}

func decodeArgon2id(encoded string) (*argon2idHash, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" {
		return nil, oops.Code("AUTH_INVALID_HASH").Errorf("invalid hash format")
	}

	if parts[1] != "argon2id" {
		return nil, oops.Code("AUTH_INVALID_HASH").Errorf("unsupported hash algorithm: %s", parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return nil, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}
	if version != argon2.Version {
		return nil, oops.Code("AUTH_INVALID_HASH").Errorf("unsupported argon2 version %d", version)
	}

	var memory, iterations, threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &threads); err != nil {
		return nil, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}

	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return nil, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}

	// Validate threads fits in uint8 to prevent silent truncation
	if threads < 1 || threads > 255 {
		return nil, oops.Code("AUTH_INVALID_HASH").Errorf("threads value %d out of range", threads)
	}
	if iterations < 1 || iterations > maxArgon2Iterations {
		return nil, oops.Code("AUTH_INVALID_HASH").Errorf("iterations value %d out of range", iterations)
	}
	if memory > maxArgon2Memory {
		return nil, oops.Code("AUTH_INVALID_HASH").Errorf("memory value %d out of range", memory)
	}
	if len(salt) < minArgon2SaltLen {
		return nil, oops.Code("AUTH_INVALID_HASH").Errorf("salt too short")
	}
	if len(key) == 0 || len(key) > maxArgon2KeyLen {
		return nil, oops.Code("AUTH_INVALID_HASH").Errorf("invalid hash key length: %d", len(key))
	}

	return &argon2idHash{
		params: Argon2Params{
			Memory:      memory,
			Iterations:  iterations,
			Parallelism: uint8(threads),
			SaltLength:  uint32(len(salt)), //nolint:gosec // bounded by the encoded length
			KeyLength:   uint32(len(key)),  //nolint:gosec // bounded by maxArgon2KeyLen
		},
		salt: salt,
		key:  key,
	}, nil
}

func isBcryptHash(hash string) bool {
	return strings.HasPrefix(hash, "$2a$") ||
		strings.HasPrefix(hash, "$2b$") ||
		strings.HasPrefix(hash, "$2y$")
}
