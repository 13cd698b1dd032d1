// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// KeyBytes is the entropy of generated session and reset keys.
const KeyBytes = 32 // 32 bytes = 64 hex chars

// Argon2Params configures the argon2id transform.
type Argon2Params struct {
	Time    uint32 // iterations
	Memory  uint32 // KiB
	Threads uint8
	SaltLen uint32
	KeyLen  uint32
}

// DefaultArgon2Params are the OWASP-recommended argon2id parameters.
var DefaultArgon2Params = Argon2Params{
	Time:    1,
	Memory:  64 * 1024, // 64 MB
	Threads: 4,
	SaltLen: 16,
	KeyLen:  32,
}

// ErrEmptyPassword is returned when attempting to hash an empty secret.
var ErrEmptyPassword = oops.Code(CodeEmptyPassword).Errorf("password cannot be empty")

// PasswordHasher provides one-way hashing and verification of secrets.
type PasswordHasher interface {
	// Hash produces a salted hash of the secret.
	Hash(secret string) (string, error)

	// Verify checks if the secret matches the hash.
	// Returns (true, nil) on match, (false, nil) on mismatch, or error on invalid hash.
	Verify(secret, hash string) (bool, error)

	// NeedsUpgrade returns true if the hash should be re-computed with the current algorithm.
	NeedsUpgrade(hash string) bool
}

// Argon2idHasher implements PasswordHasher using argon2id.
// It also verifies bcrypt hashes carried over from older deployments.
type Argon2idHasher struct {
	params Argon2Params
}

// NewArgon2idHasher creates a new Argon2idHasher with DefaultArgon2Params.
func NewArgon2idHasher() *Argon2idHasher {
	return &Argon2idHasher{params: DefaultArgon2Params}
}

// NewArgon2idHasherWithParams creates an Argon2idHasher with explicit parameters.
func NewArgon2idHasherWithParams(params Argon2Params) (*Argon2idHasher, error) {
	if params.Time == 0 || params.Threads == 0 || params.SaltLen == 0 || params.KeyLen == 0 {
		return nil, oops.Code("AUTH_INVALID_PARAMS").
			With("params", params).
			Errorf("argon2 time, threads, salt length and key length must be positive")
	}
	if params.Memory < 8*uint32(params.Threads) {
		return nil, oops.Code("AUTH_INVALID_PARAMS").
			With("memory", params.Memory).
			Errorf("argon2 memory must be at least 8 KiB per thread")
	}
	return &Argon2idHasher{params: params}, nil
}

// Hash produces an argon2id hash of the secret.
func (h *Argon2idHasher) Hash(secret string) (string, error) {
	if secret == "" {
		return "", ErrEmptyPassword
	}

	salt := make([]byte, h.params.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code(CodeHashFailed).With("operation", "generate salt").Wrap(err)
	}

	hash := argon2.IDKey([]byte(secret), salt, h.params.Time, h.params.Memory, h.params.Threads, h.params.KeyLen)

	// $argon2id$v=19$m=65536,t=1,p=4$<salt>$<hash>
	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.Memory,
		h.params.Time,
		h.params.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// Verify checks if the secret matches the hash.
func (h *Argon2idHasher) Verify(secret, encodedHash string) (bool, error) {
	if isBcryptHash(encodedHash) {
		return verifyBcrypt(secret, encodedHash)
	}

	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 {
		return false, oops.Code(CodeInvalidHash).Errorf("invalid hash format")
	}

	if parts[1] != "argon2id" {
		return false, oops.Code(CodeInvalidHash).Errorf("unsupported hash algorithm: %s", parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return false, oops.Code(CodeInvalidHash).Wrap(err)
	}
	if version != argon2.Version {
		return false, oops.Code(CodeInvalidHash).Errorf("unsupported argon2 version: %d", version)
	}

	var memory, time, threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return false, oops.Code(CodeInvalidHash).Wrap(err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, oops.Code(CodeInvalidHash).Wrap(err)
	}

	expectedHash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, oops.Code(CodeInvalidHash).Wrap(err)
	}

	if threads == 0 || threads > 255 {
		return false, oops.Code(CodeInvalidHash).Errorf("threads value %d out of range", threads)
	}

	keyLen := len(expectedHash)
	if keyLen <= 0 || keyLen > 1<<30 {
		return false, oops.Code(CodeInvalidHash).Errorf("invalid hash key length: %d", keyLen)
	}

	computedHash := argon2.IDKey([]byte(secret), salt, time, memory, uint8(threads), uint32(keyLen))

	return subtle.ConstantTimeCompare(computedHash, expectedHash) == 1, nil
}

// NeedsUpgrade returns true if the hash is not argon2id (e.g., bcrypt).
func (h *Argon2idHasher) NeedsUpgrade(hash string) bool {
	return !strings.HasPrefix(hash, "$argon2id$")
}

func isBcryptHash(hash string) bool {
	return strings.HasPrefix(hash, "$2a$") ||
		strings.HasPrefix(hash, "$2b$") ||
		strings.HasPrefix(hash, "$2y$")
}

func verifyBcrypt(secret, hash string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	return false, oops.Code(CodeInvalidHash).With("algorithm", "bcrypt").Wrap(err)
}

// GenerateKeyPair creates a high-entropy random key and its hash under h.
// The plaintext key is handed to the caller once; only the hash is persisted.
func GenerateKeyPair(h PasswordHasher) (key, keyHash string, err error) {
	keyBytes := make([]byte, KeyBytes)
	if _, err = rand.Read(keyBytes); err != nil {
		return "", "", oops.Code(CodeHashFailed).
			With("operation", "crypto/rand.Read").
			With("requested_bytes", KeyBytes).
			Wrap(err)
	}

	key = hex.EncodeToString(keyBytes)
	keyHash, err = h.Hash(key)
	if err != nil {
		return "", "", oops.Code(CodeHashFailed).
			With("operation", "hash key").
			Wrap(err)
	}
	return key, keyHash, nil
}
