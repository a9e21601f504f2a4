// Package crypto implements server-side password hashing and verification.
//
// Two digest formats are understood. The legacy format is base64(SHA-256(password + "salt")):
// one global salt and a fast hash, kept because existing user rows carry it. The argon2id format
// uses a per-user random salt and is self-describing ("argon2id$<salt>$<key>"). Verify accepts
// both; the configured Scheme only decides what new digests look like.
package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// legacySalt is appended to every password before hashing in the legacy scheme.
const legacySalt = "salt"

// Argon2id parameters (tuned for server-side hashing).
const (
	argonTime    uint32 = 3         // iterations
	argonMemory  uint32 = 64 * 1024 // 64 MB
	argonThreads uint8  = 1
	argonKeyLen  uint32 = 32
	argonSaltLen        = 16

	argonPrefix = "argon2id$"
)

// Scheme selects the digest format produced by Hasher.Hash.
type Scheme string

const (
	SchemeLegacy   Scheme = "legacy"
	SchemeArgon2id Scheme = "argon2id"
)

// ParseScheme validates a scheme name from configuration.
func ParseScheme(s string) (Scheme, error) {
	switch Scheme(s) {
	case SchemeLegacy, SchemeArgon2id:
		return Scheme(s), nil
	default:
		return "", fmt.Errorf("unknown password scheme %q", s)
	}
}

// RandBytes returns n cryptographically secure random bytes.
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// LegacyHash returns base64(SHA-256(password + "salt")). Deterministic.
func LegacyHash(password string) string {
	sum := sha256.Sum256([]byte(password + legacySalt))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// LegacyVerify recomputes the legacy digest and compares it with the stored one.
func LegacyVerify(password, digest string) bool {
	return subtle.ConstantTimeCompare([]byte(LegacyHash(password)), []byte(digest)) == 1
}

// HashPassword returns Argon2id hash of password using the provided salt.
func HashPassword(password, salt []byte) []byte {
	return argon2.IDKey(password, salt, argonTime, argonMemory, argonThreads, argonKeyLen)
}

// VerifyPassword verifies password against expected Argon2id hash and salt.
func VerifyPassword(password, salt, expected []byte) bool {
	got := HashPassword(password, salt)
	return subtle.ConstantTimeCompare(got, expected) == 1
}

// Hasher produces digests in one scheme and verifies digests of any known scheme.
type Hasher struct {
	scheme Scheme
}

// NewHasher constructs a Hasher; an empty scheme means legacy.
func NewHasher(scheme Scheme) *Hasher {
	if scheme == "" {
		scheme = SchemeLegacy
	}
	return &Hasher{scheme: scheme}
}

// Scheme reports the scheme used for new digests.
func (h *Hasher) Scheme() Scheme { return h.scheme }

// Hash encodes password in the configured scheme.
func (h *Hasher) Hash(password string) (string, error) {
	if h.scheme != SchemeArgon2id {
		return LegacyHash(password), nil
	}
	salt, err := RandBytes(argonSaltLen)
	if err != nil {
		return "", fmt.Errorf("salt: %w", err)
	}
	key := HashPassword([]byte(password), salt)
	return argonPrefix + base64.RawStdEncoding.EncodeToString(salt) + "$" + base64.RawStdEncoding.EncodeToString(key), nil
}

// Verify reports whether password matches digest. Malformed digests never match.
func (h *Hasher) Verify(password, digest string) bool {
	if !strings.HasPrefix(digest, argonPrefix) {
		return LegacyVerify(password, digest)
	}
	parts := strings.Split(strings.TrimPrefix(digest, argonPrefix), "$")
	if len(parts) != 2 {
		return false
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[0])
	if err != nil {
		return false
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[1])
	if err != nil {
		return false
	}
	return VerifyPassword([]byte(password), salt, key)
}
