// Package token issues and verifies the HS256 session tokens handed out at login.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/and161185/taskhub/internal/errs"
	"github.com/and161185/taskhub/internal/model"
)

// Defaults used when configuration leaves a value empty. Not for production.
const (
	DefaultKey      = "your-super-secret-key-that-is-at-least-32-characters-long"
	DefaultIssuer   = "TaskManagementApi"
	DefaultAudience = "TaskManagementApi"
)

// TTL is the fixed lifetime of every session token.
const TTL = 24 * time.Hour

// MinKeyLen is the shortest HS256 key accepted.
const MinKeyLen = 32

// ErrRejected is returned for every invalid token, whatever the cause.
var ErrRejected = fmt.Errorf("token rejected: %w", errs.ErrUnauthorized)

// ErrKeyTooShort is returned by New when the signing key is under MinKeyLen bytes.
var ErrKeyTooShort = errors.New("jwt signing key must be at least 32 bytes")

// ErrKeyNotASCII is returned by New for keys with bytes outside 7-bit ASCII.
// Tokens minted by the previous backend signed with the ASCII encoding of the
// key, so only ASCII keys produce matching signatures.
var ErrKeyNotASCII = errors.New("jwt signing key must be ASCII")

// Claims is the decoded payload of a session token. The short claim names
// (nameid, unique_name, email) match tokens minted by the previous backend.
type Claims struct {
	NameID string `json:"nameid,omitempty"`
	Name   string `json:"unique_name,omitempty"`
	Email  string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// UserID returns the identity the token was issued for.
func (c *Claims) UserID() (uuid.UUID, error) {
	id := c.NameID
	if id == "" {
		id = c.Subject
	}
	return uuid.FromString(id)
}

// Config carries the signing material. Empty fields fall back to the defaults above.
type Config struct {
	Key      []byte
	Issuer   string
	Audience string
}

// Service mints and validates tokens. It is immutable and safe for concurrent use.
type Service struct {
	key      []byte
	issuer   string
	audience string
	now      func() time.Time
}

// New validates cfg and constructs a Service. A short key is a startup error.
func New(cfg Config) (*Service, error) {
	key := cfg.Key
	if len(key) == 0 {
		key = []byte(DefaultKey)
	}
	if len(key) < MinKeyLen {
		return nil, ErrKeyTooShort
	}
	for _, b := range key {
		if b > 0x7f {
			return nil, ErrKeyNotASCII
		}
	}
	s := &Service{
		key:      append([]byte(nil), key...),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		now:      time.Now,
	}
	if s.issuer == "" {
		s.issuer = DefaultIssuer
	}
	if s.audience == "" {
		s.audience = DefaultAudience
	}
	return s, nil
}

// Issue creates a signed token for u valid for TTL.
func (s *Service) Issue(u model.User) (string, time.Time, error) {
	now := s.now()
	exp := now.Add(TTL)
	id := u.ID.String()
	claims := Claims{
		NameID: id,
		Name:   u.Username,
		Email:  u.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id,
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// Verify checks signature, issuer, audience and expiry with zero leeway.
// Any failure yields ErrRejected.
func (s *Service) Verify(tok string) (*Claims, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(tok, &claims, func(*jwt.Token) (any, error) {
		return s.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid {
		return nil, ErrRejected
	}
	if _, err := claims.UserID(); err != nil {
		return nil, ErrRejected
	}
	return &claims, nil
}
