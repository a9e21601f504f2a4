// Package service contains application services for authentication, users and tasks.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	pkgcrypto "github.com/and161185/taskhub/internal/crypto"
	"github.com/and161185/taskhub/internal/errs"
	"github.com/and161185/taskhub/internal/limiter"
	"github.com/and161185/taskhub/internal/model"
	"github.com/and161185/taskhub/internal/repository"
)

// Seeded account created on an empty user store.
const (
	AdminUsername = "admin"
	AdminEmail    = "admin@example.com"
	AdminPassword = "admin123"
)

// AuthService defines authentication and bootstrap operations.
type AuthService interface {
	// Authenticate checks credentials and returns the matching user.
	Authenticate(ctx context.Context, username, password string) (model.User, error)
	// Login applies rate-limiting, authenticates the user and issues a session token.
	Login(ctx context.Context, username, password, ip string) (model.Session, model.User, error)
	// Register creates a new user and issues a session token for it.
	Register(ctx context.Context, username, email, password string) (model.Session, model.User, error)
	// SeedAdmin creates the default account when no users exist.
	SeedAdmin(ctx context.Context) (bool, error)
}

// TokenIssuer signs session tokens for users.
type TokenIssuer interface {
	Issue(u model.User) (string, time.Time, error)
}

// LoginRecorder counts login results for metrics.
type LoginRecorder interface {
	RecordLogin(result string)
}

type nopLoginRecorder struct{}

func (nopLoginRecorder) RecordLogin(string) {}

type AuthServiceImpl struct {
	users  repository.UserRepository
	hasher *pkgcrypto.Hasher
	tokens TokenIssuer
	lim    limiter.Limiter
	log    *zap.Logger
	rec    LoginRecorder
	now    func() time.Time
}

// AuthOption customizes AuthServiceImpl.
type AuthOption func(*AuthServiceImpl)

// WithLoginRecorder installs a login result recorder.
func WithLoginRecorder(r LoginRecorder) AuthOption {
	return func(s *AuthServiceImpl) { s.rec = r }
}

// NewAuthService constructs AuthService with required dependencies.
func NewAuthService(users repository.UserRepository, hasher *pkgcrypto.Hasher, tokens TokenIssuer,
	lim limiter.Limiter, log *zap.Logger, opts ...AuthOption) *AuthServiceImpl {
	s := &AuthServiceImpl{
		users:  users,
		hasher: hasher,
		tokens: tokens,
		lim:    lim,
		log:    log.Named("auth"),
		rec:    nopLoginRecorder{},
		now:    time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Authenticate looks the user up by exact username and verifies the password.
// Unknown users and wrong passwords yield the same errs.ErrUnauthorized;
// storage failures are returned wrapped.
func (s *AuthServiceImpl) Authenticate(ctx context.Context, username, password string) (model.User, error) {
	u, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return model.User{}, errs.ErrUnauthorized
		}
		return model.User{}, fmt.Errorf("lookup user: %w", err)
	}
	if !s.hasher.Verify(password, u.PwdHash) {
		return model.User{}, errs.ErrUnauthorized
	}
	return *u, nil
}

// Login authenticates with rate limiting by (username, ip).
func (s *AuthServiceImpl) Login(ctx context.Context, username, password, ip string) (model.Session, model.User, error) {
	ipHash := limiter.HashIP(ip)

	allowed, retry, err := s.lim.Allow(ctx, username, ipHash)
	if err != nil {
		s.rec.RecordLogin("error")
		return model.Session{}, model.User{}, fmt.Errorf("limiter: %w", err)
	}
	if !allowed {
		s.rec.RecordLogin("rate_limited")
		s.log.Info("login blocked", zap.String("username", username), zap.Duration("retry_after", retry))
		return model.Session{}, model.User{}, errs.ErrRateLimited
	}

	u, err := s.Authenticate(ctx, username, password)
	if err != nil {
		if !errors.Is(err, errs.ErrUnauthorized) {
			s.rec.RecordLogin("error")
			return model.Session{}, model.User{}, err
		}
		blocked, _, ferr := s.lim.Failure(ctx, username, ipHash)
		if ferr != nil {
			s.log.Warn("record login failure", zap.Error(ferr))
		}
		if blocked {
			s.rec.RecordLogin("rate_limited")
			return model.Session{}, model.User{}, errs.ErrRateLimited
		}
		s.rec.RecordLogin("rejected")
		return model.Session{}, model.User{}, errs.ErrUnauthorized
	}

	// best-effort reset
	if err := s.lim.Success(ctx, username, ipHash); err != nil {
		s.log.Warn("reset login counters", zap.Error(err))
	}

	sess, err := s.issue(u)
	if err != nil {
		s.rec.RecordLogin("error")
		return model.Session{}, model.User{}, err
	}
	s.rec.RecordLogin("success")
	return sess, u, nil
}

// Register creates a user with a hashed password. A taken username or email
// yields errs.ErrAlreadyExists.
func (s *AuthServiceImpl) Register(ctx context.Context, username, email, password string) (model.Session, model.User, error) {
	if username == "" || email == "" || password == "" {
		return model.Session{}, model.User{}, fmt.Errorf("%w: empty username/email/password", errs.ErrValidation)
	}
	taken, err := s.users.ExistsByUsernameOrEmail(ctx, username, email)
	if err != nil {
		return model.Session{}, model.User{}, fmt.Errorf("check existing user: %w", err)
	}
	if taken {
		return model.Session{}, model.User{}, errs.ErrAlreadyExists
	}

	u, err := s.newUser(username, email, password)
	if err != nil {
		return model.Session{}, model.User{}, err
	}
	if err := s.users.Create(ctx, u); err != nil {
		return model.Session{}, model.User{}, err
	}
	s.log.Info("user registered", zap.Stringer("user_id", u.ID), zap.String("username", u.Username))

	sess, err := s.issue(*u)
	if err != nil {
		return model.Session{}, model.User{}, err
	}
	return sess, *u, nil
}

// SeedAdmin creates the default admin account if the store is empty. It
// reports whether an account was created.
func (s *AuthServiceImpl) SeedAdmin(ctx context.Context) (bool, error) {
	n, err := s.users.Count(ctx)
	if err != nil {
		return false, fmt.Errorf("count users: %w", err)
	}
	if n > 0 {
		return false, nil
	}
	u, err := s.newUser(AdminUsername, AdminEmail, AdminPassword)
	if err != nil {
		return false, err
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, errs.ErrAlreadyExists) {
			// another instance seeded concurrently
			return false, nil
		}
		return false, fmt.Errorf("seed admin: %w", err)
	}
	s.log.Info("default admin seeded", zap.String("username", AdminUsername))
	return true, nil
}

func (s *AuthServiceImpl) newUser(username, email, password string) (*model.User, error) {
	uid, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	digest, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	return &model.User{
		ID:        uid,
		Username:  username,
		Email:     email,
		PwdHash:   digest,
		CreatedAt: s.now().UTC(),
	}, nil
}

func (s *AuthServiceImpl) issue(u model.User) (model.Session, error) {
	tok, exp, err := s.tokens.Issue(u)
	if err != nil {
		return model.Session{}, fmt.Errorf("issue token: %w", err)
	}
	return model.Session{AccessToken: tok, ExpiresAt: exp}, nil
}
