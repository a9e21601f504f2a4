package service

import (
	"context"

	"github.com/and161185/taskhub/internal/model"
	"github.com/and161185/taskhub/internal/repository"
)

// UserService exposes the user directory.
type UserService interface {
	List(ctx context.Context) ([]model.User, error)
}

type UserServiceImpl struct {
	users repository.UserRepository
}

// NewUserService constructs UserService.
func NewUserService(users repository.UserRepository) *UserServiceImpl {
	return &UserServiceImpl{users: users}
}

// List returns all users. Callers must not expose PwdHash.
func (s *UserServiceImpl) List(ctx context.Context) ([]model.User, error) {
	return s.users.List(ctx)
}
