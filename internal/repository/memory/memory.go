// Package memory contains in-process implementations of repository interfaces,
// used when no database is configured.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/and161185/taskhub/internal/errs"
	"github.com/and161185/taskhub/internal/model"
	"github.com/gofrs/uuid/v5"
)

// Store holds users and tasks behind a single lock so that task writes can
// check the assignee exists.
type Store struct {
	mu    sync.RWMutex
	users map[uuid.UUID]model.User
	tasks map[uuid.UUID]model.Task
	now   func() time.Time
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		users: map[uuid.UUID]model.User{},
		tasks: map[uuid.UUID]model.Task{},
		now:   time.Now,
	}
}

// Users returns the UserRepository view of the store.
func (s *Store) Users() *UserRepo { return &UserRepo{s: s} }

// Tasks returns the TaskRepository view of the store.
func (s *Store) Tasks() *TaskRepo { return &TaskRepo{s: s} }

// UserRepo implements repository.UserRepository in memory.
type UserRepo struct{ s *Store }

// Create inserts a user; username and email must be unique.
func (r *UserRepo) Create(_ context.Context, u *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[u.ID]; ok {
		return errs.ErrAlreadyExists
	}
	for _, existing := range r.s.users {
		if existing.Username == u.Username || existing.Email == u.Email {
			return errs.ErrAlreadyExists
		}
	}
	r.s.users[u.ID] = *u
	return nil
}

// GetByID loads a user by ID.
func (r *UserRepo) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &u, nil
}

// GetByUsername loads a user by exact username.
func (r *UserRepo) GetByUsername(_ context.Context, username string) (*model.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, u := range r.s.users {
		if u.Username == username {
			return &u, nil
		}
	}
	return nil, errs.ErrNotFound
}

// ExistsByUsernameOrEmail reports whether either value is taken.
func (r *UserRepo) ExistsByUsernameOrEmail(_ context.Context, username, email string) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, u := range r.s.users {
		if u.Username == username || u.Email == email {
			return true, nil
		}
	}
	return false, nil
}

// List returns users ordered by creation time.
func (r *UserRepo) List(_ context.Context) ([]model.User, error) {
	r.s.mu.RLock()
	out := make([]model.User, 0, len(r.s.users))
	for _, u := range r.s.users {
		out = append(out, u)
	}
	r.s.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Count returns the number of users.
func (r *UserRepo) Count(_ context.Context) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return len(r.s.users), nil
}

// TaskRepo implements repository.TaskRepository in memory.
type TaskRepo struct{ s *Store }

// Create inserts a task; the assignee must exist.
func (r *TaskRepo) Create(_ context.Context, t *model.Task) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[t.AssignedUserID]; !ok {
		return errs.ErrNotFound
	}
	if _, ok := r.s.tasks[t.ID]; ok {
		return errs.ErrAlreadyExists
	}
	r.s.tasks[t.ID] = *t
	return nil
}

// GetForAssignee loads a task owned by assignee.
func (r *TaskRepo) GetForAssignee(_ context.Context, id, assignee uuid.UUID) (*model.Task, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	t, ok := r.s.tasks[id]
	if !ok || t.AssignedUserID != assignee {
		return nil, errs.ErrNotFound
	}
	return &t, nil
}

// ListByAssignee returns the assignee's tasks, newest first.
func (r *TaskRepo) ListByAssignee(_ context.Context, assignee uuid.UUID) ([]model.Task, error) {
	r.s.mu.RLock()
	out := []model.Task{}
	for _, t := range r.s.tasks {
		if t.AssignedUserID == assignee {
			out = append(out, t)
		}
	}
	r.s.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Update applies changes to a task owned by assignee.
func (r *TaskRepo) Update(_ context.Context, id, assignee uuid.UUID, ch model.TaskChanges) (*model.Task, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tasks[id]
	if !ok || t.AssignedUserID != assignee {
		return nil, errs.ErrNotFound
	}
	t.Title = ch.Title
	t.Description = ch.Description
	t.DueDate = ch.DueDate
	t.Status = ch.Status
	t.UpdatedAt = r.s.now().UTC()
	r.s.tasks[id] = t
	return &t, nil
}

// Delete removes a task owned by assignee.
func (r *TaskRepo) Delete(_ context.Context, id, assignee uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tasks[id]
	if !ok || t.AssignedUserID != assignee {
		return errs.ErrNotFound
	}
	delete(r.s.tasks, id)
	return nil
}

// Reassign moves a task owned by from to to; to must exist.
func (r *TaskRepo) Reassign(_ context.Context, id, from, to uuid.UUID) (*model.Task, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tasks[id]
	if !ok || t.AssignedUserID != from {
		return nil, errs.ErrNotFound
	}
	if _, ok := r.s.users[to]; !ok {
		return nil, errs.ErrNotFound
	}
	t.AssignedUserID = to
	t.UpdatedAt = r.s.now().UTC()
	r.s.tasks[id] = t
	return &t, nil
}
