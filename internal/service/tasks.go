package service

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/and161185/taskhub/internal/errs"
	"github.com/and161185/taskhub/internal/model"
	"github.com/and161185/taskhub/internal/notify"
	"github.com/and161185/taskhub/internal/repository"
)

var (
	// ErrTaskNotFound is returned when the task does not exist or belongs to someone else.
	ErrTaskNotFound = fmt.Errorf("task %w", errs.ErrNotFound)
	// ErrAssigneeNotFound is returned when the target user of an assignment does not exist.
	ErrAssigneeNotFound = fmt.Errorf("assignee %w", errs.ErrNotFound)
)

// TaskService defines task operations scoped to the calling user.
type TaskService interface {
	List(ctx context.Context, caller uuid.UUID) ([]model.Task, error)
	Get(ctx context.Context, caller, id uuid.UUID) (*model.Task, error)
	// Create stores a pending task assigned to the caller and announces it.
	Create(ctx context.Context, caller uuid.UUID, in TaskInput) (*model.Task, error)
	Update(ctx context.Context, caller, id uuid.UUID, ch model.TaskChanges) (*model.Task, error)
	Delete(ctx context.Context, caller, id uuid.UUID) error
	// Assign hands a task owned by the caller to another user and announces it.
	Assign(ctx context.Context, caller, id, assignee uuid.UUID) (*model.Task, error)
}

// TaskInput carries the fields of a new task.
type TaskInput struct {
	Title       string
	Description string
	DueDate     time.Time
}

// Notifier announces task assignments. Implementations must not block or fail
// the caller; the returned outcome is informational.
type Notifier interface {
	Publish(userID, taskID uuid.UUID, title string) notify.Outcome
}

type TaskServiceImpl struct {
	tasks    repository.TaskRepository
	users    repository.UserRepository
	notifier Notifier
	policy   *bluemonday.Policy
	log      *zap.Logger
	now      func() time.Time
}

// NewTaskService constructs TaskService.
func NewTaskService(tasks repository.TaskRepository, users repository.UserRepository, n Notifier, log *zap.Logger) *TaskServiceImpl {
	return &TaskServiceImpl{
		tasks:    tasks,
		users:    users,
		notifier: n,
		policy:   bluemonday.StrictPolicy(),
		log:      log.Named("tasks"),
		now:      time.Now,
	}
}

func (s *TaskServiceImpl) List(ctx context.Context, caller uuid.UUID) ([]model.Task, error) {
	return s.tasks.ListByAssignee(ctx, caller)
}

func (s *TaskServiceImpl) Get(ctx context.Context, caller, id uuid.UUID) (*model.Task, error) {
	t, err := s.tasks.GetForAssignee(ctx, id, caller)
	return t, taskErr(err)
}

func (s *TaskServiceImpl) Create(ctx context.Context, caller uuid.UUID, in TaskInput) (*model.Task, error) {
	if caller == uuid.Nil {
		return nil, errs.ErrUnauthorized
	}
	title := s.clean(in.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: empty title", errs.ErrValidation)
	}
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	t := &model.Task{
		ID:             id,
		Title:          title,
		Description:    s.clean(in.Description),
		DueDate:        in.DueDate.UTC(),
		Status:         model.TaskPending,
		AssignedUserID: caller,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.tasks.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	s.announce(caller, t)
	return t, nil
}

func (s *TaskServiceImpl) Update(ctx context.Context, caller, id uuid.UUID, ch model.TaskChanges) (*model.Task, error) {
	ch.Title = s.clean(ch.Title)
	ch.Description = s.clean(ch.Description)
	ch.DueDate = ch.DueDate.UTC()
	if ch.Title == "" {
		return nil, fmt.Errorf("%w: empty title", errs.ErrValidation)
	}
	if !ch.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %d", errs.ErrValidation, ch.Status)
	}
	t, err := s.tasks.Update(ctx, id, caller, ch)
	return t, taskErr(err)
}

func (s *TaskServiceImpl) Delete(ctx context.Context, caller, id uuid.UUID) error {
	return taskErr(s.tasks.Delete(ctx, id, caller))
}

// Assign verifies both the task and the new assignee, persists the change and
// only then publishes the notification.
func (s *TaskServiceImpl) Assign(ctx context.Context, caller, id, assignee uuid.UUID) (*model.Task, error) {
	if _, err := s.tasks.GetForAssignee(ctx, id, caller); err != nil {
		return nil, taskErr(err)
	}
	if _, err := s.users.GetByID(ctx, assignee); err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, ErrAssigneeNotFound
		}
		return nil, fmt.Errorf("lookup assignee: %w", err)
	}
	t, err := s.tasks.Reassign(ctx, id, caller, assignee)
	if err != nil {
		return nil, taskErr(err)
	}
	s.announce(assignee, t)
	return t, nil
}

func (s *TaskServiceImpl) announce(userID uuid.UUID, t *model.Task) {
	out := s.notifier.Publish(userID, t.ID, t.Title)
	s.log.Debug("assignment announced",
		zap.Stringer("task_id", t.ID), zap.Stringer("user_id", userID), zap.Stringer("outcome", out))
}

// clean strips markup, including markup smuggled in as entities. The
// sanitized text is unescaped only when that cannot reintroduce a tag.
func (s *TaskServiceImpl) clean(v string) string {
	out := s.policy.Sanitize(html.UnescapeString(v))
	if plain := html.UnescapeString(out); s.policy.Sanitize(plain) == out {
		out = plain
	}
	return strings.TrimSpace(out)
}

func taskErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, errs.ErrNotFound) {
		return ErrTaskNotFound
	}
	return fmt.Errorf("task storage: %w", err)
}
