package repository

import (
	"context"

	"github.com/and161185/taskhub/internal/model"
	"github.com/gofrs/uuid/v5"
)

// TaskRepository provides access to tasks. Reads and writes are scoped to the
// current assignee: a task that belongs to someone else behaves as not found.
type TaskRepository interface {
	// Create inserts a new task.
	Create(ctx context.Context, t *model.Task) error
	// GetForAssignee loads a task owned by assignee.
	GetForAssignee(ctx context.Context, id, assignee uuid.UUID) (*model.Task, error)
	// ListByAssignee returns the assignee's tasks, newest first.
	ListByAssignee(ctx context.Context, assignee uuid.UUID) ([]model.Task, error)
	// Update applies changes to a task owned by assignee and returns the stored row.
	Update(ctx context.Context, id, assignee uuid.UUID, ch model.TaskChanges) (*model.Task, error)
	// Delete removes a task owned by assignee.
	Delete(ctx context.Context, id, assignee uuid.UUID) error
	// Reassign moves a task from one assignee to another and returns the stored row.
	Reassign(ctx context.Context, id, from, to uuid.UUID) (*model.Task, error)
}
