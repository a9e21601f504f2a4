package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/and161185/taskhub/internal/errs"
	"github.com/and161185/taskhub/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// TaskRepo implements TaskRepository using PostgreSQL.
type TaskRepo struct{ db *DB }

// NewTaskRepo constructs a task repository.
func NewTaskRepo(db *DB) *TaskRepo { return &TaskRepo{db: db} }

const taskCols = `id, title, description, due_date, status, assigned_user_id, created_at, updated_at`

// Create inserts a new task row.
func (r *TaskRepo) Create(ctx context.Context, t *model.Task) error {
	const q = `
INSERT INTO tasks (id, title, description, due_date, status, assigned_user_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.db.Pool.Exec(ctx, q,
		t.ID, t.Title, t.Description, t.DueDate, int(t.Status), t.AssignedUserID, t.CreatedAt, t.UpdatedAt)
	switch {
	case isForeignKeyViolation(err):
		return errs.ErrNotFound
	case isUniqueViolation(err):
		return errs.ErrAlreadyExists
	case err != nil:
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// GetForAssignee selects a task owned by assignee.
func (r *TaskRepo) GetForAssignee(ctx context.Context, id, assignee uuid.UUID) (*model.Task, error) {
	const q = `SELECT ` + taskCols + ` FROM tasks WHERE id=$1 AND assigned_user_id=$2`
	return scanTask(r.db.Pool.QueryRow(ctx, q, id, assignee))
}

// ListByAssignee selects the assignee's tasks, newest first.
func (r *TaskRepo) ListByAssignee(ctx context.Context, assignee uuid.UUID) ([]model.Task, error) {
	const q = `SELECT ` + taskCols + ` FROM tasks WHERE assigned_user_id=$1 ORDER BY created_at DESC`
	rows, err := r.db.Pool.Query(ctx, q, assignee)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	out := []model.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// Update rewrites the editable fields of a task owned by assignee.
func (r *TaskRepo) Update(ctx context.Context, id, assignee uuid.UUID, ch model.TaskChanges) (*model.Task, error) {
	const q = `
UPDATE tasks
SET title=$3, description=$4, due_date=$5, status=$6, updated_at=now()
WHERE id=$1 AND assigned_user_id=$2
RETURNING ` + taskCols
	return scanTask(r.db.Pool.QueryRow(ctx, q, id, assignee, ch.Title, ch.Description, ch.DueDate, int(ch.Status)))
}

// Delete removes a task owned by assignee.
func (r *TaskRepo) Delete(ctx context.Context, id, assignee uuid.UUID) error {
	const q = `DELETE FROM tasks WHERE id=$1 AND assigned_user_id=$2`
	tag, err := r.db.Pool.Exec(ctx, q, id, assignee)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// Reassign moves a task from one assignee to another in a single statement.
func (r *TaskRepo) Reassign(ctx context.Context, id, from, to uuid.UUID) (*model.Task, error) {
	const q = `
UPDATE tasks
SET assigned_user_id=$3, updated_at=now()
WHERE id=$1 AND assigned_user_id=$2
RETURNING ` + taskCols
	t, err := scanTask(r.db.Pool.QueryRow(ctx, q, id, from, to))
	if isForeignKeyViolation(err) {
		return nil, errs.ErrNotFound
	}
	return t, err
}

func scanTask(row pgx.Row) (*model.Task, error) {
	var (
		t      model.Task
		status int
	)
	err := row.Scan(&t.ID, &t.Title, &t.Description, &t.DueDate, &status, &t.AssignedUserID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, fmt.Errorf("scan task: %w", err)
	}
	t.Status = model.TaskStatus(status)
	return &t, nil
}
