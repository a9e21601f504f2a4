package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/and161185/taskhub/internal/errs"
	"github.com/and161185/taskhub/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"
)

var taskColumns = []string{"id", "title", "description", "due_date", "status", "assigned_user_id", "created_at", "updated_at"}

func taskRow(id, owner uuid.UUID, title string, status int) []any {
	now := time.Now()
	return []any{id, title, "desc", now.Add(24 * time.Hour), status, owner, now, now}
}

func TestTaskRepo_Create(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewTaskRepo(db)
	now := time.Now()
	tk := &model.Task{
		ID: uuid.Must(uuid.NewV4()), Title: "Write report", Description: "d",
		DueDate: now, Status: model.TaskPending, AssignedUserID: uuid.Must(uuid.NewV4()),
		CreatedAt: now, UpdatedAt: now,
	}
	q := regexp.QuoteMeta(`INSERT INTO tasks (id, title, description, due_date, status, assigned_user_id, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`)

	mock.ExpectExec(q).
		WithArgs(tk.ID, tk.Title, tk.Description, tk.DueDate, 0, tk.AssignedUserID, tk.CreatedAt, tk.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, r.Create(context.Background(), tk))

	mock.ExpectExec(q).
		WithArgs(tk.ID, tk.Title, tk.Description, tk.DueDate, 0, tk.AssignedUserID, tk.CreatedAt, tk.UpdatedAt).
		WillReturnError(&pgconn.PgError{Code: "23503"})
	require.ErrorIs(t, r.Create(context.Background(), tk), errs.ErrNotFound)
}

func TestTaskRepo_GetForAssignee(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewTaskRepo(db)
	id, owner := uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4())
	q := regexp.QuoteMeta(`FROM tasks WHERE id=$1 AND assigned_user_id=$2`)

	mock.ExpectQuery(q).WithArgs(id, owner).
		WillReturnRows(pgxmock.NewRows(taskColumns).AddRow(taskRow(id, owner, "T1", 1)...))
	tk, err := r.GetForAssignee(context.Background(), id, owner)
	require.NoError(t, err)
	require.Equal(t, "T1", tk.Title)
	require.Equal(t, model.TaskInProgress, tk.Status)

	mock.ExpectQuery(q).WithArgs(id, owner).WillReturnError(pgx.ErrNoRows)
	_, err = r.GetForAssignee(context.Background(), id, owner)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestTaskRepo_ListByAssignee(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewTaskRepo(db)
	owner := uuid.Must(uuid.NewV4())

	mock.ExpectQuery(regexp.QuoteMeta(`FROM tasks WHERE assigned_user_id=$1 ORDER BY created_at DESC`)).
		WithArgs(owner).
		WillReturnRows(pgxmock.NewRows(taskColumns).
			AddRow(taskRow(uuid.Must(uuid.NewV4()), owner, "new", 0)...).
			AddRow(taskRow(uuid.Must(uuid.NewV4()), owner, "old", 2)...))
	tasks, err := r.ListByAssignee(context.Background(), owner)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	require.Equal(t, "new", tasks[0].Title)
	require.Equal(t, model.TaskCompleted, tasks[1].Status)
}

func TestTaskRepo_Update(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewTaskRepo(db)
	id, owner := uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4())
	due := time.Now()
	ch := model.TaskChanges{Title: "new", Description: "d", DueDate: due, Status: model.TaskCompleted}
	q := regexp.QuoteMeta(`UPDATE tasks SET title=$3, description=$4, due_date=$5, status=$6, updated_at=now() WHERE id=$1 AND assigned_user_id=$2 RETURNING`)

	mock.ExpectQuery(q).WithArgs(id, owner, "new", "d", due, 2).
		WillReturnRows(pgxmock.NewRows(taskColumns).AddRow(taskRow(id, owner, "new", 2)...))
	tk, err := r.Update(context.Background(), id, owner, ch)
	require.NoError(t, err)
	require.Equal(t, model.TaskCompleted, tk.Status)

	mock.ExpectQuery(q).WithArgs(id, owner, "new", "d", due, 2).WillReturnError(pgx.ErrNoRows)
	_, err = r.Update(context.Background(), id, owner, ch)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestTaskRepo_Delete(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewTaskRepo(db)
	id, owner := uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4())
	q := regexp.QuoteMeta(`DELETE FROM tasks WHERE id=$1 AND assigned_user_id=$2`)

	mock.ExpectExec(q).WithArgs(id, owner).WillReturnResult(pgxmock.NewResult("DELETE", 1))
	require.NoError(t, r.Delete(context.Background(), id, owner))

	mock.ExpectExec(q).WithArgs(id, owner).WillReturnResult(pgxmock.NewResult("DELETE", 0))
	require.ErrorIs(t, r.Delete(context.Background(), id, owner), errs.ErrNotFound)
}

func TestTaskRepo_Reassign(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewTaskRepo(db)
	id, from, to := uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4())
	q := regexp.QuoteMeta(`UPDATE tasks SET assigned_user_id=$3, updated_at=now() WHERE id=$1 AND assigned_user_id=$2 RETURNING`)

	mock.ExpectQuery(q).WithArgs(id, from, to).
		WillReturnRows(pgxmock.NewRows(taskColumns).AddRow(taskRow(id, to, "T1", 0)...))
	tk, err := r.Reassign(context.Background(), id, from, to)
	require.NoError(t, err)
	require.Equal(t, to, tk.AssignedUserID)

	mock.ExpectQuery(q).WithArgs(id, from, to).WillReturnError(&pgconn.PgError{Code: "23503"})
	_, err = r.Reassign(context.Background(), id, from, to)
	require.ErrorIs(t, err, errs.ErrNotFound)
}
