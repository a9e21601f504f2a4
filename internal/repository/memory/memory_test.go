package memory

import (
	"context"
	"testing"
	"time"

	"github.com/and161185/taskhub/internal/errs"
	"github.com/and161185/taskhub/internal/model"
	"github.com/and161185/taskhub/internal/repository"
	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
)

var (
	_ repository.UserRepository = (*UserRepo)(nil)
	_ repository.TaskRepository = (*TaskRepo)(nil)
)

func newUser(name string, created time.Time) *model.User {
	return &model.User{
		ID:        uuid.Must(uuid.NewV4()),
		Username:  name,
		Email:     name + "@example.com",
		PwdHash:   "h",
		CreatedAt: created,
	}
}

func TestUsers_UniqueAndLookup(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	users := NewStore().Users()

	a := newUser("alice", time.Now())
	require.NoError(t, users.Create(ctx, a))

	dupName := newUser("alice", time.Now())
	dupName.Email = "other@example.com"
	require.ErrorIs(t, users.Create(ctx, dupName), errs.ErrAlreadyExists)

	dupMail := newUser("bob", time.Now())
	dupMail.Email = a.Email
	require.ErrorIs(t, users.Create(ctx, dupMail), errs.ErrAlreadyExists)

	got, err := users.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, a.ID, got.ID)

	_, err = users.GetByUsername(ctx, "Alice")
	require.ErrorIs(t, err, errs.ErrNotFound, "lookup is case-sensitive")

	_, err = users.GetByID(ctx, uuid.Must(uuid.NewV4()))
	require.ErrorIs(t, err, errs.ErrNotFound)

	ok, err := users.ExistsByUsernameOrEmail(ctx, "zed", a.Email)
	require.NoError(t, err)
	require.True(t, ok)

	n, _ := users.Count(ctx)
	require.Equal(t, 1, n)
}

func TestUsers_ListOrdered(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	users := NewStore().Users()
	now := time.Now()

	require.NoError(t, users.Create(ctx, newUser("second", now)))
	require.NoError(t, users.Create(ctx, newUser("first", now.Add(-time.Hour))))

	list, err := users.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "first", list[0].Username)
}

func TestTasks_ScopedToAssignee(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := NewStore()
	owner, other := newUser("owner", time.Now()), newUser("other", time.Now())
	require.NoError(t, st.Users().Create(ctx, owner))
	require.NoError(t, st.Users().Create(ctx, other))
	tasks := st.Tasks()

	now := time.Now()
	older := &model.Task{ID: uuid.Must(uuid.NewV4()), Title: "old", AssignedUserID: owner.ID, CreatedAt: now.Add(-time.Minute)}
	newer := &model.Task{ID: uuid.Must(uuid.NewV4()), Title: "new", AssignedUserID: owner.ID, CreatedAt: now}
	require.NoError(t, tasks.Create(ctx, older))
	require.NoError(t, tasks.Create(ctx, newer))

	orphan := &model.Task{ID: uuid.Must(uuid.NewV4()), AssignedUserID: uuid.Must(uuid.NewV4())}
	require.ErrorIs(t, tasks.Create(ctx, orphan), errs.ErrNotFound)

	list, err := tasks.ListByAssignee(ctx, owner.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "new", list[0].Title)

	_, err = tasks.GetForAssignee(ctx, older.ID, other.ID)
	require.ErrorIs(t, err, errs.ErrNotFound)

	upd, err := tasks.Update(ctx, older.ID, owner.ID, model.TaskChanges{Title: "renamed", Status: model.TaskCompleted})
	require.NoError(t, err)
	require.Equal(t, "renamed", upd.Title)
	require.Equal(t, model.TaskCompleted, upd.Status)

	_, err = tasks.Update(ctx, older.ID, other.ID, model.TaskChanges{})
	require.ErrorIs(t, err, errs.ErrNotFound)

	require.ErrorIs(t, tasks.Delete(ctx, older.ID, other.ID), errs.ErrNotFound)
	require.NoError(t, tasks.Delete(ctx, older.ID, owner.ID))
	_, err = tasks.GetForAssignee(ctx, older.ID, owner.ID)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestTasks_Reassign(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := NewStore()
	from, to := newUser("from", time.Now()), newUser("to", time.Now())
	require.NoError(t, st.Users().Create(ctx, from))
	require.NoError(t, st.Users().Create(ctx, to))
	tasks := st.Tasks()

	tk := &model.Task{ID: uuid.Must(uuid.NewV4()), Title: "T1", AssignedUserID: from.ID, CreatedAt: time.Now()}
	require.NoError(t, tasks.Create(ctx, tk))

	_, err := tasks.Reassign(ctx, tk.ID, from.ID, uuid.Must(uuid.NewV4()))
	require.ErrorIs(t, err, errs.ErrNotFound, "unknown assignee")

	got, err := tasks.Reassign(ctx, tk.ID, from.ID, to.ID)
	require.NoError(t, err)
	require.Equal(t, to.ID, got.AssignedUserID)

	_, err = tasks.Reassign(ctx, tk.ID, from.ID, to.ID)
	require.ErrorIs(t, err, errs.ErrNotFound, "previous owner no longer holds the task")
}
