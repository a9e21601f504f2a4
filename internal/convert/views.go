// Package convert maps domain models to the JSON shapes served over HTTP and back.
package convert

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	model "github.com/and161185/taskhub/internal/model"
	u "github.com/gofrs/uuid/v5"
)

// --- helpers ---

func ts(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	v := t.UTC()
	return &v
}

// ParseID parses a UUID path parameter.
func ParseID(s string) (u.UUID, error) {
	var id u.UUID
	if err := id.UnmarshalText([]byte(s)); err != nil {
		return u.Nil, fmt.Errorf("invalid id: %w", err)
	}
	return id, nil
}

// --- Users ---

// UserView is a user without the password digest.
type UserView struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// UserListItem is a directory entry.
type UserListItem struct {
	UserView
	CreatedAt *time.Time `json:"createdAt,omitempty"`
}

// ToUserView strips the digest from u.
func ToUserView(usr model.User) UserView {
	return UserView{ID: usr.ID.String(), Username: usr.Username, Email: usr.Email}
}

// ToUserList converts a slice of users to directory entries.
func ToUserList(us []model.User) []UserListItem {
	out := make([]UserListItem, 0, len(us))
	for _, usr := range us {
		out = append(out, UserListItem{UserView: ToUserView(usr), CreatedAt: ts(usr.CreatedAt)})
	}
	return out
}

// --- Tasks ---

// TaskView is the JSON form of a task.
type TaskView struct {
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	DueDate        *time.Time `json:"dueDate"`
	Status         string     `json:"status"`
	AssignedUserID string     `json:"assignedUserId"`
	CreatedAt      *time.Time `json:"createdAt"`
	UpdatedAt      *time.Time `json:"updatedAt"`
}

// ToTaskView converts a domain task.
func ToTaskView(t model.Task) TaskView {
	return TaskView{
		ID:             t.ID.String(),
		Title:          t.Title,
		Description:    t.Description,
		DueDate:        ts(t.DueDate),
		Status:         t.Status.String(),
		AssignedUserID: t.AssignedUserID.String(),
		CreatedAt:      ts(t.CreatedAt),
		UpdatedAt:      ts(t.UpdatedAt),
	}
}

// ToTaskViews converts a slice of tasks.
func ToTaskViews(tasks []model.Task) []TaskView {
	out := make([]TaskView, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, ToTaskView(t))
	}
	return out
}

// ParseStatus accepts a status name (case-insensitive) or its numeric value.
func ParseStatus(s string) (model.TaskStatus, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		st := model.TaskStatus(n)
		if !st.Valid() {
			return 0, fmt.Errorf("unknown status %d", n)
		}
		return st, nil
	}
	for st := model.TaskPending; st <= model.TaskCompleted; st++ {
		if strings.EqualFold(s, st.String()) {
			return st, nil
		}
	}
	return 0, fmt.Errorf("unknown status %q", s)
}
