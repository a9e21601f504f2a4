// Package model defines domain entities used by services and repositories.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// User is a registered identity. The password is never stored in plaintext.
type User struct {
	ID        uuid.UUID // PK
	Username  string    // unique
	Email     string    // unique
	PwdHash   string    // encoded digest, see internal/crypto
	CreatedAt time.Time
}

// TaskStatus is the lifecycle stage of a task.
type TaskStatus int

const (
	TaskPending TaskStatus = iota
	TaskInProgress
	TaskCompleted
)

// String returns the wire name of the status.
func (s TaskStatus) String() string {
	switch s {
	case TaskPending:
		return "Pending"
	case TaskInProgress:
		return "InProgress"
	case TaskCompleted:
		return "Completed"
	default:
		return "Unknown"
	}
}

// Valid reports whether s is one of the known statuses.
func (s TaskStatus) Valid() bool { return s >= TaskPending && s <= TaskCompleted }

// Task is a unit of work owned by exactly one assignee.
type Task struct {
	ID             uuid.UUID
	Title          string
	Description    string
	DueDate        time.Time
	Status         TaskStatus
	AssignedUserID uuid.UUID // FK -> users.id
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TaskChanges is the editable subset of a task.
type TaskChanges struct {
	Title       string
	Description string
	DueDate     time.Time
	Status      TaskStatus
}

// AssignmentEvent is the message emitted when a task is created for or reassigned to a user.
// Field names are part of the wire contract with queue consumers.
type AssignmentEvent struct {
	UserID    uuid.UUID `json:"UserId"`
	TaskID    uuid.UUID `json:"TaskId"`
	TaskTitle string    `json:"TaskTitle"`
	Message   string    `json:"Message"`
	Timestamp time.Time `json:"Timestamp"`
}

// NewAssignmentEvent builds a fresh event stamped with now (UTC).
func NewAssignmentEvent(userID, taskID uuid.UUID, title string, now time.Time) AssignmentEvent {
	return AssignmentEvent{
		UserID:    userID,
		TaskID:    taskID,
		TaskTitle: title,
		Message:   "Nova tarefa atribuída: " + title,
		Timestamp: now.UTC(),
	}
}

// Session is the outcome of a successful login or registration.
type Session struct {
	AccessToken string
	ExpiresAt   time.Time
}
