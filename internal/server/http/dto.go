package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	"github.com/and161185/taskhub/internal/convert"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (r loginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Username, validation.Required, validation.Length(1, 100)),
		validation.Field(&r.Password, validation.Required, validation.Length(1, 100)),
	)
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r registerRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Username, validation.Required, validation.Length(1, 100)),
		validation.Field(&r.Email, validation.Required, validation.Length(3, 200), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(1, 100)),
	)
}

type createTaskRequest struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	DueDate     time.Time `json:"dueDate"`
}

func (r createTaskRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Title, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Description, validation.Length(0, 1000)),
	)
}

type updateTaskRequest struct {
	Title       string      `json:"title"`
	Description string      `json:"description"`
	DueDate     time.Time   `json:"dueDate"`
	Status      statusField `json:"status"`
}

func (r updateTaskRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Title, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Description, validation.Length(0, 1000)),
		validation.Field(&r.Status, validation.Required, validation.By(validStatus)),
	)
}

// statusField accepts a status name or its numeric value.
type statusField string

func (s *statusField) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = statusField(v)
		return nil
	}
	if bytes.Equal(b, []byte("null")) {
		*s = ""
		return nil
	}
	*s = statusField(b)
	return nil
}

func validStatus(v any) error {
	s, _ := v.(statusField)
	if _, err := convert.ParseStatus(string(s)); err != nil {
		return errors.New("must be one of Pending, InProgress, Completed")
	}
	return nil
}

type sessionResponse struct {
	Message string           `json:"message,omitempty"`
	Token   string           `json:"token"`
	User    convert.UserView `json:"user"`
}
