package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation"
	"go.uber.org/zap"

	"github.com/and161185/taskhub/internal/errs"
	"github.com/and161185/taskhub/internal/service"
)

const maxBodyBytes = 1 << 20

// messageBody is the error shape used by every endpoint.
type messageBody struct {
	Message string            `json:"message"`
	Errors  map[string]string `json:"errors,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, messageBody{Message: msg})
}

// decode reads a JSON body into dst and runs its validation rules.
func decode(w http.ResponseWriter, r *http.Request, dst validation.Validatable) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		msg := "Malformed JSON body"
		if errors.Is(err, io.EOF) {
			msg = "Request body is required"
		}
		writeMessage(w, http.StatusBadRequest, msg)
		return false
	}
	if err := dst.Validate(); err != nil {
		writeValidation(w, err)
		return false
	}
	return true
}

func writeValidation(w http.ResponseWriter, err error) {
	body := messageBody{Message: "Validation failed"}
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		body.Errors = make(map[string]string, len(verrs))
		for field, fe := range verrs {
			body.Errors[field] = fe.Error()
		}
	} else {
		body.Message = err.Error()
	}
	writeJSON(w, http.StatusBadRequest, body)
}

// writeError maps service errors to responses. Unexpected errors are logged
// and answered with a generic body.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, errs.ErrUnauthorized):
		writeMessage(w, http.StatusUnauthorized, "Unauthorized")
	case errors.Is(err, errs.ErrRateLimited):
		writeMessage(w, http.StatusTooManyRequests, "Too many attempts. Please try again later.")
	case errors.Is(err, service.ErrAssigneeNotFound):
		writeMessage(w, http.StatusNotFound, "Assignee not found")
	case errors.Is(err, service.ErrTaskNotFound):
		writeMessage(w, http.StatusNotFound, "Task not found")
	case errors.Is(err, errs.ErrNotFound):
		writeMessage(w, http.StatusNotFound, "Not found")
	case errors.Is(err, errs.ErrAlreadyExists):
		writeMessage(w, http.StatusBadRequest, "Username or email already exists")
	case errors.Is(err, errs.ErrValidation):
		writeMessage(w, http.StatusBadRequest, err.Error())
	default:
		h.log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeMessage(w, http.StatusInternalServerError, "Internal server error")
	}
}
