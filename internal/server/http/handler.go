// Package httpapi serves the task management JSON API.
package httpapi

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/taskhub/internal/convert"
	"github.com/and161185/taskhub/internal/errs"
	"github.com/and161185/taskhub/internal/model"
	"github.com/and161185/taskhub/internal/service"
)

// Handler implements the API endpoints on top of the services.
type Handler struct {
	auth  service.AuthService
	users service.UserService
	tasks service.TaskService
	log   *zap.Logger
}

// NewHandler constructs Handler.
func NewHandler(auth service.AuthService, users service.UserService, tasks service.TaskService, log *zap.Logger) *Handler {
	return &Handler{auth: auth, users: users, tasks: tasks, log: log}
}

// --- auth ---

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decode(w, r, &req) {
		return
	}
	sess, u, err := h.auth.Login(r.Context(), req.Username, req.Password, ClientIP(r))
	if err != nil {
		if errors.Is(err, errs.ErrUnauthorized) {
			writeMessage(w, http.StatusUnauthorized, "Invalid username or password")
			return
		}
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Token: sess.AccessToken, User: convert.ToUserView(u)})
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decode(w, r, &req) {
		return
	}
	sess, u, err := h.auth.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		Message: "User registered successfully",
		Token:   sess.AccessToken,
		User:    convert.ToUserView(u),
	})
}

// --- users ---

func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	us, err := h.users.List(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, convert.ToUserList(us))
}

// --- tasks ---

func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	ts, err := h.tasks.List(r.Context(), caller)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, convert.ToTaskViews(ts))
}

func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	t, err := h.tasks.Get(r.Context(), caller, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, convert.ToTaskView(*t))
}

func (h *Handler) CreateTask(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req createTaskRequest
	if !decode(w, r, &req) {
		return
	}
	t, err := h.tasks.Create(r.Context(), caller, service.TaskInput{
		Title:       req.Title,
		Description: req.Description,
		DueDate:     req.DueDate,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/tasks/"+t.ID.String())
	writeJSON(w, http.StatusCreated, convert.ToTaskView(*t))
}

func (h *Handler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req updateTaskRequest
	if !decode(w, r, &req) {
		return
	}
	st, err := convert.ParseStatus(string(req.Status))
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	t, err := h.tasks.Update(r.Context(), caller, id, model.TaskChanges{
		Title:       req.Title,
		Description: req.Description,
		DueDate:     req.DueDate,
		Status:      st,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, convert.ToTaskView(*t))
}

func (h *Handler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.tasks.Delete(r.Context(), caller, id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AssignTask hands the task to another user. The response does not depend on
// whether the notification reached the broker.
func (h *Handler) AssignTask(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	assignee, ok := pathID(w, r, "assigneeId")
	if !ok {
		return
	}
	t, err := h.tasks.Assign(r.Context(), caller, id, assignee)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, convert.ToTaskView(*t))
}

func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, ok := UserIDFromCtx(r.Context())
	if !ok || id == uuid.Nil {
		writeMessage(w, http.StatusUnauthorized, "Unauthorized")
		return uuid.Nil, false
	}
	return id, true
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := convert.ParseID(chi.URLParam(r, name))
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}
