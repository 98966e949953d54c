package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/pranjal030703/taskflow-pro/internal/authgate"
	"github.com/pranjal030703/taskflow-pro/internal/hub"
	"github.com/pranjal030703/taskflow-pro/internal/models"
	"github.com/pranjal030703/taskflow-pro/internal/service"
	"github.com/pranjal030703/taskflow-pro/shared/middleware"
)

type TaskHandler struct {
	taskService *service.TaskService
	verifier    authgate.Verifier
	hub         *hub.Hub
	logger      *logrus.Logger
}

func NewTaskHandler(ts *service.TaskService, verifier authgate.Verifier, h *hub.Hub, logger *logrus.Logger) *TaskHandler {
	return &TaskHandler{
		taskService: ts,
		verifier:    verifier,
		hub:         h,
		logger:      logger,
	}
}

// Register wires all routes onto mux.
func (h *TaskHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/tasks", h.CreateTask)
	mux.HandleFunc("GET /v1/tasks", h.ListTasks)
	mux.HandleFunc("GET /v1/tasks/search", h.SearchTasks)
	mux.HandleFunc("GET /v1/tasks/{id}", h.GetTask)
	mux.HandleFunc("PATCH /v1/tasks/{id}", h.UpdateTask)
	mux.HandleFunc("POST /v1/tasks/{id}/move", h.MoveTask)
	mux.HandleFunc("DELETE /v1/tasks/{id}", h.DeleteTask)
	mux.HandleFunc("GET /v1/ws", h.ServeWS)
}

// bearerToken pulls the credential out of the request. The legacy client
// sends a bare "token" header; newer ones use Authorization: Bearer. The
// websocket path also accepts ?token= because browsers cannot set headers
// on an upgrade request.
func bearerToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if token, found := strings.CutPrefix(auth, "Bearer "); found {
			return token
		}
	}
	if token := r.Header.Get("token"); token != "" {
		return token
	}
	return r.URL.Query().Get("token")
}

// authorize resolves the caller's owner identity, writing a 401 on failure.
func (h *TaskHandler) authorize(w http.ResponseWriter, r *http.Request) (string, bool) {
	owner, err := h.verifier.Verify(r.Context(), bearerToken(r))
	if err != nil {
		requestID := middleware.GetRequestID(r.Context())
		h.logger.WithFields(logrus.Fields{
			"component":  "http_handler",
			"request_id": requestID,
		}).Warn("unauthorized request")
		writeError(w, err)
		return "", false
	}
	return owner, true
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	message := "internal server error"
	switch {
	case errors.Is(err, models.ErrUnauthorized):
		status, message = http.StatusUnauthorized, err.Error()
	case errors.Is(err, models.ErrValidation):
		status, message = http.StatusBadRequest, err.Error()
	case errors.Is(err, models.ErrNotFound):
		// Same body whether the task is missing or simply not the
		// caller's; existence must not leak across owners.
		status, message = http.StatusNotFound, "task not found"
	case errors.Is(err, models.ErrConflict):
		status, message = http.StatusConflict, "conflicting concurrent update, retry"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

type createTaskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status"`
	Priority    string `json:"priority"`
}

type updateTaskRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Status      *string `json:"status,omitempty"`
	Priority    *string `json:"priority,omitempty"`
	Position    *int    `json:"position,omitempty"`
}

type moveTaskRequest struct {
	Status string `json:"status"`
	Index  *int   `json:"index"`
}

// CreateTask handles POST /v1/tasks.
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	logEntry := h.logEntry(r, "CreateTask")

	owner, ok := h.authorize(w, r)
	if !ok {
		return
	}

	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logEntry.WithError(err).Warn("invalid request body")
		writeError(w, errors.Join(models.ErrValidation, err))
		return
	}

	task, err := h.taskService.Create(mutationContext(r), owner, req.Title, req.Status, req.Priority, req.Description)
	if err != nil {
		logEntry.WithError(err).Warn("failed to create task")
		writeError(w, err)
		return
	}

	logEntry.WithField("task_id", task.ID).Info("task created")
	writeJSON(w, http.StatusCreated, task)
}

// ListTasks handles GET /v1/tasks.
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	logEntry := h.logEntry(r, "ListTasks")

	owner, ok := h.authorize(w, r)
	if !ok {
		return
	}

	tasks, err := h.taskService.List(r.Context(), owner)
	if err != nil {
		logEntry.WithError(err).Error("failed to list tasks")
		writeError(w, err)
		return
	}

	logEntry.WithField("count", len(tasks)).Debug("tasks listed")
	if tasks == nil {
		tasks = []*models.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

// GetTask handles GET /v1/tasks/{id}.
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	logEntry := h.logEntry(r, "GetTask")

	owner, ok := h.authorize(w, r)
	if !ok {
		return
	}

	id := r.PathValue("id")
	task, err := h.taskService.Get(r.Context(), owner, id)
	if err != nil {
		logEntry.WithError(err).WithField("task_id", id).Warn("failed to get task")
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, task)
}

// UpdateTask handles PATCH /v1/tasks/{id}.
func (h *TaskHandler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	logEntry := h.logEntry(r, "UpdateTask")

	owner, ok := h.authorize(w, r)
	if !ok {
		return
	}

	id := r.PathValue("id")
	var req updateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logEntry.WithError(err).Warn("invalid request body")
		writeError(w, errors.Join(models.ErrValidation, err))
		return
	}

	task, err := h.taskService.Update(mutationContext(r), owner, id, service.UpdateRequest{
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
		Priority:    req.Priority,
		Position:    req.Position,
	})
	if err != nil {
		logEntry.WithError(err).WithField("task_id", id).Warn("failed to update task")
		writeError(w, err)
		return
	}

	logEntry.WithField("task_id", id).Info("task updated")
	writeJSON(w, http.StatusOK, task)
}

// MoveTask handles POST /v1/tasks/{id}/move, the explicit drag-and-drop
// verb: target column plus visual index.
func (h *TaskHandler) MoveTask(w http.ResponseWriter, r *http.Request) {
	logEntry := h.logEntry(r, "MoveTask")

	owner, ok := h.authorize(w, r)
	if !ok {
		return
	}

	id := r.PathValue("id")
	var req moveTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logEntry.WithError(err).Warn("invalid request body")
		writeError(w, errors.Join(models.ErrValidation, err))
		return
	}
	if req.Index == nil {
		writeError(w, fmt.Errorf("%w: index is required", models.ErrValidation))
		return
	}

	task, err := h.taskService.Move(mutationContext(r), owner, id, req.Status, *req.Index)
	if err != nil {
		logEntry.WithError(err).WithField("task_id", id).Warn("failed to move task")
		writeError(w, err)
		return
	}

	logEntry.WithFields(logrus.Fields{
		"task_id":  id,
		"status":   task.Status,
		"position": task.Position,
	}).Info("task moved")
	writeJSON(w, http.StatusOK, task)
}

// DeleteTask handles DELETE /v1/tasks/{id}.
func (h *TaskHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	logEntry := h.logEntry(r, "DeleteTask")

	owner, ok := h.authorize(w, r)
	if !ok {
		return
	}

	id := r.PathValue("id")
	if err := h.taskService.Delete(mutationContext(r), owner, id); err != nil {
		logEntry.WithError(err).WithField("task_id", id).Warn("failed to delete task")
		writeError(w, err)
		return
	}

	logEntry.WithField("task_id", id).Info("task deleted")
	w.WriteHeader(http.StatusNoContent)
}

// SearchTasks handles GET /v1/tasks/search.
func (h *TaskHandler) SearchTasks(w http.ResponseWriter, r *http.Request) {
	logEntry := h.logEntry(r, "SearchTasks")

	owner, ok := h.authorize(w, r)
	if !ok {
		return
	}

	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, fmt.Errorf("%w: search query parameter 'q' is required", models.ErrValidation))
		return
	}

	tasks, err := h.taskService.SearchByTitle(r.Context(), owner, query)
	if err != nil {
		logEntry.WithError(err).Error("failed to search tasks")
		writeError(w, err)
		return
	}

	if tasks == nil {
		tasks = []*models.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

// ServeWS handles GET /v1/ws: authorize, then hand the connection to the
// hub. The hub subscribes before it calls the snapshot loader, so a
// mutation racing the connect is queued behind the snapshot rather than
// lost.
func (h *TaskHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	logEntry := h.logEntry(r, "ServeWS")

	owner, ok := h.authorize(w, r)
	if !ok {
		return
	}

	logEntry.Debug("websocket client connecting")
	h.hub.ServeWS(w, r, owner, func() ([]*models.Task, error) {
		return h.taskService.List(r.Context(), owner)
	})
}

// mutationContext detaches a mutation from the connection's lifetime: a
// caller that disconnects mid-request leaves the mutation to finish and
// re-syncs on reconnect, instead of aborting the store write halfway.
func mutationContext(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

func (h *TaskHandler) logEntry(r *http.Request, handler string) *logrus.Entry {
	return h.logger.WithFields(logrus.Fields{
		"component":  "http_handler",
		"handler":    handler,
		"request_id": middleware.GetRequestID(r.Context()),
	})
}
