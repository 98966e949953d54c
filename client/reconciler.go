// Package client holds the board-side synchronization logic: optimistic
// local mutations, reconciliation against server responses, and merging of
// pushed events. It is transport-agnostic; Transport provides the HTTP and
// websocket wiring.
package client

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/pranjal030703/taskflow-pro/internal/models"
)

// API is the server's mutation surface as seen by the reconciler.
type API interface {
	List(ctx context.Context) ([]*models.Task, error)
	Create(ctx context.Context, title, status, priority, description string) (*models.Task, error)
	Move(ctx context.Context, id, status string, index int) (*models.Task, error)
	Update(ctx context.Context, id string, req UpdateRequest) (*models.Task, error)
	Delete(ctx context.Context, id string) error
}

// UpdateRequest mirrors the PATCH body; nil fields are omitted.
type UpdateRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Status      *string `json:"status,omitempty"`
	Priority    *string `json:"priority,omitempty"`
	Position    *int    `json:"position,omitempty"`
}

// Reconciler keeps a local copy of the board that tracks the server's
// authoritative state. User mutations land locally first for immediate
// feedback, then the corresponding request is issued; the local guess is
// replaced by the server's canonical answer on success and rolled back by a
// full re-fetch on failure. Pushed events are merged as they arrive.
type Reconciler struct {
	api    API
	logger *logrus.Logger

	mu    sync.Mutex
	tasks map[string]*models.Task
}

func NewReconciler(api API, logger *logrus.Logger) *Reconciler {
	return &Reconciler{
		api:    api,
		logger: logger,
		tasks:  make(map[string]*models.Task),
	}
}

// Tasks returns the local board ordered like the server orders it:
// (status, position, id).
func (r *Reconciler) Tasks() []*models.Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	tasks := make([]*models.Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		tasks = append(tasks, t.Clone())
	}
	sort.Slice(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]
		if a.Status != b.Status {
			return a.Status < b.Status
		}
		if a.Position != b.Position {
			return a.Position < b.Position
		}
		return a.ID < b.ID
	})
	return tasks
}

// Column returns the local tasks of one column in position order.
func (r *Reconciler) Column(status models.Status) []*models.Task {
	var column []*models.Task
	for _, t := range r.Tasks() {
		if t.Status == status {
			column = append(column, t)
		}
	}
	return column
}

// Resync replaces the local board with the server's authoritative list.
func (r *Reconciler) Resync(ctx context.Context) error {
	tasks, err := r.api.List(ctx)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.replaceLocked(tasks)
	r.mu.Unlock()
	return nil
}

// Create optimistically appends a placeholder task at the tail of the
// column, then issues the request. The placeholder is swapped for the
// server's canonical task (real id, real position) on success.
func (r *Reconciler) Create(ctx context.Context, title, status, priority, description string) (*models.Task, error) {
	st, err := models.ParseStatus(status)
	if err != nil {
		return nil, err
	}
	pr, err := models.ParsePriority(priority)
	if err != nil {
		return nil, err
	}

	placeholder := &models.Task{
		ID:          "local_" + uuid.New().String(),
		Title:       title,
		Description: description,
		Status:      st,
		Priority:    pr,
	}

	r.mu.Lock()
	placeholder.Position = r.tailPositionLocked(st)
	r.tasks[placeholder.ID] = placeholder
	r.mu.Unlock()

	task, err := r.api.Create(ctx, title, status, priority, description)
	if err != nil {
		r.rollback(ctx, "create", err)
		return nil, err
	}

	r.mu.Lock()
	delete(r.tasks, placeholder.ID)
	r.tasks[task.ID] = task.Clone()
	r.mu.Unlock()
	return task, nil
}

// Move optimistically re-slots the task, then issues the request. The
// server's canonical placement always replaces the local guess, because the
// server resolves the index against state this client may not have seen.
func (r *Reconciler) Move(ctx context.Context, id, status string, index int) (*models.Task, error) {
	st, err := models.ParseStatus(status)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.applyMoveLocked(id, st, index)
	r.mu.Unlock()

	task, err := r.api.Move(ctx, id, status, index)
	if err != nil {
		r.rollback(ctx, "move", err)
		return nil, err
	}

	r.mu.Lock()
	if _, exists := r.tasks[task.ID]; exists {
		r.tasks[task.ID] = task.Clone()
	}
	r.mu.Unlock()
	return task, nil
}

// Update issues a field edit; simple edits are applied optimistically, and
// the server's canonical task replaces the local copy on success.
func (r *Reconciler) Update(ctx context.Context, id string, req UpdateRequest) (*models.Task, error) {
	r.mu.Lock()
	if local, ok := r.tasks[id]; ok {
		if req.Title != nil {
			local.Title = *req.Title
		}
		if req.Description != nil {
			local.Description = *req.Description
		}
	}
	r.mu.Unlock()

	task, err := r.api.Update(ctx, id, req)
	if err != nil {
		r.rollback(ctx, "update", err)
		return nil, err
	}

	r.mu.Lock()
	if _, exists := r.tasks[task.ID]; exists {
		r.tasks[task.ID] = task.Clone()
	}
	r.mu.Unlock()
	return task, nil
}

// Delete optimistically removes the task, then issues the request.
func (r *Reconciler) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	delete(r.tasks, id)
	r.mu.Unlock()

	if err := r.api.Delete(ctx, id); err != nil {
		r.rollback(ctx, "delete", err)
		return err
	}
	return nil
}

// ApplyEvent merges a pushed event into the local board. A SNAPSHOT replaces
// the board wholesale. An UPDATE for a task this client no longer holds is a
// no-op — events can race local deletes and must tolerate it.
func (r *Reconciler) ApplyEvent(event *models.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch event.Type {
	case models.EventSnapshot:
		r.replaceLocked(event.Tasks)
	case models.EventCreate:
		if event.Task != nil {
			r.tasks[event.Task.ID] = event.Task.Clone()
		}
	case models.EventUpdate:
		if event.Task == nil {
			return
		}
		if _, exists := r.tasks[event.Task.ID]; !exists {
			return
		}
		r.tasks[event.Task.ID] = event.Task.Clone()
	case models.EventDelete:
		delete(r.tasks, event.ID)
	}
}

// rollback discards whatever optimistic state is in place by re-fetching
// the authoritative list. Field-level undo is deliberately not attempted;
// accumulated drift is worse than one extra list call.
func (r *Reconciler) rollback(ctx context.Context, op string, cause error) {
	r.logger.WithFields(logrus.Fields{
		"component": "reconciler",
		"op":        op,
	}).WithError(cause).Warn("mutation failed, resyncing")

	if err := r.Resync(ctx); err != nil {
		r.logger.WithFields(logrus.Fields{
			"component": "reconciler",
			"op":        op,
		}).WithError(err).Error("resync after failed mutation also failed")
	}
}

func (r *Reconciler) replaceLocked(tasks []*models.Task) {
	r.tasks = make(map[string]*models.Task, len(tasks))
	for _, t := range tasks {
		r.tasks[t.ID] = t.Clone()
	}
}

func (r *Reconciler) tailPositionLocked(status models.Status) int {
	next := 0
	for _, t := range r.tasks {
		if t.Status == status && t.Position+1 > next {
			next = t.Position + 1
		}
	}
	return next
}

// applyMoveLocked mirrors the server's ordering contract against local
// state: pull the task out, re-target it, insert at the clamped index and
// renumber the destination column densely.
func (r *Reconciler) applyMoveLocked(id string, target models.Status, index int) {
	task, ok := r.tasks[id]
	if !ok {
		return
	}

	var column []*models.Task
	for _, t := range r.tasks {
		if t.Status == target && t.ID != id {
			column = append(column, t)
		}
	}
	sort.Slice(column, func(i, j int) bool {
		if column[i].Position != column[j].Position {
			return column[i].Position < column[j].Position
		}
		return column[i].ID < column[j].ID
	})

	if index < 0 {
		index = 0
	}
	if index > len(column) {
		index = len(column)
	}

	task.Status = target
	column = append(column[:index], append([]*models.Task{task}, column[index:]...)...)
	for i, t := range column {
		t.Position = i
	}
}
