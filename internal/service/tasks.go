package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/pranjal030703/taskflow-pro/internal/hub"
	"github.com/pranjal030703/taskflow-pro/internal/models"
	"github.com/pranjal030703/taskflow-pro/internal/repository"
)

// TaskService is the authoritative task store. It is the only component that
// assigns ids, resolves positions and publishes change events; everything
// cross-client-visible goes through here.
//
// Mutations for one owner are serialized on a per-owner mutex, so two
// concurrent reorders of the same board cannot interleave into duplicate
// positions. Different owners share nothing and proceed in parallel.
type TaskService struct {
	repo    repository.TaskRepository
	hub     hub.Publisher
	logger  *logrus.Logger
	retries int

	ownerLocks sync.Map // owner -> *sync.Mutex
}

// UpdateRequest is a partial task update. Nil fields are left untouched.
// A non-nil Status or Position routes the update through the ordering
// policy, since both change where the task ranks.
type UpdateRequest struct {
	Title       *string
	Description *string
	Status      *string
	Priority    *string
	Position    *int
}

func NewTaskService(repo repository.TaskRepository, publisher hub.Publisher, logger *logrus.Logger, conflictRetries int) *TaskService {
	return &TaskService{
		repo:    repo,
		hub:     publisher,
		logger:  logger,
		retries: conflictRetries,
	}
}

func (s *TaskService) lockOwner(owner string) func() {
	muIface, _ := s.ownerLocks.LoadOrStore(owner, &sync.Mutex{})
	mu := muIface.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// List returns the owner's tasks ordered by (status, position, id).
func (s *TaskService) List(ctx context.Context, owner string) ([]*models.Task, error) {
	return s.repo.List(ctx, owner)
}

// Get returns one of the owner's tasks by id.
func (s *TaskService) Get(ctx context.Context, owner, id string) (*models.Task, error) {
	task, err := s.repo.GetByID(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, models.ErrNotFound
	}
	return task, nil
}

// Create validates the fields, assigns a fresh id and appends the task at
// the tail of its (owner, status) bucket.
func (s *TaskService) Create(ctx context.Context, owner, title, status, priority, description string) (*models.Task, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("%w: title must not be empty", models.ErrValidation)
	}
	st, err := models.ParseStatus(status)
	if err != nil {
		return nil, err
	}
	pr, err := models.ParsePriority(priority)
	if err != nil {
		return nil, err
	}

	unlock := s.lockOwner(owner)
	defer unlock()

	position, err := s.repo.NextPosition(ctx, owner, st)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	task := &models.Task{
		ID:          "t_" + uuid.New().String(),
		Owner:       owner,
		Title:       title,
		Description: description,
		Status:      st,
		Priority:    pr,
		Position:    position,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.repo.Create(ctx, task); err != nil {
		return nil, err
	}

	s.publish(&models.Event{Type: models.EventCreate, Task: task.Clone(), Owner: owner})
	return task, nil
}

// Update applies a partial update to the owner's task. Plain field edits go
// straight to the store; a status or position change is resolved by the
// ordering policy against the current server-side sequence, with any field
// edits riding the same retried unit so a failed reorder commits nothing.
func (s *TaskService) Update(ctx context.Context, owner, id string, req UpdateRequest) (*models.Task, error) {
	unlock := s.lockOwner(owner)
	defer unlock()

	task, err := s.repo.GetByID(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, models.ErrNotFound
	}

	// Validate everything before any write.
	var title *string
	if req.Title != nil {
		trimmed := strings.TrimSpace(*req.Title)
		if trimmed == "" {
			return nil, fmt.Errorf("%w: title must not be empty", models.ErrValidation)
		}
		title = &trimmed
	}
	var priority *models.Priority
	if req.Priority != nil {
		pr, err := models.ParsePriority(*req.Priority)
		if err != nil {
			return nil, err
		}
		priority = &pr
	}
	targetStatus := task.Status
	if req.Status != nil {
		targetStatus, err = models.ParseStatus(*req.Status)
		if err != nil {
			return nil, err
		}
	}

	var edit func(*models.Task)
	if title != nil || req.Description != nil || priority != nil {
		edit = func(t *models.Task) {
			if title != nil {
				t.Title = *title
			}
			if req.Description != nil {
				t.Description = *req.Description
			}
			if priority != nil {
				t.Priority = *priority
			}
		}
	}

	if req.Status == nil && req.Position == nil {
		if edit != nil {
			edit(task)
		}
		task.UpdatedAt = time.Now()
		if err := s.repo.Update(ctx, task); err != nil {
			return nil, err
		}
		s.publish(&models.Event{Type: models.EventUpdate, Task: task.Clone(), Owner: owner})
		return task, nil
	}

	return s.moveWithRetry(ctx, owner, id, targetStatus, req.Position, edit)
}

// Move places the owner's task into the given column at the given visual
// index, renumbering the destination bucket densely from zero. The source
// bucket is left as-is; gaps there are harmless because ordering is always
// (position, id).
func (s *TaskService) Move(ctx context.Context, owner, id, targetStatus string, targetIndex int) (*models.Task, error) {
	st, err := models.ParseStatus(targetStatus)
	if err != nil {
		return nil, err
	}

	unlock := s.lockOwner(owner)
	defer unlock()

	return s.moveWithRetry(ctx, owner, id, st, &targetIndex, nil)
}

// moveWithRetry runs the ordering resolution, retrying a bounded number of
// times when the repository reports a concurrent-write conflict (possible
// with out-of-process writers; the owner lock already excludes in-process
// ones). Callers hold the owner lock.
func (s *TaskService) moveWithRetry(ctx context.Context, owner, id string, target models.Status, index *int, edit func(*models.Task)) (*models.Task, error) {
	var lastErr error
	for attempt := 0; attempt <= s.retries; attempt++ {
		task, err := s.moveOnce(ctx, owner, id, target, index, edit)
		if err == nil {
			return task, nil
		}
		if !errors.Is(err, models.ErrConflict) {
			return nil, err
		}
		lastErr = err
		s.logger.WithFields(logrus.Fields{
			"component": "task_service",
			"task_id":   id,
			"attempt":   attempt + 1,
		}).Warn("reorder conflict, retrying")
	}
	return nil, lastErr
}

// moveOnce resolves one reorder. Field edits, when present, are applied to
// the moved task only after the position rewrite commits, so an exhausted
// conflict retry leaves the task byte-for-byte as it was.
func (s *TaskService) moveOnce(ctx context.Context, owner, id string, target models.Status, index *int, edit func(*models.Task)) (*models.Task, error) {
	task, err := s.repo.GetByID(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, models.ErrNotFound
	}

	bucket, err := s.repo.ListBucket(ctx, owner, target)
	if err != nil {
		return nil, err
	}

	// Rebuild the destination sequence from the current server-side state.
	// The client's raw index is only a hint: it is re-derived against this
	// sequence and clamped, because the client's view may be stale.
	before := make(map[string]int, len(bucket))
	sequence := make([]string, 0, len(bucket)+1)
	for _, t := range bucket {
		before[t.ID] = t.Position
		if t.ID == id {
			continue // same-column move: pull it out before reinserting
		}
		sequence = append(sequence, t.ID)
	}

	idx := len(sequence)
	if index != nil {
		idx = *index
		if idx < 0 {
			idx = 0
		}
		if idx > len(sequence) {
			idx = len(sequence)
		}
	}
	sequence = append(sequence[:idx], append([]string{id}, sequence[idx:]...)...)

	if err := s.repo.ReplacePositions(ctx, owner, target, sequence); err != nil {
		return nil, err
	}

	// One UPDATE per task whose placement actually changed, in sequence
	// order. The moved task always reports, even if it landed where it was,
	// so the originator gets its canonical position back.
	var moved *models.Task
	for i, taskID := range sequence {
		prev, existed := before[taskID]
		if taskID != id && existed && prev == i {
			continue
		}
		changed, err := s.repo.GetByID(ctx, owner, taskID)
		if err != nil {
			return nil, err
		}
		if changed == nil {
			return nil, fmt.Errorf("%w: task %s changed during reorder", models.ErrConflict, taskID)
		}
		if taskID == id {
			if edit != nil {
				edit(changed)
				changed.UpdatedAt = time.Now()
				if err := s.repo.Update(ctx, changed); err != nil {
					return nil, err
				}
			}
			moved = changed
		}
		s.publish(&models.Event{Type: models.EventUpdate, Task: changed.Clone(), Owner: owner})
	}
	if moved == nil {
		moved = task
	}
	return moved, nil
}

// Delete removes the owner's task. Deleting a foreign or missing task is
// ErrNotFound either way, and publishes nothing to anyone.
func (s *TaskService) Delete(ctx context.Context, owner, id string) error {
	unlock := s.lockOwner(owner)
	defer unlock()

	if err := s.repo.Delete(ctx, owner, id); err != nil {
		return err
	}
	s.publish(&models.Event{Type: models.EventDelete, ID: id, Owner: owner})
	return nil
}

// SearchByTitle returns the owner's tasks whose title contains the query.
func (s *TaskService) SearchByTitle(ctx context.Context, owner, query string) ([]*models.Task, error) {
	return s.repo.SearchByTitle(ctx, owner, query)
}

func (s *TaskService) publish(event *models.Event) {
	if s.hub == nil {
		return
	}
	s.hub.Publish(event)
}
