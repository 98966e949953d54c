package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/pranjal030703/taskflow-pro/internal/models"
)

// MemoryTaskRepository keeps the store in process memory. It backs tests and
// the "memory" config driver, and mirrors the SQL implementations' ordering
// exactly (lexical status, then position, then id).
type MemoryTaskRepository struct {
	mu    sync.RWMutex
	tasks map[string]*models.Task // id -> task
}

func NewMemoryTaskRepository() *MemoryTaskRepository {
	return &MemoryTaskRepository{tasks: make(map[string]*models.Task)}
}

func (r *MemoryTaskRepository) Create(ctx context.Context, task *models.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tasks[task.ID]; exists {
		return fmt.Errorf("duplicate task id %s", task.ID)
	}
	r.tasks[task.ID] = task.Clone()
	return nil
}

func (r *MemoryTaskRepository) GetByID(ctx context.Context, owner, id string) (*models.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	task, ok := r.tasks[id]
	if !ok || task.Owner != owner {
		return nil, nil
	}
	return task.Clone(), nil
}

func (r *MemoryTaskRepository) List(ctx context.Context, owner string) ([]*models.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.collect(func(t *models.Task) bool { return t.Owner == owner }), nil
}

func (r *MemoryTaskRepository) ListBucket(ctx context.Context, owner string, status models.Status) ([]*models.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.collect(func(t *models.Task) bool {
		return t.Owner == owner && t.Status == status
	}), nil
}

func (r *MemoryTaskRepository) NextPosition(ctx context.Context, owner string, status models.Status) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	next := 0
	for _, t := range r.tasks {
		if t.Owner == owner && t.Status == status && t.Position+1 > next {
			next = t.Position + 1
		}
	}
	return next, nil
}

func (r *MemoryTaskRepository) Update(ctx context.Context, task *models.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.tasks[task.ID]
	if !ok || existing.Owner != task.Owner {
		return models.ErrNotFound
	}
	r.tasks[task.ID] = task.Clone()
	return nil
}

func (r *MemoryTaskRepository) Delete(ctx context.Context, owner, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.tasks[id]
	if !ok || existing.Owner != owner {
		return models.ErrNotFound
	}
	delete(r.tasks, id)
	return nil
}

func (r *MemoryTaskRepository) ReplacePositions(ctx context.Context, owner string, status models.Status, orderedIDs []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	// Validate the whole batch before touching anything, so a conflicting
	// rewrite leaves the store unchanged like a rolled-back transaction.
	for _, id := range orderedIDs {
		existing, ok := r.tasks[id]
		if !ok || existing.Owner != owner {
			return fmt.Errorf("%w: task %s changed during reorder", models.ErrConflict, id)
		}
	}
	for i, id := range orderedIDs {
		task := r.tasks[id]
		task.Status = status
		task.Position = i
	}
	return nil
}

func (r *MemoryTaskRepository) SearchByTitle(ctx context.Context, owner, titleSubstring string) ([]*models.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	needle := strings.ToLower(titleSubstring)
	return r.collect(func(t *models.Task) bool {
		return t.Owner == owner && strings.Contains(strings.ToLower(t.Title), needle)
	}), nil
}

// collect returns clones of matching tasks in store order. Callers hold r.mu.
func (r *MemoryTaskRepository) collect(match func(*models.Task) bool) []*models.Task {
	var tasks []*models.Task
	for _, t := range r.tasks {
		if match(t) {
			tasks = append(tasks, t.Clone())
		}
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
