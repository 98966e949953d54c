package repository

import (
	"context"

	"github.com/pranjal030703/taskflow-pro/internal/models"
)

// TaskRepository is the durable task store. Every query is scoped by owner;
// an implementation must never return or touch another owner's rows.
//
// GetByID returns (nil, nil) when the task does not exist for that owner.
// Update and Delete return models.ErrNotFound in the same case. Concurrent
// write collisions surface as models.ErrConflict and are retried by the
// service layer.
type TaskRepository interface {
	Create(ctx context.Context, task *models.Task) error
	GetByID(ctx context.Context, owner, id string) (*models.Task, error)
	List(ctx context.Context, owner string) ([]*models.Task, error)
	ListBucket(ctx context.Context, owner string, status models.Status) ([]*models.Task, error)
	NextPosition(ctx context.Context, owner string, status models.Status) (int, error)
	Update(ctx context.Context, task *models.Task) error
	Delete(ctx context.Context, owner, id string) error

	// ReplacePositions atomically re-targets the listed tasks to status and
	// assigns each the dense position matching its index in orderedIDs. If
	// any listed task is gone by commit time the whole rewrite rolls back
	// with models.ErrConflict.
	ReplacePositions(ctx context.Context, owner string, status models.Status, orderedIDs []string) error

	SearchByTitle(ctx context.Context, owner, titleSubstring string) ([]*models.Task, error)
}
