package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/pranjal030703/taskflow-pro/internal/models"
)

type PostgresTaskRepository struct {
	db *sql.DB
}

func NewPostgresTaskRepository(dsn string) (*PostgresTaskRepository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &PostgresTaskRepository{db: db}, nil
}

func (r *PostgresTaskRepository) Close() error {
	return r.db.Close()
}

// Migrate creates the tasks table if it does not exist yet.
func (r *PostgresTaskRepository) Migrate(ctx context.Context) error {
	query := `CREATE TABLE IF NOT EXISTS tasks (
        id          TEXT PRIMARY KEY,
        owner       TEXT NOT NULL,
        title       TEXT NOT NULL,
        description TEXT NOT NULL DEFAULT '',
        status      TEXT NOT NULL,
        priority    TEXT NOT NULL,
        position    INTEGER NOT NULL,
        created_at  TIMESTAMPTZ NOT NULL,
        updated_at  TIMESTAMPTZ NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_tasks_owner_status ON tasks (owner, status, position, id)`
	_, err := r.db.ExecContext(ctx, query)
	return err
}

const taskColumns = `id, owner, title, description, status, priority, position, created_at, updated_at`

func scanTask(row interface{ Scan(...any) error }) (*models.Task, error) {
	task := &models.Task{}
	err := row.Scan(&task.ID, &task.Owner, &task.Title, &task.Description,
		&task.Status, &task.Priority, &task.Position, &task.CreatedAt, &task.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return task, nil
}

func (r *PostgresTaskRepository) Create(ctx context.Context, task *models.Task) error {
	query := `INSERT INTO tasks (` + taskColumns + `)
              VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.db.ExecContext(ctx, query,
		task.ID, task.Owner, task.Title, task.Description,
		task.Status, task.Priority, task.Position, task.CreatedAt, task.UpdatedAt)
	return mapPQError(err)
}

func (r *PostgresTaskRepository) GetByID(ctx context.Context, owner, id string) (*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE owner = $1 AND id = $2`
	task, err := scanTask(r.db.QueryRowContext(ctx, query, owner, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return task, nil
}

func (r *PostgresTaskRepository) List(ctx context.Context, owner string) ([]*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks
              WHERE owner = $1 ORDER BY status, position ASC, id ASC`
	return r.queryTasks(ctx, query, owner)
}

func (r *PostgresTaskRepository) ListBucket(ctx context.Context, owner string, status models.Status) ([]*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks
              WHERE owner = $1 AND status = $2 ORDER BY position ASC, id ASC`
	return r.queryTasks(ctx, query, owner, status)
}

func (r *PostgresTaskRepository) NextPosition(ctx context.Context, owner string, status models.Status) (int, error) {
	query := `SELECT COALESCE(MAX(position) + 1, 0) FROM tasks WHERE owner = $1 AND status = $2`
	var next int
	if err := r.db.QueryRowContext(ctx, query, owner, status).Scan(&next); err != nil {
		return 0, mapPQError(err)
	}
	return next, nil
}

func (r *PostgresTaskRepository) Update(ctx context.Context, task *models.Task) error {
	query := `UPDATE tasks SET title = $1, description = $2, status = $3,
              priority = $4, position = $5, updated_at = $6
              WHERE owner = $7 AND id = $8`
	result, err := r.db.ExecContext(ctx, query,
		task.Title, task.Description, task.Status, task.Priority,
		task.Position, task.UpdatedAt, task.Owner, task.ID)
	if err != nil {
		return mapPQError(err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *PostgresTaskRepository) Delete(ctx context.Context, owner, id string) error {
	query := `DELETE FROM tasks WHERE owner = $1 AND id = $2`
	result, err := r.db.ExecContext(ctx, query, owner, id)
	if err != nil {
		return mapPQError(err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *PostgresTaskRepository) ReplacePositions(ctx context.Context, owner string, status models.Status, orderedIDs []string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return mapPQError(err)
	}
	defer tx.Rollback()

	query := `UPDATE tasks SET status = $1, position = $2, updated_at = NOW()
              WHERE owner = $3 AND id = $4`
	for i, id := range orderedIDs {
		result, err := tx.ExecContext(ctx, query, status, i, owner, id)
		if err != nil {
			return mapPQError(err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return err
		}
		// A task listed a moment ago is gone: someone else won the race.
		if rows == 0 {
			return fmt.Errorf("%w: task %s changed during reorder", models.ErrConflict, id)
		}
	}
	return mapPQError(tx.Commit())
}

func (r *PostgresTaskRepository) SearchByTitle(ctx context.Context, owner, titleSubstring string) ([]*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks
              WHERE owner = $1 AND title ILIKE $2 ORDER BY status, position ASC, id ASC`
	return r.queryTasks(ctx, query, owner, "%"+titleSubstring+"%")
}

func (r *PostgresTaskRepository) queryTasks(ctx context.Context, query string, args ...any) ([]*models.Task, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapPQError(err)
	}
	defer rows.Close()

	var tasks []*models.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// mapPQError folds serialization and deadlock failures into the conflict
// sentinel so the service layer can retry them.
func mapPQError(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01":
			return fmt.Errorf("%w: %s", models.ErrConflict, pqErr.Message)
		}
	}
	return err
}
