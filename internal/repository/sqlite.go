package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/pranjal030703/taskflow-pro/internal/models"
)

// SQLiteTaskRepository backs the store with a local file, used for
// single-node deployments and development.
type SQLiteTaskRepository struct {
	db *sql.DB
}

func NewSQLiteTaskRepository(dsn string) (*SQLiteTaskRepository, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite serializes writers itself; a single connection keeps busy
	// errors out of the hot path.
	db.SetMaxOpenConns(1)
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &SQLiteTaskRepository{db: db}, nil
}

func (r *SQLiteTaskRepository) Close() error {
	return r.db.Close()
}

func (r *SQLiteTaskRepository) Migrate(ctx context.Context) error {
	query := `CREATE TABLE IF NOT EXISTS tasks (
        id          TEXT PRIMARY KEY,
        owner       TEXT NOT NULL,
        title       TEXT NOT NULL,
        description TEXT NOT NULL DEFAULT '',
        status      TEXT NOT NULL,
        priority    TEXT NOT NULL,
        position    INTEGER NOT NULL,
        created_at  TIMESTAMP NOT NULL,
        updated_at  TIMESTAMP NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_tasks_owner_status ON tasks (owner, status, position, id)`
	_, err := r.db.ExecContext(ctx, query)
	return err
}

func (r *SQLiteTaskRepository) Create(ctx context.Context, task *models.Task) error {
	query := `INSERT INTO tasks (` + taskColumns + `)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		task.ID, task.Owner, task.Title, task.Description,
		task.Status, task.Priority, task.Position, task.CreatedAt, task.UpdatedAt)
	return mapSQLiteError(err)
}

func (r *SQLiteTaskRepository) GetByID(ctx context.Context, owner, id string) (*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE owner = ? AND id = ?`
	task, err := scanTask(r.db.QueryRowContext(ctx, query, owner, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return task, nil
}

func (r *SQLiteTaskRepository) List(ctx context.Context, owner string) ([]*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks
              WHERE owner = ? ORDER BY status, position ASC, id ASC`
	return r.queryTasks(ctx, query, owner)
}

func (r *SQLiteTaskRepository) ListBucket(ctx context.Context, owner string, status models.Status) ([]*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks
              WHERE owner = ? AND status = ? ORDER BY position ASC, id ASC`
	return r.queryTasks(ctx, query, owner, status)
}

func (r *SQLiteTaskRepository) NextPosition(ctx context.Context, owner string, status models.Status) (int, error) {
	query := `SELECT COALESCE(MAX(position) + 1, 0) FROM tasks WHERE owner = ? AND status = ?`
	var next int
	if err := r.db.QueryRowContext(ctx, query, owner, status).Scan(&next); err != nil {
		return 0, mapSQLiteError(err)
	}
	return next, nil
}

func (r *SQLiteTaskRepository) Update(ctx context.Context, task *models.Task) error {
	query := `UPDATE tasks SET title = ?, description = ?, status = ?,
              priority = ?, position = ?, updated_at = ?
              WHERE owner = ? AND id = ?`
	result, err := r.db.ExecContext(ctx, query,
		task.Title, task.Description, task.Status, task.Priority,
		task.Position, task.UpdatedAt, task.Owner, task.ID)
	if err != nil {
		return mapSQLiteError(err)
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

func (r *SQLiteTaskRepository) Delete(ctx context.Context, owner, id string) error {
	query := `DELETE FROM tasks WHERE owner = ? AND id = ?`
	result, err := r.db.ExecContext(ctx, query, owner, id)
	if err != nil {
		return mapSQLiteError(err)
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

func (r *SQLiteTaskRepository) ReplacePositions(ctx context.Context, owner string, status models.Status, orderedIDs []string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return mapSQLiteError(err)
	}
	defer tx.Rollback()

	query := `UPDATE tasks SET status = ?, position = ?, updated_at = ?
              WHERE owner = ? AND id = ?`
	now := time.Now()
	for i, id := range orderedIDs {
		result, err := tx.ExecContext(ctx, query, status, i, now, owner, id)
		if err != nil {
			return mapSQLiteError(err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return fmt.Errorf("%w: task %s changed during reorder", models.ErrConflict, id)
		}
	}
	return mapSQLiteError(tx.Commit())
}

func (r *SQLiteTaskRepository) SearchByTitle(ctx context.Context, owner, titleSubstring string) ([]*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks
              WHERE owner = ? AND title LIKE ? ORDER BY status, position ASC, id ASC`
	return r.queryTasks(ctx, query, owner, "%"+titleSubstring+"%")
}

func (r *SQLiteTaskRepository) queryTasks(ctx context.Context, query string, args ...any) ([]*models.Task, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapSQLiteError(err)
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

func mapSQLiteError(err error) error {
	if err == nil {
		return nil
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return fmt.Errorf("%w: %s", models.ErrConflict, sqliteErr.Error())
		}
	}
	return err
}
