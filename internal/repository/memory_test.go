package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/pranjal030703/taskflow-pro/internal/models"
)

func seedTask(t *testing.T, repo TaskRepository, id, owner string, status models.Status, position int) *models.Task {
	t.Helper()
	task := &models.Task{
		ID:       id,
		Owner:    owner,
		Title:    "task " + id,
		Status:   status,
		Priority: models.PriorityMedium,
		Position: position,
	}
	if err := repo.Create(context.Background(), task); err != nil {
		t.Fatalf("seed %s: %v", id, err)
	}
	return task
}

func TestMemoryRepo_OwnerIsolation(t *testing.T) {
	repo := NewMemoryTaskRepository()
	ctx := context.Background()

	seedTask(t, repo, "t_a1", "alice", models.StatusTodo, 0)
	seedTask(t, repo, "t_b1", "bob", models.StatusTodo, 0)

	tasks, err := repo.List(ctx, "alice")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != "t_a1" {
		t.Fatalf("alice sees %d tasks, want only t_a1: %+v", len(tasks), tasks)
	}

	// Foreign reads and writes behave exactly like missing rows.
	got, err := repo.GetByID(ctx, "alice", "t_b1")
	if err != nil || got != nil {
		t.Errorf("cross-owner get: got (%v, %v), want (nil, nil)", got, err)
	}
	if err := repo.Delete(ctx, "alice", "t_b1"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("cross-owner delete: got %v, want ErrNotFound", err)
	}
	if tasks, _ := repo.List(ctx, "bob"); len(tasks) != 1 {
		t.Errorf("bob's task disappeared")
	}
}

func TestMemoryRepo_ListOrder(t *testing.T) {
	repo := NewMemoryTaskRepository()
	ctx := context.Background()

	// Inserted out of order on purpose.
	seedTask(t, repo, "t_c", "alice", models.StatusTodo, 1)
	seedTask(t, repo, "t_a", "alice", models.StatusTodo, 0)
	seedTask(t, repo, "t_d", "alice", models.StatusDone, 0)
	seedTask(t, repo, "t_b", "alice", models.StatusTodo, 0) // position tie with t_a

	tasks, err := repo.List(ctx, "alice")
	if err != nil {
		t.Fatalf("list: %v", err)
	}

	var ids []string
	for _, task := range tasks {
		ids = append(ids, task.ID)
	}
	// Lexical status (DONE < TODO), then position, then id on ties.
	want := []string{"t_d", "t_a", "t_b", "t_c"}
	if len(ids) != len(want) {
		t.Fatalf("got %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("got %v, want %v", ids, want)
		}
	}
}

func TestMemoryRepo_DeleteTwice(t *testing.T) {
	repo := NewMemoryTaskRepository()
	ctx := context.Background()

	seedTask(t, repo, "t_1", "alice", models.StatusTodo, 0)

	if err := repo.Delete(ctx, "alice", "t_1"); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	if err := repo.Delete(ctx, "alice", "t_1"); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("second delete: got %v, want ErrNotFound", err)
	}
}

func TestMemoryRepo_NextPosition(t *testing.T) {
	repo := NewMemoryTaskRepository()
	ctx := context.Background()

	next, err := repo.NextPosition(ctx, "alice", models.StatusTodo)
	if err != nil || next != 0 {
		t.Fatalf("empty bucket: got (%d, %v), want (0, nil)", next, err)
	}

	seedTask(t, repo, "t_1", "alice", models.StatusTodo, 0)
	seedTask(t, repo, "t_2", "alice", models.StatusTodo, 5) // gap is fine

	next, err = repo.NextPosition(ctx, "alice", models.StatusTodo)
	if err != nil || next != 6 {
		t.Fatalf("got (%d, %v), want (6, nil)", next, err)
	}

	// Other buckets and owners do not bleed in.
	next, _ = repo.NextPosition(ctx, "alice", models.StatusDone)
	if next != 0 {
		t.Errorf("done bucket: got %d, want 0", next)
	}
	next, _ = repo.NextPosition(ctx, "bob", models.StatusTodo)
	if next != 0 {
		t.Errorf("bob: got %d, want 0", next)
	}
}

func TestMemoryRepo_ReplacePositions(t *testing.T) {
	repo := NewMemoryTaskRepository()
	ctx := context.Background()

	seedTask(t, repo, "t_1", "alice", models.StatusTodo, 0)
	seedTask(t, repo, "t_2", "alice", models.StatusTodo, 1)
	seedTask(t, repo, "t_3", "alice", models.StatusInProgress, 0)

	// Pull t_3 into TODO at the front.
	err := repo.ReplacePositions(ctx, "alice", models.StatusTodo, []string{"t_3", "t_1", "t_2"})
	if err != nil {
		t.Fatalf("replace: %v", err)
	}

	bucket, err := repo.ListBucket(ctx, "alice", models.StatusTodo)
	if err != nil {
		t.Fatalf("list bucket: %v", err)
	}
	if len(bucket) != 3 {
		t.Fatalf("bucket size %d, want 3", len(bucket))
	}
	for i, want := range []string{"t_3", "t_1", "t_2"} {
		if bucket[i].ID != want || bucket[i].Position != i {
			t.Errorf("slot %d: got (%s, %d), want (%s, %d)", i, bucket[i].ID, bucket[i].Position, want, i)
		}
	}
}

func TestMemoryRepo_ReplacePositions_ConflictRollsBack(t *testing.T) {
	repo := NewMemoryTaskRepository()
	ctx := context.Background()

	seedTask(t, repo, "t_1", "alice", models.StatusTodo, 0)
	seedTask(t, repo, "t_2", "alice", models.StatusTodo, 1)

	// t_ghost vanished between listing and rewriting.
	err := repo.ReplacePositions(ctx, "alice", models.StatusTodo, []string{"t_2", "t_ghost", "t_1"})
	if !errors.Is(err, models.ErrConflict) {
		t.Fatalf("got %v, want ErrConflict", err)
	}

	// Nothing moved.
	bucket, _ := repo.ListBucket(ctx, "alice", models.StatusTodo)
	if bucket[0].ID != "t_1" || bucket[0].Position != 0 || bucket[1].ID != "t_2" || bucket[1].Position != 1 {
		t.Errorf("conflicting rewrite left partial state: %+v, %+v", bucket[0], bucket[1])
	}
}
