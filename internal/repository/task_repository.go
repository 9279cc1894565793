package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"todo-planner/internal/model"
)

// TaskFilter selects tasks for bulk deletion. Nil fields do not constrain.
type TaskFilter struct {
	DueBefore *time.Time
	Completed *bool
}

func (f TaskFilter) empty() bool {
	return f.DueBefore == nil && f.Completed == nil
}

// TaskRepository handles CRUD for tasks.
// Timestamps are stored in UTC so that SQLite's text comparison orders them.
type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// FindAllSorted lists every task by due time, earliest first.
func (r *TaskRepository) FindAllSorted(ctx context.Context) ([]model.Task, error) {
	var tasks []model.Task
	if err := r.db.WithContext(ctx).Order("due_at ASC, created_at ASC").Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

func (r *TaskRepository) FindByID(ctx context.Context, id string) (*model.Task, error) {
	var task model.Task
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&task).Error; err != nil {
		return nil, notFound(err)
	}
	return &task, nil
}

// Insert stores a new task and fills in its id and timestamps.
func (r *TaskRepository) Insert(ctx context.Context, task *model.Task) error {
	task.DueAt = task.DueAt.UTC()
	if task.CompletedAt != nil {
		at := task.CompletedAt.UTC()
		task.CompletedAt = &at
	}
	if err := r.db.WithContext(ctx).Create(task).Error; err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

// Update writes the given columns of one task and returns the stored row.
// A nil value clears the column.
func (r *TaskRepository) Update(ctx context.Context, id string, fields map[string]any) (*model.Task, error) {
	cols := make(map[string]any, len(fields))
	for k, v := range fields {
		switch t := v.(type) {
		case time.Time:
			cols[k] = t.UTC()
		case *time.Time:
			if t == nil {
				cols[k] = nil
			} else {
				cols[k] = t.UTC()
			}
		default:
			cols[k] = v
		}
	}

	db := r.db.WithContext(ctx)
	res := db.Model(&model.Task{}).Where("id = ?", id).Updates(cols)
	if res.Error != nil {
		return nil, fmt.Errorf("update task: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return r.FindByID(ctx, id)
}

// DeleteByID removes one task and reports whether it existed.
func (r *TaskRepository) DeleteByID(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Task{})
	if res.Error != nil {
		return false, fmt.Errorf("delete task: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// DeleteMany removes every task matching the filter in one statement.
func (r *TaskRepository) DeleteMany(ctx context.Context, filter TaskFilter) (int64, error) {
	if filter.empty() {
		return 0, errors.New("delete tasks: empty filter")
	}
	q := r.db.WithContext(ctx)
	if filter.DueBefore != nil {
		q = q.Where("due_at < ?", filter.DueBefore.UTC())
	}
	if filter.Completed != nil {
		q = q.Where("completed = ?", *filter.Completed)
	}
	res := q.Delete(&model.Task{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete tasks: %w", res.Error)
	}
	return res.RowsAffected, nil
}
