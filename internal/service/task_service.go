package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"todo-planner/internal/model"
	"todo-planner/internal/repository"
)

// TaskStore is the persistence the task service needs.
type TaskStore interface {
	FindAllSorted(ctx context.Context) ([]model.Task, error)
	FindByID(ctx context.Context, id string) (*model.Task, error)
	Insert(ctx context.Context, task *model.Task) error
	Update(ctx context.Context, id string, fields map[string]any) (*model.Task, error)
	DeleteByID(ctx context.Context, id string) (bool, error)
	DeleteMany(ctx context.Context, filter repository.TaskFilter) (int64, error)
}

// TaskInput represents data required to create a task.
type TaskInput struct {
	Title       string         `validate:"required"`
	Description string
	DueAt       *time.Time     `validate:"required"`
	Priority    model.Priority `validate:"omitempty,oneof=Low Medium High"`
	Repeat      model.Repeat   `validate:"omitempty,oneof=none daily weekly monthly"`
}

var validate = validator.New()

// Lifecycle events passed to TaskObserver.TaskEvent.
const (
	EventCreated          = "created"
	EventToggled          = "toggled"
	EventCompleted        = "completed"
	EventDeleted          = "deleted"
	EventSuccessorSpawned = "successor_spawned"
	EventSuccessorFailed  = "successor_failed"
)

// TaskObserver is told about lifecycle events, for metrics.
type TaskObserver interface {
	TaskEvent(event string)
	TasksPurged(n int64)
}

type noopTaskObserver struct{}

func (noopTaskObserver) TaskEvent(string) {}
func (noopTaskObserver) TasksPurged(int64) {}

// TaskService owns the task lifecycle: creation, completion, recurrence and
// the overdue purge. It keeps no state between calls.
type TaskService struct {
	tasks    TaskStore
	clock    Clock
	log      *slog.Logger
	observer TaskObserver
}

func NewTaskService(tasks TaskStore, clock Clock, log *slog.Logger) *TaskService {
	if clock == nil {
		clock = SystemClock{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &TaskService{tasks: tasks, clock: clock, log: log, observer: noopTaskObserver{}}
}

// SetObserver installs o. Passing nil restores the no-op observer.
func (s *TaskService) SetObserver(o TaskObserver) {
	if o == nil {
		o = noopTaskObserver{}
	}
	s.observer = o
}

// List returns every task ordered by due time.
func (s *TaskService) List(ctx context.Context) ([]model.Task, error) {
	tasks, err := s.tasks.FindAllSorted(ctx)
	if err != nil {
		return nil, &StoreError{Op: "list tasks", Err: err}
	}
	return tasks, nil
}

// Get fetches one task.
func (s *TaskService) Get(ctx context.Context, id string) (*model.Task, error) {
	task, err := s.tasks.FindByID(ctx, id)
	if err != nil {
		return nil, storeErr("find task", id, err)
	}
	return task, nil
}

// Create validates input and stores a new pending task.
func (s *TaskService) Create(ctx context.Context, input TaskInput) (*model.Task, error) {
	input.Title = strings.TrimSpace(input.Title)
	if err := validateInput(input); err != nil {
		return nil, err
	}

	task := model.Task{
		Title:       input.Title,
		Description: input.Description,
		DueAt:       *input.DueAt,
		Priority:    input.Priority,
		Repeat:      input.Repeat,
	}
	if task.Priority == "" {
		task.Priority = model.PriorityLow
	}
	if task.Repeat == "" {
		task.Repeat = model.RepeatNone
	}

	if err := s.tasks.Insert(ctx, &task); err != nil {
		return nil, &StoreError{Op: "create task", Err: err}
	}

	s.observer.TaskEvent(EventCreated)
	s.log.Info("task created", "id", task.ID, "repeat", task.Repeat, "due_at", task.DueAt)
	return &task, nil
}

// ToggleCompletion flips the completed flag. It never spawns a successor.
func (s *TaskService) ToggleCompletion(ctx context.Context, id string) (*model.Task, error) {
	task, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	fields := map[string]any{"completed": !task.Completed}
	if task.Completed {
		fields["completed_at"] = nil
	} else {
		now := s.clock.Now()
		fields["completed_at"] = &now
	}

	updated, err := s.tasks.Update(ctx, id, fields)
	if err != nil {
		return nil, storeErr("toggle task", id, err)
	}
	s.observer.TaskEvent(EventToggled)
	return updated, nil
}

// Complete marks the task done and, for repeating tasks, stores the next
// occurrence. The completion is persisted first; if the successor cannot be
// stored the updated task is returned together with a *SpawnError.
func (s *TaskService) Complete(ctx context.Context, id string) (*model.Task, error) {
	task, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	updated, err := s.tasks.Update(ctx, id, map[string]any{
		"completed":    true,
		"completed_at": &now,
	})
	if err != nil {
		return nil, storeErr("complete task", id, err)
	}
	s.observer.TaskEvent(EventCompleted)

	if !Recurs(task.Repeat) {
		return updated, nil
	}

	next, err := s.spawnSuccessor(ctx, *task)
	if err != nil {
		s.observer.TaskEvent(EventSuccessorFailed)
		s.log.Error("spawn successor", "id", id, "repeat", task.Repeat, "error", err)
		return updated, &SpawnError{TaskID: id, Err: err}
	}

	s.observer.TaskEvent(EventSuccessorSpawned)
	s.log.Info("successor spawned", "id", id, "successor", next.ID, "due_at", next.DueAt)
	return updated, nil
}

func (s *TaskService) spawnSuccessor(ctx context.Context, task model.Task) (*model.Task, error) {
	dueAt, err := NextDueAt(task.DueAt, task.Repeat)
	if err != nil {
		return nil, err
	}
	next := model.Task{
		Title:       task.Title,
		Description: task.Description,
		DueAt:       dueAt,
		Priority:    task.Priority,
		Repeat:      task.Repeat,
	}
	if err := s.tasks.Insert(ctx, &next); err != nil {
		return nil, err
	}
	return &next, nil
}

// Delete removes a task whatever its state. Unknown ids are not an error.
func (s *TaskService) Delete(ctx context.Context, id string) error {
	deleted, err := s.tasks.DeleteByID(ctx, id)
	if err != nil {
		return &StoreError{Op: "delete task", Err: err}
	}
	if !deleted {
		s.log.Debug("delete: no such task", "id", id)
		return nil
	}
	s.observer.TaskEvent(EventDeleted)
	return nil
}

// PurgeOverdue deletes every pending task whose due time has passed and
// returns how many were removed. Completed tasks are never touched.
func (s *TaskService) PurgeOverdue(ctx context.Context) (int64, error) {
	now := s.clock.Now()
	pending := false
	n, err := s.tasks.DeleteMany(ctx, repository.TaskFilter{DueBefore: &now, Completed: &pending})
	if err != nil {
		return 0, &StoreError{Op: "purge overdue tasks", Err: err}
	}
	if n > 0 {
		s.observer.TasksPurged(n)
		s.log.Info("overdue tasks deleted", "count", n)
	}
	return n, nil
}

func storeErr(op, id string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return &StoreError{Op: op, Err: err}
}

func validateInput(input TaskInput) error {
	err := validate.Struct(input)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return &ValidationError{Field: "input", Message: err.Error()}
	}
	fe := fieldErrs[0]
	msg := "is required"
	if fe.Tag() == "oneof" {
		msg = fmt.Sprintf("must be one of %s", strings.ReplaceAll(fe.Param(), " ", ", "))
	}
	return &ValidationError{Field: lowerFirst(fe.Field()), Message: msg}
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
