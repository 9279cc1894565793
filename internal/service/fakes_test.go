package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"todo-planner/internal/model"
	"todo-planner/internal/repository"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fixedClock(t time.Time) Clock {
	return ClockFunc(func() time.Time { return t })
}

// memTaskStore is an in-memory TaskStore with error injection.
type memTaskStore struct {
	mu     sync.Mutex
	tasks  map[string]model.Task
	nextID int

	inserts   int
	insertErr func(task *model.Task) error
	updateErr error
	deleteErr error
}

func newMemTaskStore() *memTaskStore {
	return &memTaskStore{tasks: make(map[string]model.Task)}
}

func (m *memTaskStore) FindAllSorted(context.Context) ([]model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Task, 0, len(m.tasks))
	for _, task := range m.tasks {
		out = append(out, task)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueAt.Before(out[j].DueAt) })
	return out, nil
}

func (m *memTaskStore) FindByID(_ context.Context, id string) (*model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &task, nil
}

func (m *memTaskStore) Insert(_ context.Context, task *model.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		if err := m.insertErr(task); err != nil {
			return err
		}
	}
	m.nextID++
	m.inserts++
	task.ID = fmt.Sprintf("task-%d", m.nextID)
	m.tasks[task.ID] = *task
	return nil
}

func (m *memTaskStore) Update(_ context.Context, id string, fields map[string]any) (*model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	task, ok := m.tasks[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	for k, v := range fields {
		switch k {
		case "completed":
			task.Completed = v.(bool)
		case "completed_at":
			switch at := v.(type) {
			case nil:
				task.CompletedAt = nil
			case *time.Time:
				if at == nil {
					task.CompletedAt = nil
				} else {
					copied := *at
					task.CompletedAt = &copied
				}
			default:
				return nil, fmt.Errorf("unexpected completed_at %T", v)
			}
		default:
			return nil, fmt.Errorf("unexpected column %q", k)
		}
	}
	m.tasks[id] = task
	return &task, nil
}

func (m *memTaskStore) DeleteByID(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return false, m.deleteErr
	}
	_, ok := m.tasks[id]
	delete(m.tasks, id)
	return ok, nil
}

func (m *memTaskStore) DeleteMany(_ context.Context, filter repository.TaskFilter) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return 0, m.deleteErr
	}
	var n int64
	for id, task := range m.tasks {
		if filter.DueBefore != nil && !task.DueAt.Before(*filter.DueBefore) {
			continue
		}
		if filter.Completed != nil && task.Completed != *filter.Completed {
			continue
		}
		delete(m.tasks, id)
		n++
	}
	return n, nil
}

func (m *memTaskStore) seed(task model.Task) model.Task {
	if err := m.Insert(context.Background(), &task); err != nil {
		panic(err)
	}
	return task
}

func (m *memTaskStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

func modelTaskDueAt(due time.Time) model.Task {
	return model.Task{Title: "task", DueAt: due, Priority: model.PriorityLow, Repeat: model.RepeatNone}
}
