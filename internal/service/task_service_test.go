package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"todo-planner/internal/model"
)

var now = time.Date(2024, 1, 5, 12, 0, 0, 0, time.UTC)

func newTestTaskService(store *memTaskStore) *TaskService {
	return NewTaskService(store, fixedClock(now), discardLogger())
}

func ptr[T any](v T) *T { return &v }

func assertCompletionInvariant(t *testing.T, task model.Task) {
	t.Helper()
	assert.Equal(t, task.Completed, task.CompletedAt != nil, "completed=%v completedAt=%v", task.Completed, task.CompletedAt)
}

func TestCreate_AppliesDefaults(t *testing.T) {
	store := newMemTaskStore()
	svc := newTestTaskService(store)
	due := time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)

	task, err := svc.Create(context.Background(), TaskInput{Title: "  buy milk ", DueAt: &due})
	require.NoError(t, err)

	assert.NotEmpty(t, task.ID)
	assert.Equal(t, "buy milk", task.Title)
	assert.Equal(t, model.PriorityLow, task.Priority)
	assert.Equal(t, model.RepeatNone, task.Repeat)
	assert.False(t, task.Completed)
	assert.Nil(t, task.CompletedAt)
	assert.Equal(t, 1, store.count())
}

func TestCreate_AllowsDuplicates(t *testing.T) {
	store := newMemTaskStore()
	svc := newTestTaskService(store)
	due := now.Add(time.Hour)
	input := TaskInput{Title: "same", DueAt: &due, Priority: model.PriorityHigh, Repeat: model.RepeatWeekly}

	first, err := svc.Create(context.Background(), input)
	require.NoError(t, err)
	second, err := svc.Create(context.Background(), input)
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, 2, store.count())
}

func TestCreate_Validation(t *testing.T) {
	due := now.Add(time.Hour)
	tests := []struct {
		name  string
		input TaskInput
		field string
	}{
		{name: "missing title", input: TaskInput{DueAt: &due}, field: "title"},
		{name: "blank title", input: TaskInput{Title: "   ", DueAt: &due}, field: "title"},
		{name: "missing due", input: TaskInput{Title: "x"}, field: "dueAt"},
		{name: "bad priority", input: TaskInput{Title: "x", DueAt: &due, Priority: "Urgent"}, field: "priority"},
		{name: "bad repeat", input: TaskInput{Title: "x", DueAt: &due, Repeat: "yearly"}, field: "repeat"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemTaskStore()
			svc := newTestTaskService(store)

			_, err := svc.Create(context.Background(), tt.input)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrValidation)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
			assert.Zero(t, store.inserts, "no store write on validation failure")
		})
	}
}

func TestCreate_StoreFailure(t *testing.T) {
	store := newMemTaskStore()
	store.insertErr = func(*model.Task) error { return errors.New("disk full") }
	svc := newTestTaskService(store)
	due := now

	_, err := svc.Create(context.Background(), TaskInput{Title: "x", DueAt: &due})
	var serr *StoreError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "create task", serr.Op)
}

func TestToggleCompletion_RoundTrip(t *testing.T) {
	store := newMemTaskStore()
	seeded := store.seed(model.Task{Title: "t", DueAt: now.Add(time.Hour), Repeat: model.RepeatDaily})

	clockNow := now
	svc := NewTaskService(store, ClockFunc(func() time.Time { return clockNow }), discardLogger())
	ctx := context.Background()

	on, err := svc.ToggleCompletion(ctx, seeded.ID)
	require.NoError(t, err)
	assert.True(t, on.Completed)
	require.NotNil(t, on.CompletedAt)
	assert.True(t, on.CompletedAt.Equal(now))
	assertCompletionInvariant(t, *on)

	off, err := svc.ToggleCompletion(ctx, seeded.ID)
	require.NoError(t, err)
	assert.False(t, off.Completed)
	assert.Nil(t, off.CompletedAt)
	assertCompletionInvariant(t, *off)

	clockNow = now.Add(time.Minute)
	again, err := svc.ToggleCompletion(ctx, seeded.ID)
	require.NoError(t, err)
	require.NotNil(t, again.CompletedAt)
	assert.True(t, again.CompletedAt.Equal(clockNow), "second completion gets a fresh timestamp")

	assert.Equal(t, 1, store.count(), "toggle never spawns a successor")
}

func TestToggleCompletion_NotFound(t *testing.T) {
	svc := newTestTaskService(newMemTaskStore())

	_, err := svc.ToggleCompletion(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestComplete_WeeklySpawnsSuccessor(t *testing.T) {
	store := newMemTaskStore()
	due := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	seeded := store.seed(model.Task{
		Title:       "standup notes",
		Description: "send to team",
		DueAt:       due,
		Priority:    model.PriorityHigh,
		Repeat:      model.RepeatWeekly,
	})
	svc := newTestTaskService(store)

	updated, err := svc.Complete(context.Background(), seeded.ID)
	require.NoError(t, err)

	assert.Equal(t, seeded.ID, updated.ID, "returns the original, not the successor")
	assert.True(t, updated.Completed)
	require.NotNil(t, updated.CompletedAt)
	assert.True(t, updated.CompletedAt.Equal(now))

	tasks, err := store.FindAllSorted(context.Background())
	require.NoError(t, err)
	require.Len(t, tasks, 2)

	next := tasks[1]
	assert.NotEqual(t, seeded.ID, next.ID)
	assert.Equal(t, time.Date(2024, 1, 8, 10, 0, 0, 0, time.UTC), next.DueAt)
	assert.False(t, next.Completed)
	assert.Nil(t, next.CompletedAt)
	assert.Equal(t, seeded.Title, next.Title)
	assert.Equal(t, seeded.Description, next.Description)
	assert.Equal(t, seeded.Priority, next.Priority)
	assert.Equal(t, seeded.Repeat, next.Repeat)
}

func TestComplete_NonRepeatingSpawnsNothing(t *testing.T) {
	store := newMemTaskStore()
	seeded := store.seed(model.Task{Title: "once", DueAt: now.Add(time.Hour), Repeat: model.RepeatNone})
	svc := newTestTaskService(store)

	updated, err := svc.Complete(context.Background(), seeded.ID)
	require.NoError(t, err)
	assert.True(t, updated.Completed)
	assertCompletionInvariant(t, *updated)

	assert.Equal(t, 1, store.count())
	assert.Equal(t, 1, store.inserts)
}

func TestComplete_AdvancesFromOriginalDueAt(t *testing.T) {
	tests := []struct {
		repeat model.Repeat
		due    time.Time
		want   time.Time
	}{
		{model.RepeatDaily, time.Date(2024, 2, 28, 8, 30, 0, 0, time.UTC), time.Date(2024, 2, 29, 8, 30, 0, 0, time.UTC)},
		{model.RepeatWeekly, time.Date(2024, 12, 28, 8, 0, 0, 0, time.UTC), time.Date(2025, 1, 4, 8, 0, 0, 0, time.UTC)},
		{model.RepeatMonthly, time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC), time.Date(2024, 2, 15, 8, 0, 0, 0, time.UTC)},
		// Day overflow rolls into the next month.
		{model.RepeatMonthly, time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)},
		{model.RepeatMonthly, time.Date(2023, 1, 31, 0, 0, 0, 0, time.UTC), time.Date(2023, 3, 3, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(string(tt.repeat)+"/"+tt.due.Format("2006-01-02"), func(t *testing.T) {
			store := newMemTaskStore()
			seeded := store.seed(model.Task{Title: "r", DueAt: tt.due, Repeat: tt.repeat})
			svc := newTestTaskService(store)

			_, err := svc.Complete(context.Background(), seeded.ID)
			require.NoError(t, err)

			tasks, err := store.FindAllSorted(context.Background())
			require.NoError(t, err)
			require.Len(t, tasks, 2)
			assert.Equal(t, tt.want, tasks[1].DueAt)
		})
	}
}

func TestComplete_SpawnFailureKeepsCompletion(t *testing.T) {
	store := newMemTaskStore()
	seeded := store.seed(model.Task{Title: "r", DueAt: now, Repeat: model.RepeatDaily})
	boom := errors.New("insert refused")
	store.insertErr = func(*model.Task) error { return boom }
	svc := newTestTaskService(store)

	updated, err := svc.Complete(context.Background(), seeded.ID)
	require.Error(t, err)

	var spawnErr *SpawnError
	require.ErrorAs(t, err, &spawnErr)
	assert.Equal(t, seeded.ID, spawnErr.TaskID)
	assert.ErrorIs(t, err, boom)

	require.NotNil(t, updated)
	assert.True(t, updated.Completed)

	stored, err := store.FindByID(context.Background(), seeded.ID)
	require.NoError(t, err)
	assert.True(t, stored.Completed, "completion is not rolled back")
	assert.Equal(t, 1, store.count())
}

func TestComplete_UpdateFailureSkipsSpawn(t *testing.T) {
	store := newMemTaskStore()
	seeded := store.seed(model.Task{Title: "r", DueAt: now, Repeat: model.RepeatDaily})
	store.updateErr = errors.New("locked")
	svc := newTestTaskService(store)

	_, err := svc.Complete(context.Background(), seeded.ID)
	var serr *StoreError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, 1, store.count())
}

func TestComplete_NotFound(t *testing.T) {
	svc := newTestTaskService(newMemTaskStore())

	_, err := svc.Complete(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDelete_IgnoresUnknownID(t *testing.T) {
	store := newMemTaskStore()
	done := store.seed(model.Task{Title: "done", DueAt: now, Completed: true, CompletedAt: ptr(now)})
	svc := newTestTaskService(store)
	ctx := context.Background()

	require.NoError(t, svc.Delete(ctx, done.ID))
	assert.Zero(t, store.count())

	assert.NoError(t, svc.Delete(ctx, done.ID))
	assert.NoError(t, svc.Delete(ctx, "never-existed"))
}

func TestDelete_StoreFailure(t *testing.T) {
	store := newMemTaskStore()
	store.deleteErr = errors.New("io")
	svc := newTestTaskService(store)

	err := svc.Delete(context.Background(), "x")
	var serr *StoreError
	assert.ErrorAs(t, err, &serr)
}

func TestPurgeOverdue_KeepsCompleted(t *testing.T) {
	store := newMemTaskStore()
	past := now.Add(-48 * time.Hour)
	store.seed(model.Task{Title: "missed", DueAt: past})
	kept := store.seed(model.Task{Title: "done long ago", DueAt: past, Completed: true, CompletedAt: ptr(past)})
	future := store.seed(model.Task{Title: "tomorrow", DueAt: now.Add(24 * time.Hour)})
	svc := newTestTaskService(store)
	ctx := context.Background()

	n, err := svc.PurgeOverdue(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	_, err = store.FindByID(ctx, kept.ID)
	assert.NoError(t, err)
	_, err = store.FindByID(ctx, future.ID)
	assert.NoError(t, err)

	n, err = svc.PurgeOverdue(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "second run with no writes deletes nothing")
}

func TestPurgeOverdue_DueExactlyNowSurvives(t *testing.T) {
	store := newMemTaskStore()
	store.seed(model.Task{Title: "edge", DueAt: now})
	svc := newTestTaskService(store)

	n, err := svc.PurgeOverdue(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPurgeOverdue_SurfacesStoreError(t *testing.T) {
	store := newMemTaskStore()
	store.deleteErr = errors.New("db gone")
	svc := newTestTaskService(store)

	_, err := svc.PurgeOverdue(context.Background())
	var serr *StoreError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "purge overdue tasks", serr.Op)
}

func TestCompletingProtectsFromPurge(t *testing.T) {
	store := newMemTaskStore()
	seeded := store.seed(model.Task{Title: "late but done", DueAt: now.Add(-time.Hour)})
	svc := newTestTaskService(store)
	ctx := context.Background()

	_, err := svc.Complete(ctx, seeded.ID)
	require.NoError(t, err)

	n, err := svc.PurgeOverdue(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

type recordingObserver struct {
	events []string
	purged int64
}

func (r *recordingObserver) TaskEvent(event string) { r.events = append(r.events, event) }
func (r *recordingObserver) TasksPurged(n int64) { r.purged += n }

func TestObserverSeesLifecycleEvents(t *testing.T) {
	ctx := context.Background()
	store := newMemTaskStore()
	svc := newTestTaskService(store)
	obs := &recordingObserver{}
	svc.SetObserver(obs)

	due := now.Add(time.Hour)
	task, err := svc.Create(ctx, TaskInput{Title: "water plants", DueAt: &due, Repeat: model.RepeatDaily})
	require.NoError(t, err)
	_, err = svc.ToggleCompletion(ctx, task.ID)
	require.NoError(t, err)
	_, err = svc.Complete(ctx, task.ID)
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, task.ID))
	require.NoError(t, svc.Delete(ctx, task.ID))

	store.seed(modelTaskDueAt(now.Add(-time.Minute)))
	_, err = svc.PurgeOverdue(ctx)
	require.NoError(t, err)

	store.insertErr = func(*model.Task) error { return errors.New("disk full") }
	recurring, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, recurring, 1)
	_, err = svc.Complete(ctx, recurring[0].ID)
	require.Error(t, err)

	assert.Equal(t, []string{
		EventCreated, EventToggled, EventCompleted, EventSuccessorSpawned, EventDeleted,
		EventCompleted, EventSuccessorFailed,
	}, obs.events)
	assert.Equal(t, int64(1), obs.purged)
}

func TestSetObserverNilRestoresNoop(t *testing.T) {
	svc := newTestTaskService(newMemTaskStore())
	svc.SetObserver(nil)

	due := now.Add(time.Hour)
	assert.NotPanics(t, func() {
		_, _ = svc.Create(context.Background(), TaskInput{Title: "x", DueAt: &due})
	})
}
