package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"todo-planner/internal/model"
)

func TestNextDueAt_KeepsWallClockAcrossDST(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skip("tzdata not available")
	}
	// 2024-03-31 is the spring-forward day in Berlin.
	due := time.Date(2024, 3, 30, 9, 0, 0, 0, loc)

	next, err := NextDueAt(due, model.RepeatDaily)
	require.NoError(t, err)
	assert.Equal(t, 9, next.Hour())
	assert.Equal(t, 31, next.Day())
}

func TestNextDueAt_RejectsNone(t *testing.T) {
	_, err := NextDueAt(time.Now(), model.RepeatNone)
	assert.Error(t, err)
}

func TestRecurs(t *testing.T) {
	assert.False(t, Recurs(""))
	assert.False(t, Recurs(model.RepeatNone))
	assert.True(t, Recurs(model.RepeatDaily))
	assert.True(t, Recurs(model.RepeatMonthly))
}
