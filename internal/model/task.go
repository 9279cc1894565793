package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Priority ranks how urgent a task is.
type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityMedium Priority = "Medium"
	PriorityHigh   Priority = "High"
)

// Repeat is the recurrence policy of a task.
type Repeat string

const (
	RepeatNone    Repeat = "none"
	RepeatDaily   Repeat = "daily"
	RepeatWeekly  Repeat = "weekly"
	RepeatMonthly Repeat = "monthly"
)

// Task represents a single item on the to-do list.
type Task struct {
	ID          string     `gorm:"primaryKey;size:36" json:"id"`
	Title       string     `gorm:"not null" json:"title"`
	Description string     `json:"description"`
	DueAt       time.Time  `gorm:"index;not null" json:"dueAt"`
	Priority    Priority   `gorm:"size:16;default:Low" json:"priority"`
	Completed   bool       `gorm:"index;default:false" json:"completed"`
	CompletedAt *time.Time `json:"completedAt"`
	Repeat      Repeat     `gorm:"size:16;default:none" json:"repeat"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// BeforeCreate assigns the identifier when the caller left it empty.
func (t *Task) BeforeCreate(*gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

// Overdue reports whether the task is pending past its due time.
func (t Task) Overdue(now time.Time) bool {
	return !t.Completed && t.DueAt.Before(now)
}
