package service

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"todo-planner/internal/model"
)

// upcomingWindow bounds the "coming up" part of the digest.
const upcomingWindow = 7 * 24 * time.Hour

// ReminderService builds human-readable summaries of pending tasks.
type ReminderService struct {
	tasks TaskStore
}

func NewReminderService(tasks TaskStore) *ReminderService {
	return &ReminderService{tasks: tasks}
}

// DailySummary renders pending tasks due by the end of the upcoming week,
// grouped into overdue, today and later. Output is Telegram HTML.
func (s *ReminderService) DailySummary(ctx context.Context, now time.Time) (string, error) {
	tasks, err := s.tasks.FindAllSorted(ctx)
	if err != nil {
		return "", &StoreError{Op: "list tasks", Err: err}
	}

	year, month, day := now.Date()
	endOfDay := time.Date(year, month, day, 0, 0, 0, 0, now.Location()).AddDate(0, 0, 1)
	horizon := now.Add(upcomingWindow)

	var overdue, today, later []model.Task
	for _, task := range tasks {
		if task.Completed {
			continue
		}
		switch {
		case task.DueAt.Before(now):
			overdue = append(overdue, task)
		case task.DueAt.Before(endOfDay):
			today = append(today, task)
		case task.DueAt.Before(horizon):
			later = append(later, task)
		}
	}

	var builder strings.Builder
	builder.WriteString("📋 <b>Daily summary</b>\n")
	builder.WriteString(fmt.Sprintf("🗓 %s\n", now.Format("Mon, 02 Jan 2006")))

	writeSection(&builder, "⚠️ <b>Overdue</b> (removed at the next cleanup)", overdue, now)
	writeSection(&builder, "🔥 <b>Today</b>", today, now)
	writeSection(&builder, "⏳ <b>This week</b>", later, now)

	if len(overdue)+len(today)+len(later) == 0 {
		builder.WriteString("\n— nothing pending, enjoy the day\n")
	}

	return strings.TrimSpace(builder.String()), nil
}

func writeSection(b *strings.Builder, header string, tasks []model.Task, now time.Time) {
	if len(tasks) == 0 {
		return
	}
	b.WriteString("\n" + header + "\n")
	for _, task := range tasks {
		b.WriteString(FormatTaskLine(task, now))
	}
}

// FormatTaskLine renders one task as a Telegram HTML line.
func FormatTaskLine(task model.Task, now time.Time) string {
	var sb strings.Builder

	icon := "🟢"
	switch {
	case task.Completed:
		icon = "✅"
	case task.Overdue(now):
		icon = "⚠️"
	case task.DueAt.Sub(now) <= 24*time.Hour:
		icon = "⏳"
	}

	sb.WriteString(fmt.Sprintf("%s %s", icon, html.EscapeString(strings.TrimSpace(task.Title))))
	if task.Priority != "" && task.Priority != model.PriorityLow {
		sb.WriteString(fmt.Sprintf(" <i>(%s)</i>", task.Priority))
	}
	if Recurs(task.Repeat) {
		sb.WriteString(fmt.Sprintf(" ♻️ %s", task.Repeat))
	}

	sb.WriteString(fmt.Sprintf("\n   ⏰ %s", task.DueAt.In(now.Location()).Format("2006-01-02 15:04")))
	if task.Description != "" {
		sb.WriteString(fmt.Sprintf("\n   📝 %s", html.EscapeString(strings.TrimSpace(task.Description))))
	}

	sb.WriteByte('\n')
	return sb.String()
}
