package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"todo-planner/internal/model"
	"todo-planner/internal/service"
)

type conversationStage int

const (
	stageNone conversationStage = iota
	stageTitle
	stageDescription
	stageDue
	stagePriority
	stageRepeat
)

const dueLayout = "2006-01-02 15:04"

type conversationState struct {
	stage conversationStage
	input service.TaskInput
}

// stepResult is what the bot answers after one conversation message.
type stepResult struct {
	prompt string
	markup interface{}
	done   bool
}

func (b *Bot) handleConversation(ctx context.Context, msg *tgbotapi.Message, state *conversationState) error {
	step := state.advance(msg.Text, time.Now().In(b.loc))
	if !step.done {
		return b.sendWithReplyMarkup(msg.Chat.ID, step.prompt, step.markup)
	}
	b.clearConversation(msg.From.ID)
	b.log.Debug("conversation finished", "user", msg.From.ID, "title", state.input.Title)
	return b.finishTaskCreation(ctx, msg.Chat.ID, state.input)
}

// advance consumes one answer and moves to the next stage. Invalid answers
// keep the stage and re-ask.
func (s *conversationState) advance(text string, now time.Time) stepResult {
	text = strings.TrimSpace(text)

	switch s.stage {
	case stageTitle:
		if text == "" {
			return stepResult{prompt: "The title cannot be empty. What should the task be called?", markup: cancelKeyboard()}
		}
		s.input.Title = text
		s.stage = stageDescription
		return stepResult{prompt: "✏️ Add a short description (or press «Skip»).", markup: skipKeyboard()}
	case stageDescription:
		if !isSkipInput(text) {
			s.input.Description = text
		}
		s.stage = stageDue
		return stepResult{
			prompt: "⏰ When is it due? Use <code>2025-11-30 18:00</code>, <code>2025-11-30</code> or <code>tomorrow 09:00</code>.",
			markup: cancelKeyboard(),
		}
	case stageDue:
		due, err := parseDueInput(text, now)
		if err != nil {
			return stepResult{
				prompt: "Cannot read that date. Use <code>2025-11-30 18:00</code>, <code>2025-11-30</code> or <code>tomorrow 09:00</code>.",
				markup: cancelKeyboard(),
			}
		}
		s.input.DueAt = &due
		s.stage = stagePriority
		return stepResult{prompt: "🔥 Priority?", markup: priorityKeyboard()}
	case stagePriority:
		priority, ok := parsePriority(text)
		if !ok {
			return stepResult{prompt: "Pick Low, Medium or High.", markup: priorityKeyboard()}
		}
		s.input.Priority = priority
		s.stage = stageRepeat
		return stepResult{prompt: "🔁 Should it repeat?", markup: repeatKeyboard()}
	case stageRepeat:
		repeat, ok := parseRepeat(text)
		if !ok {
			return stepResult{prompt: "Pick none, daily, weekly or monthly.", markup: repeatKeyboard()}
		}
		s.input.Repeat = repeat
		s.stage = stageNone
		return stepResult{done: true}
	default:
		s.stage = stageTitle
		return stepResult{prompt: "Let's start over. What should the task be called?", markup: cancelKeyboard()}
	}
}

// parseDueInput reads a due time in now's location. A bare date means the
// end of that day.
func parseDueInput(text string, now time.Time) (time.Time, error) {
	loc := now.Location()
	value := strings.ToLower(strings.TrimSpace(text))

	for word, offset := range map[string]int{"today": 0, "tomorrow": 1} {
		rest, ok := strings.CutPrefix(value, word)
		if !ok {
			continue
		}
		day := now.AddDate(0, 0, offset).Format("2006-01-02")
		rest = strings.TrimSpace(rest)
		if rest == "" {
			return time.ParseInLocation(dueLayout, day+" 23:59", loc)
		}
		return time.ParseInLocation(dueLayout, day+" "+rest, loc)
	}

	if t, err := time.ParseInLocation(dueLayout, value, loc); err == nil {
		return t, nil
	}
	day, err := time.ParseInLocation("2006-01-02", value, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse due %q: %w", text, err)
	}
	y, m, d := day.Date()
	return time.Date(y, m, d, 23, 59, 0, 0, loc), nil
}

func parsePriority(text string) (model.Priority, bool) {
	if isSkipInput(text) {
		return model.PriorityLow, true
	}
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "low":
		return model.PriorityLow, true
	case "medium":
		return model.PriorityMedium, true
	case "high":
		return model.PriorityHigh, true
	}
	return "", false
}

func parseRepeat(text string) (model.Repeat, bool) {
	if isSkipInput(text) {
		return model.RepeatNone, true
	}
	switch model.Repeat(strings.ToLower(strings.TrimSpace(text))) {
	case model.RepeatNone:
		return model.RepeatNone, true
	case model.RepeatDaily:
		return model.RepeatDaily, true
	case model.RepeatWeekly:
		return model.RepeatWeekly, true
	case model.RepeatMonthly:
		return model.RepeatMonthly, true
	}
	return "", false
}
