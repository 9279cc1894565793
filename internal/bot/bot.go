package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"todo-planner/internal/model"
	"todo-planner/internal/service"
)

const (
	cbCompletePrefix = "complete:"
	cbTogglePrefix   = "toggle:"
	cbDeletePrefix   = "delete:"
	cbConfirmPrefix  = "confirm:"
	cbCancelPrefix   = "cancel:"
)

// maxListed caps the task list so a message stays under Telegram's limit.
const maxListed = 30

// Bot serves the task list to allow-listed Telegram users.
type Bot struct {
	api           *tgbotapi.BotAPI
	taskSvc       *service.TaskService
	reminderSvc   *service.ReminderService
	allowed       map[int64]bool
	loc           *time.Location
	log           *slog.Logger
	conversations map[int64]*conversationState
	mu            sync.Mutex
}

func New(token string, allowed []int64, taskSvc *service.TaskService, reminderSvc *service.ReminderService, loc *time.Location, log *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	if loc == nil {
		loc = time.Local
	}
	if log == nil {
		log = slog.Default()
	}

	ids := make(map[int64]bool, len(allowed))
	for _, id := range allowed {
		ids[id] = true
	}

	log.Info("bot authorized", "account", api.Self.UserName)

	return &Bot{
		api:           api,
		taskSvc:       taskSvc,
		reminderSvc:   reminderSvc,
		allowed:       ids,
		loc:           loc,
		log:           log,
		conversations: make(map[int64]*conversationState),
	}, nil
}

// Start begins polling updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.api.GetUpdatesChan(updateConfig)

	b.log.Info("start polling updates")

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	for update := range updates {
		switch {
		case update.CallbackQuery != nil:
			if err := b.handleCallback(ctx, update.CallbackQuery); err != nil {
				b.log.Error("handle callback", "error", err)
			}
		case update.Message != nil:
			if update.Message.Chat == nil || !update.Message.Chat.IsPrivate() {
				continue
			}
			if err := b.handleMessage(ctx, update.Message); err != nil {
				b.log.Error("handle message", "error", err)
			}
		}
	}

	return ctx.Err()
}

// SendDigests pushes the daily summary to every allowed user.
func (b *Bot) SendDigests(ctx context.Context) error {
	text, err := b.reminderSvc.DailySummary(ctx, time.Now().In(b.loc))
	if err != nil {
		return err
	}
	var errs []error
	for id := range b.allowed {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := b.sendText(id, text); err != nil {
			errs = append(errs, fmt.Errorf("send digest to %d: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.From == nil {
		return nil
	}
	if !b.allowed[msg.From.ID] {
		b.log.Warn("message from unknown user", "user", msg.From.ID)
		return b.sendText(msg.Chat.ID, "This bot is private.")
	}

	if !msg.IsCommand() && isCancelInput(msg.Text) {
		b.clearConversation(msg.From.ID)
		return b.sendText(msg.Chat.ID, "⏪ Cancelled.")
	}

	if !msg.IsCommand() {
		if handled, err := b.handleMenuAlias(ctx, msg); handled {
			return err
		}
	}

	if msg.IsCommand() {
		b.log.Debug("command", "user", msg.From.ID, "command", msg.Command(), "args", msg.CommandArguments())
		return b.handleCommand(ctx, msg)
	}

	if state := b.getConversation(msg.From.ID); state != nil {
		return b.handleConversation(ctx, msg, state)
	}

	return b.sendText(msg.Chat.ID, "I did not get that. Send /newtask to add a task or /help for the command list.")
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) error {
	switch msg.Command() {
	case "start", "help":
		return b.sendText(msg.Chat.ID, helpText)
	case "tasks":
		return b.sendTaskList(ctx, msg.Chat.ID)
	case "today":
		return b.handleToday(ctx, msg.Chat.ID)
	case "newtask":
		b.setConversation(msg.From.ID, &conversationState{stage: stageTitle})
		return b.sendWithReplyMarkup(msg.Chat.ID, "🆕 New task.\n<b>Step 1:</b> what should it be called?", cancelKeyboard())
	case "done":
		return b.withTaskRef(ctx, msg, func(id string) error { return b.completeAndReport(ctx, msg.Chat.ID, id) })
	case "toggle":
		return b.withTaskRef(ctx, msg, func(id string) error { return b.toggleAndReport(ctx, msg.Chat.ID, id) })
	case "delete":
		return b.withTaskRef(ctx, msg, func(id string) error { return b.deleteAndReport(ctx, msg.Chat.ID, id) })
	case "purge":
		return b.handlePurge(ctx, msg.Chat.ID)
	case "cancel":
		b.clearConversation(msg.From.ID)
		return b.sendText(msg.Chat.ID, "⏪ Cancelled.")
	default:
		return b.sendText(msg.Chat.ID, "Unknown command. See /help.")
	}
}

const helpText = "ℹ️ <b>Commands</b>\n" +
	"• /newtask — add a task step by step\n" +
	"• /tasks — list tasks with buttons\n" +
	"• /today — summary of what is pending\n" +
	"• /done &lt;id&gt; — complete a task (repeating tasks get their next occurrence)\n" +
	"• /toggle &lt;id&gt; — mark done or reopen without scheduling the next occurrence\n" +
	"• /delete &lt;id&gt; — delete a task\n" +
	"• /purge — delete overdue unfinished tasks now\n" +
	"• /cancel — abort the current input\n\n" +
	"Ids can be shortened to the first few characters shown after #."

// withTaskRef resolves the command argument to a full task id.
func (b *Bot) withTaskRef(ctx context.Context, msg *tgbotapi.Message, fn func(id string) error) error {
	ref := strings.TrimPrefix(strings.TrimSpace(msg.CommandArguments()), "#")
	if ref == "" {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Which task? Example: /%s 1a2b3c", msg.Command()))
	}
	tasks, err := b.taskSvc.List(ctx)
	if err != nil {
		return b.sendError(msg.Chat.ID, err)
	}
	id, err := resolveTaskRef(tasks, ref)
	if err != nil {
		return b.sendText(msg.Chat.ID, escape(err.Error()))
	}
	return fn(id)
}

func (b *Bot) handleToday(ctx context.Context, chatID int64) error {
	text, err := b.reminderSvc.DailySummary(ctx, time.Now().In(b.loc))
	if err != nil {
		return b.sendError(chatID, err)
	}
	return b.sendText(chatID, text)
}

func (b *Bot) handlePurge(ctx context.Context, chatID int64) error {
	n, err := b.taskSvc.PurgeOverdue(ctx)
	if err != nil {
		return b.sendError(chatID, err)
	}
	return b.sendText(chatID, fmt.Sprintf("🧹 Deleted %d overdue task(s).", n))
}

func (b *Bot) sendTaskList(ctx context.Context, chatID int64) error {
	tasks, err := b.taskSvc.List(ctx)
	if err != nil {
		return b.sendError(chatID, err)
	}
	if len(tasks) == 0 {
		return b.sendText(chatID, "No tasks yet. Add one with /newtask.")
	}

	now := time.Now().In(b.loc)
	var builder strings.Builder
	builder.WriteString("📋 <b>Tasks</b>\n\n")

	var buttons [][]tgbotapi.InlineKeyboardButton
	for i, task := range tasks {
		if i == maxListed {
			builder.WriteString(fmt.Sprintf("… and %d more\n", len(tasks)-maxListed))
			break
		}
		builder.WriteString(fmt.Sprintf("<code>#%s</code> ", shortID(task.ID)))
		builder.WriteString(service.FormatTaskLine(task, now))
		buttons = append(buttons, taskButtons(task))
	}

	msg := tgbotapi.NewMessage(chatID, strings.TrimSpace(builder.String()))
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(buttons...)
	msg.ParseMode = tgbotapi.ModeHTML
	_, err = b.api.Send(msg)
	return err
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) error {
	if cb == nil || cb.From == nil || cb.Message == nil {
		return nil
	}
	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		b.log.Warn("callback ack", "error", err)
	}
	if !b.allowed[cb.From.ID] {
		return nil
	}

	chatID := cb.Message.Chat.ID
	action, id, ok := parseCallback(cb.Data)
	if !ok {
		return nil
	}
	b.log.Debug("callback", "user", cb.From.ID, "action", action, "task", id)

	switch action {
	case cbCompletePrefix:
		return b.completeAndReport(ctx, chatID, id)
	case cbTogglePrefix:
		return b.toggleAndReport(ctx, chatID, id)
	case cbDeletePrefix:
		return b.askDeleteConfirmation(ctx, chatID, id)
	case cbConfirmPrefix:
		return b.deleteAndReport(ctx, chatID, id)
	case cbCancelPrefix:
		return b.sendText(chatID, "↩️ Kept.")
	default:
		return nil
	}
}

func (b *Bot) askDeleteConfirmation(ctx context.Context, chatID int64, id string) error {
	task, err := b.taskSvc.Get(ctx, id)
	if err != nil {
		return b.sendError(chatID, err)
	}
	text := fmt.Sprintf("Delete «%s»?", escape(normalizeTitle(task.Title)))
	return b.sendWithReplyMarkup(chatID, text, confirmDeleteKeyboard(id))
}

func (b *Bot) completeAndReport(ctx context.Context, chatID int64, id string) error {
	task, err := b.taskSvc.Complete(ctx, id)
	if err != nil {
		var spawnErr *service.SpawnError
		if errors.As(err, &spawnErr) && task != nil {
			return b.sendText(chatID, fmt.Sprintf("✅ «%s» done, but the next occurrence could not be created: %s",
				escape(normalizeTitle(task.Title)), escape(spawnErr.Err.Error())))
		}
		return b.sendError(chatID, err)
	}

	info := fmt.Sprintf("✅ «%s» done.", escape(normalizeTitle(task.Title)))
	if service.Recurs(task.Repeat) {
		if next, err := service.NextDueAt(task.DueAt, task.Repeat); err == nil {
			info += fmt.Sprintf("\n♻️ Next one is due %s.", next.In(b.loc).Format("2006-01-02 15:04"))
		}
	}
	if err := b.sendText(chatID, info); err != nil {
		return err
	}
	return b.sendTaskList(ctx, chatID)
}

func (b *Bot) toggleAndReport(ctx context.Context, chatID int64, id string) error {
	task, err := b.taskSvc.ToggleCompletion(ctx, id)
	if err != nil {
		return b.sendError(chatID, err)
	}
	state := "reopened"
	if task.Completed {
		state = "marked done"
	}
	if err := b.sendText(chatID, fmt.Sprintf("☑️ «%s» %s.", escape(normalizeTitle(task.Title)), state)); err != nil {
		return err
	}
	return b.sendTaskList(ctx, chatID)
}

func (b *Bot) deleteAndReport(ctx context.Context, chatID int64, id string) error {
	task, err := b.taskSvc.Get(ctx, id)
	if err != nil {
		return b.sendError(chatID, err)
	}
	if err := b.taskSvc.Delete(ctx, id); err != nil {
		return b.sendError(chatID, err)
	}
	if err := b.sendText(chatID, fmt.Sprintf("🗑 «%s» deleted.", escape(normalizeTitle(task.Title)))); err != nil {
		return err
	}
	return b.sendTaskList(ctx, chatID)
}

func (b *Bot) finishTaskCreation(ctx context.Context, chatID int64, input service.TaskInput) error {
	task, err := b.taskSvc.Create(ctx, input)
	if err != nil {
		return b.sendError(chatID, err)
	}

	var summary strings.Builder
	summary.WriteString("✅ <b>Task saved</b>\n")
	summary.WriteString(fmt.Sprintf("• <b>ID:</b> <code>#%s</code>\n", shortID(task.ID)))
	summary.WriteString(fmt.Sprintf("• <b>Title:</b> %s\n", escape(normalizeTitle(task.Title))))
	if task.Description != "" {
		summary.WriteString(fmt.Sprintf("• <b>Description:</b> %s\n", escape(task.Description)))
	}
	summary.WriteString(fmt.Sprintf("• <b>Due:</b> %s\n", task.DueAt.In(b.loc).Format("2006-01-02 15:04")))
	summary.WriteString(fmt.Sprintf("• <b>Priority:</b> %s\n", task.Priority))
	if service.Recurs(task.Repeat) {
		summary.WriteString(fmt.Sprintf("• <b>Repeats:</b> %s\n", task.Repeat))
	}

	if err := b.sendText(chatID, strings.TrimSpace(summary.String())); err != nil {
		return err
	}
	return b.sendTaskList(ctx, chatID)
}

// sendError reports a service error in user terms.
func (b *Bot) sendError(chatID int64, err error) error {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return b.sendText(chatID, "Task not found, it may have been deleted.")
	case errors.Is(err, service.ErrValidation):
		return b.sendText(chatID, fmt.Sprintf("Cannot save: %s", escape(err.Error())))
	default:
		b.log.Error("bot request failed", "error", err)
		return b.sendText(chatID, "Something went wrong, try again later.")
	}
}

func (b *Bot) handleMenuAlias(ctx context.Context, msg *tgbotapi.Message) (bool, error) {
	switch strings.TrimSpace(msg.Text) {
	case menuLabelNewTask:
		b.setConversation(msg.From.ID, &conversationState{stage: stageTitle})
		return true, b.sendWithReplyMarkup(msg.Chat.ID, "🆕 New task.\n<b>Step 1:</b> what should it be called?", cancelKeyboard())
	case menuLabelTasks:
		return true, b.sendTaskList(ctx, msg.Chat.ID)
	case menuLabelToday:
		return true, b.handleToday(ctx, msg.Chat.ID)
	case menuLabelHelp:
		return true, b.sendText(msg.Chat.ID, helpText)
	default:
		return false, nil
	}
}

func (b *Bot) sendText(chatID int64, text string) error {
	return b.sendWithReplyMarkup(chatID, text, mainMenuKeyboard())
}

func (b *Bot) sendWithReplyMarkup(chatID int64, text string, markup interface{}) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = markup
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) setConversation(userID int64, state *conversationState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.conversations[userID] = state
}

func (b *Bot) getConversation(userID int64) *conversationState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conversations[userID]
}

func (b *Bot) clearConversation(userID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.conversations, userID)
}

// resolveTaskRef finds the single task whose id starts with ref.
func resolveTaskRef(tasks []model.Task, ref string) (string, error) {
	ref = strings.ToLower(ref)
	var match string
	for _, task := range tasks {
		if task.ID == ref {
			return task.ID, nil
		}
		if strings.HasPrefix(task.ID, ref) {
			if match != "" {
				return "", fmt.Errorf("#%s matches several tasks, use more characters", ref)
			}
			match = task.ID
		}
	}
	if match == "" {
		return "", fmt.Errorf("no task #%s", ref)
	}
	return match, nil
}

func parseCallback(data string) (action, id string, ok bool) {
	for _, prefix := range []string{cbCompletePrefix, cbTogglePrefix, cbDeletePrefix, cbConfirmPrefix, cbCancelPrefix} {
		if strings.HasPrefix(data, prefix) {
			id = strings.TrimPrefix(data, prefix)
			return prefix, id, id != ""
		}
	}
	return "", "", false
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

func escape(s string) string {
	return html.EscapeString(s)
}

func normalizeTitle(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "untitled"
	}
	return value
}
