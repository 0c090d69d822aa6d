package notification

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/raykavin/hedgerun/pkg/core"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
	tb "gopkg.in/tucnak/telebot.v2"
)

const journalPageSize = 10

var journalRegexp = regexp.MustCompile(`/journal(?:\s+(?P<model>\S+))?`)

var severityIcons = map[core.Severity]string{
	core.SeverityInfo:    "ℹ️",
	core.SeverityWarning: "⚠️",
	core.SeverityError:   "🛑",
}

// Controls lets the chat pause and resume the schedulers
type Controls interface {
	Status() string
	Pause()
	Resume()
}

// telegram implements the core.NotifierWithStart interface
type telegram struct {
	settings    core.TelegramSettings
	controls    Controls
	journal     core.Journal
	defaultMenu *tb.ReplyMarkup
	client      *tb.Bot
}

// Option is a function that configures a telegram instance
type Option func(telegram *telegram)

// WithJournal enables the /journal command
func WithJournal(journal core.Journal) Option {
	return func(t *telegram) {
		t.journal = journal
	}
}

// NewTelegram creates and initializes a new Telegram service
func NewTelegram(controls Controls, settings core.TelegramSettings, options ...Option) (core.NotifierWithStart, error) {
	menu := &tb.ReplyMarkup{ResizeReplyKeyboard: true}
	poller := &tb.LongPoller{Timeout: 10 * time.Second}

	client, err := tb.NewBot(tb.Settings{
		Token:  settings.Token,
		Poller: createAuthMiddleware(poller, settings),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	setupKeyboard(menu)
	if err := setupCommands(client); err != nil {
		return nil, fmt.Errorf("failed to set commands: %w", err)
	}

	bot := &telegram{
		controls:    controls,
		client:      client,
		settings:    settings,
		defaultMenu: menu,
	}

	for _, option := range options {
		option(bot)
	}

	registerHandlers(client, bot)

	return bot, nil
}

// createAuthMiddleware creates a middleware to validate authorized users
func createAuthMiddleware(poller *tb.LongPoller, settings core.TelegramSettings) *tb.MiddlewarePoller {
	return tb.NewMiddlewarePoller(poller, func(u *tb.Update) bool {
		if u.Message == nil || u.Message.Sender == nil {
			log.Error("message or sender is nil ", u)
			return false
		}

		if slices.Contains(settings.Users, int(u.Message.Sender.ID)) {
			return true
		}

		log.Error("unauthorized user ", u.Message.Sender.ID)
		return false
	})
}

func setupKeyboard(menu *tb.ReplyMarkup) {
	var (
		statusBtn  = menu.Text("/status")
		journalBtn = menu.Text("/journal")
		pauseBtn   = menu.Text("/pause")
		resumeBtn  = menu.Text("/resume")
	)

	menu.Reply(
		menu.Row(statusBtn, journalBtn),
		menu.Row(pauseBtn, resumeBtn),
	)
}

func setupCommands(client *tb.Bot) error {
	return client.SetCommands([]tb.Command{
		{Text: "/help", Description: "Display help instructions"},
		{Text: "/status", Description: "Check scheduler status"},
		{Text: "/pause", Description: "Pause hedge and entry cycles"},
		{Text: "/resume", Description: "Resume hedge and entry cycles"},
		{Text: "/journal", Description: "Last broker requests, optionally for one model"},
	})
}

func registerHandlers(client *tb.Bot, bot *telegram) {
	client.Handle("/help", bot.HelpHandle)
	client.Handle("/status", bot.StatusHandle)
	client.Handle("/pause", bot.PauseHandle)
	client.Handle("/resume", bot.ResumeHandle)
	client.Handle("/journal", bot.JournalHandle)
}

// Start begins the Telegram bot and notifies all authorized users
func (t *telegram) Start() {
	go t.client.Start()
	t.sendMessageWithOptions("Hedge bot initialized.", t.defaultMenu)
}

// Notify sends an alert to all authorized users
func (t *telegram) Notify(_ context.Context, alert core.Alert) {
	t.sendMessageWithOptions(formatAlert(alert))
}

func formatAlert(alert core.Alert) string {
	icon := severityIcons[alert.Severity]
	header := strings.TrimSpace(fmt.Sprintf("%s %s", icon, alert.Model))
	if alert.Profile != "" {
		header += " [" + alert.Profile + "]"
	}
	return header + "\n-----\n" + alert.Message
}

func (t *telegram) sendMessageWithOptions(text string, options ...interface{}) {
	for _, user := range t.settings.Users {
		_, err := t.client.Send(&tb.User{ID: int64(user)}, text, options...)
		if err != nil {
			log.WithError(err).Error("notification/telegram: failed to send notification")
		}
	}
}

func (t *telegram) sendMessage(to *tb.User, text string, options ...interface{}) {
	_, err := t.client.Send(to, text, options...)
	if err != nil {
		log.WithError(err).Error("notification/telegram: failed to send message")
	}
}

// HelpHandle displays available commands
func (t *telegram) HelpHandle(m *tb.Message) {
	commands, err := t.client.GetCommands()
	if err != nil {
		log.WithError(err).Error("failed to get commands")
		return
	}

	lines := make([]string, 0, len(commands))
	for _, command := range commands {
		lines = append(lines, fmt.Sprintf("/%s - %s", command.Text, command.Description))
	}

	t.sendMessage(m.Sender, strings.Join(lines, "\n"))
}

// StatusHandle displays the current scheduler status
func (t *telegram) StatusHandle(m *tb.Message) {
	t.sendMessage(m.Sender, fmt.Sprintf("Status: %s", t.controls.Status()))
}

// PauseHandle stops new hedge and entry cycles from starting
func (t *telegram) PauseHandle(m *tb.Message) {
	t.controls.Pause()
	t.sendMessage(m.Sender, "Cycles paused.", t.defaultMenu)
}

// ResumeHandle lets hedge and entry cycles run again
func (t *telegram) ResumeHandle(m *tb.Message) {
	t.controls.Resume()
	t.sendMessage(m.Sender, "Cycles resumed.", t.defaultMenu)
}

// JournalHandle lists the latest broker requests
func (t *telegram) JournalHandle(m *tb.Message) {
	if t.journal == nil {
		t.sendMessage(m.Sender, "Journal is not enabled.")
		return
	}

	var filters []core.JournalFilter
	if match := journalRegexp.FindStringSubmatch(m.Text); len(match) > 0 {
		if model := extractCommandParams(journalRegexp, match)["model"]; model != "" {
			filters = append(filters, core.WithModel(model))
		}
	}

	entries, err := t.journal.Entries(filters...)
	if err != nil {
		log.WithError(err).Error("failed to read journal")
		t.sendMessage(m.Sender, "Failed to read journal.")
		return
	}

	t.sendMessage(m.Sender, formatJournal(entries, journalPageSize))
}

func formatJournal(entries []core.JournalEntry, limit int) string {
	if len(entries) == 0 {
		return "No broker requests registered."
	}

	if len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}

	lines := lo.Map(entries, func(e core.JournalEntry, _ int) string {
		status := "✅"
		if !e.Accepted {
			status = "❌ " + e.Error
		}
		return fmt.Sprintf("%s %s %s %s %d %s", e.Time.Format("01-02 15:04"), e.Model, e.Kind,
			e.Instrument, e.Units, status)
	})

	return strings.Join(lines, "\n")
}

// extractCommandParams extracts named groups from regex matches
func extractCommandParams(regex *regexp.Regexp, match []string) map[string]string {
	command := make(map[string]string)
	for i, name := range regex.SubexpNames() {
		if i != 0 && name != "" {
			command[name] = match[i]
		}
	}
	return command
}
