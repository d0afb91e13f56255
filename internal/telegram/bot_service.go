package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"rando/backend/internal/config"
	"rando/backend/internal/errorx"
	"rando/backend/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

const (
	updatesTimeout = 60
	reportsPage    = 10

	callbackDismiss = "dismiss"
	callbackResolve = "resolve"
)

// Moderation is the part of the moderation service the bot drives.
type Moderation interface {
	List(ctx context.Context, status string, limit int) ([]models.Report, error)
	MarkReviewed(ctx context.Context, id, moderator, notes string) (*models.Report, error)
	Resolve(ctx context.Context, id, moderator, action, notes string) (*models.Report, error)
	Dismiss(ctx context.Context, id, moderator, notes string) (*models.Report, error)
	Ban(ctx context.Context, userID string, d time.Duration) error
	Unban(ctx context.Context, userID string) error
}

// BotService lets moderators work the report queue from their Telegram chat.
// Messages from any other chat are ignored.
type BotService struct {
	BotAPI     *tgbotapi.BotAPI
	ChatID     int64
	Moderation Moderation
}

// NewBotService reuses the alert bot's connection.
func NewBotService(alerts *AlertService, mod Moderation) *BotService {
	return &BotService{BotAPI: alerts.BotAPI, ChatID: alerts.ChatID, Moderation: mod}
}

// Run polls for updates until ctx is done.
func (s *BotService) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = updatesTimeout
	updates := s.BotAPI.GetUpdatesChan(u)
	defer s.BotAPI.StopReceivingUpdates()

	zap.L().Info("moderator bot started", zap.String("bot", s.BotAPI.Self.UserName))
	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			s.handleUpdate(ctx, update)
		}
	}
}

func (s *BotService) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.Message != nil:
		if update.Message.Chat.ID != s.ChatID || !update.Message.IsCommand() {
			return
		}
		s.reply(s.handleCommand(ctx, update.Message))
	case update.CallbackQuery != nil:
		s.handleCallbackQuery(ctx, update.CallbackQuery)
	}
}

func moderatorName(u *tgbotapi.User) string {
	if u == nil {
		return "telegram"
	}
	if u.UserName != "" {
		return "tg:" + u.UserName
	}
	return "tg:" + strconv.FormatInt(u.ID, 10)
}

// handleCommand returns the text to answer with.
func (s *BotService) handleCommand(ctx context.Context, msg *tgbotapi.Message) string {
	args := strings.Fields(msg.CommandArguments())
	mod := moderatorName(msg.From)
	notes := func(from int) string {
		if len(args) <= from {
			return ""
		}
		return strings.Join(args[from:], " ")
	}

	switch msg.Command() {
	case "reports":
		status := models.ReportPending
		if len(args) > 0 {
			status = args[0]
		}
		list, err := s.Moderation.List(ctx, status, reportsPage)
		if err != nil {
			return failure(err)
		}
		if len(list) == 0 {
			return fmt.Sprintf("No %s reports.", status)
		}
		var b strings.Builder
		for _, r := range list {
			fmt.Fprintf(&b, "%s p%d %s → %s\n", r.ID, r.Priority, r.Category, r.ReportedUserID)
		}
		return strings.TrimSpace(b.String())

	case "review":
		if len(args) < 1 {
			return "Usage: /review <report_id> [notes]"
		}
		if _, err := s.Moderation.MarkReviewed(ctx, args[0], mod, notes(1)); err != nil {
			return failure(err)
		}
		return fmt.Sprintf("Report %s marked as reviewed.", args[0])

	case "resolve":
		if len(args) < 2 {
			return "Usage: /resolve <report_id> <action> [notes]"
		}
		if _, err := s.Moderation.Resolve(ctx, args[0], mod, args[1], notes(2)); err != nil {
			return failure(err)
		}
		return fmt.Sprintf("Report %s resolved: %s.", args[0], args[1])

	case "dismiss":
		if len(args) < 1 {
			return "Usage: /dismiss <report_id> [notes]"
		}
		if _, err := s.Moderation.Dismiss(ctx, args[0], mod, notes(1)); err != nil {
			return failure(err)
		}
		return fmt.Sprintf("Report %s dismissed.", args[0])

	case "ban":
		if len(args) < 1 {
			return "Usage: /ban <user_id> [hours]"
		}
		var d time.Duration
		if len(args) > 1 {
			hours, err := strconv.Atoi(args[1])
			if err != nil || hours <= 0 {
				return "Hours must be a positive number."
			}
			d = time.Duration(hours) * time.Hour
		}
		if err := s.Moderation.Ban(ctx, args[0], d); err != nil {
			return failure(err)
		}
		if d == 0 {
			return fmt.Sprintf("User %s banned permanently.", args[0])
		}
		return fmt.Sprintf("User %s banned for %s.", args[0], d)

	case "unban":
		if len(args) < 1 {
			return "Usage: /unban <user_id>"
		}
		if err := s.Moderation.Unban(ctx, args[0]); err != nil {
			return failure(err)
		}
		return fmt.Sprintf("User %s unbanned.", args[0])

	default:
		return "Commands: /reports [status], /review, /resolve, /dismiss, /ban, /unban"
	}
}

// handleCallbackQuery handles the buttons under an alert:
// "dismiss:<id>" and "resolve:<id>:<action>".
func (s *BotService) handleCallbackQuery(ctx context.Context, q *tgbotapi.CallbackQuery) {
	if _, err := s.BotAPI.Request(tgbotapi.NewCallback(q.ID, "")); err != nil {
		zap.L().Warn("failed to answer callback", zap.Error(err))
	}

	parts := strings.Split(q.Data, ":")
	mod := moderatorName(q.From)
	var err error
	var text string
	switch {
	case len(parts) == 2 && parts[0] == callbackDismiss:
		_, err = s.Moderation.Dismiss(ctx, parts[1], mod, "")
		text = fmt.Sprintf("Report %s dismissed by %s.", parts[1], mod)
	case len(parts) == 3 && parts[0] == callbackResolve:
		_, err = s.Moderation.Resolve(ctx, parts[1], mod, parts[2], "")
		text = fmt.Sprintf("Report %s resolved by %s: %s.", parts[1], mod, parts[2])
	default:
		zap.L().Warn("unknown callback data", zap.String("data", q.Data))
		return
	}
	if err != nil {
		text = failure(err)
	}
	s.reply(text)
}

// reportKeyboard is attached to alerts. Callback data stays under Telegram's
// 64 byte limit for uuid report ids.
func reportKeyboard(reportID string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Warn", callbackResolve+":"+reportID+":"+models.ActionWarn),
			tgbotapi.NewInlineKeyboardButtonData(
				fmt.Sprintf("Ban %dh", int(config.TemporaryBanDuration.Hours())),
				callbackResolve+":"+reportID+":"+models.ActionBanTemporary),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Dismiss", callbackDismiss+":"+reportID),
		),
	)
}

func failure(err error) string {
	return fmt.Sprintf("Failed (%s): %v", errorx.Slug(err), err)
}

func (s *BotService) reply(text string) {
	if text == "" {
		return
	}
	if _, err := s.BotAPI.Send(tgbotapi.NewMessage(s.ChatID, text)); err != nil {
		zap.L().Warn("failed to send bot reply", zap.Error(err))
	}
}
