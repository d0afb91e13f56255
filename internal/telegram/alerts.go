// Package telegram connects moderators to the report queue through the
// Telegram Bot API: alerts for urgent reports and a command bot.
package telegram

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"rando/backend/internal/config"
	"rando/backend/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

const sendTimeout = 10 * time.Second

// AlertService implements moderation.AlertSender.
type AlertService struct {
	BotAPI *tgbotapi.BotAPI
	ChatID int64
}

// NewAlertService authorizes the bot against the public Bot API.
func NewAlertService(cfg config.TelegramConfig) (*AlertService, error) {
	return NewAlertServiceWithEndpoint(cfg, tgbotapi.APIEndpoint, &http.Client{Timeout: sendTimeout})
}

// NewAlertServiceWithEndpoint is NewAlertService against a custom endpoint,
// e.g. a local Bot API server. endpoint has the form ".../bot%s/%s".
func NewAlertServiceWithEndpoint(cfg config.TelegramConfig, endpoint string, client tgbotapi.HTTPClient) (*AlertService, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("telegram alerts need a token and a moderator chat id")
	}
	bot, err := tgbotapi.NewBotAPIWithClient(cfg.Token, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("telegram authorization failed: %w", err)
	}
	bot.Debug = false
	zap.L().Info("telegram alerts enabled", zap.String("bot", bot.Self.UserName), zap.Int64("chat_id", cfg.ModeratorChatID))
	return &AlertService{BotAPI: bot, ChatID: cfg.ModeratorChatID}, nil
}

// SendReportAlert posts a short summary of the report to the moderators' chat.
func (a *AlertService) SendReportAlert(ctx context.Context, r *models.Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(a.ChatID, FormatReport(r))
	msg.DisableNotification = r.Priority < 5
	msg.ReplyMarkup = reportKeyboard(r.ID)
	if _, err := a.BotAPI.Send(msg); err != nil {
		return fmt.Errorf("send report alert: %w", err)
	}
	return nil
}

// FormatReport renders the alert text.
func FormatReport(r *models.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🚨 Report %s (priority %d)\n", r.ID, r.Priority)
	fmt.Fprintf(&b, "Category: %s\n", r.Category)
	fmt.Fprintf(&b, "Reported user: %s", r.ReportedUserID)
	if r.ReportedUserIsGuest {
		b.WriteString(" (guest)")
	}
	fmt.Fprintf(&b, "\nReporter: %s\n", r.ReporterID)
	if r.SessionID != nil {
		fmt.Fprintf(&b, "Session: %s\n", *r.SessionID)
	}
	fmt.Fprintf(&b, "Reason: %s", r.Reason)
	if r.Evidence != nil {
		fmt.Fprintf(&b, "\nEvidence: %s", *r.Evidence)
	}
	return b.String()
}
