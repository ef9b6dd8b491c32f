// Package notify delivers operator alerts over Telegram. Alerts are
// best-effort: delivery failures are logged and dropped, they never block
// or fail the operation that raised them.
package notify

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/dealguard/dealguard/internal/config"
	"github.com/dealguard/dealguard/internal/logging"
)

// TelegramNotifier sends operator alerts to a configured chat. The zero
// value and a notifier built from a disabled config are both safe no-ops.
type TelegramNotifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	logger *logging.Logger
}

// NewTelegramNotifier builds a notifier from the telegram config section.
// Returns a disabled notifier when alerting is off or misconfigured rather
// than failing startup over an optional channel.
func NewTelegramNotifier(cfg config.TelegramConfig, logger *logging.Logger) *TelegramNotifier {
	n := &TelegramNotifier{logger: logger}
	if !cfg.Enabled || strings.TrimSpace(cfg.Token) == "" || cfg.ChatID == 0 {
		return n
	}

	bot, err := tgbotapi.NewBotAPI(strings.TrimSpace(cfg.Token))
	if err != nil {
		logger.Warn("telegram notifier disabled, bot init failed", "error", err.Error())
		return n
	}
	n.bot = bot
	n.chatID = cfg.ChatID
	return n
}

// ConnectionLost alerts that a user's CRM credential was invalidated and
// they must re-authorize.
func (n *TelegramNotifier) ConnectionLost(ctx context.Context, userID, reason string) {
	n.send(ctx, fmt.Sprintf("⚠️ *CRM connection lost*\nUser: `%s`\nReason: %s\nThe user must reconnect.", userID, reason))
}

// SyncFailed alerts that a sync pass aborted.
func (n *TelegramNotifier) SyncFailed(ctx context.Context, userID string, err error) {
	n.send(ctx, fmt.Sprintf("❌ *Deal sync failed*\nUser: `%s`\nError: %s", userID, err.Error()))
}

func (n *TelegramNotifier) send(ctx context.Context, text string) {
	if n.bot == nil {
		return
	}
	msg := tgbotapi.NewMessage(n.chatID, text)
	msg.ParseMode = "Markdown"
	if _, err := n.bot.Send(msg); err != nil {
		n.logger.WarnWithContext(ctx, "telegram alert delivery failed", "error", err.Error())
	}
}
