package notifier

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"futuresMegaBot/internal/domain"
	"futuresMegaBot/internal/ports"
)

// sender is the part of tgbotapi.BotAPI the notifier uses.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramConfig holds configuration for the Telegram notifier.
type TelegramConfig struct {
	Token  string
	ChatID int64
	Logger ports.Logger
}

// Telegram sends alerts to a single Telegram chat.
type Telegram struct {
	bot    sender
	chatID int64
	logger ports.Logger
}

// NewTelegram authorizes the bot token and returns a notifier.
func NewTelegram(cfg TelegramConfig) (*Telegram, error) {
	if cfg.Logger == nil {
		return nil, errors.New("logger is required for Telegram notifier")
	}
	if cfg.Token == "" || cfg.ChatID == 0 {
		return nil, fmt.Errorf("telegram token and chat id are required: %w", ports.ErrConfigurationError)
	}
	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to init Telegram bot: %w", err)
	}
	cfg.Logger.Info(context.Background(), "Telegram notifier authorized", map[string]interface{}{"account": bot.Self.UserName})
	return &Telegram{bot: bot, chatID: cfg.ChatID, logger: cfg.Logger}, nil
}

// Notify sends the alert as a chat message.
func (t *Telegram) Notify(ctx context.Context, alert domain.Alert) error {
	msg := tgbotapi.NewMessage(t.chatID, FormatAlert(alert))
	msg.DisableWebPagePreview = true
	if _, err := t.bot.Send(msg); err != nil {
		t.logger.Error(ctx, err, "Failed to send Telegram alert", map[string]interface{}{"kind": alert.Kind, "symbol": alert.Symbol})
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}
