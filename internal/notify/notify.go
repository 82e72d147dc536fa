// Package notify delivers operator alerts for states that need a human,
// such as a report saved without its debit.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type Notifier interface {
	Alert(ctx context.Context, text string)
}

// Nop drops alerts.
type Nop struct{}

func (Nop) Alert(context.Context, string) {}

// TelegramNotifier posts alerts to a single chat.
type TelegramNotifier struct {
	api    *tgbotapi.BotAPI
	chatID int64
	log    *slog.Logger
}

func NewTelegramNotifier(token string, chatID int64, log *slog.Logger) (*TelegramNotifier, error) {
	return NewTelegramNotifierWithEndpoint(token, tgbotapi.APIEndpoint, chatID, http.DefaultClient, log)
}

// NewTelegramNotifierWithEndpoint allows a custom Bot API endpoint format
// such as a local bot server.
func NewTelegramNotifierWithEndpoint(token, endpoint string, chatID int64, client tgbotapi.HTTPClient, log *slog.Logger) (*TelegramNotifier, error) {
	api, err := tgbotapi.NewBotAPIWithClient(token, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot: %w", err)
	}
	log.Info("telegram alerts enabled", "bot", api.Self.UserName, "chat_id", chatID)
	return &TelegramNotifier{api: api, chatID: chatID, log: log}, nil
}

func (n *TelegramNotifier) Alert(_ context.Context, text string) {
	msg := tgbotapi.NewMessage(n.chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := n.api.Send(msg); err != nil {
		n.log.Error("send telegram alert", "err", err)
	}
}
