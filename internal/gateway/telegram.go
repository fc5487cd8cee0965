package gateway

import (
	"context"
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/rahul/quill/internal/observability"
)

const (
	PlatformTelegram = "telegram"
	telegramLimit    = 4096
)

// telegramBot is the part of *tgbotapi.BotAPI the gateway uses.
type telegramBot interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	StopReceivingUpdates()
}

type TelegramGateway struct {
	bot     telegramBot
	handler Handler
	log     *observability.Logger
}

func NewTelegramGateway(token string, handler Handler, log *observability.Logger) (*TelegramGateway, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = observability.NewNopLogger()
	}

	log.Info("telegram authorized", zap.String("account", bot.Self.UserName))

	return &TelegramGateway{bot: bot, handler: handler, log: log}, nil
}

func (tg *TelegramGateway) Start() error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := tg.bot.GetUpdatesChan(u)

	for update := range updates {
		if update.Message == nil || update.Message.Text == "" {
			continue
		}

		chatID := ChatKey(PlatformTelegram, strconv.FormatInt(update.Message.Chat.ID, 10))
		from := ""
		if update.Message.From != nil {
			from = update.Message.From.UserName
		}
		tg.log.Info("message received",
			zap.String("gateway", PlatformTelegram), zap.String("chat_id", chatID), zap.String("from", from))

		out := reply(context.Background(), tg.handler, tg.log, chatID, update.Message.Text)
		if err := tg.send(update.Message.Chat.ID, out); err != nil {
			tg.log.Error("telegram send failed", zap.String("chat_id", chatID), zap.Error(err))
		}
	}
	return nil
}

// Send delivers text to a chat key or a bare telegram chat id.
func (tg *TelegramGateway) Send(chatID string, text string) error {
	_, raw := SplitChatKey(chatID)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id == 0 {
		return fmt.Errorf("invalid chat ID: %s", chatID)
	}
	return tg.send(id, text)
}

// send posts plain text; drafts are arbitrary markdown that telegram's
// parser would reject.
func (tg *TelegramGateway) send(id int64, text string) error {
	for _, chunk := range splitMessage(text, telegramLimit) {
		if _, err := tg.bot.Send(tgbotapi.NewMessage(id, chunk)); err != nil {
			return err
		}
	}
	return nil
}

func (tg *TelegramGateway) Stop() error {
	tg.bot.StopReceivingUpdates()
	return nil
}
