package gateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/rahul/quill/internal/observability"
)

const (
	PlatformDiscord = "discord"
	discordLimit    = 2000
)

type DiscordGateway struct {
	session *discordgo.Session
	handler Handler
	log     *observability.Logger
	post    func(channelID, content string) error
}

func NewDiscordGateway(token string, handler Handler, log *observability.Logger) (*DiscordGateway, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = observability.NewNopLogger()
	}
	s.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentMessageContent

	d := &DiscordGateway{session: s, handler: handler, log: log}
	d.post = func(channelID, content string) error {
		_, err := s.ChannelMessageSend(channelID, content)
		return err
	}
	s.AddHandler(d.onMessageCreate)
	return d, nil
}

// Start opens the websocket; messages are delivered on discordgo's goroutines.
func (d *DiscordGateway) Start() error {
	if err := d.session.Open(); err != nil {
		return fmt.Errorf("opening discord session: %w", err)
	}
	d.log.Info("discord connected")
	return nil
}

func (d *DiscordGateway) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	selfID := ""
	if s.State != nil && s.State.User != nil {
		selfID = s.State.User.ID
	}
	d.handle(context.Background(), selfID, m.Message)
}

// handle answers m unless it came from a bot, including this one.
func (d *DiscordGateway) handle(ctx context.Context, selfID string, m *discordgo.Message) {
	if m == nil || m.Author == nil || m.Author.ID == selfID || m.Author.Bot {
		return
	}
	if strings.TrimSpace(m.Content) == "" {
		return
	}

	chatID := ChatKey(PlatformDiscord, m.ChannelID)
	d.log.Info("message received",
		zap.String("gateway", PlatformDiscord), zap.String("chat_id", chatID), zap.String("from", m.Author.Username))

	out := reply(ctx, d.handler, d.log, chatID, m.Content)
	if err := d.send(m.ChannelID, out); err != nil {
		d.log.Error("discord send failed", zap.String("chat_id", chatID), zap.Error(err))
	}
}

// Send delivers text to a chat key or a bare channel id.
func (d *DiscordGateway) Send(chatID string, text string) error {
	_, channelID := SplitChatKey(chatID)
	if channelID == "" {
		return fmt.Errorf("invalid chat ID: %s", chatID)
	}
	return d.send(channelID, text)
}

func (d *DiscordGateway) send(channelID, text string) error {
	for _, chunk := range splitMessage(text, discordLimit) {
		if err := d.post(channelID, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (d *DiscordGateway) Stop() error {
	return d.session.Close()
}
