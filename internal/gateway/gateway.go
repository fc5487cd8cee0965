package gateway

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/rahul/quill/internal/observability"
)

// Messenger defines the interface for communication gateways (Telegram, Discord, etc.)
type Messenger interface {
	// Start begins the message listening loop
	Start() error
	// Send sends a message to a specific chat
	Send(chatID string, text string) error
	// Stop gracefully shuts down the gateway
	Stop() error
}

// Handler turns an incoming chat message into the reply for that chat.
type Handler interface {
	Handle(ctx context.Context, chatID, text string) (string, error)
}

const failureReply = "I'm having trouble thinking right now..."

// ChatKey namespaces a platform chat id, e.g. "telegram:42".
func ChatKey(platform, id string) string {
	return platform + ":" + id
}

// SplitChatKey is the inverse of ChatKey. A key without a platform is
// returned as the id.
func SplitChatKey(key string) (platform, id string) {
	platform, id, ok := strings.Cut(key, ":")
	if !ok {
		return "", key
	}
	return platform, id
}

// reply asks h for the answer to text and falls back to a canned reply on
// failure, so the chat always hears back.
func reply(ctx context.Context, h Handler, log *observability.Logger, chatID, text string) string {
	out, err := h.Handle(ctx, chatID, text)
	if err != nil {
		log.Error("handling message failed", zap.String("chat_id", chatID), zap.Error(err))
		return failureReply
	}
	if strings.TrimSpace(out) == "" {
		return "(empty reply)"
	}
	return out
}

// splitMessage cuts text into chunks of at most limit runes, preferring line
// breaks.
func splitMessage(text string, limit int) []string {
	var chunks []string
	for utf8.RuneCountInString(text) > limit {
		runes := []rune(text)
		cut := limit
		if i := strings.LastIndex(string(runes[:limit]), "\n"); i > 0 {
			cut = utf8.RuneCountInString(string(runes[:limit])[:i]) + 1
		}
		chunks = append(chunks, string(runes[:cut]))
		text = string(runes[cut:])
	}
	if text != "" || len(chunks) == 0 {
		chunks = append(chunks, text)
	}
	return chunks
}

// Mux routes Send calls to the messenger of the chat key's platform.
type Mux struct {
	messengers map[string]Messenger
}

func NewMux() *Mux {
	return &Mux{messengers: map[string]Messenger{}}
}

func (m *Mux) Register(platform string, msg Messenger) {
	m.messengers[platform] = msg
}

func (m *Mux) Send(chatID, text string) error {
	platform, _ := SplitChatKey(chatID)
	msg, ok := m.messengers[platform]
	if !ok {
		return fmt.Errorf("no gateway for chat %s", chatID)
	}
	return msg.Send(chatID, text)
}

// Len reports how many gateways are registered.
func (m *Mux) Len() int {
	return len(m.messengers)
}
