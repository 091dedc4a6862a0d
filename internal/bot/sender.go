package bot

import (
	"context"
	"errors"
	"fmt"
	"html"

	"github.com/camprush/camprush/internal/notify"
)

const callbackDone = "done:"

// ChatMemory remembers which notification a chat was last asked about.
type ChatMemory interface {
	RememberTelegramMessage(ctx context.Context, chatID int64, messageID string) error
}

// Sender is the telegram notification channel.
type Sender struct {
	c      *Client
	memory ChatMemory
}

func NewSender(c *Client, memory ChatMemory) *Sender {
	return &Sender{c: c, memory: memory}
}

var errNoChat = errors.New("parent has no linked telegram chat")

func (s *Sender) Send(ctx context.Context, to notify.Preferences, messageID string, content notify.Content) error {
	if to.TelegramChatID == 0 {
		return errNoChat
	}
	text := fmt.Sprintf("<b>%s</b>\n%s", html.EscapeString(content.Subject), html.EscapeString(content.Body))
	if err := s.c.SendMessage(ctx, to.TelegramChatID, text, doneKeyboard(messageID)); err != nil {
		return err
	}
	if s.memory != nil {
		if err := s.memory.RememberTelegramMessage(ctx, to.TelegramChatID, messageID); err != nil {
			s.c.log.Warn("remember telegram message", "message_id", messageID, "error", err)
		}
	}
	return nil
}

func doneKeyboard(messageID string) any {
	return map[string]any{
		"inline_keyboard": [][]map[string]any{
			{{"text": "✅ Done", "callback_data": callbackDone + messageID}},
		},
	}
}
