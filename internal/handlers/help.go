package handlers

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/wishlist/internal/telegram"
)

// HelpHandler handles the /help command
type HelpHandler struct {
	logger *logrus.Logger
}

func NewHelpHandler(logger *logrus.Logger) *HelpHandler {
	return &HelpHandler{logger: logger}
}

func (h *HelpHandler) Handle(_ context.Context, bot telegram.Sender, message *tgbotapi.Message, args []string) error {
	helpText := `📚 *Wishlist Help*

• /wishlists - Show all wish lists
• /show <id> <password> - Show the gifts of a list
• /claim <id> <password> <number> - Mark a gift as bought

_Messages that contain a password are removed from the chat once read._
_Lists are created and edited in the web app._`

	msg := tgbotapi.NewMessage(message.Chat.ID, helpText)
	msg.ParseMode = tgbotapi.ModeMarkdown

	_, err := bot.Send(msg)
	if err != nil {
		return fmt.Errorf("failed to send help message: %w", err)
	}

	h.logger.WithFields(messageFields(message)).Info("Sent help message")

	return nil
}

// messageFields returns the log fields identifying where a command came from.
func messageFields(message *tgbotapi.Message) logrus.Fields {
	fields := logrus.Fields{"chat_id": message.Chat.ID}
	if message.From != nil {
		fields["user_id"] = message.From.ID
	}
	return fields
}
