package handlers

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/wishlist/internal/telegram"
)

// StartHandler handles the /start command
type StartHandler struct {
	logger *logrus.Logger
}

// NewStartHandler creates a new start command handler
func NewStartHandler(logger *logrus.Logger) *StartHandler {
	return &StartHandler{
		logger: logger,
	}
}

// Handle processes the /start command
func (h *StartHandler) Handle(_ context.Context, bot telegram.Sender, message *tgbotapi.Message, args []string) error {
	welcomeText := `🎁 *Welcome to the Wishlist bot!*

I show password protected gift lists and let you mark a gift as bought, so nobody buys the same present twice.

Start with /wishlists to see every list, then open one with /show.
Type /help for all commands.`

	msg := tgbotapi.NewMessage(message.Chat.ID, welcomeText)
	msg.ParseMode = tgbotapi.ModeMarkdown

	_, err := bot.Send(msg)
	if err != nil {
		return fmt.Errorf("failed to send start message: %w", err)
	}

	h.logger.WithFields(messageFields(message)).Info("Sent start message")

	return nil
}
