package telegram

import (
	"context"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

// Sender is the part of the bot API that handlers use. *tgbotapi.BotAPI
// implements it.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// DefaultCommandTimeout bounds a command when the router is given none.
const DefaultCommandTimeout = 30 * time.Second

// Router handles message routing and command parsing
type Router struct {
	logger   *logrus.Logger
	timeout  time.Duration
	handlers map[string]CommandHandler
}

// CommandHandler defines the interface for command handlers. ctx carries the
// command deadline.
type CommandHandler interface {
	Handle(ctx context.Context, bot Sender, message *tgbotapi.Message, args []string) error
}

// NewRouter creates a new message router. Each command runs under timeout;
// zero means DefaultCommandTimeout.
func NewRouter(logger *logrus.Logger, timeout time.Duration) *Router {
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	return &Router{
		logger:   logger,
		timeout:  timeout,
		handlers: make(map[string]CommandHandler),
	}
}

// RegisterCommand registers a command handler
func (r *Router) RegisterCommand(command string, handler CommandHandler) {
	r.handlers[command] = handler
	r.logger.Debugf("Registered command: %s", command)
}

// HandleMessage handles incoming messages. Message text is not logged since
// commands may carry a list password.
func (r *Router) HandleMessage(ctx context.Context, bot Sender, message *tgbotapi.Message) {
	if message.Text == "" || !message.IsCommand() {
		return
	}

	command := message.Command()
	args := strings.Fields(message.CommandArguments())

	fields := logrus.Fields{
		"command":    command,
		"chat_id":    message.Chat.ID,
		"message_id": message.MessageID,
	}
	if message.From != nil {
		fields["user_id"] = message.From.ID
	}
	r.logger.WithFields(fields).Info("Received command")

	handler, exists := r.handlers[command]
	if !exists {
		r.logger.WithFields(fields).Warn("Unknown command")
		unknownMsg := tgbotapi.NewMessage(message.Chat.ID, "❓ Unknown command. Use /help to see available commands.")
		_, _ = bot.Send(unknownMsg)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := handler.Handle(ctx, bot, message, args); err != nil {
		r.logger.WithFields(fields).WithError(err).Error("Command handler failed")

		errorMsg := tgbotapi.NewMessage(message.Chat.ID, "❌ An error occurred while processing your command. Please try again.")
		_, _ = bot.Send(errorMsg)
	}
}
