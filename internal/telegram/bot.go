package telegram

import (
	"context"
	"fmt"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

// pollTimeout is the long polling timeout in seconds.
const pollTimeout = 60

// Bot wraps the Telegram bot API
type Bot struct {
	api    *tgbotapi.BotAPI
	sender Sender
	logger *logrus.Logger
	router *Router

	// inflight tracks running command handlers so that Start returns only
	// after they are done with storage.
	inflight sync.WaitGroup
}

// NewBot authorizes token and returns a bot whose commands each get
// commandTimeout to finish.
func NewBot(token string, commandTimeout time.Duration, logger *logrus.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot API: %w", err)
	}
	logger.WithField("account", api.Self.UserName).Info("Telegram bot authorized")

	return &Bot{
		api:    api,
		sender: api,
		logger: logger,
		router: NewRouter(logger, commandTimeout),
	}, nil
}

// Start long-polls for updates until ctx is cancelled or Telegram closes the
// update channel. Handlers run with a context derived from ctx.
func (b *Bot) Start(ctx context.Context) error {
	if _, err := b.api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		return fmt.Errorf("failed to delete webhook: %w", err)
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = pollTimeout
	updates := b.api.GetUpdatesChan(u)

	b.logger.Info("Bot started with long polling")
	err := b.serve(ctx, updates)
	b.api.StopReceivingUpdates()
	return err
}

// serve dispatches updates and waits for running handlers before returning.
func (b *Bot) serve(ctx context.Context, updates <-chan tgbotapi.Update) error {
	defer b.inflight.Wait()

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("Stopping bot...")
			return nil
		case update, ok := <-updates:
			if !ok {
				b.logger.Warn("Update channel closed")
				return nil
			}
			if update.Message == nil {
				continue
			}
			b.inflight.Add(1)
			go b.handleMessage(ctx, update.Message)
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	defer b.inflight.Done()
	defer func() {
		if r := recover(); r != nil {
			b.logger.WithField("message_id", message.MessageID).Errorf("Panic in command handler: %v", r)
		}
	}()

	b.router.HandleMessage(ctx, b.sender, message)
}

// RegisterCommand registers a command handler on the router
func (b *Bot) RegisterCommand(command string, handler CommandHandler) {
	b.router.RegisterCommand(command, handler)
}
