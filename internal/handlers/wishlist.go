package handlers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/wishlist/internal/models"
	"github.com/Kerhoff/wishlist/internal/service"
	"github.com/Kerhoff/wishlist/internal/telegram"
)

var errUsage = errors.New("wrong number of arguments")

// credentials is the "<id> <password>" prefix shared by the list commands.
type credentials struct {
	ID       string
	Password string
}

// parseCredentials splits args into the list credentials and exactly extra
// further arguments.
func parseCredentials(args []string, extra int) (credentials, []string, error) {
	if len(args) != 2+extra {
		return credentials{}, nil, errUsage
	}
	return credentials{ID: args[0], Password: args[1]}, args[2:], nil
}

// mayCarryPassword reports whether the second argument could be a password,
// whatever the argument count.
func mayCarryPassword(args []string) bool {
	return len(args) >= 2
}

// parseItemNumber turns the 1-based number shown in chat into an item index.
func parseItemNumber(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid gift number %q", s)
	}
	return n - 1, nil
}

func escape(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdown, s)
}

func reply(bot telegram.Sender, message *tgbotapi.Message, text string) error {
	msg := tgbotapi.NewMessage(message.Chat.ID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.DisableWebPagePreview = true
	if _, err := bot.Send(msg); err != nil {
		return fmt.Errorf("failed to send reply: %w", err)
	}
	return nil
}

// forgetPassword removes a message that carried a list password. Bots
// without the delete right in group chats get an error, which is only logged.
func forgetPassword(bot telegram.Sender, message *tgbotapi.Message, logger *logrus.Logger) {
	del := tgbotapi.NewDeleteMessage(message.Chat.ID, message.MessageID)
	if _, err := bot.Request(del); err != nil {
		logger.WithFields(messageFields(message)).WithError(err).Warn("Could not delete message with password")
	}
}

// authenticate checks the credentials and tells the user when they are wrong.
// ok is false when the command should stop.
func authenticate(ctx context.Context, svc *service.Service, bot telegram.Sender, message *tgbotapi.Message, creds credentials) (bool, error) {
	err := svc.Authenticate(ctx, creds.ID, creds.Password)
	if errors.Is(err, service.ErrUnauthorized) {
		return false, reply(bot, message, "🔒 Wrong list id or password.")
	}
	return err == nil, err
}

// ---------------------------------------------------------------------------
// WishlistsHandler – /wishlists
// ---------------------------------------------------------------------------

// WishlistsHandler handles the /wishlists command showing the catalog.
type WishlistsHandler struct {
	svc    *service.Service
	logger *logrus.Logger
}

// NewWishlistsHandler creates a new WishlistsHandler.
func NewWishlistsHandler(svc *service.Service, logger *logrus.Logger) *WishlistsHandler {
	return &WishlistsHandler{svc: svc, logger: logger}
}

// Handle processes the /wishlists command.
func (h *WishlistsHandler) Handle(ctx context.Context, bot telegram.Sender, message *tgbotapi.Message, args []string) error {
	entries := h.svc.ListWishlists(ctx)
	if len(entries) == 0 {
		return reply(bot, message, "🎁 *No wish lists yet!*\n\nCreate one in the web app.")
	}

	var sb strings.Builder
	sb.WriteString("🎁 *Wish Lists*\n\n")
	for _, e := range entries {
		sb.WriteString(fmt.Sprintf("• %s `%s`\n", escape(e.Name), e.ID))
	}
	sb.WriteString("\n_Open one with_ `/show <id> <password>`")

	if err := reply(bot, message, sb.String()); err != nil {
		return err
	}

	h.logger.WithFields(messageFields(message)).WithField("list_count", len(entries)).Info("Listed wish lists")
	return nil
}

// ---------------------------------------------------------------------------
// ShowHandler – /show <id> <password>
// ---------------------------------------------------------------------------

// ShowHandler handles the /show command listing the gifts of one list.
type ShowHandler struct {
	svc    *service.Service
	logger *logrus.Logger
}

// NewShowHandler creates a new ShowHandler.
func NewShowHandler(svc *service.Service, logger *logrus.Logger) *ShowHandler {
	return &ShowHandler{svc: svc, logger: logger}
}

// Handle processes the /show command.
func (h *ShowHandler) Handle(ctx context.Context, bot telegram.Sender, message *tgbotapi.Message, args []string) error {
	if mayCarryPassword(args) {
		forgetPassword(bot, message, h.logger)
	}
	creds, _, err := parseCredentials(args, 0)
	if err != nil {
		return reply(bot, message, "❌ Usage: `/show <id> <password>`")
	}

	if ok, err := authenticate(ctx, h.svc, bot, message, creds); !ok {
		return err
	}

	wishlist, err := h.svc.GetWishlist(ctx, creds.ID)
	if err != nil {
		return err
	}

	if err := reply(bot, message, formatWishlist(wishlist)); err != nil {
		return err
	}

	h.logger.WithFields(messageFields(message)).WithField("wishlist_id", wishlist.ID).Info("Showed wish list")
	return nil
}

// formatWishlist renders the items numbered from 1 with their claim state.
func formatWishlist(w *models.Wishlist) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("🎁 *%s*\n\n", escape(w.Name)))

	if len(w.Items) == 0 {
		sb.WriteString("_(empty)_\n")
	}
	for i, item := range w.Items {
		mark := "⬜"
		if item.IsGifted {
			mark = "✅"
		}
		sb.WriteString(fmt.Sprintf("%s %d. ", mark, i+1))
		if item.IsHighlight {
			sb.WriteString("⭐ ")
		}
		sb.WriteString(escape(item.GiftName))
		if item.Price != "" {
			sb.WriteString(" - _" + escape(item.Price) + "_")
		}
		if link := item.PurchaseLink; link != "" {
			sb.WriteString(fmt.Sprintf(" ([link](%s))", link))
		}
		if link := item.AmazonLink; link != "" {
			sb.WriteString(fmt.Sprintf(" ([amazon](%s))", link))
		}
		sb.WriteString("\n")
	}

	stats := w.Stats()
	sb.WriteString(fmt.Sprintf("\n_%d gifts, %d bought, %d open_", stats.Total, stats.Gifted, stats.Open))
	if stats.Open > 0 {
		sb.WriteString("\n_Mark one as bought with_ `/claim <id> <password> <number>`")
	}
	return sb.String()
}

// ---------------------------------------------------------------------------
// ClaimHandler – /claim <id> <password> <number>
// ---------------------------------------------------------------------------

// ClaimHandler handles the /claim command marking a gift as bought.
type ClaimHandler struct {
	svc    *service.Service
	logger *logrus.Logger
}

// NewClaimHandler creates a new ClaimHandler.
func NewClaimHandler(svc *service.Service, logger *logrus.Logger) *ClaimHandler {
	return &ClaimHandler{svc: svc, logger: logger}
}

// Handle processes the /claim command.
func (h *ClaimHandler) Handle(ctx context.Context, bot telegram.Sender, message *tgbotapi.Message, args []string) error {
	if mayCarryPassword(args) {
		forgetPassword(bot, message, h.logger)
	}
	creds, rest, err := parseCredentials(args, 1)
	if err != nil {
		return reply(bot, message, "❌ Usage: `/claim <id> <password> <number>`")
	}

	index, err := parseItemNumber(rest[0])
	if err != nil {
		return reply(bot, message, "❌ The gift number has to be a positive number.")
	}

	if ok, err := authenticate(ctx, h.svc, bot, message, creds); !ok {
		return err
	}

	claimed, err := h.svc.ClaimItem(ctx, creds.ID, index)
	switch {
	case errors.Is(err, models.ErrItemIndex):
		return reply(bot, message, fmt.Sprintf("❌ There is no gift number %d.", index+1))
	case err != nil:
		return err
	case !claimed:
		return reply(bot, message, fmt.Sprintf("ℹ️ Gift %d was already bought.", index+1))
	}

	if err := reply(bot, message, fmt.Sprintf("✅ Gift %d is marked as bought.", index+1)); err != nil {
		return err
	}

	h.logger.WithFields(messageFields(message)).WithFields(logrus.Fields{
		"wishlist_id": creds.ID,
		"index":       index,
	}).Info("Gift claimed from chat")
	return nil
}
