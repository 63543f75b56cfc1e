package telegram

import (
	"context"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/atomic"

	"github.com/Kerhoff/wishlist/pkg/logger"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []string
}

func (s *recordingSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		s.mu.Lock()
		s.sent = append(s.sent, msg.Text)
		s.mu.Unlock()
	}
	return tgbotapi.Message{}, nil
}

func (s *recordingSender) Request(tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return &tgbotapi.APIResponse{Ok: true}, nil
}

type handlerFunc func(ctx context.Context, bot Sender, message *tgbotapi.Message, args []string) error

func (f handlerFunc) Handle(ctx context.Context, bot Sender, message *tgbotapi.Message, args []string) error {
	return f(ctx, bot, message, args)
}

func command(text string, length int) *tgbotapi.Message {
	return &tgbotapi.Message{
		MessageID: 1,
		Text:      text,
		Chat:      &tgbotapi.Chat{ID: 42},
		Entities:  []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: length}},
	}
}

type ctxKey struct{}

func TestRouterDerivesCommandContext(t *testing.T) {
	r := NewRouter(logger.Discard(), time.Minute)

	var (
		gotValue    any
		gotDeadline time.Time
		gotArgs     []string
	)
	r.RegisterCommand("show", handlerFunc(func(ctx context.Context, _ Sender, _ *tgbotapi.Message, args []string) error {
		gotValue = ctx.Value(ctxKey{})
		gotDeadline, _ = ctx.Deadline()
		gotArgs = args
		return nil
	}))

	parent := context.WithValue(context.Background(), ctxKey{}, "bot")
	start := time.Now()
	r.HandleMessage(parent, &recordingSender{}, command("/show abc pw", 5))

	if gotValue != "bot" {
		t.Errorf("handler context does not derive from the bot context")
	}
	if gotDeadline.IsZero() || gotDeadline.Sub(start) > time.Minute {
		t.Errorf("deadline = %v, want within a minute of %v", gotDeadline, start)
	}
	if len(gotArgs) != 2 || gotArgs[0] != "abc" || gotArgs[1] != "pw" {
		t.Errorf("args = %v", gotArgs)
	}
}

func TestRouterCommandSeesShutdown(t *testing.T) {
	r := NewRouter(logger.Discard(), 0)
	if r.timeout != DefaultCommandTimeout {
		t.Errorf("timeout = %v, want default", r.timeout)
	}

	var gotErr error
	r.RegisterCommand("claim", handlerFunc(func(ctx context.Context, _ Sender, _ *tgbotapi.Message, _ []string) error {
		gotErr = ctx.Err()
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r.HandleMessage(ctx, &recordingSender{}, command("/claim", 6))
	if gotErr == nil {
		t.Error("handler should see the cancelled bot context")
	}
}

func TestRouterUnknownAndFailingCommands(t *testing.T) {
	r := NewRouter(logger.Discard(), time.Second)
	r.RegisterCommand("boom", handlerFunc(func(context.Context, Sender, *tgbotapi.Message, []string) error {
		return context.DeadlineExceeded
	}))
	sender := &recordingSender{}

	r.HandleMessage(context.Background(), sender, command("/nope", 5))
	r.HandleMessage(context.Background(), sender, command("/boom", 5))
	r.HandleMessage(context.Background(), sender, &tgbotapi.Message{Text: "hello", Chat: &tgbotapi.Chat{ID: 42}})

	if len(sender.sent) != 2 {
		t.Fatalf("sent = %q, want two replies", sender.sent)
	}
	if sender.sent[0] == sender.sent[1] {
		t.Errorf("unknown and failed commands should get different replies: %q", sender.sent)
	}
}

func newTestBot(r *Router, sender Sender) *Bot {
	return &Bot{sender: sender, logger: logger.Discard(), router: r}
}

func TestServeReturnsWhenUpdatesClose(t *testing.T) {
	r := NewRouter(logger.Discard(), time.Second)
	handled := atomic.NewInt32(0)
	r.RegisterCommand("show", handlerFunc(func(context.Context, Sender, *tgbotapi.Message, []string) error {
		time.Sleep(10 * time.Millisecond)
		handled.Inc()
		return nil
	}))
	b := newTestBot(r, &recordingSender{})

	updates := make(chan tgbotapi.Update, 3)
	updates <- tgbotapi.Update{Message: command("/show a b", 5)}
	updates <- tgbotapi.Update{}
	updates <- tgbotapi.Update{Message: command("/show c d", 5)}
	close(updates)

	done := make(chan error, 1)
	go func() { done <- b.serve(context.Background(), updates) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("serve() kept running after the update channel closed")
	}
	if got := handled.Load(); got != 2 {
		t.Errorf("handled = %d, want both commands finished before serve returned", got)
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	b := newTestBot(NewRouter(logger.Discard(), time.Second), &recordingSender{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.serve(ctx, make(chan tgbotapi.Update)) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("serve() did not stop after cancel")
	}
}

func TestHandleMessageRecoversPanic(t *testing.T) {
	r := NewRouter(logger.Discard(), time.Second)
	r.RegisterCommand("show", handlerFunc(func(context.Context, Sender, *tgbotapi.Message, []string) error {
		panic("broken handler")
	}))
	b := newTestBot(r, &recordingSender{})

	b.inflight.Add(1)
	b.handleMessage(context.Background(), command("/show", 5))
	b.inflight.Wait()
}
