package cli

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/Kerhoff/wishlist/internal/api"
	"github.com/Kerhoff/wishlist/internal/auth"
	"github.com/Kerhoff/wishlist/internal/handlers"
	"github.com/Kerhoff/wishlist/internal/telegram"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(app *App) *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, and the Telegram bot when TELEGRAM_TOKEN is set",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.open(cmd); err != nil {
				return err
			}
			defer app.close()

			if cmd.Flags().Changed("port") {
				app.cfg.Port = port
			}
			return runServe(cmd.Context(), app)
		},
	}

	cmd.Flags().StringVar(&port, "port", "", "Listen port (overrides PORT)")
	return cmd
}

func runServe(ctx context.Context, app *App) error {
	l := app.logger
	cfg := app.cfg
	l.Info("Starting wishlist...")

	var tokens *auth.TokenIssuer
	if cfg.SessionsEnabled() {
		tokens = auth.NewTokenIssuer(cfg.TokenSecret, cfg.TokenTTL)
	} else {
		l.Warn("TOKEN_SECRET is not set; session tokens and admin routes are disabled")
	}

	apiServer := api.NewServer(app.svc, tokens, app.metrics, l, api.Options{
		Backend:        app.store.Backend(),
		AllowedOrigins: cfg.AllowedOrigins,
	})
	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	serveErr := make(chan error, 1)

	wg.Add(1)
	go func() {
		defer wg.Done()
		l.Infof("HTTP server listening on :%s", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Errorf("HTTP server error: %v", err)
			serveErr <- err
			cancel()
		}
	}()

	if cfg.TelegramToken != "" {
		bot, err := telegram.NewBot(cfg.TelegramToken, cfg.CommandTimeout, l)
		if err != nil {
			cancel()
			_ = httpServer.Close()
			wg.Wait()
			return err
		}
		registerCommands(bot, app)

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := bot.Start(ctx); err != nil {
				l.Errorf("Bot error: %v", err)
			}
		}()
	}

	if cfg.ReconcileInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			app.svc.StartReconcileScheduler(ctx, cfg.ReconcileInterval)
		}()
	}

	l.WithField("backend", app.store.Backend()).Info("wishlist started successfully")

	<-ctx.Done()

	l.Info("Shutting down HTTP server...")
	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		l.WithError(err).Warn("HTTP server did not shut down cleanly")
	}
	wg.Wait()

	l.Info("wishlist stopped")

	select {
	case err := <-serveErr:
		return err
	default:
		return nil
	}
}

func registerCommands(bot *telegram.Bot, app *App) {
	l := app.logger
	bot.RegisterCommand("start", handlers.NewStartHandler(l))
	bot.RegisterCommand("help", handlers.NewHelpHandler(l))
	bot.RegisterCommand("wishlists", handlers.NewWishlistsHandler(app.svc, l))
	bot.RegisterCommand("show", handlers.NewShowHandler(app.svc, l))
	bot.RegisterCommand("claim", handlers.NewClaimHandler(app.svc, l))
}
