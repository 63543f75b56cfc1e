package cli

import (
	"encoding/json"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Kerhoff/wishlist/internal/auth"
	"github.com/Kerhoff/wishlist/internal/config"
	"github.com/Kerhoff/wishlist/internal/metrics"
	"github.com/Kerhoff/wishlist/internal/repository/docstore"
	"github.com/Kerhoff/wishlist/internal/service"
	"github.com/Kerhoff/wishlist/internal/storage"
	"github.com/Kerhoff/wishlist/pkg/logger"
)

// App carries what the subcommands share. It is filled lazily by open so
// that --help works without any configuration.
type App struct {
	PrettyJSON bool

	cfg     *config.Config
	logger  *logrus.Logger
	metrics *metrics.Metrics
	store   *storage.Router
	svc     *service.Service
}

func NewRootCmd() *cobra.Command {
	app := &App{}

	cmd := &cobra.Command{
		Use:          "wishlist",
		Short:        "Password protected gift wish lists",
		SilenceUsage: true,
	}

	cmd.PersistentFlags().BoolVar(&app.PrettyJSON, "pretty", false, "Pretty-print JSON output")

	cmd.AddCommand(newServeCmd(app))
	cmd.AddCommand(newListsCmd(app))
	cmd.AddCommand(newCreateCmd(app))
	cmd.AddCommand(newShowCmd(app))
	cmd.AddCommand(newDeleteCmd(app))
	cmd.AddCommand(newReconcileCmd(app))
	cmd.AddCommand(newTokenCmd(app))

	return cmd
}

// loadConfig reads configuration and builds the logger. Logs go to stderr so
// stdout stays machine readable.
func (app *App) loadConfig(cmd *cobra.Command) error {
	if app.cfg != nil {
		return nil
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	app.cfg = cfg
	app.logger = logger.NewWithOutput(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())
	return nil
}

// open wires storage, repository and service from configuration. Callers
// defer app.close().
func (app *App) open(cmd *cobra.Command) error {
	if app.svc != nil {
		return nil
	}
	if err := app.loadConfig(cmd); err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	app.metrics = metrics.New(registry)

	hasher, err := auth.NewHasher(app.cfg.PasswordHash)
	if err != nil {
		return err
	}

	store, err := storage.Open(app.cfg, app.logger, app.metrics)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	app.store = store

	repo := docstore.NewWishlistRepository(store, hasher, app.cfg.StrictReads, app.logger)
	app.svc = service.New(app.logger, repo, app.metrics)
	return nil
}

func (app *App) close() {
	if app.store == nil {
		return
	}
	if err := app.store.Close(); err != nil {
		app.logger.WithError(err).Warn("Failed to close storage")
	}
	app.store = nil
}

func writeOut(cmd *cobra.Command, app *App, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	if app.PrettyJSON {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}
