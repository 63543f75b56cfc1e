package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Kerhoff/wishlist/internal/models"
	"github.com/Kerhoff/wishlist/internal/repository"
)

// wishlistView is a wishlist without its password hash.
type wishlistView struct {
	ID    string        `json:"id"`
	Name  string        `json:"name"`
	Items []models.Item `json:"items"`
	Stats models.Stats  `json:"stats"`
}

func newListsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "lists",
		Short: "Print the wish list index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.open(cmd); err != nil {
				return err
			}
			defer app.close()

			return writeOut(cmd, app, map[string]any{
				"data": app.svc.ListWishlists(cmd.Context()),
			})
		},
	}
}

func newCreateCmd(app *App) *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create an empty wish list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.open(cmd); err != nil {
				return err
			}
			defer app.close()

			id, err := app.svc.CreateWishlist(cmd.Context(), args[0], password, password)
			if err != nil {
				return err
			}
			return writeOut(cmd, app, map[string]any{
				"data": map[string]string{"id": id},
			})
		},
	}

	cmd.Flags().StringVar(&password, "password", "", "List password (required)")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newShowCmd(app *App) *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Print a wish list",
		Long:  "Print a wish list. With --password the password is checked first.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.open(cmd); err != nil {
				return err
			}
			defer app.close()

			ctx := cmd.Context()
			id := args[0]
			if cmd.Flags().Changed("password") {
				if err := app.svc.Authenticate(ctx, id, password); err != nil {
					return err
				}
			}

			w, err := app.svc.GetWishlist(ctx, id)
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("wishlist not found: %s", id)
			}
			if err != nil {
				return err
			}
			return writeOut(cmd, app, map[string]any{
				"data": wishlistView{ID: w.ID, Name: w.Name, Items: w.Items, Stats: w.Stats()},
			})
		},
	}

	cmd.Flags().StringVar(&password, "password", "", "Check this list password")
	return cmd
}

func newDeleteCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a wish list and its index entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.open(cmd); err != nil {
				return err
			}
			defer app.close()

			if err := app.svc.DeleteWishlist(cmd.Context(), args[0]); err != nil {
				return err
			}
			return writeOut(cmd, app, map[string]any{
				"data": map[string]string{"deleted": args[0]},
			})
		},
	}
}

func newReconcileCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Rebuild the index from the stored wish lists",
		Long: "Rebuild the index from the stored wish lists. Lists missing from the index are " +
			"added and entries without a document are dropped. The report is printed even " +
			"when some documents could not be read.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.open(cmd); err != nil {
				return err
			}
			defer app.close()

			report, err := app.svc.Reconcile(cmd.Context())
			if report == nil {
				return err
			}
			if werr := writeOut(cmd, app, map[string]any{"data": report}); werr != nil {
				return werr
			}
			return err
		},
	}
}
