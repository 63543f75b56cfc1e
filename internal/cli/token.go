package cli

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/Kerhoff/wishlist/internal/auth"
)

func newTokenCmd(app *App) *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed bearer token",
		Long: "Issue a signed bearer token with TOKEN_SECRET. The default subject is the admin, " +
			"which may call POST /api/admin/reconcile. A wish list id as subject opens that list.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.loadConfig(cmd); err != nil {
				return err
			}
			if !app.cfg.SessionsEnabled() {
				return errors.New("TOKEN_SECRET is not set")
			}
			if ttl <= 0 {
				ttl = app.cfg.TokenTTL
			}

			token, expiresAt, err := auth.NewTokenIssuer(app.cfg.TokenSecret, ttl).Issue(subject)
			if err != nil {
				return err
			}
			return writeOut(cmd, app, map[string]any{
				"data": map[string]any{
					"subject":    subject,
					"token":      token,
					"expires_at": expiresAt,
				},
			})
		},
	}

	cmd.Flags().StringVar(&subject, "subject", auth.AdminSubject, "Token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime (default TOKEN_TTL)")
	return cmd
}
