package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/benvon/situation-monitor/internal/database"
	"github.com/benvon/situation-monitor/internal/models"
)

// NewCorsCmd creates the cors command, which manages the browser origins the API accepts.
func NewCorsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cors",
		Short: "Manage the CORS policy",
		Long:  "Show, set or reset the CORS policy. Running servers pick up changes within a minute.",
	}
	cmd.AddCommand(newCorsListCmd(), newCorsSetCmd(), newCorsResetCmd())
	return cmd
}

func newCorsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show the CORS policy in effect",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, db, err := openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			p, err := database.NewSettingsRepository(db).CORSPolicy(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if p == nil {
				fmt.Fprintf(out, "No CORS policy stored; servers allow FRONTEND_URL (%s).\n", cfg.FrontendURL)
				return nil
			}
			fmt.Fprintf(out, "CORS policy (updated %s):\n", p.UpdatedAt.Format("2006-01-02 15:04:05"))
			fmt.Fprintf(out, "  Allowed origins: %s\n", strings.Join(p.AllowedOrigins, ", "))
			fmt.Fprintf(out, "  Allow credentials: %v\n", p.AllowCredentials)
			fmt.Fprintf(out, "  Max-Age: %d\n", p.MaxAge)
			return nil
		},
	}
}

func newCorsSetCmd() *cobra.Command {
	var (
		origins    string
		allowCreds bool
		maxAge     int
	)
	cmd := &cobra.Command{
		Use:     "set",
		Short:   "Replace the CORS policy",
		Example: "  sitmon cors set --origins https://situationmonitor.app,https://www.situationmonitor.app",
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed := database.ParseOrigins(origins)
			if len(parsed) == 0 {
				return fmt.Errorf("--origins is required (comma-separated list)")
			}
			for _, o := range parsed {
				if err := database.ValidateOrigin(o); err != nil {
					return err
				}
			}
			_, db, err := openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			p := &models.CORSPolicy{AllowedOrigins: parsed, AllowCredentials: allowCreds, MaxAge: maxAge}
			if err := database.NewSettingsRepository(db).SetCORSPolicy(cmd.Context(), p); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "CORS policy updated: %d origin(s).\n", len(parsed))
			return nil
		},
	}
	cmd.Flags().StringVar(&origins, "origins", "", "Comma-separated allowed origins (required)")
	cmd.Flags().BoolVar(&allowCreds, "allow-credentials", false, "Allow credentials")
	cmd.Flags().IntVar(&maxAge, "max-age", 86400, "Access-Control-Max-Age (seconds)")
	return cmd
}

func newCorsResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Remove the stored policy so servers fall back to FRONTEND_URL",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, err := openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			if err := database.NewSettingsRepository(db).ResetCORSPolicy(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "CORS policy reset.")
			return nil
		},
	}
}
