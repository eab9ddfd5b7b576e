package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/benvon/situation-monitor/internal/database"
	"github.com/benvon/situation-monitor/internal/middleware"
)

// NewRatelimitCmd creates the ratelimit command for the per-client API rate.
func NewRatelimitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ratelimit",
		Short: "Manage the API rate limit",
		Long:  "Show or update the per-client rate on /api/v1 (e.g. 10-M, 100-H). Running servers pick up changes within a minute.",
	}
	cmd.AddCommand(newRatelimitListCmd(), newRatelimitSetCmd())
	return cmd
}

func newRatelimitListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show the rate in effect",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, err := openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			rl, err := database.NewSettingsRepository(db).RateLimit(cmd.Context())
			if err != nil {
				return err
			}
			if rl == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "No rate stored; servers seed and use %s.\n", middleware.DefaultRate)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Rate limit (updated %s):\n  Rate: %s\n", rl.UpdatedAt.Format("2006-01-02 15:04:05"), rl.Rate)
			return nil
		},
	}
}

func newRatelimitSetCmd() *cobra.Command {
	var rate string
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Set the per-client rate",
		RunE: func(cmd *cobra.Command, args []string) error {
			rate = strings.TrimSpace(rate)
			if rate == "" {
				return fmt.Errorf("--rate is required (e.g. 10-M, 100-H)")
			}
			if err := middleware.ValidateRate(rate); err != nil {
				return err
			}
			_, db, err := openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			if err := database.NewSettingsRepository(db).SetRateLimit(cmd.Context(), rate); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Rate limit set to %s.\n", rate)
			return nil
		},
	}
	cmd.Flags().StringVar(&rate, "rate", "", "Rate, e.g. 10-M (required)")
	return cmd
}
