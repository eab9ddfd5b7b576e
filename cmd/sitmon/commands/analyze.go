package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/benvon/situation-monitor/internal/app"
)

// NewAnalyzeCmd runs the situation analysis in-process against the configured
// database, social source and model.
func NewAnalyzeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <handle>",
		Short: "Analyze a handle and print the situation",
		Long:  "Runs the cache-or-fetch analysis locally. A fresh cached row is returned without calling the model.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, db, err := openDB(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			log := newLogger()
			defer func() { _ = log.Sync() }()

			analyzer, err := app.NewAnalyzer(cfg, db, log, debugMode)
			if err != nil {
				return err
			}
			result, err := analyzer.Analyze(ctx, args[0])
			if err != nil {
				return fmt.Errorf("analyze %s: %w", args[0], err)
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}
}
