package commands

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/benvon/situation-monitor/internal/database"
	"github.com/benvon/situation-monitor/internal/models"
)

// NewAnalysesCmd inspects and purges cached analyses.
func NewAnalysesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyses",
		Short: "Inspect cached analyses",
	}
	cmd.AddCommand(newAnalysesListCmd())
	cmd.AddCommand(newAnalysesShowCmd())
	cmd.AddCommand(newAnalysesPurgeCmd())
	return cmd
}

func newAnalysesListCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the most recently updated analyses",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, err := openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			rows, err := database.NewUserAnalysisRepository(db).List(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("list analyses: %w", err)
			}
			if len(rows) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No analyses stored.")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "HANDLE\tUPDATED\tSITUATION")
			for _, a := range rows {
				fmt.Fprintf(w, "%s\t%s\t%s\n", a.Handle, a.UpdatedAt.UTC().Format(time.RFC3339), a.Situation)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum rows")
	return cmd
}

func newAnalysesShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <handle>",
		Short: "Show the stored analysis for a handle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, err := openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			a, err := database.NewUserAnalysisRepository(db).GetByHandle(cmd.Context(), models.HandleKey(args[0]))
			if err != nil {
				return fmt.Errorf("get analysis: %w", err)
			}
			if a == nil {
				return fmt.Errorf("no analysis stored for %s", args[0])
			}
			return printJSON(cmd.OutOrStdout(), a)
		},
	}
}

func newAnalysesPurgeCmd() *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete analyses not updated within the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, db, err := openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			if olderThan <= 0 {
				olderThan = cfg.AnalysisRetention
			}
			n, err := database.NewUserAnalysisRepository(db).PurgeOlderThan(cmd.Context(), time.Now().Add(-olderThan))
			if err != nil {
				return fmt.Errorf("purge analyses: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Purged %d analyses older than %s.\n", n, olderThan)
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "Age cutoff (default ANALYSIS_RETENTION)")
	return cmd
}
