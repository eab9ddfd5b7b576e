package commands

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/benvon/situation-monitor/internal/apperr"
	"github.com/benvon/situation-monitor/internal/client"
	"github.com/benvon/situation-monitor/internal/composer"
	"github.com/benvon/situation-monitor/internal/render"
)

func defaultHistoryPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "sitmon-history.json"
	}
	return filepath.Join(dir, "sitmon", "history.json")
}

// NewMemeCmd composes a meme the way the web client does: remote analysis,
// local template history, then the export rendering.
func NewMemeCmd() *cobra.Command {
	var (
		server    string
		history   string
		out       string
		assets    string
		siteLabel string
	)
	cmd := &cobra.Command{
		Use:   "meme <handle>",
		Short: "Generate a situation meme PNG",
		Long: "Asks the server for the handle's situation, picks the next template from the local " +
			"history (random for a new handle, the following one on a remix) and writes the PNG.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			r := render.New(render.Options{AssetsDir: assets, SiteLabel: siteLabel, Logger: newLogger()})
			if err := r.Check(); err != nil {
				return fmt.Errorf("%w (see --assets)", err)
			}

			if err := os.MkdirAll(filepath.Dir(history), 0o700); err != nil {
				return fmt.Errorf("create history directory: %w", err)
			}
			hist, err := composer.OpenFileHistory(history)
			if err != nil {
				return err
			}

			// the remix history only advances once the PNG has rendered
			var rendered bytes.Buffer
			session := composer.NewSession(client.New(server), composer.New(hist),
				composer.WithDelivery(func(ctx context.Context, m *composer.Meme) error {
					return r.ExportPNG(ctx, &rendered, m)
				}))
			fmt.Fprintf(cmd.ErrOrStderr(), "%s\n", session.ButtonLabel(ctx, args[0]))

			meme, err := session.Submit(ctx, args[0])
			if err != nil {
				if msg := session.Err(); msg != "" && msg != apperr.UnclassifiedMessage {
					return fmt.Errorf("%s", msg)
				}
				return err
			}

			if err := os.WriteFile(out, rendered.Bytes(), 0o644); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s\n%s\nsaved %s (template %d)\n", meme.TopText, meme.BottomText, out, meme.TemplateIndex)
			return nil
		},
	}
	cmd.Flags().StringVar(&server, "server", "http://localhost:8080", "Situation Monitor server URL")
	cmd.Flags().StringVar(&history, "history", defaultHistoryPath(), "Template history file")
	cmd.Flags().StringVar(&out, "out", "situation-meme.png", "Output PNG path")
	cmd.Flags().StringVar(&assets, "assets", "assets/templates",
		"Directory holding the five template images (monitor_lizard.jpeg, overlooking.jpeg, crab-drone.jpeg, husbant.jpeg, pov.png)")
	cmd.Flags().StringVar(&siteLabel, "site-label", "situationmonitor.app", "Footer site label")
	return cmd
}
