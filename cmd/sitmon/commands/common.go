// Package commands implements the sitmon subcommands.
package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/benvon/situation-monitor/internal/config"
	"github.com/benvon/situation-monitor/internal/database"
	"github.com/benvon/situation-monitor/internal/logger"
)

var debugMode bool

// AddPersistentFlags registers flags shared by every subcommand.
func AddPersistentFlags(root *cobra.Command) {
	root.PersistentFlags().BoolVar(&debugMode, "debug", false, "Verbose logging, including LLM prompts")
}

func newLogger() *zap.Logger {
	log, err := logger.NewConsoleLogger(debugMode)
	if err != nil {
		return zap.NewNop()
	}
	return log
}

// openDB loads configuration and opens the migrated database. The caller closes it.
func openDB(ctx context.Context) (*config.Config, *database.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	db, err := database.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	return cfg, db, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
