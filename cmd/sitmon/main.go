package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/benvon/situation-monitor/cmd/sitmon/commands"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "sitmon",
		Short:         "Operator tool for Situation Monitor",
		Long:          "Analyze handles, compose memes, warm the cache and manage server settings.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	commands.AddPersistentFlags(rootCmd)

	rootCmd.AddCommand(commands.NewAnalyzeCmd())
	rootCmd.AddCommand(commands.NewMemeCmd())
	rootCmd.AddCommand(commands.NewWarmCmd())
	rootCmd.AddCommand(commands.NewAnalysesCmd())
	rootCmd.AddCommand(commands.NewCorsCmd())
	rootCmd.AddCommand(commands.NewRatelimitCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
