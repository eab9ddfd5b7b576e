package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/benvon/situation-monitor/internal/config"
	"github.com/benvon/situation-monitor/internal/queue"
	"github.com/benvon/situation-monitor/internal/validation"
)

// NewWarmCmd enqueues warm-up jobs for the worker.
func NewWarmCmd() *cobra.Command {
	var (
		delay  time.Duration
		expire time.Duration
	)
	cmd := &cobra.Command{
		Use:   "warm <handle>...",
		Short: "Queue handles for cache warm-up",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, h := range args {
				if err := validation.ValidateHandle(h); err != nil {
					return err
				}
			}
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if !cfg.WarmupEnabled() {
				return fmt.Errorf("RABBITMQ_URL is not set")
			}
			log := newLogger()
			q, err := queue.NewRabbitMQQueue(cfg.RabbitMQURL, log)
			if err != nil {
				return err
			}
			defer func() { _ = q.Close() }()

			now := time.Now()
			for _, h := range args {
				job := queue.NewAnalyzeJob(h)
				if delay > 0 {
					notBefore := now.Add(delay)
					job.NotBefore = &notBefore
				}
				if expire > 0 {
					notAfter := now.Add(delay + expire)
					job.NotAfter = &notAfter
				}
				if err := q.Enqueue(cmd.Context(), job); err != nil {
					return fmt.Errorf("enqueue %s: %w", h, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "queued %s (job %s)\n", h, job.ID)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&delay, "delay", 0, "Wait before processing")
	cmd.Flags().DurationVar(&expire, "expire", 0, "Drop the job if not processed within this window")
	return cmd
}
