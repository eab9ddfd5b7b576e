// Package workers runs the background jobs: cache warm-up and retention purges.
package workers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/benvon/situation-monitor/internal/apperr"
	"github.com/benvon/situation-monitor/internal/logger"
	"github.com/benvon/situation-monitor/internal/queue"
	"github.com/benvon/situation-monitor/internal/services/ai"
	"github.com/benvon/situation-monitor/internal/services/situation"
)

// SituationAnalyzer is the analysis the warmer runs for each job.
type SituationAnalyzer interface {
	Analyze(ctx context.Context, handle string) (*situation.Result, error)
}

// Enqueuer re-publishes delayed retries.
type Enqueuer interface {
	Enqueue(ctx context.Context, job *queue.Job) error
}

var _ SituationAnalyzer = (*situation.Analyzer)(nil)

// Warmer processes analyze_handle jobs so later requests hit a fresh cache row.
type Warmer struct {
	analyzer SituationAnalyzer
	queue    Enqueuer
	logger   *zap.Logger
}

// NewWarmer creates a warmer. A nil queue disables delayed retries; failed
// jobs then go straight to the DLQ.
func NewWarmer(analyzer SituationAnalyzer, q Enqueuer, log *zap.Logger) *Warmer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Warmer{analyzer: analyzer, queue: q, logger: log}
}

// Run processes messages until ctx is cancelled or the delivery channel closes.
func (w *Warmer) Run(ctx context.Context, msgs <-chan *queue.Message, errs <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			w.logger.Error("queue_error", zap.Error(err))
		case msg, ok := <-msgs:
			if !ok {
				w.logger.Info("message_channel_closed")
				return
			}
			if err := w.ProcessJob(ctx, msg); err != nil {
				w.logger.Error("job_failed",
					zap.String("job_id", msg.GetJob().ID.String()),
					zap.Error(err),
				)
			}
		}
	}
}

// ProcessJob analyzes the job's handle and settles the message.
//
// Bad-request and not-found outcomes are acknowledged: retrying the same
// handle cannot succeed. Other failures are re-enqueued with a delay from
// ai.GetRetryDelay until MaxRetries, then dead-lettered.
func (w *Warmer) ProcessJob(ctx context.Context, msg queue.MessageInterface) error {
	job := msg.GetJob()
	if err := job.Validate(); err != nil {
		if nackErr := msg.Nack(false); nackErr != nil {
			w.logger.Warn("failed_to_nack_job", zap.Error(nackErr))
		}
		return fmt.Errorf("invalid job: %w", err)
	}

	start := time.Now()
	result, err := w.analyzer.Analyze(ctx, job.Handle)
	if err == nil {
		w.logger.Info("warmup_completed",
			zap.String("handle", logger.SanitizeHandle(job.Handle)),
			zap.Bool("cached", result.Cached),
			zap.Duration("duration", time.Since(start)),
		)
		return ackOrErr(msg)
	}

	if apperr.IsPermanent(err) {
		w.logger.Warn("warmup_skipped",
			zap.String("handle", logger.SanitizeHandle(job.Handle)),
			zap.String("kind", string(apperr.Classify(err).Kind)),
		)
		return ackOrErr(msg)
	}
	return w.retry(ctx, msg, job, err)
}

func (w *Warmer) retry(ctx context.Context, msg queue.MessageInterface, job *queue.Job, cause error) error {
	if ctx.Err() != nil {
		// shutting down; hand the job to another consumer untouched
		if nackErr := msg.Nack(true); nackErr != nil {
			w.logger.Warn("failed_to_nack_job", zap.Error(nackErr))
		}
		return ctx.Err()
	}

	if !job.CanRetry() || w.queue == nil {
		if nackErr := msg.Nack(false); nackErr != nil {
			w.logger.Warn("failed_to_nack_job", zap.Error(nackErr))
		}
		return fmt.Errorf("job dead-lettered after %d attempts: %w", job.RetryCount+1, cause)
	}

	delay := ai.GetRetryDelay(cause, job.RetryCount)
	next := job.Retry(delay)
	if err := w.queue.Enqueue(ctx, next); err != nil {
		if nackErr := msg.Nack(true); nackErr != nil {
			w.logger.Warn("failed_to_nack_job", zap.Error(nackErr))
		}
		return errors.Join(cause, fmt.Errorf("failed to re-enqueue job: %w", err))
	}
	w.logger.Info("warmup_rescheduled",
		zap.String("job_id", job.ID.String()),
		zap.Int("retry_count", next.RetryCount),
		zap.Duration("delay", delay),
		zap.Bool("rate_limited", ai.IsRateLimitError(cause)),
		zap.Bool("quota_exceeded", ai.IsQuotaError(cause)),
		zap.String("error", logger.SanitizeError(cause)),
	)
	return ackOrErr(msg)
}

func ackOrErr(msg queue.MessageInterface) error {
	if err := msg.Ack(); err != nil {
		return fmt.Errorf("failed to ack job: %w", err)
	}
	return nil
}
