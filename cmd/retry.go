package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/insight-engine/internal/resilience"
)

var (
	retryLimit         int
	retryIgnoreBackoff bool
)

var retryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Re-run analyses parked in the dead letter queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		// The retry loop owns dead letter bookkeeping. Without this the
		// engine would enqueue a second entry when a retry fails again.
		cfg.Engine.DeadLetter = false

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		filter := resilience.DLQFilter{
			ErrorType: "transient",
			Due:       !retryIgnoreBackoff,
			Limit:     retryLimit,
		}

		counts, err := retryDeadLetters(ctx, env.Store, env.Engine, filter)
		if err != nil {
			return err
		}
		if counts.attempted == 0 {
			zap.L().Info("no due dead letters")
			return nil
		}

		zap.L().Info("dead letter retry complete",
			zap.Int("attempted", counts.attempted),
			zap.Int("succeeded", counts.succeeded),
			zap.Int("rescheduled", counts.rescheduled),
			zap.Int("exhausted", counts.exhausted),
		)
		return nil
	},
}

func init() {
	retryCmd.Flags().IntVar(&retryLimit, "limit", 20, "max entries to retry")
	retryCmd.Flags().BoolVar(&retryIgnoreBackoff, "ignore-backoff", false, "retry entries whose backoff has not elapsed")
	rootCmd.AddCommand(retryCmd)
}

// dlqStore is the slice of the store the retry loop needs.
type dlqStore interface {
	ListDeadLetters(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error)
	RemoveDeadLetter(ctx context.Context, id string) error
	MarkDeadLetterRetry(ctx context.Context, id string, nextRetryAt time.Time, lastErr string) error
}

type retryCounts struct {
	attempted   int
	succeeded   int
	rescheduled int
	exhausted   int
}

func retryDeadLetters(ctx context.Context, st dlqStore, eng analyzer, filter resilience.DLQFilter) (retryCounts, error) {
	var counts retryCounts

	entries, err := st.ListDeadLetters(ctx, filter)
	if err != nil {
		return counts, eris.Wrap(err, "list dead letters")
	}

	for _, e := range entries {
		if ctx.Err() != nil {
			return counts, ctx.Err()
		}
		counts.attempted++

		log := zap.L().With(
			zap.String("dlq_id", truncateID(e.ID)),
			zap.String("subject", e.Request.Subject),
			zap.Int("retry_count", e.RetryCount),
		)

		_, _, analyzeErr := eng.Analyze(ctx, e.Request)
		if analyzeErr == nil {
			if err := st.RemoveDeadLetter(ctx, e.ID); err != nil {
				log.Warn("dead letter cleanup failed", zap.Error(err))
			}
			counts.succeeded++
			log.Info("dead letter retried successfully")
			continue
		}

		// Failed again. The store increments retry_count; the backoff for
		// the attempt after this one doubles from the incremented count.
		e.RetryCount++
		next := time.Now().UTC().Add(e.RetryBackoff())
		if err := st.MarkDeadLetterRetry(ctx, e.ID, next, analyzeErr.Error()); err != nil {
			log.Warn("dead letter update failed", zap.Error(err))
		}

		if !e.CanRetry() {
			counts.exhausted++
			log.Warn("dead letter exhausted its retries", zap.Error(analyzeErr))
			continue
		}
		counts.rescheduled++
		log.Info("dead letter rescheduled",
			zap.Time("next_retry_at", next),
			zap.Error(analyzeErr),
		)
	}

	return counts, nil
}
