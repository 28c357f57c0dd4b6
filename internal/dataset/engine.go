package dataset

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/insight-engine/internal/db"
	"github.com/sells-group/insight-engine/internal/fetcher"
)

// Engine orchestrates feed sync runs.
type Engine struct {
	pool    db.Pool
	fetcher fetcher.Fetcher
	syncLog *SyncLog
	reg     *Registry
	tempDir string
}

// RunOpts configures which feeds to sync and how.
type RunOpts struct {
	Feeds []string // restrict to specific feed names
	Force bool     // ignore ShouldRun() scheduling
}

// NewEngine creates a new sync engine.
func NewEngine(pool db.Pool, f fetcher.Fetcher, syncLog *SyncLog, reg *Registry, tempDir string) *Engine {
	return &Engine{
		pool:    pool,
		fetcher: f,
		syncLog: syncLog,
		reg:     reg,
		tempDir: tempDir,
	}
}

// Run syncs each selected feed that is due per its cadence. Results are
// recorded in the sync log. A failing feed is recorded and skipped, not
// fatal to the run.
func (e *Engine) Run(ctx context.Context, opts RunOpts) error {
	log := zap.L().With(zap.String("component", "dataset.engine"))
	now := time.Now().UTC()

	feeds, err := e.reg.Select(opts.Feeds)
	if err != nil {
		return err
	}

	if len(feeds) == 0 {
		log.Info("no feeds selected")
		return nil
	}

	log.Info("selected feeds", zap.Int("count", len(feeds)))

	var synced, skipped, failed int

	for _, feed := range feeds {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		feedLog := log.With(zap.String("feed", feed.Name()))

		last, err := e.syncLog.LastSuccess(ctx, feed.Name())
		if err != nil {
			return eris.Wrapf(err, "engine: check last sync for %s", feed.Name())
		}

		if !opts.Force && !feed.ShouldRun(now, last) {
			feedLog.Debug("skipping (not due)")
			skipped++
			continue
		}

		feedLog.Info("starting sync")
		syncID, err := e.syncLog.Start(ctx, feed.Name())
		if err != nil {
			return eris.Wrapf(err, "engine: start sync log for %s", feed.Name())
		}

		start := time.Now()
		result, err := feed.Sync(ctx, e.pool, e.fetcher, e.tempDir, last)
		elapsed := time.Since(start)

		if err != nil {
			feedLog.Error("sync failed", zap.Error(err), zap.Duration("elapsed", elapsed))
			if logErr := e.syncLog.Fail(ctx, syncID, err.Error()); logErr != nil {
				feedLog.Error("failed to record sync failure", zap.Error(logErr))
			}
			failed++
			continue
		}

		if err := e.syncLog.Complete(ctx, syncID, result); err != nil {
			feedLog.Error("failed to record sync completion", zap.Error(err))
		}

		feedLog.Info("sync complete",
			zap.Int64("rows", result.RowsSynced),
			zap.Duration("elapsed", elapsed),
		)
		synced++
	}

	log.Info("engine run complete",
		zap.Int("synced", synced),
		zap.Int("skipped", skipped),
		zap.Int("failed", failed),
	)
	return nil
}
