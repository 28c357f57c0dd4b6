package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/insight-engine/internal/cache"
	"github.com/sells-group/insight-engine/internal/dataset"
	"github.com/sells-group/insight-engine/internal/model"
	"github.com/sells-group/insight-engine/internal/store"
)

// MetricsSnapshot holds a point-in-time view of system health.
type MetricsSnapshot struct {
	// Run metrics (within lookback window).
	RunsTotal     int     `json:"runs_total"`
	RunsComplete  int     `json:"runs_complete"`
	RunsPartial   int     `json:"runs_partial"`
	RunsFailed    int     `json:"runs_failed"`
	RunsQueued    int     `json:"runs_queued"`
	RunFailRate   float64 `json:"run_fail_rate"`
	CostUSD       float64 `json:"cost_usd"`
	TokensUsed    int     `json:"tokens_used"`
	AvgConfidence float64 `json:"avg_confidence"`

	// Feed sync metrics (within lookback window).
	FeedSyncTotal    int `json:"feed_sync_total"`
	FeedSyncComplete int `json:"feed_sync_complete"`
	FeedSyncFailed   int `json:"feed_sync_failed"`
	FeedSyncRunning  int `json:"feed_sync_running"`

	// Report cache counters (process lifetime, not windowed).
	CacheEntries        int     `json:"cache_entries"`
	CacheExactHits      int64   `json:"cache_exact_hits"`
	CacheSimilarityHits int64   `json:"cache_similarity_hits"`
	CacheMisses         int64   `json:"cache_misses"`
	CacheLookups        int64   `json:"cache_lookups"`
	CacheHitRate        float64 `json:"cache_hit_rate"`

	// Dead letter queue depth.
	DLQDepth int `json:"dlq_depth"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// SyncLogQuerier abstracts the dataset SyncLog methods needed by the collector.
type SyncLogQuerier interface {
	ListAll(ctx context.Context) ([]dataset.SyncEntry, error)
}

// StatsSource reports cache gateway counters. *cache.Gateway satisfies it.
type StatsSource interface {
	Stats() cache.Stats
}

// Collector gathers metrics from the store, the sync log, and the cache gateway.
type Collector struct {
	store   store.Store
	syncLog SyncLogQuerier
	cache   StatsSource
}

// NewCollector creates a new metrics collector. syncLog and cacheStats may
// be nil; the corresponding snapshot sections stay zero.
func NewCollector(st store.Store, syncLog SyncLogQuerier, cacheStats StatsSource) *Collector {
	return &Collector{store: st, syncLog: syncLog, cache: cacheStats}
}

// Collect gathers a snapshot of system metrics over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   time.Now().UTC(),
	}

	cutoff := time.Now().UTC().Add(-time.Duration(lookbackHours) * time.Hour)

	runs, err := c.store.ListRuns(ctx, store.RunFilter{
		CreatedAfter: cutoff,
		Limit:        10000,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	snap.RunsTotal = len(runs)
	var totalCost float64
	var totalConfidence float64
	var totalTokens int
	var scoredRuns int

	for _, r := range runs {
		switch r.Status {
		case model.RunStatusComplete:
			snap.RunsComplete++
		case model.RunStatusPartial:
			snap.RunsPartial++
		case model.RunStatusFailed:
			snap.RunsFailed++
		case model.RunStatusQueued:
			snap.RunsQueued++
		}
		if r.Report != nil {
			totalCost += r.Report.Usage.Cost
			totalTokens += r.Report.Usage.InputTokens + r.Report.Usage.OutputTokens
			if r.Report.Confidence > 0 {
				totalConfidence += r.Report.Confidence
				scoredRuns++
			}
		}
	}

	snap.CostUSD = totalCost
	snap.TokensUsed = totalTokens
	finished := snap.RunsComplete + snap.RunsPartial + snap.RunsFailed
	if finished > 0 {
		snap.RunFailRate = float64(snap.RunsFailed) / float64(finished)
	}
	if scoredRuns > 0 {
		snap.AvgConfidence = totalConfidence / float64(scoredRuns)
	}

	if c.syncLog != nil {
		entries, err := c.syncLog.ListAll(ctx)
		if err != nil {
			return nil, eris.Wrap(err, "monitoring: list sync entries")
		}
		for _, e := range entries {
			if e.StartedAt.Before(cutoff) {
				continue
			}
			snap.FeedSyncTotal++
			switch e.Status {
			case "complete":
				snap.FeedSyncComplete++
			case "failed":
				snap.FeedSyncFailed++
			case "running":
				snap.FeedSyncRunning++
			}
		}
	}

	if c.cache != nil {
		stats := c.cache.Stats()
		snap.CacheEntries = stats.Entries
		snap.CacheExactHits = stats.ExactHits
		snap.CacheSimilarityHits = stats.SimilarityHits
		snap.CacheMisses = stats.Misses
		snap.CacheLookups = stats.ExactHits + stats.SimilarityHits + stats.Misses
		if snap.CacheLookups > 0 {
			hits := stats.ExactHits + stats.SimilarityHits
			snap.CacheHitRate = float64(hits) / float64(snap.CacheLookups)
		}
	}

	dlqCount, err := c.store.CountDeadLetters(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: count dead letters")
	}
	snap.DLQDepth = dlqCount

	return snap, nil
}
