package cache

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/sells-group/insight-engine/internal/config"
	"github.com/sells-group/insight-engine/internal/model"
)

// Embedder produces embedding vectors for similarity lookups. A failing
// embedder only ever costs the similarity tier; exact lookups proceed.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// BackingStore persists cache entries across restarts. All methods follow
// the store convention of returning (nil, nil) on a clean miss.
type BackingStore interface {
	GetCachedReport(ctx context.Context, fingerprint string) (*model.CacheEntry, error)
	SetCachedReport(ctx context.Context, entry *model.CacheEntry, ttl time.Duration) error
	DeleteCachedReport(ctx context.Context, fingerprint string) error
	DeleteExpiredReports(ctx context.Context) (int, error)
}

// Stats is a point-in-time snapshot of gateway activity.
type Stats struct {
	Entries        int   `json:"entries"`
	IndexEntries   int   `json:"index_entries"`
	ExactHits      int64 `json:"exact_hits"`
	SimilarityHits int64 `json:"similarity_hits"`
	Misses         int64 `json:"misses"`
	Stores         int64 `json:"stores"`
}

// Gateway fronts the orchestrator with a two-tier report cache: exact
// fingerprint matches first, then nearest-neighbor similarity over
// request embeddings. Identical concurrent requests collapse onto a
// single computation. Cache trouble of any kind degrades to
// pass-through; it never fails a request.
type Gateway struct {
	ttl             time.Duration
	threshold       float64
	janitorInterval time.Duration

	mem      *memoryStore
	index    *Index
	embedder Embedder
	backing  BackingStore
	flight   singleflight.Group
	nowFunc  func() time.Time

	exactHits   atomic.Int64
	similarHits atomic.Int64
	misses      atomic.Int64
	stores      atomic.Int64
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithEmbedder enables the similarity tier.
func WithEmbedder(e Embedder) Option {
	return func(g *Gateway) { g.embedder = e }
}

// WithBackingStore enables the durable tier.
func WithBackingStore(b BackingStore) Option {
	return func(g *Gateway) { g.backing = b }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.nowFunc = now }
}

// New creates a Gateway from config. Without options it runs exact-only
// and in-memory only.
func New(cfg config.CacheConfig, opts ...Option) *Gateway {
	g := &Gateway{
		ttl:             time.Duration(cfg.TTLSecs) * time.Second,
		threshold:       cfg.SimilarityThreshold,
		janitorInterval: time.Duration(cfg.JanitorIntervalSecs) * time.Second,
		index:           NewIndex(),
		nowFunc:         time.Now,
	}
	if g.ttl <= 0 {
		g.ttl = time.Hour
	}
	if g.threshold <= 0 {
		g.threshold = 0.95
	}
	for _, opt := range opts {
		opt(g)
	}
	g.mem = newMemoryStore(cfg.MaxEntries, g.nowFunc)
	return g
}

// Resolve is the primary entry point: look the request up, and on a miss
// run compute exactly once per fingerprint no matter how many identical
// callers arrive concurrently. Every caller receives the same report or
// the same error. Reports are cached on the way out; errors never are.
func (g *Gateway) Resolve(ctx context.Context, req model.AnalysisRequest, compute func(context.Context) (*model.AnalysisReport, error)) (*model.AnalysisReport, bool, error) {
	fp := Fingerprint(req)

	report, vec, ok := g.lookup(ctx, fp, req)
	if ok {
		return report, true, nil
	}

	v, err, _ := g.flight.Do(fp, func() (any, error) {
		// A store may have landed while this caller queued behind the flight.
		if entry, found := g.mem.get(fp); found {
			return entry.Report, nil
		}
		computed, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		g.put(ctx, fp, vec, computed)
		return computed, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.(*model.AnalysisReport), false, nil
}

// Lookup checks both cache tiers without computing anything.
func (g *Gateway) Lookup(ctx context.Context, req model.AnalysisRequest) (*model.AnalysisReport, bool) {
	report, _, ok := g.lookup(ctx, Fingerprint(req), req)
	return report, ok
}

// Store caches a finished report under the request's fingerprint.
func (g *Gateway) Store(ctx context.Context, req model.AnalysisRequest, report *model.AnalysisReport) {
	fp := Fingerprint(req)
	g.put(ctx, fp, g.embed(ctx, req), report)
}

// GetReport fetches a cached report by fingerprint, exact tiers only.
func (g *Gateway) GetReport(ctx context.Context, fingerprint string) (*model.AnalysisReport, bool) {
	if entry, ok := g.mem.get(fingerprint); ok {
		return entry.Report, true
	}
	if g.backing != nil {
		entry, err := g.backing.GetCachedReport(ctx, fingerprint)
		if err != nil {
			zap.L().Warn("cache: backing store lookup failed", zap.Error(err))
		} else if entry != nil && !entry.Expired(g.nowFunc()) {
			g.mem.put(entry)
			g.index.Upsert(fingerprint, entry.Embedding)
			return entry.Report, true
		}
	}
	return nil, false
}

// Invalidate drops a fingerprint from every tier.
func (g *Gateway) Invalidate(ctx context.Context, fingerprint string) error {
	g.mem.delete(fingerprint)
	g.index.Remove(fingerprint)
	if g.backing != nil {
		if err := g.backing.DeleteCachedReport(ctx, fingerprint); err != nil {
			return eris.Wrapf(err, "cache: invalidate %s", shortFP(fingerprint))
		}
	}
	return nil
}

// Purge clears the in-memory tiers and removes expired persisted entries.
// It returns how many persisted entries were removed.
func (g *Gateway) Purge(ctx context.Context) (int, error) {
	g.mem.clear()
	g.index.Clear()
	if g.backing == nil {
		return 0, nil
	}
	n, err := g.backing.DeleteExpiredReports(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "cache: purge backing store")
	}
	return n, nil
}

// Stats snapshots gateway counters.
func (g *Gateway) Stats() Stats {
	return Stats{
		Entries:        g.mem.len(),
		IndexEntries:   g.index.Len(),
		ExactHits:      g.exactHits.Load(),
		SimilarityHits: g.similarHits.Load(),
		Misses:         g.misses.Load(),
		Stores:         g.stores.Load(),
	}
}

// RunJanitor sweeps expired entries on an interval until ctx is cancelled.
func (g *Gateway) RunJanitor(ctx context.Context) {
	interval := g.janitorInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	log := zap.L().With(zap.String("component", "cache.janitor"))
	log.Info("starting cache janitor", zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("cache janitor stopped")
			return
		case <-ticker.C:
			g.sweep(ctx, log)
		}
	}
}

func (g *Gateway) sweep(ctx context.Context, log *zap.Logger) {
	removed := g.mem.sweep()
	for _, fp := range removed {
		g.index.Remove(fp)
	}

	persisted := 0
	if g.backing != nil {
		n, err := g.backing.DeleteExpiredReports(ctx)
		if err != nil {
			log.Warn("cache: expired report cleanup failed", zap.Error(err))
		} else {
			persisted = n
		}
	}
	if len(removed) > 0 || persisted > 0 {
		log.Debug("cache janitor sweep",
			zap.Int("memory_removed", len(removed)),
			zap.Int("persisted_removed", persisted),
		)
	}
}

// lookup checks exact memory, then the backing store, then similarity.
// It returns any embedding it computed so a following store can reuse it.
func (g *Gateway) lookup(ctx context.Context, fp string, req model.AnalysisRequest) (*model.AnalysisReport, []float32, bool) {
	if entry, ok := g.mem.get(fp); ok {
		g.exactHits.Add(1)
		zap.L().Debug("cache exact hit", zap.String("fingerprint", shortFP(fp)))
		return entry.Report, nil, true
	}

	if g.backing != nil {
		entry, err := g.backing.GetCachedReport(ctx, fp)
		switch {
		case err != nil:
			zap.L().Warn("cache: backing store lookup failed", zap.Error(err))
		case entry != nil && !entry.Expired(g.nowFunc()):
			g.mem.put(entry)
			g.index.Upsert(fp, entry.Embedding)
			g.exactHits.Add(1)
			zap.L().Debug("cache exact hit from backing store", zap.String("fingerprint", shortFP(fp)))
			return entry.Report, nil, true
		}
	}

	vec := g.embed(ctx, req)
	if vec != nil {
		if nearFP, sim, ok := g.index.Nearest(vec); ok && sim >= g.threshold {
			if entry, found := g.mem.get(nearFP); found {
				g.similarHits.Add(1)
				zap.L().Debug("cache similarity hit",
					zap.String("fingerprint", shortFP(fp)),
					zap.String("matched", shortFP(nearFP)),
					zap.Float64("similarity", sim),
				)
				return entry.Report, vec, true
			}
			// Index pointed at an entry the exact tier no longer holds.
			g.index.Remove(nearFP)
		}
	}

	g.misses.Add(1)
	return nil, vec, false
}

// put writes an entry into every available tier. vec may be nil, in
// which case the entry is findable by exact fingerprint only.
func (g *Gateway) put(ctx context.Context, fp string, vec []float32, report *model.AnalysisReport) {
	now := g.nowFunc()
	entry := &model.CacheEntry{
		Fingerprint: fp,
		Embedding:   vec,
		Report:      report,
		CreatedAt:   now,
		ExpiresAt:   now.Add(g.ttl),
	}

	g.mem.put(entry)
	if len(vec) > 0 {
		g.index.Upsert(fp, vec)
	}
	if g.backing != nil {
		if err := g.backing.SetCachedReport(ctx, entry, g.ttl); err != nil {
			zap.L().Warn("cache: backing store write failed", zap.Error(err))
		}
	}
	g.stores.Add(1)
}

func (g *Gateway) embed(ctx context.Context, req model.AnalysisRequest) []float32 {
	if g.embedder == nil {
		return nil
	}
	vec, err := g.embedder.Embed(ctx, Canonical(req))
	if err != nil {
		zap.L().Warn("cache: embedding unavailable, exact-only lookup", zap.Error(err))
		return nil
	}
	return vec
}

func shortFP(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}
