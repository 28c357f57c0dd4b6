package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/insight-engine/internal/cache"
	"github.com/sells-group/insight-engine/internal/deliver"
	"github.com/sells-group/insight-engine/internal/engine"
	"github.com/sells-group/insight-engine/internal/resilience"
	"github.com/sells-group/insight-engine/internal/store"
	"github.com/sells-group/insight-engine/internal/worker"
	"github.com/sells-group/insight-engine/internal/workers"
	anthropicpkg "github.com/sells-group/insight-engine/pkg/anthropic"
	"github.com/sells-group/insight-engine/pkg/embedding"
	"github.com/sells-group/insight-engine/pkg/finrecords"
	"github.com/sells-group/insight-engine/pkg/notion"
	"github.com/sells-group/insight-engine/pkg/webreader"
	"github.com/sells-group/insight-engine/pkg/websearch"
)

// engineEnv holds the store, cache gateway, worker registry, and engine
// needed by the analyze/batch/serve/retry commands.
type engineEnv struct {
	Store    store.Store
	Cache    *cache.Gateway
	Engine   *engine.Engine
	Roster   *worker.Roster
	Registry *worker.Registry
	Awards   finrecords.Querier // may be nil
}

// Close releases resources held by the environment.
func (ee *engineEnv) Close() {
	if ee.Awards != nil {
		ee.Awards.Close()
	}
	if ee.Store != nil {
		_ = ee.Store.Close()
	}
}

// initEngine opens the store, builds the cache gateway and worker fleet,
// and assembles the engine. Callers should defer env.Close().
func initEngine(ctx context.Context) (*engineEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	roster, err := worker.LoadRoster(cfg.Workers.SpecFile)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	// Cache gateway. Without an embeddings key the similarity tier is off
	// and only exact fingerprint matches hit.
	var gwOpts []cache.Option
	if cfg.Embedding.Key != "" {
		emb := embedding.NewClient(cfg.Embedding.Key,
			embedding.WithBaseURL(cfg.Embedding.BaseURL),
			embedding.WithModel(cfg.Embedding.Model),
			embedding.WithDimensions(cfg.Embedding.Dimensions),
		)
		gwOpts = append(gwOpts, cache.WithEmbedder(emb))
	} else {
		zap.L().Info("embeddings not configured, similarity cache tier disabled")
	}
	if cfg.Cache.Persistent {
		gwOpts = append(gwOpts, cache.WithBackingStore(st))
	}
	gw := cache.New(cfg.Cache, gwOpts...)

	// Financial records lookups: a dedicated database when configured,
	// otherwise the shared store pool when it is Postgres.
	var awards finrecords.Querier
	if cfg.FinRecords.URL != "" {
		awards, err = finrecords.New(ctx, finrecords.Config{
			URL:                 cfg.FinRecords.URL,
			SimilarityThreshold: cfg.FinRecords.SimilarityThreshold,
			MaxCandidates:       cfg.FinRecords.MaxCandidates,
		})
		if err != nil {
			zap.L().Warn("finrecords client init failed, award matching disabled", zap.Error(err))
			awards = nil
		}
	} else if ps, ok := st.(*store.PostgresStore); ok {
		awards = finrecords.NewFromPool(ps.Pool(), finrecords.Config{
			SimilarityThreshold: cfg.FinRecords.SimilarityThreshold,
			MaxCandidates:       cfg.FinRecords.MaxCandidates,
		})
		zap.L().Info("finrecords client using shared database pool")
	}

	reg := buildWorkerRegistry(awards)
	if err := reg.Covers(roster); err != nil {
		// Not fatal: phases whose workers are missing degrade at run time.
		zap.L().Warn("roster names workers without configured clients", zap.Error(err))
	}

	adapter := worker.NewAdapter(
		worker.WithBreakers(resilience.NewBreakerSet(resilience.DefaultCircuitBreakerConfig())),
	)

	engOpts := []engine.Option{
		engine.WithRunStore(st),
		engine.WithAdapter(adapter),
	}

	if cfg.Deliver.Enabled {
		sfClient, sfErr := initSalesforce()
		if sfErr != nil {
			_ = st.Close()
			return nil, eris.Wrap(sfErr, "delivery enabled")
		}
		nc := notion.NewClient(cfg.Notion.Token)
		gate := deliver.NewGate(sfClient, nc, cfg.Notion.ReviewDB, cfg.Deliver.ReviewThreshold)
		engOpts = append(engOpts, engine.WithDeliverer(gate))
		zap.L().Info("report delivery enabled",
			zap.Float64("review_threshold", cfg.Deliver.ReviewThreshold),
		)
	}

	eng := engine.New(cfg, roster, reg, gw, engOpts...)

	return &engineEnv{
		Store:    st,
		Cache:    gw,
		Engine:   eng,
		Roster:   roster,
		Registry: reg,
		Awards:   awards,
	}, nil
}

// buildWorkerRegistry wires every built-in worker whose client is
// configured. Unconfigured clients leave their workers unregistered.
func buildWorkerRegistry(awards finrecords.Querier) *worker.Registry {
	reg := worker.NewRegistry()

	var search websearch.Client
	if cfg.WebSearch.Key != "" {
		search = websearch.NewClient(cfg.WebSearch.Key,
			websearch.WithBaseURL(cfg.WebSearch.BaseURL),
			websearch.WithModel(cfg.WebSearch.Model),
		)
	}

	var reader webreader.Client
	if cfg.WebReader.Key != "" {
		reader = webreader.NewClient(cfg.WebReader.Key,
			webreader.WithBaseURL(cfg.WebReader.BaseURL),
		)
	}

	var ai anthropicpkg.Client
	if cfg.Anthropic.Key != "" {
		ai = anthropicpkg.NewClient(cfg.Anthropic.Key)
	} else {
		zap.L().Warn("anthropic not configured, generative workers disabled")
	}

	workers.Register(reg,
		workers.Clients{Search: search, Reader: reader, Awards: awards, AI: ai},
		workers.Models{Haiku: cfg.Anthropic.HaikuModel, Sonnet: cfg.Anthropic.SonnetModel},
	)
	return reg
}
