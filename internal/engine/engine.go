// Package engine coordinates the analysis pipeline: cache resolution,
// phase scheduling, degradation policy, and report assembly.
package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/insight-engine/internal/cache"
	"github.com/sells-group/insight-engine/internal/config"
	"github.com/sells-group/insight-engine/internal/model"
	"github.com/sells-group/insight-engine/internal/resilience"
	"github.com/sells-group/insight-engine/internal/worker"
)

const dlqMaxRetries = 3

// RunStore persists run audit records and dead letter entries. All writes
// are best-effort from the engine's point of view: an unavailable store
// never fails an analysis.
type RunStore interface {
	CreateRun(ctx context.Context, req model.AnalysisRequest) (*model.Run, error)
	CompleteRun(ctx context.Context, runID string, report *model.AnalysisReport) error
	FailRun(ctx context.Context, runID, errMsg string) error
	EnqueueDeadLetter(ctx context.Context, entry *resilience.DLQEntry) error
}

// Deliverer routes a finished report onward, e.g. to a CRM or a review
// queue. Delivery failures are logged, never propagated.
type Deliverer interface {
	Deliver(ctx context.Context, report *model.AnalysisReport) error
}

// Engine runs analysis requests through the cache gateway and, on a miss,
// the phase pipeline.
type Engine struct {
	cfg      *config.Config
	roster   *worker.Roster
	registry *worker.Registry
	adapter  *worker.Adapter
	sched    *Scheduler
	cache    *cache.Gateway
	runs     RunStore
	deliver  Deliverer
	nowFunc  func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithRunStore enables run audit records and the dead letter queue.
func WithRunStore(rs RunStore) Option {
	return func(e *Engine) { e.runs = rs }
}

// WithDeliverer routes completed reports through the given deliverer.
func WithDeliverer(d Deliverer) Option {
	return func(e *Engine) { e.deliver = d }
}

// WithAdapter replaces the default worker adapter, e.g. to add circuit
// breakers.
func WithAdapter(a *worker.Adapter) Option {
	return func(e *Engine) { e.adapter = a }
}

// New creates an engine over the given roster, worker registry, and cache
// gateway.
func New(cfg *config.Config, roster *worker.Roster, reg *worker.Registry, gw *cache.Gateway, opts ...Option) *Engine {
	e := &Engine{
		cfg:      cfg,
		roster:   roster,
		registry: reg,
		adapter:  worker.NewAdapter(),
		cache:    gw,
		nowFunc:  time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.sched = NewScheduler(e.adapter, reg)
	return e
}

// Analyze resolves one analysis request. The report comes from the cache
// when a fresh equivalent exists; otherwise the phase pipeline runs under
// the overall wall clock budget. The boolean reports whether the cache
// served it.
func (e *Engine) Analyze(ctx context.Context, req model.AnalysisRequest) (*model.AnalysisReport, bool, error) {
	if err := req.Validate(); err != nil {
		return nil, false, err
	}

	if secs := e.cfg.Engine.OverallTimeoutSecs; secs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(secs)*time.Second)
		defer cancel()
	}

	return e.cache.Resolve(ctx, req, func(ctx context.Context) (*model.AnalysisReport, error) {
		return e.run(ctx, req)
	})
}

// run executes the phase pipeline for a cache miss.
func (e *Engine) run(ctx context.Context, req model.AnalysisRequest) (*model.AnalysisReport, error) {
	fp := cache.Fingerprint(req)
	log := zap.L().With(
		zap.String("component", "engine"),
		zap.String("subject", req.Subject),
		zap.String("fingerprint", shortFingerprint(fp)),
	)
	start := time.Now()
	log.Info("starting analysis",
		zap.String("depth", string(req.EffectiveDepth())),
		zap.Strings("modules", req.Modules),
	)

	runID := e.recordStart(ctx, req, log)

	col := newCollector()
	var phases []model.PhaseResult
	partial := false

	names := e.roster.PhaseNames()
	for i, phase := range names {
		specs := e.roster.SpecsFor(phase, req)
		inputs := InputsFor(specs, req, col.sections)

		pr := e.sched.RunPhase(ctx, phase, specs, inputs)
		phases = append(phases, pr)
		col.observe(pr)
		if pr.Failures > 0 || pr.Timeouts > 0 {
			partial = true
		}

		if ctx.Err() != nil {
			// The overall budget ran out mid-pipeline. The interrupted
			// phase counts like any other; phases never started are
			// recorded as timed out workers with no confidence impact.
			for _, rest := range names[i+1:] {
				col.markUnreached(rest, e.roster.SpecsFor(rest, req))
			}
			partial = true
			log.Warn("analysis budget exhausted",
				zap.String("last_phase", phase),
				zap.Int("phases_skipped", len(names)-i-1),
			)
			break
		}

		decision := Assess(pr)
		if !decision.Proceed {
			perr := &PhaseExhaustionError{Phase: phase, Observed: pr.Observed()}
			log.Error("phase exhausted, aborting",
				zap.String("phase", phase),
				zap.Int("observed", pr.Observed()),
			)
			e.recordFailure(ctx, runID, req, fp, perr)
			return nil, perr
		}

		log.Info("phase joined",
			zap.String("phase", phase),
			zap.Int("successes", pr.Successes),
			zap.Int("failures", pr.Failures),
			zap.Int("timeouts", pr.Timeouts),
			zap.Float64("confidence", pr.Confidence),
		)
	}

	report := col.buildReport(req, fp, phases, partial, e.nowFunc())
	report.Duration = time.Since(start).Milliseconds()

	e.recordComplete(ctx, runID, report, log)
	e.deliverReport(ctx, report, log)

	log.Info("analysis complete",
		zap.Float64("confidence", report.Confidence),
		zap.Bool("partial", report.Partial),
		zap.Int("sections", len(report.Sections)),
		zap.Int64("duration_ms", report.Duration),
	)
	return report, nil
}

func (e *Engine) recordStart(ctx context.Context, req model.AnalysisRequest, log *zap.Logger) string {
	if e.runs == nil {
		return ""
	}
	run, err := e.runs.CreateRun(ctx, req)
	if err != nil {
		log.Warn("run audit unavailable", zap.Error(err))
		return ""
	}
	return run.ID
}

func (e *Engine) recordComplete(ctx context.Context, runID string, report *model.AnalysisReport, log *zap.Logger) {
	if e.runs == nil || runID == "" {
		return
	}
	// The final audit write must survive the request deadline.
	if err := e.runs.CompleteRun(context.WithoutCancel(ctx), runID, report); err != nil {
		log.Warn("run audit update failed", zap.Error(err))
	}
}

func (e *Engine) recordFailure(ctx context.Context, runID string, req model.AnalysisRequest, fp string, cause *PhaseExhaustionError) {
	if e.runs == nil {
		return
	}
	if runID != "" {
		if err := e.runs.FailRun(ctx, runID, cause.Error()); err != nil {
			zap.L().Warn("run audit update failed", zap.Error(err))
		}
	}
	if !e.cfg.Engine.DeadLetter {
		return
	}

	now := e.nowFunc().UTC()
	entry := &resilience.DLQEntry{
		ID:          uuid.NewString(),
		Fingerprint: fp,
		Request:     req,
		Error:       cause.Error(),
		// Exhaustion is retryable: the workers may recover.
		ErrorType:    "transient",
		FailedPhase:  cause.Phase,
		MaxRetries:   dlqMaxRetries,
		CreatedAt:    now,
		LastFailedAt: now,
	}
	entry.NextRetryAt = now.Add(entry.RetryBackoff())

	if err := e.runs.EnqueueDeadLetter(ctx, entry); err != nil {
		zap.L().Warn("dead letter enqueue failed",
			zap.String("fingerprint", shortFingerprint(fp)),
			zap.Error(err),
		)
	}
}

func (e *Engine) deliverReport(ctx context.Context, report *model.AnalysisReport, log *zap.Logger) {
	if e.deliver == nil {
		return
	}
	if ctx.Err() != nil {
		log.Warn("skipping delivery, analysis budget exhausted")
		return
	}
	if err := e.deliver.Deliver(ctx, report); err != nil {
		log.Warn("delivery failed", zap.Error(err))
	}
}

func shortFingerprint(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}
