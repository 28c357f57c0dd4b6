package worker

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/insight-engine/internal/model"
	"github.com/sells-group/insight-engine/internal/resilience"
)

// Adapter runs a worker under its wall clock budget and maps every possible
// ending to a three-way outcome. It never returns an error: a worker that
// fails, hangs, or panics still yields exactly one WorkerResult.
type Adapter struct {
	breakers *resilience.BreakerSet
}

// AdapterOption configures an Adapter.
type AdapterOption func(*Adapter)

// WithBreakers routes worker execution through per-worker circuit breakers.
func WithBreakers(bs *resilience.BreakerSet) AdapterOption {
	return func(a *Adapter) {
		a.breakers = bs
	}
}

// NewAdapter creates a worker adapter.
func NewAdapter(opts ...AdapterOption) *Adapter {
	a := &Adapter{}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type execResult struct {
	section *model.Section
	err     error
}

// Run executes w under the spec's timeout and returns its recorded outcome.
// The worker runs on its own goroutine so a hung Execute cannot stall the
// phase join; an abandoned worker's late result is discarded.
func (a *Adapter) Run(ctx context.Context, spec model.WorkerSpec, w Worker, in Input) model.WorkerResult {
	start := time.Now()
	log := zap.L().With(zap.String("worker", spec.Name), zap.String("phase", spec.Phase))

	wctx, cancel := context.WithTimeout(ctx, spec.Timeout())
	defer cancel()

	done := make(chan execResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- execResult{err: eris.Errorf("worker: %s panicked: %v", spec.Name, r)}
			}
		}()
		sec, err := a.execute(wctx, spec, w, in)
		done <- execResult{section: sec, err: err}
	}()

	res := model.WorkerResult{Worker: spec.Name}
	select {
	case <-wctx.Done():
		res.Outcome = model.OutcomeTimeout
		res.Error = wctx.Err().Error()
	case out := <-done:
		switch {
		case out.err == nil && out.section == nil:
			res.Outcome = model.OutcomeFailure
			res.Error = "worker returned no section"
		case out.err == nil:
			res.Outcome = model.OutcomeSuccess
			res.Section = out.section
			if res.Section.Worker == "" {
				res.Section.Worker = spec.Name
			}
		case errors.Is(out.err, context.DeadlineExceeded):
			res.Outcome = model.OutcomeTimeout
			res.Error = out.err.Error()
		default:
			res.Outcome = model.OutcomeFailure
			res.Error = out.err.Error()
		}
	}
	res.Duration = time.Since(start).Milliseconds()

	switch res.Outcome {
	case model.OutcomeSuccess:
		log.Debug("worker completed", zap.Int64("duration_ms", res.Duration))
	case model.OutcomeTimeout:
		log.Warn("worker timed out",
			zap.Duration("budget", spec.Timeout()),
			zap.Int64("duration_ms", res.Duration),
		)
	default:
		log.Warn("worker failed",
			zap.String("error", res.Error),
			zap.Int64("duration_ms", res.Duration),
		)
	}
	return res
}

func (a *Adapter) execute(ctx context.Context, spec model.WorkerSpec, w Worker, in Input) (*model.Section, error) {
	if a.breakers == nil {
		return w.Execute(ctx, in)
	}
	return resilience.ExecuteVal(ctx, a.breakers.For(spec.Name), func(ctx context.Context) (*model.Section, error) {
		return w.Execute(ctx, in)
	})
}
