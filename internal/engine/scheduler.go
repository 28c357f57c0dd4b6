package engine

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sells-group/insight-engine/internal/model"
	"github.com/sells-group/insight-engine/internal/worker"
)

// Scheduler fans a phase's workers out concurrently and joins every
// outcome. The join barrier always observes exactly one result per
// spawned worker; the adapter guarantees no worker can block it past
// its budget.
type Scheduler struct {
	adapter  *worker.Adapter
	registry *worker.Registry
}

// NewScheduler creates a phase scheduler.
func NewScheduler(a *worker.Adapter, reg *worker.Registry) *Scheduler {
	return &Scheduler{adapter: a, registry: reg}
}

// RunPhase spawns every spec's worker at once and blocks until each has
// produced an outcome. A phase with no enabled workers joins immediately
// with full confidence.
func (s *Scheduler) RunPhase(ctx context.Context, phase string, specs []model.WorkerSpec, inputs map[string]worker.Input) model.PhaseResult {
	pr := model.PhaseResult{Phase: phase}
	if len(specs) == 0 {
		pr.Confidence = 1.0
		return pr
	}

	start := time.Now()
	results := make([]model.WorkerResult, len(specs))

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for i, spec := range specs {
		g.Go(func() error {
			var res model.WorkerResult
			w, err := s.registry.Get(spec.Name)
			if err != nil {
				// A roster entry without an implementation counts as a
				// failed worker, not a scheduler error.
				res = model.WorkerResult{
					Worker:  spec.Name,
					Outcome: model.OutcomeFailure,
					Error:   err.Error(),
				}
			} else {
				res = s.adapter.Run(gctx, spec, w, inputs[spec.Name])
			}
			mu.Lock()
			results[i] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	pr.Results = results
	for _, res := range results {
		switch res.Outcome {
		case model.OutcomeSuccess:
			pr.Successes++
		case model.OutcomeTimeout:
			pr.Timeouts++
		default:
			pr.Failures++
		}
	}
	if pr.Successes > 0 {
		pr.Confidence = float64(pr.Successes) / float64(pr.Observed())
	}
	pr.Duration = time.Since(start).Milliseconds()
	return pr
}
