package engine

import (
	"time"

	"github.com/google/uuid"

	"github.com/sells-group/insight-engine/internal/model"
	"github.com/sells-group/insight-engine/internal/worker"
)

// InputsFor builds each worker's input from the sections earlier phases
// produced. A declared dependency with no section lands in Missing so the
// worker can decide whether to degrade or give up.
func InputsFor(specs []model.WorkerSpec, req model.AnalysisRequest, sections map[string]*model.Section) map[string]worker.Input {
	inputs := make(map[string]worker.Input, len(specs))
	for _, spec := range specs {
		in := worker.Input{Request: req}
		for _, dep := range spec.DependsOn {
			if sec, ok := sections[dep]; ok {
				if in.Upstream == nil {
					in.Upstream = make(map[string]*model.Section)
				}
				in.Upstream[dep] = sec
			} else {
				in.Missing = append(in.Missing, dep)
			}
		}
		inputs[spec.Name] = in
	}
	return inputs
}

// collector accumulates worker outcomes across phases into the material
// the final report is assembled from.
type collector struct {
	sections map[string]*model.Section
	failures []model.WorkerError
	usage    model.TokenUsage
}

func newCollector() *collector {
	return &collector{sections: make(map[string]*model.Section)}
}

// observe folds one joined phase into the running totals.
func (c *collector) observe(pr model.PhaseResult) {
	for _, res := range pr.Results {
		switch res.Outcome {
		case model.OutcomeSuccess:
			c.sections[res.Worker] = res.Section
			c.usage.Add(res.Section.Usage)
		default:
			c.failures = append(c.failures, model.WorkerError{
				Worker:  res.Worker,
				Phase:   pr.Phase,
				Outcome: res.Outcome,
				Message: res.Error,
			})
		}
	}
}

// markUnreached records the workers of phases the analysis never started
// because its overall budget ran out first.
func (c *collector) markUnreached(phase string, specs []model.WorkerSpec) {
	for _, spec := range specs {
		c.failures = append(c.failures, model.WorkerError{
			Worker:  spec.Name,
			Phase:   phase,
			Outcome: model.OutcomeTimeout,
			Message: "analysis budget exhausted before phase started",
		})
	}
}

// buildReport assembles the composite report from everything observed.
func (c *collector) buildReport(req model.AnalysisRequest, fingerprint string, phases []model.PhaseResult, partial bool, generatedAt time.Time) *model.AnalysisReport {
	multipliers := make([]float64, 0, len(phases))
	for _, pr := range phases {
		multipliers = append(multipliers, pr.Confidence)
	}

	return &model.AnalysisReport{
		ID:          uuid.NewString(),
		Fingerprint: fingerprint,
		Request:     req,
		Sections:    c.sections,
		Phases:      phases,
		Confidence:  CombineConfidence(multipliers),
		Partial:     partial,
		Failures:    c.failures,
		Usage:       c.usage,
		GeneratedAt: generatedAt.UTC(),
	}
}
