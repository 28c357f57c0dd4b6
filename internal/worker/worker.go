// Package worker defines the analysis worker contract and the adapter that
// shields the engine from worker misbehavior. Workers are slow, unreliable
// external calls; the adapter converts whatever they do (return, error,
// hang, panic) into exactly one recorded outcome.
package worker

import (
	"context"

	"github.com/sells-group/insight-engine/internal/model"
)

// Worker produces one report section for an analysis request.
type Worker interface {
	Name() string
	Execute(ctx context.Context, in Input) (*model.Section, error)
}

// Input carries the request plus whatever upstream sections a worker's
// declared dependencies produced. A dependency that failed or timed out
// appears in Missing instead of Upstream; workers decide for themselves
// whether to degrade or give up.
type Input struct {
	Request  model.AnalysisRequest
	Upstream map[string]*model.Section
	Missing  []string
}

// Has reports whether the named upstream section is available.
func (in Input) Has(name string) bool {
	_, ok := in.Upstream[name]
	return ok
}

// Section returns the named upstream section, or nil if unavailable.
func (in Input) Section(name string) *model.Section {
	return in.Upstream[name]
}
