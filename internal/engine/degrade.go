package engine

import "github.com/sells-group/insight-engine/internal/model"

// Decision is the degradation policy's verdict on a joined phase.
type Decision struct {
	Proceed    bool
	Multiplier float64
}

// Assess renders the proceed-or-abort verdict for a joined phase. A phase
// with zero successes among its observed workers aborts the analysis; any
// success at all proceeds, discounting downstream confidence by the
// fraction of workers that delivered. A phase that spawned no workers is
// vacuously fine.
func Assess(pr model.PhaseResult) Decision {
	observed := pr.Observed()
	if observed == 0 {
		return Decision{Proceed: true, Multiplier: 1.0}
	}
	if pr.Successes == 0 {
		return Decision{Proceed: false}
	}
	return Decision{Proceed: true, Multiplier: float64(pr.Successes) / float64(observed)}
}

// CombineConfidence folds per-phase multipliers into the report's overall
// confidence, clamped to [0, 1].
func CombineConfidence(multipliers []float64) float64 {
	c := 1.0
	for _, m := range multipliers {
		c *= m
	}
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
