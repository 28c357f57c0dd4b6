package engine

import (
	"errors"
	"fmt"
)

// PhaseExhaustionError is the one hard failure an analysis can produce:
// a phase ran its workers and every single one failed or timed out, so
// later phases would have nothing to build on. Exhausted requests are
// never cached; they land in the dead letter queue instead.
type PhaseExhaustionError struct {
	Phase    string
	Observed int
}

func (e *PhaseExhaustionError) Error() string {
	return fmt.Sprintf("engine: phase %s exhausted: all %d workers failed or timed out", e.Phase, e.Observed)
}

// IsPhaseExhaustion reports whether err is or wraps a PhaseExhaustionError.
func IsPhaseExhaustion(err error) bool {
	var pe *PhaseExhaustionError
	return errors.As(err, &pe)
}
