package model

import "time"

// Outcome classifies how a worker invocation ended.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeTimeout Outcome = "timeout"
)

// WorkerSpec is the static declaration of one analysis worker: which phase
// it runs in, its wall clock budget, and which earlier workers it reads
// from. Specs are loaded at startup and never mutated afterward.
type WorkerSpec struct {
	Name        string   `yaml:"name" json:"name"`
	Phase       string   `yaml:"phase" json:"phase"`
	Module      string   `yaml:"module,omitempty" json:"module,omitempty"`
	TimeoutSecs int      `yaml:"timeout_secs" json:"timeout_secs"`
	DependsOn   []string `yaml:"depends_on,omitempty" json:"depends_on,omitempty"`
}

// Timeout returns the per-invocation wall clock budget.
func (s WorkerSpec) Timeout() time.Duration {
	if s.TimeoutSecs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(s.TimeoutSecs) * time.Second
}

// Section is the payload a successful worker contributes to the report.
type Section struct {
	Worker  string         `json:"worker"`
	Summary string         `json:"summary,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
	Sources []string       `json:"sources,omitempty"`
	Usage   TokenUsage     `json:"token_usage"`
}

// WorkerResult records one observed worker outcome. Exactly one is
// produced per spawned worker, whatever happened inside it.
type WorkerResult struct {
	Worker   string   `json:"worker"`
	Outcome  Outcome  `json:"outcome"`
	Section  *Section `json:"section,omitempty"`
	Error    string   `json:"error,omitempty"`
	Duration int64    `json:"duration_ms"`
}

// PhaseResult tallies every worker outcome observed at a phase join.
type PhaseResult struct {
	Phase      string         `json:"phase"`
	Results    []WorkerResult `json:"results"`
	Successes  int            `json:"successes"`
	Failures   int            `json:"failures"`
	Timeouts   int            `json:"timeouts"`
	Confidence float64        `json:"confidence"`
	Duration   int64          `json:"duration_ms"`
}

// Observed returns how many worker outcomes the phase join collected.
func (p PhaseResult) Observed() int {
	return p.Successes + p.Failures + p.Timeouts
}
