package model

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Depth selects how aggressively workers gather source material.
type Depth string

const (
	DepthQuick    Depth = "quick"
	DepthStandard Depth = "standard"
	DepthDeep     Depth = "deep"
)

// AnalysisRequest identifies a subject to analyze. Requests are immutable
// once constructed; the engine and cache only ever read them.
type AnalysisRequest struct {
	Subject string   `json:"subject"`
	Website string   `json:"website,omitempty"`
	Region  string   `json:"region,omitempty"`
	Modules []string `json:"modules,omitempty"`
	Depth   Depth    `json:"depth,omitempty"`
}

// Validate checks the request carries enough to run on.
func (r AnalysisRequest) Validate() error {
	if strings.TrimSpace(r.Subject) == "" {
		return eris.New("model: request subject is required")
	}
	switch r.Depth {
	case "", DepthQuick, DepthStandard, DepthDeep:
	default:
		return eris.Errorf("model: unknown depth %q", r.Depth)
	}
	return nil
}

// ModuleEnabled reports whether the named analysis module was requested.
// An empty module list enables everything.
func (r AnalysisRequest) ModuleEnabled(name string) bool {
	if name == "" || len(r.Modules) == 0 {
		return true
	}
	for _, m := range r.Modules {
		if strings.EqualFold(m, name) {
			return true
		}
	}
	return false
}

// EffectiveDepth resolves the default depth.
func (r AnalysisRequest) EffectiveDepth() Depth {
	if r.Depth == "" {
		return DepthStandard
	}
	return r.Depth
}
