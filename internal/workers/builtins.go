package workers

import (
	"github.com/sells-group/insight-engine/internal/worker"
	"github.com/sells-group/insight-engine/pkg/anthropic"
	"github.com/sells-group/insight-engine/pkg/finrecords"
	"github.com/sells-group/insight-engine/pkg/webreader"
	"github.com/sells-group/insight-engine/pkg/websearch"
)

// Clients bundles the external services the built-in workers call.
type Clients struct {
	Search websearch.Client
	Reader webreader.Client
	Awards finrecords.Querier
	AI     anthropic.Client
}

// Models selects which generative model each stage runs on. Classification
// and risk use the cheap model; synthesis gets the strong one.
type Models struct {
	Haiku  string
	Sonnet string
}

// Register wires every built-in worker whose client is configured into the
// registry. A nil client leaves its workers unregistered, and the roster
// check at startup reports any that the run plan still names.
func Register(reg *worker.Registry, c Clients, m Models) {
	if c.Search != nil {
		reg.Register(NewWebSearch(c.Search))
	}
	if c.Reader != nil {
		reg.Register(NewWebProfile(c.Reader))
	}
	if c.Awards != nil {
		reg.Register(NewFinRecords(c.Awards))
	}
	if c.AI != nil {
		reg.Register(NewClassify(c.AI, m.Haiku))
		reg.Register(NewRisk(c.AI, m.Haiku))
		reg.Register(NewSynthesis(c.AI, m.Sonnet))
	}
}
