package workers

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/insight-engine/internal/model"
	"github.com/sells-group/insight-engine/internal/worker"
	"github.com/sells-group/insight-engine/pkg/anthropic"
)

const synthesisPrompt = `You are writing the final brief of a company analysis. Weave the sections provided into a concise narrative: what the company does, how it makes money, its financial assistance history, and the key risks. Note gaps explicitly instead of guessing around them. Respond with the brief only, no preamble.`

// synthesisMaxTokens is the brief budget at standard depth.
const synthesisMaxTokens = 2048

// synthesisInputCap bounds each upstream section fed into the prompt.
const synthesisInputCap = 8000

// Synthesis writes the final narrative from whatever sections survived the
// earlier phases. With no surviving input there is nothing to write from,
// so it fails rather than hallucinate a brief.
type Synthesis struct {
	ai      anthropic.Client
	modelID string
}

// NewSynthesis creates the synthesis worker.
func NewSynthesis(ai anthropic.Client, modelID string) *Synthesis {
	return &Synthesis{ai: ai, modelID: modelID}
}

// Name implements worker.Worker.
func (w *Synthesis) Name() string { return "synthesis" }

// Execute implements worker.Worker.
func (w *Synthesis) Execute(ctx context.Context, in worker.Input) (*model.Section, error) {
	if len(in.Upstream) == 0 {
		return nil, eris.New("synthesis: no upstream sections to write from")
	}

	// Sort upstream names so the prompt is stable for the prompt cache.
	names := make([]string, 0, len(in.Upstream))
	for name := range in.Upstream {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	fmt.Fprintf(&sb, "Company: %s\n", in.Request.Subject)
	if in.Request.Website != "" {
		fmt.Fprintf(&sb, "Website: %s\n", in.Request.Website)
	}
	if in.Request.Region != "" {
		fmt.Fprintf(&sb, "Region: %s\n", in.Request.Region)
	}
	for _, name := range names {
		fmt.Fprintf(&sb, "\n## %s\n%s\n", name, truncate(in.Upstream[name].Summary, synthesisInputCap))
	}
	for _, name := range in.Missing {
		fmt.Fprintf(&sb, "\nNote: the %s section was unavailable for this run.\n", name)
	}

	resp, err := w.ai.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     w.modelID,
		MaxTokens: int64(depthScale(in.Request.EffectiveDepth(), synthesisMaxTokens)),
		System:    anthropic.BuildCachedSystemBlocks(synthesisPrompt),
		Messages:  []anthropic.Message{{Role: "user", Content: sb.String()}},
	})
	if err != nil {
		return nil, eris.Wrap(err, "synthesis: create message")
	}

	brief := strings.TrimSpace(resp.Text())
	if brief == "" {
		return nil, eris.New("synthesis: response carried no text")
	}

	data := map[string]any{
		"sections_used": names,
	}
	if len(in.Missing) > 0 {
		data["degraded_inputs"] = in.Missing
	}

	return &model.Section{
		Summary: brief,
		Data:    data,
		Usage:   usageFrom(resp.Usage, w.modelID),
	}, nil
}
