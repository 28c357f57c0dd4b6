package workers

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/sells-group/insight-engine/internal/model"
	"github.com/sells-group/insight-engine/internal/worker"
	"github.com/sells-group/insight-engine/pkg/websearch"
)

const searchSystemPrompt = `You are researching a company for a due diligence brief. Report what the company does, its products or services, customers, scale, and anything notable about its reputation. Ground every claim in the cited sources and say plainly when information cannot be found.`

// searchMaxTokens is the answer budget at standard depth.
const searchMaxTokens = 1024

// WebSearch asks a search-grounded model about the subject company. It has
// no dependencies and usually anchors the research phase.
type WebSearch struct {
	client websearch.Client
}

// NewWebSearch creates the web search worker.
func NewWebSearch(c websearch.Client) *WebSearch {
	return &WebSearch{client: c}
}

// Name implements worker.Worker.
func (w *WebSearch) Name() string { return "websearch" }

// Execute implements worker.Worker.
func (w *WebSearch) Execute(ctx context.Context, in worker.Input) (*model.Section, error) {
	req := in.Request

	query := fmt.Sprintf("Research the company %q.", req.Subject)
	if req.Website != "" {
		query += fmt.Sprintf(" Its website is %s.", req.Website)
	}
	if req.Region != "" {
		query += fmt.Sprintf(" It operates in %s.", req.Region)
	}

	answer, err := w.client.Search(ctx, query,
		websearch.WithSystemPrompt(searchSystemPrompt),
		websearch.WithMaxTokens(depthScale(req.EffectiveDepth(), searchMaxTokens)),
	)
	if err != nil {
		return nil, eris.Wrap(err, "websearch: search")
	}

	return &model.Section{
		Summary: answer.Content,
		Data: map[string]any{
			"citations": answer.Citations,
		},
		Sources: answer.Citations,
		Usage: model.TokenUsage{
			InputTokens:  answer.Usage.PromptTokens,
			OutputTokens: answer.Usage.CompletionTokens,
		},
	}, nil
}
