package workers

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/insight-engine/internal/model"
	"github.com/sells-group/insight-engine/internal/worker"
	"github.com/sells-group/insight-engine/pkg/webreader"
)

// profileContentCap bounds how much page content the section carries at
// standard depth. Downstream prompts truncate further on their own.
const profileContentCap = 8000

// WebProfile reads the subject's website and carries its content into the
// report for the generative stages to draw on.
type WebProfile struct {
	reader webreader.Client
}

// NewWebProfile creates the website profile worker.
func NewWebProfile(r webreader.Client) *WebProfile {
	return &WebProfile{reader: r}
}

// Name implements worker.Worker.
func (w *WebProfile) Name() string { return "webprofile" }

// Execute implements worker.Worker.
func (w *WebProfile) Execute(ctx context.Context, in worker.Input) (*model.Section, error) {
	site := in.Request.Website
	if site == "" {
		return nil, eris.New("webprofile: request has no website")
	}

	page, err := w.reader.Read(ctx, site)
	if err != nil {
		return nil, eris.Wrap(err, "webprofile: read site")
	}

	limit := depthScale(in.Request.EffectiveDepth(), profileContentCap)
	return &model.Section{
		Summary: truncate(page.Content, limit),
		Data: map[string]any{
			"title":       page.Title,
			"read_tokens": page.Tokens,
		},
		Sources: []string{site},
	}, nil
}
