package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/insight-engine/internal/model"
	"github.com/sells-group/insight-engine/internal/worker"
	"github.com/sells-group/insight-engine/pkg/anthropic"
)

const classifyPrompt = `You are classifying a company for a due diligence brief. From the research provided, determine the company's industry, business model, and the closest NAICS code. If the research is thin, classify anyway and lower your confidence.

Respond with ONLY valid JSON, no other text:
{"industry": "", "sub_industry": "", "business_model": "b2b|b2c|b2g|mixed", "naics_code": "", "confidence": 0.0}`

// classification is the JSON shape the classify prompt demands.
type classification struct {
	Industry      string  `json:"industry"`
	SubIndustry   string  `json:"sub_industry"`
	BusinessModel string  `json:"business_model"`
	NAICSCode     string  `json:"naics_code"`
	Confidence    float64 `json:"confidence"`
}

// classifyInputCap bounds each upstream section fed into the prompt.
const classifyInputCap = 6000

// Classify determines industry and business model from the research
// sections. It runs on the cheap model; a wrong guess here only skews
// framing, not facts.
type Classify struct {
	ai      anthropic.Client
	modelID string
}

// NewClassify creates the classification worker.
func NewClassify(ai anthropic.Client, modelID string) *Classify {
	return &Classify{ai: ai, modelID: modelID}
}

// Name implements worker.Worker.
func (w *Classify) Name() string { return "classify" }

// Execute implements worker.Worker.
func (w *Classify) Execute(ctx context.Context, in worker.Input) (*model.Section, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Company: %s\n", in.Request.Subject)
	if in.Request.Website != "" {
		fmt.Fprintf(&sb, "Website: %s\n", in.Request.Website)
	}
	if s := in.Section("websearch"); s != nil {
		fmt.Fprintf(&sb, "\nWeb research:\n%s\n", truncate(s.Summary, classifyInputCap))
	}
	if s := in.Section("webprofile"); s != nil {
		fmt.Fprintf(&sb, "\nWebsite content:\n%s\n", truncate(s.Summary, classifyInputCap))
	}
	for _, name := range in.Missing {
		fmt.Fprintf(&sb, "\nNote: %s research was unavailable for this run.\n", name)
	}

	resp, err := w.ai.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     w.modelID,
		MaxTokens: 512,
		System:    []anthropic.SystemBlock{{Text: classifyPrompt}},
		Messages:  []anthropic.Message{{Role: "user", Content: sb.String()}},
	})
	if err != nil {
		return nil, eris.Wrap(err, "classify: create message")
	}

	raw, err := extractJSON(resp.Text())
	if err != nil {
		return nil, eris.Wrap(err, "classify: parse response")
	}
	var c classification
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, eris.Wrap(err, "classify: unmarshal response")
	}
	if c.Industry == "" {
		return nil, eris.New("classify: response carried no industry")
	}
	c.Confidence = clamp01(c.Confidence)

	summary := c.Industry
	if c.BusinessModel != "" {
		summary = fmt.Sprintf("%s (%s)", c.Industry, c.BusinessModel)
	}

	return &model.Section{
		Summary: summary,
		Data: map[string]any{
			"industry":       c.Industry,
			"sub_industry":   c.SubIndustry,
			"business_model": c.BusinessModel,
			"naics_code":     c.NAICSCode,
			"confidence":     c.Confidence,
		},
		Usage: usageFrom(resp.Usage, w.modelID),
	}, nil
}
