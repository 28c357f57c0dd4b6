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

const riskPrompt = `You are assessing business risk for a due diligence brief. Weigh the research and financial assistance records provided and name concrete risk factors: financial distress signals, reputation problems, thin or contradictory public information. When an input was unavailable, treat the gap itself as a factor and lower your confidence.

Respond with ONLY valid JSON, no other text:
{"risk_level": "low|medium|high", "factors": [""], "confidence": 0.0}`

// riskAssessment is the JSON shape the risk prompt demands.
type riskAssessment struct {
	RiskLevel  string   `json:"risk_level"`
	Factors    []string `json:"factors"`
	Confidence float64  `json:"confidence"`
}

// riskInputCap bounds each upstream section fed into the prompt.
const riskInputCap = 6000

// Risk rates the subject's risk from the research and award sections.
type Risk struct {
	ai      anthropic.Client
	modelID string
}

// NewRisk creates the risk assessment worker.
func NewRisk(ai anthropic.Client, modelID string) *Risk {
	return &Risk{ai: ai, modelID: modelID}
}

// Name implements worker.Worker.
func (w *Risk) Name() string { return "risk" }

// Execute implements worker.Worker.
func (w *Risk) Execute(ctx context.Context, in worker.Input) (*model.Section, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Company: %s\n", in.Request.Subject)
	if in.Request.Region != "" {
		fmt.Fprintf(&sb, "Region: %s\n", in.Request.Region)
	}
	if s := in.Section("websearch"); s != nil {
		fmt.Fprintf(&sb, "\nWeb research:\n%s\n", truncate(s.Summary, riskInputCap))
	}
	if s := in.Section("finrecords"); s != nil {
		fmt.Fprintf(&sb, "\nFinancial assistance records:\n%s\n", truncate(s.Summary, riskInputCap))
	}
	for _, name := range in.Missing {
		fmt.Fprintf(&sb, "\nNote: %s research was unavailable for this run.\n", name)
	}

	resp, err := w.ai.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     w.modelID,
		MaxTokens: 1024,
		System:    []anthropic.SystemBlock{{Text: riskPrompt}},
		Messages:  []anthropic.Message{{Role: "user", Content: sb.String()}},
	})
	if err != nil {
		return nil, eris.Wrap(err, "risk: create message")
	}

	raw, err := extractJSON(resp.Text())
	if err != nil {
		return nil, eris.Wrap(err, "risk: parse response")
	}
	var ra riskAssessment
	if err := json.Unmarshal(raw, &ra); err != nil {
		return nil, eris.Wrap(err, "risk: unmarshal response")
	}
	ra.RiskLevel = strings.ToLower(strings.TrimSpace(ra.RiskLevel))
	if ra.RiskLevel == "" {
		return nil, eris.New("risk: response carried no risk level")
	}
	ra.Confidence = clamp01(ra.Confidence)

	data := map[string]any{
		"risk_level": ra.RiskLevel,
		"factors":    ra.Factors,
		"confidence": ra.Confidence,
	}
	if len(in.Missing) > 0 {
		data["degraded_inputs"] = in.Missing
	}

	return &model.Section{
		Summary: fmt.Sprintf("%s risk, %d factor(s) identified", ra.RiskLevel, len(ra.Factors)),
		Data:    data,
		Usage:   usageFrom(resp.Usage, w.modelID),
	}, nil
}
