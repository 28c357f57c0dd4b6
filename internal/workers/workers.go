// Package workers holds the built-in analysis workers: the external
// research calls (web search, site reading, award records) and the
// generative stages (classification, risk, synthesis) that build on them.
// Each worker produces one report section; the engine's adapter handles
// timeouts and panics, so workers only deal with their own failures.
package workers

import (
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/insight-engine/internal/model"
	"github.com/sells-group/insight-engine/pkg/anthropic"
)

// truncate caps s at n bytes so upstream content cannot blow out a prompt.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// depthScale adjusts a standard-depth budget for the requested depth.
func depthScale(d model.Depth, base int) int {
	switch d {
	case model.DepthQuick:
		return base / 2
	case model.DepthDeep:
		return base * 2
	default:
		return base
	}
}

// extractJSON pulls the first JSON object out of a model response. Claude
// is prompted for bare JSON but occasionally wraps it in prose anyway.
func extractJSON(text string) ([]byte, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, eris.Errorf("no JSON object in response: %s", truncate(text, 200))
	}
	return []byte(text[start : end+1]), nil
}

// usageFrom converts API token counts into report usage with estimated cost.
func usageFrom(u anthropic.TokenUsage, modelID string) model.TokenUsage {
	return model.TokenUsage{
		InputTokens:         int(u.InputTokens),
		OutputTokens:        int(u.OutputTokens),
		CacheCreationTokens: int(u.CacheCreationInputTokens),
		CacheReadTokens:     int(u.CacheReadInputTokens),
		Cost:                u.EstimateCost(modelID),
	}
}

// clamp01 bounds a model-reported confidence to [0, 1].
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
