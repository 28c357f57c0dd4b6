package anthropic

import "go.uber.org/zap"

// TokenUsage counts the tokens one model call consumed.
type TokenUsage struct {
	InputTokens              int64
	OutputTokens             int64
	CacheCreationInputTokens int64
	CacheReadInputTokens     int64
}

// modelRates is USD per million tokens for the models the engine runs.
type modelRates struct {
	input  float64
	output float64
}

var modelRateTable = map[string]modelRates{
	"claude-haiku-4-5-20251001":  {input: 0.80, output: 4.00},
	"claude-sonnet-4-5-20250929": {input: 3.00, output: 15.00},
	"claude-opus-4-6":            {input: 15.00, output: 75.00},
}

// Cache writes bill at 1.25x the input rate and cache reads at 0.1x.
const (
	cacheWriteMultiplier = 1.25
	cacheReadMultiplier  = 0.10
)

// EstimateCost prices the usage against a model's published rates.
// Unknown models cost zero rather than guessing.
func (u TokenUsage) EstimateCost(model string) float64 {
	rates, ok := modelRateTable[model]
	if !ok {
		return 0
	}
	const mtok = 1e6
	cost := (float64(u.InputTokens) / mtok) * rates.input
	cost += (float64(u.OutputTokens) / mtok) * rates.output
	cost += (float64(u.CacheCreationInputTokens) / mtok) * rates.input * cacheWriteMultiplier
	cost += (float64(u.CacheReadInputTokens) / mtok) * rates.input * cacheReadMultiplier
	return cost
}

// LogCost emits one structured cost attribution line for a worker's call.
func (u TokenUsage) LogCost(model, worker string) {
	zap.L().Info("cost attribution",
		zap.String("model", model),
		zap.String("worker", worker),
		zap.Int64("input_tokens", u.InputTokens),
		zap.Int64("output_tokens", u.OutputTokens),
		zap.Int64("cache_write_tokens", u.CacheCreationInputTokens),
		zap.Int64("cache_read_tokens", u.CacheReadInputTokens),
		zap.Float64("estimated_cost_usd", u.EstimateCost(model)),
	)
}
