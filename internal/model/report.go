package model

import "time"

// WorkerError describes one failed or timed out worker in a report.
type WorkerError struct {
	Worker  string  `json:"worker"`
	Phase   string  `json:"phase"`
	Outcome Outcome `json:"outcome"`
	Message string  `json:"message,omitempty"`
}

// AnalysisReport is the composite result of one analysis. Partial reports
// carry at least one entry in Failures and a confidence strictly below
// what the same request would have scored with every worker succeeding.
type AnalysisReport struct {
	ID          string              `json:"id"`
	Fingerprint string              `json:"fingerprint"`
	Request     AnalysisRequest     `json:"request"`
	Sections    map[string]*Section `json:"sections"`
	Phases      []PhaseResult       `json:"phases"`
	Confidence  float64             `json:"confidence"`
	Partial     bool                `json:"partial"`
	Failures    []WorkerError       `json:"failures,omitempty"`
	Usage       TokenUsage          `json:"token_usage"`
	GeneratedAt time.Time           `json:"generated_at"`
	Duration    int64               `json:"duration_ms"`
}

// CacheEntry wraps a report for cache storage alongside its lookup keys.
type CacheEntry struct {
	Fingerprint string          `json:"fingerprint"`
	Embedding   []float32       `json:"embedding,omitempty"`
	Report      *AnalysisReport `json:"report"`
	CreatedAt   time.Time       `json:"created_at"`
	ExpiresAt   time.Time       `json:"expires_at"`
}

// Expired reports whether the entry is past its TTL at the given instant.
func (e CacheEntry) Expired(now time.Time) bool {
	return !e.ExpiresAt.After(now)
}

// TokenUsage accumulates generative model token consumption.
type TokenUsage struct {
	InputTokens         int     `json:"input_tokens"`
	OutputTokens        int     `json:"output_tokens"`
	CacheCreationTokens int     `json:"cache_creation_tokens"`
	CacheReadTokens     int     `json:"cache_read_tokens"`
	Cost                float64 `json:"cost"`
}

// Add merges token usage from another instance.
func (t *TokenUsage) Add(other TokenUsage) {
	t.InputTokens += other.InputTokens
	t.OutputTokens += other.OutputTokens
	t.CacheCreationTokens += other.CacheCreationTokens
	t.CacheReadTokens += other.CacheReadTokens
	t.Cost += other.Cost
}
