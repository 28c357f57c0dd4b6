package resilience

import (
	"time"

	"github.com/sells-group/insight-engine/internal/model"
)

// DLQEntry represents an aborted analysis request parked for later retry.
// Requests land here when a phase exhausts every worker; the retry command
// drains entries whose backoff has elapsed.
type DLQEntry struct {
	ID           string                `json:"id"`
	Fingerprint  string                `json:"fingerprint"`
	Request      model.AnalysisRequest `json:"request"`
	Error        string                `json:"error"`
	ErrorType    string                `json:"error_type"` // "transient" or "permanent"
	FailedPhase  string                `json:"failed_phase,omitempty"`
	RetryCount   int                   `json:"retry_count"`
	MaxRetries   int                   `json:"max_retries"`
	NextRetryAt  time.Time             `json:"next_retry_at"`
	CreatedAt    time.Time             `json:"created_at"`
	LastFailedAt time.Time             `json:"last_failed_at"`
}

// DLQFilter specifies criteria for querying the dead letter queue.
type DLQFilter struct {
	ErrorType string `json:"error_type,omitempty"` // "transient", "permanent", or "" for all
	Due       bool   `json:"due,omitempty"`        // only entries ready to retry now
	Limit     int    `json:"limit,omitempty"`
}

// CanRetry returns true if this entry hasn't exceeded its max retry count.
func (e *DLQEntry) CanRetry() bool {
	return e.RetryCount < e.MaxRetries
}

// Due returns true if the entry is eligible to retry at the given instant.
func (e *DLQEntry) Due(now time.Time) bool {
	return e.CanRetry() && !e.NextRetryAt.After(now)
}

// RetryBackoff returns the delay before the next retry, doubling per
// attempt from one minute up to an hour.
func (e *DLQEntry) RetryBackoff() time.Duration {
	delay := time.Minute << uint(e.RetryCount)
	if delay > time.Hour {
		delay = time.Hour
	}
	return delay
}

// ClassifyError categorizes an error as "transient" or "permanent".
func ClassifyError(err error) string {
	if IsTransient(err) {
		return "transient"
	}
	return "permanent"
}
