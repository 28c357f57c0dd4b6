// Package store persists run audit records, cached reports, and the dead
// letter queue. Two implementations exist: SQLite for single-node
// deployments and Postgres for shared ones. Cache reads return (nil, nil)
// on a clean miss so callers can distinguish absence from failure.
package store

import (
	"context"
	"time"

	"github.com/sells-group/insight-engine/internal/model"
	"github.com/sells-group/insight-engine/internal/resilience"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status       model.RunStatus `json:"status,omitempty"`
	Subject      string          `json:"subject,omitempty"`
	CreatedAfter time.Time       `json:"created_after,omitempty"`
	Limit        int             `json:"limit,omitempty"`
	Offset       int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for the analysis engine.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, req model.AnalysisRequest) (*model.Run, error)
	CompleteRun(ctx context.Context, runID string, report *model.AnalysisReport) error
	FailRun(ctx context.Context, runID, errMsg string) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Report cache
	GetCachedReport(ctx context.Context, fingerprint string) (*model.CacheEntry, error)
	SetCachedReport(ctx context.Context, entry *model.CacheEntry, ttl time.Duration) error
	DeleteCachedReport(ctx context.Context, fingerprint string) error
	DeleteExpiredReports(ctx context.Context) (int, error)
	ListCachedReports(ctx context.Context, limit int) ([]model.CacheEntry, error)

	// Dead letter queue
	EnqueueDeadLetter(ctx context.Context, entry *resilience.DLQEntry) error
	ListDeadLetters(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error)
	MarkDeadLetterRetry(ctx context.Context, id string, nextRetryAt time.Time, lastErr string) error
	RemoveDeadLetter(ctx context.Context, id string) error
	CountDeadLetters(ctx context.Context) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open picks the implementation named by driver: "postgres" (any
// postgres:// URL) or "sqlite" (a file path).
func Open(ctx context.Context, driver, url string, poolCfg *PoolConfig) (Store, error) {
	if driver == "postgres" {
		return NewPostgres(ctx, url, poolCfg)
	}
	return NewSQLite(url)
}
