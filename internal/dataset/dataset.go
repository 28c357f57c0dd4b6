// Package dataset syncs financial award record feeds into Postgres. Feeds
// declare a cadence and know how to download and load themselves; the Engine
// decides which feeds are due and records outcomes in fin_data.sync_log.
package dataset

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/insight-engine/internal/db"
	"github.com/sells-group/insight-engine/internal/fetcher"
)

// Cadence describes how often a feed is updated upstream.
type Cadence string

const (
	Daily     Cadence = "daily"
	Weekly    Cadence = "weekly"
	Monthly   Cadence = "monthly"
	Quarterly Cadence = "quarterly"
)

// Feed defines the interface each record feed must implement.
type Feed interface {
	// Name returns the unique identifier for this feed (e.g., "awards").
	Name() string

	// Table returns the primary target table (e.g., "fin_data.award_records").
	Table() string

	// Cadence returns how often this feed is updated upstream.
	Cadence() Cadence

	// ShouldRun decides if this feed needs syncing given the current time and
	// the most recent successful sync (nil if never synced).
	ShouldRun(now time.Time, last *SyncEntry) bool

	// Sync downloads, parses, and loads the feed into Postgres. last carries
	// the previous successful sync so a feed can short-circuit when the
	// upstream file is unchanged. tempDir is a working directory for
	// temporary files.
	Sync(ctx context.Context, pool db.Pool, f fetcher.Fetcher, tempDir string, last *SyncEntry) (*SyncResult, error)
}

// Registry maps feed names to their implementations.
type Registry struct {
	feeds map[string]Feed
	order []string // insertion order for deterministic iteration
}

// NewRegistry creates an empty feed registry.
func NewRegistry() *Registry {
	return &Registry{feeds: make(map[string]Feed)}
}

// Register adds a feed to the registry.
func (r *Registry) Register(f Feed) {
	name := f.Name()
	r.feeds[name] = f
	r.order = append(r.order, name)
}

// Get returns a feed by name.
func (r *Registry) Get(name string) (Feed, error) {
	f, ok := r.feeds[name]
	if !ok {
		return nil, eris.Errorf("dataset: unknown feed %q", name)
	}
	return f, nil
}

// Select returns the named feeds, or all feeds when names is empty.
func (r *Registry) Select(names []string) ([]Feed, error) {
	if len(names) == 0 {
		return r.All(), nil
	}
	var result []Feed
	for _, name := range names {
		f, err := r.Get(name)
		if err != nil {
			return nil, err
		}
		result = append(result, f)
	}
	return result, nil
}

// All returns all feeds in registration order.
func (r *Registry) All() []Feed {
	result := make([]Feed, 0, len(r.order))
	for _, name := range r.order {
		result = append(result, r.feeds[name])
	}
	return result
}

// Names returns all registered feed names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
