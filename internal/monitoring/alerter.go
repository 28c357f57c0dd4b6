package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/insight-engine/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertRunFailureRate    AlertType = "run_failure_rate"
	AlertFeedSyncFailure   AlertType = "feed_sync_failure"
	AlertDeadLetterBacklog AlertType = "dead_letter_backlog"
	AlertCacheHitRate      AlertType = "cache_hit_rate"
)

// Rate alerts stay quiet until there is enough traffic to mean anything.
const (
	minFinishedForRateAlert = 5
	minLookupsForCacheAlert = 20
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a MetricsSnapshot against configured thresholds
// and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	finished := snap.RunsComplete + snap.RunsPartial + snap.RunsFailed
	if finished >= minFinishedForRateAlert && snap.RunFailRate > a.cfg.MaxFailureRate {
		alerts = append(alerts, Alert{
			Type:     AlertRunFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Run failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d finished in last %dh)",
				snap.RunFailRate*100, a.cfg.MaxFailureRate*100,
				snap.RunsFailed, finished, snap.LookbackHours,
			),
			Details: map[string]any{
				"failure_rate": snap.RunFailRate,
				"threshold":    a.cfg.MaxFailureRate,
				"failed":       snap.RunsFailed,
				"finished":     finished,
			},
			Timestamp: now,
		})
	}

	if snap.FeedSyncFailed > 0 {
		alerts = append(alerts, Alert{
			Type:     AlertFeedSyncFailure,
			Severity: "high",
			Message: fmt.Sprintf(
				"%d dataset feed sync(s) failed in last %dh",
				snap.FeedSyncFailed, snap.LookbackHours,
			),
			Details: map[string]any{
				"failed_count": snap.FeedSyncFailed,
				"total_syncs":  snap.FeedSyncTotal,
			},
			Timestamp: now,
		})
	}

	if a.cfg.MaxDeadLetterDepth > 0 && snap.DLQDepth > a.cfg.MaxDeadLetterDepth {
		alerts = append(alerts, Alert{
			Type:     AlertDeadLetterBacklog,
			Severity: "high",
			Message: fmt.Sprintf(
				"Dead letter queue depth %d exceeds threshold %d",
				snap.DLQDepth, a.cfg.MaxDeadLetterDepth,
			),
			Details: map[string]any{
				"depth":     snap.DLQDepth,
				"threshold": a.cfg.MaxDeadLetterDepth,
			},
			Timestamp: now,
		})
	}

	if a.cfg.MinCacheHitRate > 0 && snap.CacheLookups >= minLookupsForCacheAlert &&
		snap.CacheHitRate < a.cfg.MinCacheHitRate {
		alerts = append(alerts, Alert{
			Type:     AlertCacheHitRate,
			Severity: "medium",
			Message: fmt.Sprintf(
				"Cache hit rate %.1f%% below threshold %.1f%% (%d lookups)",
				snap.CacheHitRate*100, a.cfg.MinCacheHitRate*100, snap.CacheLookups,
			),
			Details: map[string]any{
				"hit_rate":  snap.CacheHitRate,
				"threshold": a.cfg.MinCacheHitRate,
				"lookups":   snap.CacheLookups,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts posts each alert to the configured webhook and reports how
// many got through. A failed send is logged and skipped; the remaining
// alerts still go out.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		err := a.post(ctx, alert)
		if err != nil {
			zap.L().Error("monitoring: alert delivery failed",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		sent++
		zap.L().Info("monitoring: alert delivered",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
	}
	return sent
}

func (a *Alerter) post(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: build webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: post webhook")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= http.StatusBadRequest {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
