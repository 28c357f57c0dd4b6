package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/insight-engine/internal/config"
)

// defaultCheckInterval spaces alert sweeps when the config names none.
const defaultCheckInterval = 5 * time.Minute

// Checker sweeps collected metrics on a timer and pushes whatever
// triggers through the alerter.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	cfg       config.MonitoringConfig
}

// NewChecker wires a background sweep loop over the collector and alerter.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	return &Checker{
		collector: collector,
		alerter:   alerter,
		cfg:       cfg,
	}
}

// Run ticks until ctx is cancelled. The first sweep lands one full
// interval after start, so a freshly booted serve process does not alert
// on an empty window.
func (c *Checker) Run(ctx context.Context) {
	interval := c.interval()
	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("monitoring: sweep loop started",
		zap.Duration("interval", interval),
		zap.Int("lookback_hours", c.cfg.LookbackWindowHours),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("monitoring: sweep loop stopped")
			return
		case <-ticker.C:
			c.sweep(ctx, log)
		}
	}
}

func (c *Checker) interval() time.Duration {
	if secs := c.cfg.CheckIntervalSecs; secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return defaultCheckInterval
}

// sweep collects one snapshot and dispatches whatever the alerter fires
// on it. Collection failures are logged and skipped; the next tick tries
// again.
func (c *Checker) sweep(ctx context.Context, log *zap.Logger) {
	snap, err := c.collector.Collect(ctx, c.cfg.LookbackWindowHours)
	if err != nil {
		log.Error("monitoring: metrics collection failed", zap.Error(err))
		return
	}

	alerts := c.alerter.Evaluate(snap)
	if len(alerts) == 0 {
		log.Debug("monitoring: sweep clean")
		return
	}

	sent := c.alerter.SendAlerts(ctx, alerts)
	log.Info("monitoring: sweep dispatched alerts",
		zap.Int("triggered", len(alerts)),
		zap.Int("sent", sent),
	)
}
