package monitoring

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/sells-group/insight-engine/internal/config"
)

func TestChecker_Interval(t *testing.T) {
	tests := []struct {
		name string
		secs int
		want time.Duration
	}{
		{"configured", 30, 30 * time.Second},
		{"zero falls back", 0, defaultCheckInterval},
		{"negative falls back", -1, defaultCheckInterval},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChecker(nil, nil, config.MonitoringConfig{CheckIntervalSecs: tt.secs})
			assert.Equal(t, tt.want, c.interval())
		})
	}
}

func TestChecker_RunStopsOnCancel(t *testing.T) {
	cfg := config.MonitoringConfig{
		CheckIntervalSecs:   1,
		LookbackWindowHours: 24,
		MaxFailureRate:      0.10,
	}
	checker := NewChecker(NewCollector(&mockStore{}, nil, nil), NewAlerter(cfg), cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		checker.Run(ctx)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestChecker_SweepSurvivesCollectFailure(t *testing.T) {
	cfg := config.MonitoringConfig{LookbackWindowHours: 24}
	st := &mockStore{listErr: assert.AnError}
	checker := NewChecker(NewCollector(st, nil, nil), NewAlerter(cfg), cfg)

	// A broken store must not panic the loop; the sweep logs and returns.
	checker.sweep(context.Background(), zap.NewNop())
}

func TestChecker_SweepEvaluatesSnapshot(t *testing.T) {
	cfg := config.MonitoringConfig{LookbackWindowHours: 24}
	checker := NewChecker(NewCollector(&mockStore{}, nil, nil), NewAlerter(cfg), cfg)

	checker.sweep(context.Background(), zap.NewNop())
}
