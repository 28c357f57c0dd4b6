package workers

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/sells-group/insight-engine/internal/model"
	"github.com/sells-group/insight-engine/internal/worker"
	"github.com/sells-group/insight-engine/pkg/finrecords"
)

// FinRecords looks the subject up in the federal award records database.
// Finding nothing is a normal outcome, not a failure: absence of records
// is itself information for the risk stage.
type FinRecords struct {
	querier finrecords.Querier
}

// NewFinRecords creates the award records worker.
func NewFinRecords(q finrecords.Querier) *FinRecords {
	return &FinRecords{querier: q}
}

// Name implements worker.Worker.
func (w *FinRecords) Name() string { return "finrecords" }

// Execute implements worker.Worker.
func (w *FinRecords) Execute(ctx context.Context, in worker.Input) (*model.Section, error) {
	req := in.Request
	if req.Region == "" {
		return nil, eris.New("finrecords: award lookup requires a region")
	}

	matches, err := w.querier.FindAwards(ctx, req.Subject, req.Region, "")
	if err != nil {
		return nil, eris.Wrap(err, "finrecords: find awards")
	}

	var total float64
	for _, m := range matches {
		total += m.AwardAmount
	}

	summary := fmt.Sprintf("no award records found for %q in %s", req.Subject, req.Region)
	if len(matches) > 0 {
		summary = fmt.Sprintf("%d award record(s) totaling $%.0f, best match tier %d",
			len(matches), total, matches[0].MatchTier)
	}

	return &model.Section{
		Summary: summary,
		Data: map[string]any{
			"matches":      matches,
			"total_amount": total,
		},
	}, nil
}
