package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/insight-engine/internal/model"
)

var (
	batchInput       string
	batchLimit       int
	batchConcurrency int
	batchOutput      string
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Analyze a CSV of subjects with bounded concurrency",
	Long: `Reads subjects from a CSV file and runs each through the engine.

The CSV needs a "subject" column; "website", "region", "modules"
(semicolon-separated), and "depth" columns are optional.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		reqs, err := parseSubjectsCSV(batchInput)
		if err != nil {
			return err
		}
		zap.L().Info("parsed batch input", zap.Int("subjects", len(reqs)))

		if batchLimit > 0 && len(reqs) > batchLimit {
			reqs = reqs[:batchLimit]
		}

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		concurrency := batchConcurrency
		if concurrency <= 0 {
			concurrency = cfg.Batch.MaxConcurrentRequests
		}

		results := processBatch(ctx, reqs, concurrency, env.Engine.Analyze)
		return writeBatchResults(batchOutput, results)
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchInput, "input", "", "CSV file of subjects (required)")
	batchCmd.Flags().IntVar(&batchLimit, "limit", 0, "max number of subjects to process (0 = all)")
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 0, "concurrent analyses (default from config)")
	batchCmd.Flags().StringVar(&batchOutput, "output", "", "write results JSON to this file (default stdout)")
	_ = batchCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(batchCmd)
}

// batchResult pairs one subject with its report or error.
type batchResult struct {
	Subject string                `json:"subject"`
	Cached  bool                  `json:"cached"`
	Report  *model.AnalysisReport `json:"report,omitempty"`
	Error   string                `json:"error,omitempty"`
}

// analyzeFunc is the callback signature for running one analysis.
type analyzeFunc func(ctx context.Context, req model.AnalysisRequest) (*model.AnalysisReport, bool, error)

// parseSubjectsCSV reads analysis requests from a CSV file. Rows with a
// blank subject are skipped.
func parseSubjectsCSV(path string) ([]model.AnalysisRequest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "batch: open csv")
	}
	defer f.Close() //nolint:errcheck

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, eris.Wrap(err, "batch: read csv header")
	}

	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	if _, ok := col["subject"]; !ok {
		return nil, eris.New(`batch: csv needs a "subject" column`)
	}

	field := func(rec []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var reqs []model.AnalysisRequest
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "batch: read csv")
		}

		subject := field(rec, "subject")
		if subject == "" {
			continue
		}

		var modules []string
		for _, m := range strings.Split(field(rec, "modules"), ";") {
			if m = strings.TrimSpace(m); m != "" {
				modules = append(modules, m)
			}
		}

		reqs = append(reqs, model.AnalysisRequest{
			Subject: subject,
			Website: field(rec, "website"),
			Region:  field(rec, "region"),
			Modules: modules,
			Depth:   model.Depth(field(rec, "depth")),
		})
	}
	return reqs, nil
}

// processBatch runs the requests concurrently. Individual failures are
// recorded in the result set and never abort the batch.
func processBatch(ctx context.Context, reqs []model.AnalysisRequest, concurrency int, analyze analyzeFunc) []batchResult {
	if len(reqs) == 0 {
		zap.L().Info("no subjects to analyze")
		return nil
	}
	if concurrency <= 0 {
		concurrency = 4
	}

	zap.L().Info("processing batch",
		zap.Int("subjects", len(reqs)),
		zap.Int("concurrency", concurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var mu sync.Mutex
	results := make([]batchResult, 0, len(reqs))
	var succeeded, failed, cached atomic.Int64

	for _, req := range reqs {
		g.Go(func() error {
			log := zap.L().With(zap.String("subject", req.Subject))

			report, hit, err := analyze(gctx, req)
			res := batchResult{Subject: req.Subject, Cached: hit}
			if err != nil {
				failed.Add(1)
				log.Error("analysis failed", zap.Error(err))
				res.Error = err.Error()
			} else {
				succeeded.Add(1)
				if hit {
					cached.Add(1)
				}
				res.Report = report
				log.Info("analysis complete",
					zap.Float64("confidence", report.Confidence),
					zap.Bool("cached", hit),
				)
			}

			mu.Lock()
			results = append(results, res)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	zap.L().Info("batch complete",
		zap.Int64("succeeded", succeeded.Load()),
		zap.Int64("failed", failed.Load()),
		zap.Int64("cache_hits", cached.Load()),
	)
	return results
}

// writeBatchResults encodes results to the given path, or stdout when empty.
func writeBatchResults(path string, results []batchResult) error {
	out := os.Stdout
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return eris.Wrap(err, "batch: create output file")
		}
		defer f.Close() //nolint:errcheck
		out = f
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(results); err != nil {
		return eris.Wrap(err, "batch: write results")
	}
	return nil
}
