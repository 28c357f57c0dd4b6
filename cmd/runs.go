package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/insight-engine/internal/model"
	"github.com/sells-group/insight-engine/internal/store"
)

var (
	runsStatus  string
	runsSubject string
	runsLimit   int
	runsSince   time.Duration
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect recorded analysis runs",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		runs, err := st.ListRuns(ctx, store.RunFilter{
			Status:  model.RunStatus(runsStatus),
			Subject: runsSubject,
			Limit:   runsLimit,
		})
		if err != nil {
			return eris.Wrap(err, "list runs")
		}
		if len(runs) == 0 {
			zap.L().Info("no runs found")
			return nil
		}

		fmt.Print(formatRunsList(runs))
		return nil
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one run in full",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "get run")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

var runsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize run outcomes over a window",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		runs, err := st.ListRuns(ctx, store.RunFilter{
			CreatedAfter: time.Now().UTC().Add(-runsSince),
			Limit:        10000,
		})
		if err != nil {
			return eris.Wrap(err, "list runs")
		}

		stats := computeRunStats(runs)
		fmt.Print(formatRunStats(stats, runsSince))
		return nil
	},
}

func init() {
	runsListCmd.Flags().StringVar(&runsStatus, "status", "", "filter by status (queued|running|complete|partial|failed)")
	runsListCmd.Flags().StringVar(&runsSubject, "subject", "", "filter by subject substring")
	runsListCmd.Flags().IntVar(&runsLimit, "limit", 20, "max runs to list")
	runsStatsCmd.Flags().DurationVar(&runsSince, "since", 24*time.Hour, "window to summarize")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsStatsCmd)
	rootCmd.AddCommand(runsCmd)
}

type runStats struct {
	Total         int
	Complete      int
	Partial       int
	Failed        int
	Other         int
	AvgDurationMS int64
	AvgConfidence float64
}

func computeRunStats(runs []model.Run) runStats {
	var s runStats
	s.Total = len(runs)

	var durTotal int64
	var durCount int64
	var confTotal float64
	var confCount int

	for _, r := range runs {
		switch r.Status {
		case model.RunStatusComplete:
			s.Complete++
		case model.RunStatusPartial:
			s.Partial++
		case model.RunStatusFailed:
			s.Failed++
		default:
			s.Other++
		}

		if r.Report == nil {
			continue
		}
		if r.Report.Duration > 0 {
			durTotal += r.Report.Duration
			durCount++
		}
		if r.Report.Confidence > 0 {
			confTotal += r.Report.Confidence
			confCount++
		}
	}

	if durCount > 0 {
		s.AvgDurationMS = durTotal / durCount
	}
	if confCount > 0 {
		s.AvgConfidence = confTotal / float64(confCount)
	}
	return s
}

func formatRunStats(s runStats, window time.Duration) string {
	var sb strings.Builder
	w := tabwriter.NewWriter(&sb, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Runs in last %s\t%d\n", window, s.Total)
	fmt.Fprintf(w, "  complete\t%d\n", s.Complete)
	fmt.Fprintf(w, "  partial\t%d\n", s.Partial)
	fmt.Fprintf(w, "  failed\t%d\n", s.Failed)
	if s.Other > 0 {
		fmt.Fprintf(w, "  other\t%d\n", s.Other)
	}
	fmt.Fprintf(w, "Avg duration\t%s\n", time.Duration(s.AvgDurationMS)*time.Millisecond)
	fmt.Fprintf(w, "Avg confidence\t%.2f\n", s.AvgConfidence)
	w.Flush()
	return sb.String()
}

func formatRunsList(runs []model.Run) string {
	var sb strings.Builder
	w := tabwriter.NewWriter(&sb, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSUBJECT\tSTATUS\tCONF\tCREATED\tDURATION")

	for _, r := range runs {
		conf := "-"
		dur := "-"
		if r.Report != nil {
			conf = fmt.Sprintf("%.2f", r.Report.Confidence)
			dur = (time.Duration(r.Report.Duration) * time.Millisecond).String()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			truncateID(r.ID),
			truncate(r.Request.Subject, 32),
			r.Status,
			conf,
			r.CreatedAt.Format("2006-01-02 15:04"),
			dur,
		)
	}
	w.Flush()
	return sb.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}

func truncateID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
