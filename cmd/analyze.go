package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/insight-engine/internal/model"
)

var (
	analyzeSubject string
	analyzeWebsite string
	analyzeRegion  string
	analyzeModules []string
	analyzeDepth   string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run analysis for a single subject",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		req := model.AnalysisRequest{
			Subject: analyzeSubject,
			Website: analyzeWebsite,
			Region:  analyzeRegion,
			Modules: analyzeModules,
			Depth:   model.Depth(analyzeDepth),
		}

		report, cached, err := env.Engine.Analyze(ctx, req)
		if err != nil {
			return eris.Wrap(err, "analyze")
		}

		zap.L().Info("analysis complete",
			zap.String("subject", req.Subject),
			zap.Float64("confidence", report.Confidence),
			zap.Bool("partial", report.Partial),
			zap.Bool("cached", cached),
			zap.Int("sections", len(report.Sections)),
			zap.Float64("cost_usd", report.Usage.Cost),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeSubject, "subject", "", "subject to analyze (required)")
	analyzeCmd.Flags().StringVar(&analyzeWebsite, "website", "", "subject website URL")
	analyzeCmd.Flags().StringVar(&analyzeRegion, "region", "", "subject region hint")
	analyzeCmd.Flags().StringSliceVar(&analyzeModules, "modules", nil, "restrict report to these modules")
	analyzeCmd.Flags().StringVar(&analyzeDepth, "depth", "", "analysis depth: quick, standard, deep")
	_ = analyzeCmd.MarkFlagRequired("subject")
	rootCmd.AddCommand(analyzeCmd)
}
