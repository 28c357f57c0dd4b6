package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/insight-engine/internal/worker"
)

var workersCmd = &cobra.Command{
	Use:   "workers",
	Short: "Inspect the analysis worker roster",
}

var workersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List roster workers by phase",
	RunE: func(cmd *cobra.Command, args []string) error {
		roster, err := worker.LoadRoster(cfg.Workers.SpecFile)
		if err != nil {
			return err
		}
		fmt.Print(formatRoster(roster))
		return nil
	},
}

var workersCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify every roster worker has a configured client",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Registry.Covers(env.Roster); err != nil {
			return err
		}

		zap.L().Info("all roster workers registered",
			zap.Int("workers", len(env.Roster.AllSpecs())),
			zap.Int("phases", len(env.Roster.Phases)),
		)
		return nil
	},
}

func init() {
	workersCmd.AddCommand(workersListCmd)
	workersCmd.AddCommand(workersCheckCmd)
	rootCmd.AddCommand(workersCmd)
}

func formatRoster(roster *worker.Roster) string {
	var sb strings.Builder
	w := tabwriter.NewWriter(&sb, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PHASE\tWORKER\tMODULE\tTIMEOUT\tDEPENDS_ON")

	for _, phase := range roster.Phases {
		for _, spec := range phase.Workers {
			deps := strings.Join(spec.DependsOn, ",")
			if deps == "" {
				deps = "-"
			}
			module := spec.Module
			if module == "" {
				module = "-"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				phase.Name,
				spec.Name,
				module,
				spec.Timeout(),
				deps,
			)
		}
	}
	w.Flush()
	return sb.String()
}
