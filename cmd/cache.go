package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/insight-engine/internal/model"
)

var cacheListLimit int

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and manage the persistent report cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "List persisted cache entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		entries, err := st.ListCachedReports(ctx, cacheListLimit)
		if err != nil {
			return eris.Wrap(err, "list cached reports")
		}
		if len(entries) == 0 {
			zap.L().Info("no cached reports found")
			return nil
		}

		fmt.Print(formatCacheEntries(entries))
		return nil
	},
}

var cacheInvalidateCmd = &cobra.Command{
	Use:   "invalidate <fingerprint>",
	Short: "Remove a single cached report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.DeleteCachedReport(ctx, args[0]); err != nil {
			return eris.Wrap(err, "invalidate cached report")
		}

		zap.L().Info("cache entry invalidated", zap.String("fingerprint", args[0]))
		return nil
	},
}

var cachePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete all expired cache entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		removed, err := st.DeleteExpiredReports(ctx)
		if err != nil {
			return eris.Wrap(err, "purge expired reports")
		}

		zap.L().Info("cache purge complete", zap.Int("removed", removed))
		return nil
	},
}

func init() {
	cacheStatsCmd.Flags().IntVar(&cacheListLimit, "limit", 50, "max entries to list")
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheInvalidateCmd)
	cacheCmd.AddCommand(cachePurgeCmd)
	rootCmd.AddCommand(cacheCmd)
}

func formatCacheEntries(entries []model.CacheEntry) string {
	var sb strings.Builder
	w := tabwriter.NewWriter(&sb, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "FINGERPRINT\tSUBJECT\tSECTIONS\tCREATED\tEXPIRES")

	now := time.Now().UTC()
	for _, e := range entries {
		subject := ""
		sections := 0
		if e.Report != nil {
			subject = e.Report.Request.Subject
			sections = len(e.Report.Sections)
		}

		expires := e.ExpiresAt.Format("2006-01-02 15:04")
		if e.Expired(now) {
			expires += " (expired)"
		}

		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			truncateID(e.Fingerprint),
			truncate(subject, 32),
			sections,
			e.CreatedAt.Format("2006-01-02 15:04"),
			expires,
		)
	}
	w.Flush()
	return sb.String()
}
