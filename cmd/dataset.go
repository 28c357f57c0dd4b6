package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/insight-engine/internal/dataset"
	"github.com/sells-group/insight-engine/internal/fetcher"
)

var (
	datasetFeeds string
	datasetForce bool
)

var datasetCmd = &cobra.Command{
	Use:   "dataset",
	Short: "Sync the financial records dataset",
}

var datasetSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Download and load configured feeds",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		pool, err := datasetPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := dataset.Migrate(ctx, pool); err != nil {
			return err
		}

		tempDir := cfg.Dataset.TempDir
		if tempDir == "" {
			tempDir = os.TempDir()
		}
		if err := os.MkdirAll(tempDir, 0o755); err != nil {
			return eris.Wrapf(err, "dataset: create temp dir %s", tempDir)
		}

		f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
			MaxRetries:   3,
			DefaultRate:  rate.Limit(cfg.Dataset.RatePerSecond),
			RateLimiters: fetcher.DefaultRateLimiters(),
		})

		reg := dataset.NewRegistry()
		reg.Register(dataset.NewAwards(cfg.Dataset))

		var feeds []string
		if datasetFeeds != "" {
			for _, name := range strings.Split(datasetFeeds, ",") {
				if name = strings.TrimSpace(name); name != "" {
					feeds = append(feeds, name)
				}
			}
		}

		eng := dataset.NewEngine(pool, f, dataset.NewSyncLog(pool), reg, tempDir)
		if err := eng.Run(ctx, dataset.RunOpts{Feeds: feeds, Force: datasetForce}); err != nil {
			return err
		}

		fmt.Println("Sync complete")
		return nil
	},
}

var datasetStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent feed sync runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		pool, err := datasetPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		entries, err := dataset.NewSyncLog(pool).ListAll(ctx)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			zap.L().Info("no sync entries found, run 'dataset sync' first")
			return nil
		}

		fmt.Print(formatSyncEntries(entries))
		return nil
	},
}

var datasetMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the dataset schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		pool, err := datasetPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := dataset.Migrate(ctx, pool); err != nil {
			return err
		}

		zap.L().Info("dataset schema up to date")
		return nil
	},
}

func init() {
	datasetSyncCmd.Flags().StringVar(&datasetFeeds, "feeds", "", "comma-separated feed names (default all)")
	datasetSyncCmd.Flags().BoolVar(&datasetForce, "force", false, "sync even when the source is unchanged")

	datasetCmd.AddCommand(datasetSyncCmd)
	datasetCmd.AddCommand(datasetStatusCmd)
	datasetCmd.AddCommand(datasetMigrateCmd)
	rootCmd.AddCommand(datasetCmd)
}

// datasetPool connects to the feed database. Falls back to the run store
// DSN so a single-database deployment needs no extra config.
func datasetPool(ctx context.Context) (*pgxpool.Pool, error) {
	dsn := cfg.Dataset.DatabaseURL
	if dsn == "" {
		dsn = cfg.Store.DatabaseURL
	}
	if dsn == "" {
		return nil, eris.New("dataset: no database_url configured (set dataset.database_url or store.database_url)")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, eris.Wrap(err, "dataset: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "dataset: ping database")
	}
	return pool, nil
}

func formatSyncEntries(entries []dataset.SyncEntry) string {
	var sb strings.Builder
	w := tabwriter.NewWriter(&sb, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tFEED\tSTATUS\tSTARTED\tDURATION\tROWS\tERROR")

	for _, e := range entries {
		dur := "-"
		if e.CompletedAt != nil {
			dur = e.CompletedAt.Sub(e.StartedAt).Round(time.Second).String()
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%d\t%s\n",
			e.ID,
			e.Feed,
			e.Status,
			e.StartedAt.Format("2006-01-02 15:04"),
			dur,
			e.RowsSynced,
			truncate(e.Error, 40),
		)
	}
	w.Flush()
	return sb.String()
}
