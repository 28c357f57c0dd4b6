package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/insight-engine/internal/cache"
	"github.com/sells-group/insight-engine/internal/dataset"
	"github.com/sells-group/insight-engine/internal/engine"
	"github.com/sells-group/insight-engine/internal/model"
	"github.com/sells-group/insight-engine/internal/monitoring"
	"github.com/sells-group/insight-engine/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP analysis server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		collector := buildCollector(ctx, env)
		lookback := cfg.Monitoring.LookbackWindowHours

		go env.Cache.RunJanitor(ctx)

		checker := monitoring.NewChecker(collector, monitoring.NewAlerter(cfg.Monitoring), cfg.Monitoring)
		go checker.Run(ctx)

		router := newRouter(env.Engine, env.Cache, func(c context.Context) (*monitoring.MetricsSnapshot, error) {
			return collector.Collect(c, lookback)
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// analyzer is the slice of the engine the HTTP handlers need.
type analyzer interface {
	Analyze(ctx context.Context, req model.AnalysisRequest) (*model.AnalysisReport, bool, error)
}

// statsFunc produces a metrics snapshot for the stats endpoint.
type statsFunc func(ctx context.Context) (*monitoring.MetricsSnapshot, error)

// buildCollector wires the metrics collector. Feed sync metrics come in
// only when the feed is configured and the store is Postgres.
func buildCollector(ctx context.Context, env *engineEnv) *monitoring.Collector {
	var syncLog monitoring.SyncLogQuerier
	if ps, ok := env.Store.(*store.PostgresStore); ok && (cfg.Dataset.FeedURL != "" || cfg.Dataset.FTPHost != "") {
		if err := dataset.Migrate(ctx, ps.Pool()); err != nil {
			zap.L().Warn("dataset schema unavailable, feed sync metrics disabled", zap.Error(err))
		} else {
			syncLog = dataset.NewSyncLog(ps.Pool())
		}
	}
	return monitoring.NewCollector(env.Store, syncLog, env.Cache)
}

// newRouter assembles the HTTP surface: a thin layer over the engine.
func newRouter(eng analyzer, gw *cache.Gateway, stats statsFunc) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Post("/analyze", handleAnalyze(eng))
		r.Get("/reports/{fingerprint}", handleGetReport(gw))
		r.Get("/stats", handleStats(stats))
	})

	return r
}

func handleAnalyze(eng analyzer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req model.AnalysisRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := req.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		report, cached, err := eng.Analyze(r.Context(), req)
		if err != nil {
			if engine.IsPhaseExhaustion(err) {
				writeError(w, http.StatusBadGateway, err.Error())
				return
			}
			zap.L().Error("analyze request failed",
				zap.String("subject", req.Subject),
				zap.Error(err),
			)
			writeError(w, http.StatusInternalServerError, "analysis failed")
			return
		}

		if cached {
			w.Header().Set("X-Cache", "hit")
		} else {
			w.Header().Set("X-Cache", "miss")
		}
		writeJSON(w, http.StatusOK, report)
	}
}

func handleGetReport(gw *cache.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fp := strings.TrimSpace(chi.URLParam(r, "fingerprint"))
		report, ok := gw.GetReport(r.Context(), fp)
		if !ok {
			writeError(w, http.StatusNotFound, "report not found")
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}

func handleStats(stats statsFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if stats == nil {
			writeError(w, http.StatusServiceUnavailable, "stats unavailable")
			return
		}
		snap, err := stats(r.Context())
		if err != nil {
			zap.L().Error("stats collection failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "collect metrics")
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

// requestLogger logs one line per request with status and duration.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
