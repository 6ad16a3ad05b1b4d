// Package main is the entrypoint for the eventpredict server. The same binary
// also serves as the execution unit the dispatcher starts for every job.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/kiranshivaraju/eventpredict/internal/api"
	"github.com/kiranshivaraju/eventpredict/internal/api/handler"
	mw "github.com/kiranshivaraju/eventpredict/internal/api/middleware"
	"github.com/kiranshivaraju/eventpredict/internal/api/response"
	"github.com/kiranshivaraju/eventpredict/internal/cache"
	"github.com/kiranshivaraju/eventpredict/internal/config"
	"github.com/kiranshivaraju/eventpredict/internal/jobs"
	"github.com/kiranshivaraju/eventpredict/internal/pipeline"
	"github.com/kiranshivaraju/eventpredict/internal/storage"
	"github.com/kiranshivaraju/eventpredict/internal/store"
	"github.com/kiranshivaraju/eventpredict/internal/worker"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 30 * time.Second

func main() {
	setupLogger(os.Stdout, os.Getenv("LOG_LEVEL"))

	if err := newRootCmd().Execute(); err != nil {
		slog.Error("eventpredict failed", "error", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "eventpredict",
		Short:         "Asynchronous prediction job server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the job dispatcher (default)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	})
	root.AddCommand(newSubmitCmd())
	root.AddCommand(newUnitCmd())
	return root
}

// newUnitCmd is the execution unit entrypoint. It is started by the
// dispatcher, never by hand.
func newUnitCmd() *cobra.Command {
	var pipelineName string
	cmd := &cobra.Command{
		Use:    "unit",
		Short:  "Run one job read from stdin and print its final state",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// stdout carries the result; logs go to stderr.
			setupLogger(os.Stderr, os.Getenv("LOG_LEVEL"))
			exitOnSignal()
			return runUnit(cmd.Context(), pipelineName, os.Stdin, os.Stdout)
		},
	}
	cmd.Flags().StringVar(&pipelineName, "pipeline", "logistic", "pipeline used to score the job's models")
	return cmd
}

func runUnit(ctx context.Context, pipelineName string, in io.Reader, out io.Writer) error {
	p, err := pipeline.New(pipelineName)
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return worker.Serve(ctx, in, out, p)
}

// exitOnSignal terminates the unit as soon as it is asked to stop. The
// dispatcher treats the missing result as a failure.
func exitOnSignal() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Warn("execution unit interrupted", "signal", sig.String())
		code := 1
		if s, ok := sig.(syscall.Signal); ok {
			code = 128 + int(s)
		}
		os.Exit(code)
	}()
}

func runServe(ctx context.Context) error {
	// 1. Load config, fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	setupLogger(os.Stdout, cfg.Log.Level)
	slog.Info("config loaded",
		"env", cfg.Server.Env,
		"pipeline", cfg.Pipeline.Name,
		"max_jobs", cfg.Jobs.MaxNum,
	)

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Artifact store for uploaded data sources
	blobs, err := storage.New(cfg.Storage.Path, cfg.Storage.ChunkSize)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	slog.Info("storage ready", "root", blobs.Root())

	// 3. Optional outcome archive
	archive, closeArchive, err := openArchive(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer closeArchive()

	// 4. Optional status mirror
	statusCache, err := openCache(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer statusCache.Close()

	// 5. Execution units re-run this binary
	if _, err := pipeline.New(cfg.Pipeline.Name); err != nil {
		return fmt.Errorf("create pipeline: %w", err)
	}
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate executable: %w", err)
	}
	launcher := jobs.NewProcessLauncher(exe, cfg.Pipeline.Name)

	// 6. Dispatcher
	dispatcher := jobs.NewDispatcher(launcher, blobs, statusCache, archive, jobs.Options{
		MaxJobs:      cfg.Jobs.MaxNum,
		PollInterval: cfg.Jobs.Check,
		ResultGrace:  cfg.Jobs.ResultGrace,
		MaxRuntime:   cfg.Jobs.MaxRuntime,
		StatusTTL:    cfg.Jobs.StatusTTL,
	})
	dispatchDone := make(chan error, 1)
	go func() { dispatchDone <- dispatcher.Run(ctx) }()

	// 7. Build router with dependencies
	var limiterCache cache.Cache
	if cfg.Redis.URL != "" {
		limiterCache = statusCache
	}
	deps := api.Dependencies{
		RateLimit: mw.NewRateLimit(limiterCache, cfg.Server.RateLimitPerMin),

		HealthHandler:        healthHandler(dispatcher, archive, statusCache),
		CreateJobHandler:     handler.NewCreateJobHandler(dispatcher, cfg.Server.MaxUploadBytes),
		AddDataSourceHandler: handler.NewAddDataSourceHandler(dispatcher, blobs, cfg.Server.MaxUploadBytes),
		GetJobHandler:        handler.NewGetJobHandler(dispatcher),
		ListOutcomesHandler:  handler.NewListOutcomesHandler(archive),
		GetOutcomeHandler:    handler.NewGetOutcomeHandler(archive),
	}
	router := api.NewRouter(deps)

	// 8. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:        addr,
		Handler:     router,
		ReadTimeout: 5 * time.Minute,
		// Uploads can be large; only the header read is tight.
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case err := <-errCh:
		if err != nil {
			serveErr = fmt.Errorf("server error: %w", err)
		}
		stop()
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil && serveErr == nil {
		serveErr = fmt.Errorf("server shutdown: %w", err)
	}

	select {
	case err := <-dispatchDone:
		if err != nil && !errors.Is(err, context.Canceled) && serveErr == nil {
			serveErr = fmt.Errorf("dispatcher: %w", err)
		}
	case <-shutdownCtx.Done():
		slog.Error("dispatcher did not stop in time")
	}

	if serveErr != nil {
		return serveErr
	}
	slog.Info("server stopped gracefully")
	return nil
}

func openArchive(ctx context.Context, cfg config.DatabaseConfig) (store.Archive, func(), error) {
	if cfg.URL == "" {
		slog.Info("outcome archive disabled")
		return store.NopArchive{}, func() {}, nil
	}

	pool, err := store.Connect(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	slog.Info("database connected")

	if err := store.RunMigrations(cfg.URL, cfg.MigrationsPath); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	return store.NewPostgresArchive(pool), pool.Close, nil
}

func openCache(ctx context.Context, cfg config.RedisConfig) (cache.Cache, error) {
	if cfg.URL == "" {
		slog.Info("status mirror disabled")
		return cache.NopCache{}, nil
	}

	redisCache, err := cache.NewRedisCache(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("create redis cache: %w", err)
	}
	if err := redisCache.Ping(ctx); err != nil {
		redisCache.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")
	return redisCache, nil
}

func setupLogger(w io.Writer, level string) {
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: parseLevel(level),
	}))
	slog.SetDefault(logger)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type statsSource interface {
	Stats() jobs.Stats
}

// healthHandler reports dispatcher load and checks archive and cache connectivity.
func healthHandler(d statsSource, a store.Archive, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"archive": probe(r.Context(), a),
			"cache":   probe(r.Context(), c),
		}

		degraded := checks["archive"] == "degraded" || checks["cache"] == "degraded"
		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
			"jobs":     d.Stats(),
		})
	}
}

type pinger interface {
	Ping(ctx context.Context) error
}

func probe(ctx context.Context, p pinger) string {
	switch p.(type) {
	case store.NopArchive, cache.NopCache:
		return "disabled"
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := p.Ping(ctx); err != nil {
		return "degraded"
	}
	return "ok"
}
