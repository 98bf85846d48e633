package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jandy1990/wwfm-platform-sub006/internal/api"
	"github.com/jandy1990/wwfm-platform-sub006/internal/config"
	"github.com/jandy1990/wwfm-platform-sub006/internal/pipeline"
	"github.com/jandy1990/wwfm-platform-sub006/internal/worker"
	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags: -ldflags "-X main.Version=1.0.0"
var Version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:          "wwfm",
	Short:        "WWFM - solution generation and canonical data pipeline",
	RunE:         run,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the ops API and background workers",
	RunE:  run,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to the YAML config file (overrides WWFM_CONFIG_PATH)")
	rootCmd.AddCommand(serveCmd)
}

// loadConfig applies the --config flag, loads configuration and installs
// the default logger writing to w.
func loadConfig(w io.Writer) (*config.Config, error) {
	if configPath != "" {
		if err := os.Setenv("WWFM_CONFIG_PATH", configPath); err != nil {
			return nil, err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	slog.Info("configuration loaded")

	slog.SetDefault(newLogger(w, cfg.Log))
	slog.Info("logger initialized", "level", cfg.Log.Level, "format", cfg.Log.Format)
	return cfg, nil
}

func newLogger(w io.Writer, cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Level)}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func run(cmd *cobra.Command, args []string) error {
	// 1. Signal handling
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	// 2. Configuration and logger
	cfg, err := loadConfig(os.Stdout)
	if err != nil {
		return err
	}

	// 3. Pipeline components (store, llm adapters, gate, inserter, workers)
	a, err := newApp(cfg)
	if err != nil {
		return err
	}

	// 4. HTTP router
	var quality api.QualityControl
	if cfg.Quality.Enabled {
		quality = a.quality
	}
	handler := api.NewHandler(a.db, a.selector, quality, api.HandlerConfig{
		APIKey:          cfg.Auth.APIKey,
		Version:         Version,
		Model:           cfg.LLM.Model,
		DefaultStrategy: a.strategy,
	})
	router := api.NewRouter(handler)
	slog.Info("router initialized")

	// 5. HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout),
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout),
	}

	// 6. Background workers
	var wg sync.WaitGroup
	if cfg.Quality.Enabled {
		startWorker(ctx, &wg, "quality", a.quality.Run)
	}
	if cfg.Generation.Enabled {
		gen := worker.NewGenerationCoordinator(a.runner, a.selector,
			time.Duration(cfg.Generation.Interval),
			pipeline.RunOptions{Strategy: a.strategy, Goals: cfg.Generation.GoalsPerRun})
		startWorker(ctx, &wg, "generation", gen.Run)
	}
	if cfg.Export.Bucket != "" {
		exp := worker.NewExportCoordinator(a.exporter,
			time.Duration(cfg.Export.Interval), time.Duration(cfg.Export.Window))
		startWorker(ctx, &wg, "export", exp.Run)
	}

	// 7. Serve until signalled
	go func() {
		slog.Info("server starting", "address", addr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("shutdown initiated")

	// 8. Graceful shutdown
	shutdown(time.Duration(cfg.Server.ShutdownTimeout), srv, &wg, a)
	return nil
}

// shutdown stops the server, then waits for workers, then closes the store.
// Workers must already have been signalled through their context.
func shutdown(timeout time.Duration, srv *http.Server, wg *sync.WaitGroup, a *app) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	wg.Wait()
	a.close()

	slog.Info("shutdown complete")
}

func parseLogLevel(level string) slog.Level {
	switch level {
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

// startWorker launches a background worker goroutine that respects context cancellation.
// Workers are tracked via WaitGroup for graceful shutdown.
func startWorker(ctx context.Context, wg *sync.WaitGroup, name string, fn func(ctx context.Context)) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		slog.Info("worker started", "worker", name)
		fn(ctx)
		slog.Info("worker stopped", "worker", name)
	}()
}
