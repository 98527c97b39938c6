package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/chriscow/interview-agent/internal/metrics"
	"github.com/chriscow/interview-agent/internal/server"
	"github.com/chriscow/interview-agent/pkg/launch"
	"github.com/chriscow/interview-agent/pkg/rooms"
	"github.com/chriscow/interview-agent/pkg/token"
	"github.com/chriscow/interview-agent/pkg/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP launcher (token issuance and session launch)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(true)
		if err != nil {
			return err
		}
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.HTTPAddr = addr
		}
		if n, _ := cmd.Flags().GetInt("max-jobs"); n > 0 {
			cfg.LaunchMaxJobs = n
		}

		logger := setupLogger()
		logger.Info("Starting launcher",
			slog.String("service", "interviewer"),
			slog.String("version", version.Version),
			slog.String("commit", version.GitCommit),
			slog.String("addr", cfg.HTTPAddr),
			slog.Int("max_jobs", cfg.LaunchMaxJobs))

		plan, err := cfg.Plan()
		if err != nil {
			return fmt.Errorf("load interview plan: %w", err)
		}
		issuer, err := token.NewIssuer(cfg.LiveKitAPIKey, cfg.LiveKitAPISecret, cfg.TokenTTL)
		if err != nil {
			return err
		}

		m := metrics.New(cfg.MetricsNamespace)
		pool := launch.NewPool(&launch.ProcessLauncher{},
			launch.WithMaxJobs(cfg.LaunchMaxJobs),
			launch.WithLogger(logger),
			launch.WithObserver(m.ObserveJob))

		srv := server.New(server.Deps{
			Tokens:         issuer,
			Rooms:          rooms.NewGenerator(rooms.NewLiveKitRegistry(cfg.LiveKitURL, cfg.LiveKitAPIKey, cfg.LiveKitAPISecret)),
			Launcher:       pool,
			Plan:           plan,
			AllowedOrigins: cfg.CORSAllowedOrigins,
			Metrics:        m,
			Logger:         logger,
		})

		ctx, cancel := signalContext()
		defer cancel()
		return serveHTTP(ctx, cfg.HTTPAddr, srv.Router(), cfg.ShutdownTimeout, pool, logger)
	},
}

// serveHTTP runs handler until ctx is done, then drains HTTP and waits for the pool's
// workers within timeout.
func serveHTTP(ctx context.Context, addr string, handler http.Handler, timeout time.Duration, pool *launch.Pool, logger *slog.Logger) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", slog.String("addr", addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down launcher")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown incomplete", slog.String("error", err.Error()))
	}
	if pool != nil {
		if err := pool.Wait(shutdownCtx); err != nil {
			logger.Warn("Agent workers still running at shutdown", slog.Int("active", pool.Active()))
		}
	}
	return nil
}
