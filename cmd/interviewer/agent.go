package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/chriscow/interview-agent/internal/config"
	"github.com/chriscow/interview-agent/internal/metrics"
	"github.com/chriscow/interview-agent/pkg/ai"
	"github.com/chriscow/interview-agent/pkg/interview"
	"github.com/chriscow/interview-agent/pkg/launch"
	"github.com/chriscow/interview-agent/pkg/plugin"
	"github.com/chriscow/interview-agent/pkg/room"
	"github.com/chriscow/interview-agent/pkg/turn"
	"github.com/chriscow/interview-agent/pkg/version"
	"github.com/chriscow/interview-agent/pkg/worker"
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run one interviewer session in a room",
	Long: `Join the given room, wait for the candidate and conduct the interview.
The launcher starts this command for every session; the plan arrives in ` + launch.PlanEnv + `.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		roomName, _ := cmd.Flags().GetString("room")
		planFile, _ := cmd.Flags().GetString("plan")
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

		cfg, err := loadConfig(true)
		if err != nil {
			return err
		}

		logger := setupLogger().With(slog.String("room", roomName))
		logger.Info("Starting interviewer agent",
			slog.String("service", "interviewer"),
			slog.String("version", version.Version),
			slog.String("commit", version.GitCommit),
			slog.Int("pid", os.Getpid()))

		plan, err := agentPlan(cfg, planFile)
		if err != nil {
			return err
		}

		providers := worker.Providers{
			STT:     cfg.STTProvider,
			TTS:     cfg.TTSProvider,
			LLM:     cfg.LLMProvider,
			VAD:     cfg.VADProvider,
			Options: providerOptions(cfg),
		}
		pipeline, err := providers.Resolve(plugin.Default())
		if err != nil {
			return err
		}

		detector, err := turn.New(turn.Config{
			Kind:      cfg.TurnDetector,
			ModelPath: cfg.ModelPath,
			RemoteURL: cfg.RemoteEOTURL,
			Logger:    logger,
		})
		if err != nil {
			logger.Warn("Turn detector unavailable, using endpointing delays only",
				slog.String("kind", cfg.TurnDetector),
				slog.String("error", err.Error()))
			detector = nil
		}
		if c, ok := detector.(io.Closer); ok {
			defer c.Close()
		}

		m := metrics.New(cfg.MetricsNamespace)
		if metricsAddr != "" {
			go serveMetrics(metricsAddr, m.Handler(), logger)
		}

		w, err := worker.New(worker.Config{
			Plan:     plan,
			Pipeline: pipeline,
			Connect: worker.LiveKit(room.Config{
				URL:       cfg.LiveKitURL,
				APIKey:    cfg.LiveKitAPIKey,
				APISecret: cfg.LiveKitAPISecret,
				RoomName:  roomName,
			}, logger),
			TurnDetector: detector,
			Language:     cfg.Language,
			Voice:        cfg.Voice,
			JoinTimeout:  cfg.JoinTimeout,
			Metrics:      m,
			Logger:       logger,
		})
		if err != nil {
			return err
		}

		ctx, cancel := signalContext()
		defer cancel()

		start := time.Now()
		if err := w.Run(ctx); err != nil {
			logger.Error("Session failed",
				slog.String("state", w.State().String()),
				slog.String("error", err.Error()))
			return err
		}
		logger.Info("Session finished", slog.Duration("duration", time.Since(start)))
		return nil
	},
}

// agentPlan picks the session plan: --plan, then the launcher's INTERVIEW_PLAN_JSON,
// then the configured base plan.
func agentPlan(cfg config.Config, planFile string) (interview.Plan, error) {
	if planFile != "" {
		return interview.Load(planFile)
	}
	if encoded := os.Getenv(launch.PlanEnv); encoded != "" {
		p, err := interview.Decode(encoded)
		if err != nil {
			return interview.Plan{}, fmt.Errorf("%s: %w", launch.PlanEnv, err)
		}
		return p, nil
	}
	return cfg.Plan()
}

// providerOptions maps settings onto plugin options. Plugins ignore keys they do not know.
func providerOptions(cfg config.Config) map[ai.Kind]map[string]any {
	lang, _, _ := strings.Cut(cfg.Language, "-")
	return map[ai.Kind]map[string]any{
		ai.KindSTT: {"api_key": cfg.OpenAIAPIKey, "language": strings.ToLower(lang)},
		ai.KindLLM: {"api_key": cfg.OpenAIAPIKey, "model": cfg.LLMModel},
		ai.KindTTS: {"api_key": cfg.OpenAIAPIKey, "voice": cfg.Voice},
	}
}

func serveMetrics(addr string, handler http.Handler, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	logger.Info("Starting metrics server", slog.String("addr", addr))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Metrics server failed", slog.String("error", err.Error()))
	}
}
