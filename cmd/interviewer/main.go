package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/chriscow/interview-agent/internal/config"
	"github.com/chriscow/interview-agent/internal/logging"
	_ "github.com/chriscow/interview-agent/pkg/plugin/energy" // Import to register the energy VAD
	_ "github.com/chriscow/interview-agent/pkg/plugin/fake"   // Import to register fake plugins
	_ "github.com/chriscow/interview-agent/pkg/plugin/openai" // Import to register OpenAI plugins
	"github.com/chriscow/interview-agent/pkg/version"
)

var rootCmd = &cobra.Command{
	Use:   "interviewer",
	Short: "Voice mock-interview agent for LiveKit rooms",
	Long: `interviewer hands out LiveKit room tokens, launches one interviewer agent per
session and runs that agent: it joins the room, greets the candidate and works
through the configured interview plan.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		envFile, _ := cmd.Flags().GetString("env-file")
		return config.LoadEnvFile(envFile)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.GetVersionInfo())
	},
}

func setupLogger() *slog.Logger {
	return logging.Setup()
}

// loadConfig loads the environment configuration and optionally requires credentials.
func loadConfig(requireLiveKit bool) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	if requireLiveKit {
		if err := cfg.RequireLiveKit(); err != nil {
			return config.Config{}, err
		}
	}
	return cfg, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func init() {
	rootCmd.PersistentFlags().String("env-file", config.EnvFile, "dotenv file read before the environment")

	serveCmd.Flags().String("addr", "", "HTTP listen address (overrides HTTP_ADDR)")
	serveCmd.Flags().Int("max-jobs", 0, "Concurrent agent workers (overrides LAUNCH_MAX_JOBS)")

	agentCmd.Flags().String("room", "", "Room to join")
	agentCmd.Flags().String("plan", "", "Interview plan YAML file (overrides INTERVIEW_PLAN_JSON)")
	agentCmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address")
	agentCmd.MarkFlagRequired("room")

	tokenCmd.Flags().String("name", "", "Participant identity (default \"my name\")")
	tokenCmd.Flags().String("room", "", "Room to grant; generated when empty")

	planShowCmd.Flags().String("file", "", "Plan YAML file (default INTERVIEW_PLAN_FILE or built-in plan)")
	planShowCmd.Flags().String("company", "", "Company to apply to the plan")
	planShowCmd.Flags().Bool("prompt", false, "Print the rendered system prompt instead of YAML")
	planValidateCmd.Flags().String("file", "", "Plan YAML file")
	planValidateCmd.MarkFlagRequired("file")

	turnDownloadCmd.Flags().String("model", "", "Model to download (english|multilingual); all when empty")
	turnPredictCmd.Flags().String("model", "english", "Detector to use (english|multilingual|remote)")
	turnPredictCmd.Flags().Float64("threshold", 0, "Override threshold for end-of-turn decision")
	turnPredictCmd.Flags().String("language", "", "Language hint for detection optimization")
	turnPredictCmd.Flags().String("remote-url", "", "Override LIVEKIT_REMOTE_EOT_URL")

	pluginTranscribeCmd.Flags().String("file", "", "Path to WAV file to process")
	pluginTranscribeCmd.Flags().String("provider", "fake", "STT provider to use")
	pluginTranscribeCmd.MarkFlagRequired("file")

	roomsCmd.AddCommand(roomsListCmd, roomsGenerateCmd)
	planCmd.AddCommand(planShowCmd, planValidateCmd)
	turnCmd.AddCommand(turnDownloadCmd, turnPredictCmd)
	pluginCmd.AddCommand(pluginListCmd, pluginTranscribeCmd)
	rootCmd.AddCommand(versionCmd, serveCmd, agentCmd, tokenCmd, roomsCmd, planCmd, turnCmd, pluginCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
