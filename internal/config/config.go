// Package config loads runtime settings for the launcher and the agent worker.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/chriscow/interview-agent/pkg/interview"
	"github.com/chriscow/interview-agent/pkg/turn"
)

// ErrMissing is returned when a required setting is absent.
var ErrMissing = errors.New("missing required configuration")

// EnvFile is the optional dotenv file read before the process environment is parsed.
const EnvFile = ".env.local"

// Config contains all runtime settings.
type Config struct {
	LiveKitURL       string
	LiveKitAPIKey    string
	LiveKitAPISecret string

	HTTPAddr           string
	ShutdownTimeout    time.Duration
	TokenTTL           time.Duration
	CORSAllowedOrigins []string
	LaunchMaxJobs      int
	MetricsNamespace   string

	InterviewPlanFile string

	OpenAIAPIKey string
	LLMModel     string
	STTProvider  string
	TTSProvider  string
	LLMProvider  string
	VADProvider  string
	Language     string
	Voice        string

	TurnDetector string
	RemoteEOTURL string
	ModelPath    string

	JoinTimeout time.Duration
}

// LoadEnvFile reads dotenv files into the environment without overriding variables that
// are already set. Missing files are ignored.
func LoadEnvFile(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{EnvFile}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads environment variables and applies defaults. Which settings are required
// depends on the command, see RequireLiveKit.
func Load() (Config, error) {
	cfg := Config{
		LiveKitURL:       stringsTrimSpace("LIVEKIT_URL"),
		LiveKitAPIKey:    stringsTrimSpace("LIVEKIT_API_KEY"),
		LiveKitAPISecret: stringsTrimSpace("LIVEKIT_API_SECRET"),

		HTTPAddr:           envOrDefault("HTTP_ADDR", ":5001"),
		CORSAllowedOrigins: listFromEnv("CORS_ALLOWED_ORIGINS", []string{"*"}),
		MetricsNamespace:   envOrDefault("METRICS_NAMESPACE", "interviewer"),
		InterviewPlanFile:  stringsTrimSpace("INTERVIEW_PLAN_FILE"),

		OpenAIAPIKey: stringsTrimSpace("OPENAI_API_KEY"),
		LLMModel:     envOrDefault("LLM_MODEL", "gpt-4o-mini"),
		STTProvider:  envOrDefault("STT_PROVIDER", "openai"),
		TTSProvider:  envOrDefault("TTS_PROVIDER", "openai"),
		LLMProvider:  envOrDefault("LLM_PROVIDER", "openai"),
		VADProvider:  envOrDefault("VAD_PROVIDER", "energy"),
		Language:     envOrDefault("AGENT_LANGUAGE", "en-US"),
		Voice:        stringsTrimSpace("TTS_VOICE"),

		TurnDetector: envOrDefault("TURN_DETECTOR", turn.KindEnglish),
		RemoteEOTURL: stringsTrimSpace("LIVEKIT_REMOTE_EOT_URL"),
		ModelPath:    envOrDefault("LK_MODEL_PATH", turn.DefaultModelPath()),

		ShutdownTimeout: 15 * time.Second,
		TokenTTL:        6 * time.Hour,
		LaunchMaxJobs:   8,
		JoinTimeout:     10 * time.Minute,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.TokenTTL, err = durationFromEnv("TOKEN_TTL", cfg.TokenTTL)
	if err != nil {
		return Config{}, err
	}
	cfg.JoinTimeout, err = durationFromEnv("AGENT_JOIN_TIMEOUT", cfg.JoinTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.LaunchMaxJobs, err = intFromEnv("LAUNCH_MAX_JOBS", cfg.LaunchMaxJobs)
	if err != nil {
		return Config{}, err
	}

	if cfg.TokenTTL <= 0 {
		return Config{}, fmt.Errorf("TOKEN_TTL must be positive")
	}
	if cfg.LaunchMaxJobs <= 0 {
		return Config{}, fmt.Errorf("LAUNCH_MAX_JOBS must be positive")
	}
	if cfg.JoinTimeout < 0 {
		return Config{}, fmt.Errorf("AGENT_JOIN_TIMEOUT must be >= 0")
	}
	switch cfg.TurnDetector {
	case turn.KindEnglish, turn.KindMultilingual, turn.KindRemote, turn.KindNone:
	default:
		return Config{}, fmt.Errorf("TURN_DETECTOR %q is not one of english|multilingual|remote|none", cfg.TurnDetector)
	}

	return cfg, nil
}

// RequireLiveKit reports which LiveKit settings are missing.
func (c Config) RequireLiveKit() error {
	var missing []string
	if c.LiveKitURL == "" {
		missing = append(missing, "LIVEKIT_URL")
	}
	if c.LiveKitAPIKey == "" {
		missing = append(missing, "LIVEKIT_API_KEY")
	}
	if c.LiveKitAPISecret == "" {
		missing = append(missing, "LIVEKIT_API_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissing, strings.Join(missing, ", "))
	}
	return nil
}

// Plan returns the base interview plan: the plan file when configured, the defaults
// otherwise.
func (c Config) Plan() (interview.Plan, error) {
	if c.InterviewPlanFile == "" {
		return interview.Default(), nil
	}
	return interview.Load(c.InterviewPlanFile)
}

func envOrDefault(key, fallback string) string {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func listFromEnv(key string, fallback []string) []string {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}
