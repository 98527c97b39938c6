package openai

import (
	"os"

	"github.com/chriscow/interview-agent/pkg/ai"
	"github.com/chriscow/interview-agent/pkg/plugin"
	openai "github.com/sashabaranov/go-openai"
)

func newOpenAISTT(cfg map[string]any) (any, error) {
	return NewWhisperSTT(configFrom(cfg),
		plugin.String(cfg, "model", openai.Whisper1),
		plugin.String(cfg, "language", ""))
}

func newOpenAILLM(cfg map[string]any) (any, error) {
	return NewLLM(configFrom(cfg), plugin.String(cfg, "model", os.Getenv("LLM_MODEL")))
}

func newOpenAITTS(cfg map[string]any) (any, error) {
	return NewTTS(configFrom(cfg),
		plugin.String(cfg, "model", string(openai.TTSModel1)),
		plugin.String(cfg, "voice", string(openai.VoiceAlloy)),
		plugin.Float(cfg, "speed", 1.0))
}

func init() {
	plugin.Register(&plugin.Plugin{
		Kind:        ai.KindSTT,
		Name:        ProviderName,
		Factory:     newOpenAISTT,
		Description: "OpenAI Whisper speech-to-text service",
		Version:     "1.0.0",
		Config: map[string]any{
			"api_key":  "OpenAI API key (or set OPENAI_API_KEY env var)",
			"base_url": "API base URL (or set OPENAI_BASE_URL env var)",
			"model":    openai.Whisper1,
			"language": "auto-detect (leave empty) or specify language code",
		},
	})

	plugin.Register(&plugin.Plugin{
		Kind:        ai.KindLLM,
		Name:        ProviderName,
		Factory:     newOpenAILLM,
		Description: "OpenAI chat completion service",
		Version:     "1.0.0",
		Config: map[string]any{
			"api_key":  "OpenAI API key (or set OPENAI_API_KEY env var)",
			"base_url": "API base URL (or set OPENAI_BASE_URL env var)",
			"model":    DefaultLLMModel,
		},
	})

	plugin.Register(&plugin.Plugin{
		Kind:        ai.KindTTS,
		Name:        ProviderName,
		Factory:     newOpenAITTS,
		Description: "OpenAI text-to-speech service (24 kHz PCM)",
		Version:     "1.0.0",
		Config: map[string]any{
			"api_key":  "OpenAI API key (or set OPENAI_API_KEY env var)",
			"base_url": "API base URL (or set OPENAI_BASE_URL env var)",
			"model":    string(openai.TTSModel1),
			"voice":    string(openai.VoiceAlloy),
			"speed":    1.0,
		},
	})
}
