// Package fake registers the scripted fake providers so a worker can run end to end
// without external services.
package fake

import (
	"strings"

	"github.com/chriscow/interview-agent/pkg/ai"
	llmfake "github.com/chriscow/interview-agent/pkg/ai/llm/fake"
	sttfake "github.com/chriscow/interview-agent/pkg/ai/stt/fake"
	ttsfake "github.com/chriscow/interview-agent/pkg/ai/tts/fake"
	"github.com/chriscow/interview-agent/pkg/plugin"
	"github.com/chriscow/interview-agent/pkg/plugin/energy"
)

// Name is the registration name for every fake provider.
const Name = "fake"

func newFakeSTT(cfg map[string]any) (any, error) {
	return sttfake.NewFakeSTT(plugin.String(cfg, "transcript", "I have been writing Go for five years.")), nil
}

func newFakeTTS(cfg map[string]any) (any, error) {
	return ttsfake.NewFakeTTS(), nil
}

// The "responses" option takes a list ([]string or []any from YAML/JSON) or a single
// string with responses separated by "|".
func newFakeLLM(cfg map[string]any) (any, error) {
	responses := []string{
		"Thanks. Can you tell me about a project you are proud of?",
		"Great. How do you approach code review?",
	}
	switch r := cfg["responses"].(type) {
	case []string:
		responses = r
	case []any:
		responses = responses[:0]
		for _, v := range r {
			if s, ok := v.(string); ok {
				responses = append(responses, s)
			}
		}
	case string:
		responses = strings.Split(r, "|")
	}
	return llmfake.NewFakeLLM(responses...), nil
}

// The fake VAD is the energy detector: it reacts to whatever audio the fake STT and
// room see, which the scripted VAD cannot.
func newFakeVAD(cfg map[string]any) (any, error) {
	return energy.New(energy.Config{Threshold: plugin.Float(cfg, "threshold", energy.DefaultThreshold)}), nil
}

func init() {
	plugin.Register(&plugin.Plugin{
		Kind:        ai.KindSTT,
		Name:        Name,
		Factory:     newFakeSTT,
		Description: "Fake STT provider for testing and development",
		Version:     "1.0.0",
		Config:      map[string]any{"transcript": "Transcript returned for every utterance"},
	})

	plugin.Register(&plugin.Plugin{
		Kind:        ai.KindTTS,
		Name:        Name,
		Factory:     newFakeTTS,
		Description: "Fake TTS provider rendering a tone per word",
		Version:     "1.0.0",
		Config:      map[string]any{},
	})

	plugin.Register(&plugin.Plugin{
		Kind:        ai.KindLLM,
		Name:        Name,
		Factory:     newFakeLLM,
		Description: "Fake LLM provider replaying scripted replies",
		Version:     "1.0.0",
		Config:      map[string]any{"responses": "Replies separated by |"},
	})

	plugin.Register(&plugin.Plugin{
		Kind:        ai.KindVAD,
		Name:        Name,
		Factory:     newFakeVAD,
		Description: "Energy VAD registered under the fake name for development setups",
		Version:     "1.0.0",
		Config:      map[string]any{"threshold": energy.DefaultThreshold},
	})
}
