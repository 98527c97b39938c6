// Package openai provides the chat completion LLM, Whisper STT and speech TTS providers
// backed by the OpenAI API.
package openai

import (
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/chriscow/interview-agent/pkg/ai"
	"github.com/chriscow/interview-agent/pkg/plugin"
	openai "github.com/sashabaranov/go-openai"
)

// ProviderName is the name every OpenAI provider registers under.
const ProviderName = "openai"

// ErrMissingAPIKey is returned when neither the config nor OPENAI_API_KEY holds a key.
var ErrMissingAPIKey = errors.New("OpenAI API key is required (set OPENAI_API_KEY or api_key)")

// Config holds the connection settings shared by all providers.
type Config struct {
	APIKey  string
	BaseURL string // optional; points the client at a compatible endpoint
}

func (c Config) client() (*openai.Client, error) {
	key := c.APIKey
	if key == "" {
		key = os.Getenv("OPENAI_API_KEY")
	}
	if key == "" {
		return nil, ErrMissingAPIKey
	}
	cc := openai.DefaultConfig(key)
	if c.BaseURL != "" {
		cc.BaseURL = c.BaseURL
	}
	return openai.NewClientWithConfig(cc), nil
}

func configFrom(cfg map[string]any) Config {
	return Config{
		APIKey:  plugin.String(cfg, "api_key", ""),
		BaseURL: plugin.String(cfg, "base_url", os.Getenv("OPENAI_BASE_URL")),
	}
}

// classify wraps an API failure as a ProviderError. Rate limits and server-side
// failures are marked recoverable.
func classify(kind ai.Kind, err error) error {
	if err == nil {
		return nil
	}
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	if status == http.StatusTooManyRequests || status >= http.StatusInternalServerError {
		err = ai.Recoverable(err)
	}
	return ai.NewProviderError(kind, ProviderName, fmt.Errorf("%s request: %w", kind, err))
}
