package turn

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/chriscow/interview-agent/pkg/ai/llm"
)

// RemoteTimeout bounds a single remote inference call.
const RemoteTimeout = 2 * time.Second

// RemoteDetector asks an HTTP inference endpoint for the EOU probability and
// falls back to a local detector when the endpoint fails.
type RemoteDetector struct {
	endpoint   string
	httpClient *http.Client
	fallback   Detector
	logger     *slog.Logger
}

// NewRemoteDetector creates a remote detector. fallback may be nil.
func NewRemoteDetector(endpoint string, fallback Detector, logger *slog.Logger) *RemoteDetector {
	if logger == nil {
		logger = slog.Default()
	}
	return &RemoteDetector{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: RemoteTimeout},
		fallback:   fallback,
		logger:     logger,
	}
}

// RemoteRequest is the payload sent to the endpoint.
type RemoteRequest struct {
	Messages []llm.Message `json:"messages"`
	Language string        `json:"language,omitempty"`
}

// RemoteResponse is the endpoint's reply.
type RemoteResponse struct {
	Probability float64 `json:"eou_probability"`
	Error       string  `json:"error,omitempty"`
}

// UnlikelyThreshold delegates to the fallback, or uses DefaultThreshold.
func (d *RemoteDetector) UnlikelyThreshold(language string) (float64, error) {
	if d.fallback != nil && d.fallback.SupportsLanguage(language) {
		return d.fallback.UnlikelyThreshold(language)
	}
	return DefaultThreshold, nil
}

// SupportsLanguage assumes the endpoint handles every language.
func (d *RemoteDetector) SupportsLanguage(string) bool { return true }

// PredictEndOfTurn posts the chat context to the endpoint.
func (d *RemoteDetector) PredictEndOfTurn(ctx context.Context, chatCtx ChatContext) (float64, error) {
	prob, err := d.predict(ctx, chatCtx)
	if err == nil {
		return prob, nil
	}
	if d.fallback == nil || ctx.Err() != nil {
		return 0, fmt.Errorf("remote turn detection: %w", err)
	}
	d.logger.Warn("remote turn detection failed, using local model", slog.String("error", err.Error()))
	return d.fallback.PredictEndOfTurn(ctx, chatCtx)
}

func (d *RemoteDetector) predict(ctx context.Context, chatCtx ChatContext) (float64, error) {
	body, err := json.Marshal(RemoteRequest{Messages: chatCtx.Messages, Language: chatCtx.Language})
	if err != nil {
		return 0, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "interview-agent/turn-detector")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return 0, fmt.Errorf("HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var out RemoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("decode response: %w", err)
	}
	if out.Error != "" {
		return 0, fmt.Errorf("remote error: %s", out.Error)
	}
	if out.Probability < 0 || out.Probability > 1 {
		return 0, fmt.Errorf("invalid probability: %f", out.Probability)
	}
	return out.Probability, nil
}
