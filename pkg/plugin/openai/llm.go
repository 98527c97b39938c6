package openai

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/chriscow/interview-agent/pkg/ai"
	"github.com/chriscow/interview-agent/pkg/ai/llm"
	openai "github.com/sashabaranov/go-openai"
)

// DefaultLLMModel is the chat model used when none is configured.
const DefaultLLMModel = openai.GPT4oMini

// LLM implements llm.LLM with the chat completions API.
type LLM struct {
	client *openai.Client
	model  string
}

// NewLLM creates a chat completion provider.
func NewLLM(cfg Config, model string) (*LLM, error) {
	client, err := cfg.client()
	if err != nil {
		return nil, err
	}
	if model == "" {
		model = DefaultLLMModel
	}
	return &LLM{client: client, model: model}, nil
}

// Chat sends the full history and returns the first choice.
func (o *LLM) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	start := time.Now()

	messages := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, msg := range req.Messages {
		messages[i] = openai.ChatCompletionMessage{Role: string(msg.Role), Content: msg.Content}
	}

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       o.model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return llm.ChatResponse{}, classify(ai.KindLLM, err)
	}
	if len(resp.Choices) == 0 {
		return llm.ChatResponse{}, ai.NewProviderError(ai.KindLLM, ProviderName, errors.New("no chat completion choices returned"))
	}

	choice := resp.Choices[0]
	slog.Debug("OpenAI chat completion",
		slog.String("model", o.model),
		slog.Int("messages", len(req.Messages)),
		slog.Int("tokens", resp.Usage.TotalTokens),
		slog.Duration("duration", time.Since(start)))

	return llm.ChatResponse{
		Message: llm.Message{
			Role:    llm.RoleAssistant,
			Content: choice.Message.Content,
		},
		TokensUsed:   resp.Usage.TotalTokens,
		FinishReason: string(choice.FinishReason),
	}, nil
}
