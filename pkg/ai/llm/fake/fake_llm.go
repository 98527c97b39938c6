package fake

import (
	"context"
	"strings"
	"sync"

	"github.com/chriscow/interview-agent/pkg/ai/llm"
)

// FakeLLM is a fake LLM implementation for testing. It replies with a scripted
// sequence of responses and records every request it receives.
type FakeLLM struct {
	mu        sync.Mutex
	responses []string
	requests  []llm.ChatRequest
	err       error
}

// NewFakeLLM creates a new fake LLM provider with predefined responses.
// Once the script is exhausted the last response is repeated.
func NewFakeLLM(responses ...string) *FakeLLM {
	if len(responses) == 0 {
		responses = []string{"This is a fake response from the fake LLM provider."}
	}
	return &FakeLLM{responses: responses}
}

// FailWith makes every subsequent Chat call return err.
func (f *FakeLLM) FailWith(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// Chat returns the next scripted response.
func (f *FakeLLM) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	if err := ctx.Err(); err != nil {
		return llm.ChatResponse{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	msgs := make([]llm.Message, len(req.Messages))
	copy(msgs, req.Messages)
	req.Messages = msgs
	f.requests = append(f.requests, req)

	if f.err != nil {
		return llm.ChatResponse{}, f.err
	}

	idx := min(len(f.requests)-1, len(f.responses)-1)
	response := f.responses[idx]

	return llm.ChatResponse{
		Message: llm.Message{
			Role:    llm.RoleAssistant,
			Content: response,
		},
		TokensUsed:   len(strings.Fields(response)) + 10,
		FinishReason: "stop",
	}, nil
}

// Requests returns a copy of the requests received so far.
func (f *FakeLLM) Requests() []llm.ChatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]llm.ChatRequest, len(f.requests))
	copy(out, f.requests)
	return out
}
