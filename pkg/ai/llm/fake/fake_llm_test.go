package fake

import (
	"context"
	"errors"
	"testing"

	"github.com/chriscow/interview-agent/pkg/ai/llm"
	"github.com/matryer/is"
)

func TestFakeLLMChat(t *testing.T) {
	is := is.New(t)
	provider := NewFakeLLM("first", "second")
	ctx := context.Background()

	req := llm.ChatRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "be brief"},
			{Role: llm.RoleUser, Content: "Hello"},
		},
	}

	for _, want := range []string{"first", "second", "second"} {
		resp, err := provider.Chat(ctx, req)
		is.NoErr(err)
		is.Equal(resp.Message.Role, llm.RoleAssistant)
		is.Equal(resp.Message.Content, want)
		is.True(resp.TokensUsed > 0)
	}

	reqs := provider.Requests()
	is.Equal(len(reqs), 3)
	is.Equal(reqs[0].Messages[0].Role, llm.RoleSystem)
}

func TestFakeLLMRequestsAreCopied(t *testing.T) {
	is := is.New(t)
	provider := NewFakeLLM()

	msgs := []llm.Message{{Role: llm.RoleUser, Content: "one"}}
	_, err := provider.Chat(context.Background(), llm.ChatRequest{Messages: msgs})
	is.NoErr(err)

	msgs[0].Content = "mutated"
	is.Equal(provider.Requests()[0].Messages[0].Content, "one")
}

func TestFakeLLMFailWith(t *testing.T) {
	is := is.New(t)
	provider := NewFakeLLM()
	boom := errors.New("boom")
	provider.FailWith(boom)

	_, err := provider.Chat(context.Background(), llm.ChatRequest{})
	is.True(errors.Is(err, boom))
}

func TestFakeLLMContextCancellation(t *testing.T) {
	is := is.New(t)
	provider := NewFakeLLM()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := provider.Chat(ctx, llm.ChatRequest{})
	is.True(errors.Is(err, context.Canceled))
	is.Equal(len(provider.Requests()), 0)
}
