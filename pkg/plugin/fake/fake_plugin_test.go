package fake

import (
	"context"
	"testing"

	"github.com/chriscow/interview-agent/pkg/ai/llm"
	"github.com/chriscow/interview-agent/pkg/plugin"
	"github.com/matryer/is"
)

func TestRegistered(t *testing.T) {
	is := is.New(t)
	r := plugin.Default()

	_, err := r.NewSTT(Name, nil)
	is.NoErr(err)
	_, err = r.NewTTS(Name, nil)
	is.NoErr(err)
	_, err = r.NewVAD(Name, nil)
	is.NoErr(err)

	l, err := r.NewLLM(Name, map[string]any{"responses": "first|second"})
	is.NoErr(err)

	ctx := context.Background()
	req := llm.ChatRequest{Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}}}
	first, err := l.Chat(ctx, req)
	is.NoErr(err)
	second, err := l.Chat(ctx, req)
	is.NoErr(err)
	is.Equal(first.Message.Content, "first")
	is.Equal(second.Message.Content, "second")
}

func TestLLMResponsesFromYAMLList(t *testing.T) {
	is := is.New(t)
	v, err := newFakeLLM(map[string]any{"responses": []any{"only"}})
	is.NoErr(err)

	resp, err := v.(llm.LLM).Chat(context.Background(), llm.ChatRequest{})
	is.NoErr(err)
	is.Equal(resp.Message.Content, "only")
}
