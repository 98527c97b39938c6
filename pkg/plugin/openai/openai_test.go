package openai

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/chriscow/interview-agent/pkg/ai"
	"github.com/chriscow/interview-agent/pkg/ai/llm"
	"github.com/chriscow/interview-agent/pkg/ai/stt"
	"github.com/chriscow/interview-agent/pkg/ai/tts"
	"github.com/chriscow/interview-agent/pkg/rtc"
	"github.com/matryer/is"
)

func testServer(t *testing.T, h http.HandlerFunc) Config {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return Config{APIKey: "test-key", BaseURL: srv.URL + "/v1"}
}

func TestConfig_MissingKey(t *testing.T) {
	is := is.New(t)
	t.Setenv("OPENAI_API_KEY", "")

	_, err := NewLLM(Config{}, "")
	is.True(errors.Is(err, ErrMissingAPIKey))
}

func TestLLM_Chat(t *testing.T) {
	is := is.New(t)

	type chatBody struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	bodies := make(chan chatBody, 1)
	cfg := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		var b chatBody
		_ = json.NewDecoder(r.Body).Decode(&b)
		bodies <- b
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"choices":[{"index":0,"message":{"role":"assistant","content":"Tell me about yourself."},"finish_reason":"stop"}],"usage":{"total_tokens":42}}`)
	})

	l, err := NewLLM(cfg, "")
	is.NoErr(err)

	resp, err := l.Chat(context.Background(), llm.ChatRequest{Messages: []llm.Message{
		{Role: llm.RoleSystem, Content: "You are an interviewer"},
		{Role: llm.RoleUser, Content: "Hi"},
	}})
	is.NoErr(err)
	is.Equal(resp.Message.Content, "Tell me about yourself.")
	is.Equal(resp.Message.Role, llm.RoleAssistant)
	is.Equal(resp.TokensUsed, 42)

	got := <-bodies
	is.Equal(got.Model, DefaultLLMModel)
	is.Equal(len(got.Messages), 2)
	is.Equal(got.Messages[0].Role, "system")
}

func TestLLM_ErrorClassification(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		recoverable bool
	}{
		{name: "rate limited", status: http.StatusTooManyRequests, recoverable: true},
		{name: "server error", status: http.StatusBadGateway, recoverable: true},
		{name: "bad key", status: http.StatusUnauthorized, recoverable: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			is := is.New(t)
			cfg := testServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, `{"error":{"message":"nope","type":"test"}}`)
			})
			l, err := NewLLM(cfg, "")
			is.NoErr(err)

			_, err = l.Chat(context.Background(), llm.ChatRequest{Messages: []llm.Message{{Role: llm.RoleUser, Content: "Hi"}}})

			var pe *ai.ProviderError
			is.True(errors.As(err, &pe))
			is.Equal(pe.Kind, ai.KindLLM)
			is.Equal(pe.Provider, ProviderName)
			is.Equal(ai.IsRecoverable(err), tt.recoverable)
		})
	}
}

func TestWhisperSTT_TranscribesOnCloseSend(t *testing.T) {
	is := is.New(t)

	type upload struct{ contentType, lang string }
	uploads := make(chan upload, 1)
	cfg := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/transcriptions" {
			http.NotFound(w, r)
			return
		}
		u := upload{contentType: r.Header.Get("Content-Type")}
		if err := r.ParseMultipartForm(1 << 20); err == nil {
			u.lang = r.FormValue("language")
		}
		uploads <- u
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"text":"  I have five years of Go experience. "}`)
	})

	s, err := NewWhisperSTT(cfg, "", "")
	is.NoErr(err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	stream, err := s.NewStream(ctx, stt.StreamConfig{SampleRate: 16000, NumChannels: 1, Lang: "en-US"})
	is.NoErr(err)

	for _, f := range rtc.SplitPCM(make([]int16, 16000), 16000, 1, 0) {
		is.NoErr(stream.Push(f))
	}
	is.NoErr(stream.CloseSend())
	is.True(errors.Is(stream.Push(rtc.SplitPCM(make([]int16, 160), 16000, 1, 0)[0]), ErrStreamClosed))

	var events []stt.SpeechEvent
	for ev := range stream.Events() {
		events = append(events, ev)
	}
	is.Equal(len(events), 1)
	is.Equal(events[0].Type, stt.SpeechEventFinal)
	is.Equal(events[0].Text, "I have five years of Go experience.")
	u := <-uploads
	is.True(strings.HasPrefix(u.contentType, "multipart/form-data"))
	is.Equal(u.lang, "en")
}

func TestWhisperSTT_ShortUtteranceSkipsAPI(t *testing.T) {
	is := is.New(t)
	calls := make(chan struct{}, 1)
	cfg := testServer(t, func(w http.ResponseWriter, r *http.Request) { calls <- struct{}{} })

	s, err := NewWhisperSTT(cfg, "", "en")
	is.NoErr(err)
	stream, err := s.NewStream(context.Background(), stt.StreamConfig{SampleRate: 16000, NumChannels: 1})
	is.NoErr(err)

	is.NoErr(stream.Push(rtc.SplitPCM(make([]int16, 160), 16000, 1, 0)[0]))
	is.NoErr(stream.CloseSend())

	ev := <-stream.Events()
	is.Equal(ev.Type, stt.SpeechEventFinal)
	is.Equal(ev.Text, "")
	is.Equal(len(calls), 0) // buffer never reached the API
}

func TestWhisperSTT_ErrorEvent(t *testing.T) {
	is := is.New(t)
	cfg := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"error":{"message":"down"}}`)
	})

	s, err := NewWhisperSTT(cfg, "", "")
	is.NoErr(err)
	stream, err := s.NewStream(context.Background(), stt.StreamConfig{SampleRate: 16000, NumChannels: 1})
	is.NoErr(err)
	for _, f := range rtc.SplitPCM(make([]int16, 3200), 16000, 1, 0) {
		is.NoErr(stream.Push(f))
	}
	is.NoErr(stream.CloseSend())

	ev := <-stream.Events()
	is.Equal(ev.Type, stt.SpeechEventError)
	var pe *ai.ProviderError
	is.True(errors.As(ev.Error, &pe))
	is.Equal(pe.Kind, ai.KindSTT)
}

func TestTTS_FramesPCM(t *testing.T) {
	is := is.New(t)

	// 25 ms of audio: two full frames and one padded frame
	pcm := make([]byte, TTSSampleRate/1000*25*2)
	for i := 0; i < len(pcm)/2; i++ {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(i))
	}

	formats := make(chan string, 1)
	cfg := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/speech" {
			http.NotFound(w, r)
			return
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		format, _ := body["response_format"].(string)
		formats <- format
		w.Header().Set("Content-Type", "audio/pcm")
		_, _ = w.Write(pcm)
	})

	s, err := NewTTS(cfg, "", "", 1.0)
	is.NoErr(err)

	frames, errs, err := s.Synthesize(context.Background(), tts.SynthesizeRequest{Text: "Hey, are you ready to start the interview?"})
	is.NoErr(err)

	var got []rtc.AudioFrame
	for f := range frames {
		got = append(got, f)
	}
	is.NoErr(<-errs)

	is.Equal(<-formats, "pcm")
	is.Equal(len(got), 3)
	for _, f := range got {
		is.Equal(len(f.Data), TTSSampleRate/100*2)
	}
	is.Equal(got[1].Samples()[0], int16(TTSSampleRate/100))
	is.Equal(got[2].Timestamp, 20*time.Millisecond)
	is.Equal(got[2].Samples()[TTSSampleRate/100-1], int16(0)) // padded tail
}

func TestTTS_Errors(t *testing.T) {
	is := is.New(t)
	cfg := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"message":"bad voice"}}`)
	})
	s, err := NewTTS(cfg, "", "", 0)
	is.NoErr(err)

	_, _, err = s.Synthesize(context.Background(), tts.SynthesizeRequest{})
	is.True(err != nil) // empty text rejected up front

	frames, errs, err := s.Synthesize(context.Background(), tts.SynthesizeRequest{Text: "hello"})
	is.NoErr(err)
	for range frames {
	}
	err = <-errs
	is.True(ai.IsFatal(err))
}
