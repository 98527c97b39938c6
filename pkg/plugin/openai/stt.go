package openai

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/chriscow/interview-agent/pkg/ai"
	"github.com/chriscow/interview-agent/pkg/ai/stt"
	"github.com/chriscow/interview-agent/pkg/audio/wav"
	"github.com/chriscow/interview-agent/pkg/rtc"
	openai "github.com/sashabaranov/go-openai"
)

// MinTranscribeDuration is the shortest utterance sent to Whisper; shorter
// buffers yield an empty final transcript.
const MinTranscribeDuration = 100 * time.Millisecond

// ErrStreamClosed is returned by Push and CloseSend after CloseSend.
var ErrStreamClosed = errors.New("stt stream closed")

// WhisperSTT implements stt.STT with the transcription API. Whisper is not a streaming
// recognizer, so each stream buffers the utterance and transcribes it on CloseSend.
type WhisperSTT struct {
	client   *openai.Client
	model    string
	language string
}

// NewWhisperSTT creates a Whisper provider. An empty language lets Whisper auto-detect
// unless the stream config names one.
func NewWhisperSTT(cfg Config, model, language string) (*WhisperSTT, error) {
	client, err := cfg.client()
	if err != nil {
		return nil, err
	}
	if model == "" {
		model = openai.Whisper1
	}
	return &WhisperSTT{client: client, model: model, language: language}, nil
}

// NewStream opens a buffered transcription session.
func (w *WhisperSTT) NewStream(ctx context.Context, cfg stt.StreamConfig) (stt.STTStream, error) {
	lang := w.language
	if lang == "" {
		lang = cfg.Lang
	}
	// Whisper takes ISO-639-1 codes
	if i := strings.IndexByte(lang, '-'); i > 0 {
		lang = lang[:i]
	}
	return &whisperStream{
		stt:    w,
		ctx:    ctx,
		lang:   strings.ToLower(lang),
		events: make(chan stt.SpeechEvent, 1),
	}, nil
}

type whisperStream struct {
	stt  *WhisperSTT
	ctx  context.Context
	lang string

	mu     sync.Mutex
	frames []rtc.AudioFrame
	closed bool

	events chan stt.SpeechEvent
}

func (s *whisperStream) Push(frame rtc.AudioFrame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStreamClosed
	}
	s.frames = append(s.frames, frame)
	return nil
}

func (s *whisperStream) Events() <-chan stt.SpeechEvent {
	return s.events
}

func (s *whisperStream) CloseSend() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrStreamClosed
	}
	s.closed = true
	frames := s.frames
	s.frames = nil
	s.mu.Unlock()

	go s.finish(frames)
	return nil
}

func (s *whisperStream) finish(frames []rtc.AudioFrame) {
	defer close(s.events)

	ev := s.transcribe(frames)
	select {
	case s.events <- ev:
	case <-s.ctx.Done():
	}
}

func (s *whisperStream) transcribe(frames []rtc.AudioFrame) stt.SpeechEvent {
	if time.Duration(len(frames))*rtc.FrameDuration < MinTranscribeDuration {
		return stt.SpeechEvent{Type: stt.SpeechEventFinal, Language: s.lang}
	}

	data, err := wav.EncodeBytes(frames)
	if err != nil {
		return stt.SpeechEvent{Type: stt.SpeechEventError, Error: ai.NewProviderError(ai.KindSTT, ProviderName, err)}
	}

	start := time.Now()
	resp, err := s.stt.client.CreateTranscription(s.ctx, openai.AudioRequest{
		Model:    s.stt.model,
		Language: s.lang,
		Format:   openai.AudioResponseFormatJSON,
		Reader:   bytes.NewReader(data),
		FilePath: "audio.wav",
	})
	if err != nil {
		return stt.SpeechEvent{Type: stt.SpeechEventError, Error: classify(ai.KindSTT, err)}
	}

	slog.Debug("Whisper transcription",
		slog.Int("frames", len(frames)),
		slog.Int("chars", len(resp.Text)),
		slog.Duration("duration", time.Since(start)))

	lang := resp.Language
	if lang == "" {
		lang = s.lang
	}
	return stt.SpeechEvent{Type: stt.SpeechEventFinal, Text: strings.TrimSpace(resp.Text), Language: lang}
}
