package fake

import (
	"context"
	"errors"
	"sync"

	"github.com/chriscow/interview-agent/pkg/ai/stt"
	"github.com/chriscow/interview-agent/pkg/rtc"
)

const (
	// InterimResultFrameInterval controls how often interim results are sent
	InterimResultFrameInterval = 10
	// DefaultTranscript is used when no transcript is provided
	DefaultTranscript = "This is a fake transcript from the fake STT provider."
)

// ErrStreamClosed is returned by Push after CloseSend.
var ErrStreamClosed = errors.New("stt stream is closed")

// FakeSTT is a fake STT implementation for testing. Each stream produces the next
// transcript of the script as its final result; the last one is repeated.
type FakeSTT struct {
	mu          sync.Mutex
	transcripts []string
	streams     int
	err         error
}

// NewFakeSTT creates a new fake STT provider with scripted transcripts.
func NewFakeSTT(transcripts ...string) *FakeSTT {
	if len(transcripts) == 0 {
		transcripts = []string{DefaultTranscript}
	}
	return &FakeSTT{transcripts: transcripts}
}

// FailWith makes every subsequent NewStream call return err.
func (f *FakeSTT) FailWith(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// Streams returns the number of streams opened so far.
func (f *FakeSTT) Streams() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.streams
}

// NewStream creates a new fake STT stream.
func (f *FakeSTT) NewStream(ctx context.Context, cfg stt.StreamConfig) (stt.STTStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	transcript := f.transcripts[min(f.streams, len(f.transcripts)-1)]
	f.streams++

	return &FakeSTTStream{
		transcript: transcript,
		events:     make(chan stt.SpeechEvent, 16),
		ctx:        ctx,
	}, nil
}

// FakeSTTStream is a fake STT stream implementation.
type FakeSTTStream struct {
	mu         sync.Mutex
	transcript string
	events     chan stt.SpeechEvent
	ctx        context.Context
	frameCount int
	closed     bool
}

// Push counts the frame and occasionally emits an interim result.
func (s *FakeSTTStream) Push(frame rtc.AudioFrame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStreamClosed
	}

	s.frameCount++
	if s.frameCount%InterimResultFrameInterval != 0 {
		return nil
	}

	n := min(len(s.transcript), s.frameCount/2)
	select {
	case s.events <- stt.SpeechEvent{Type: stt.SpeechEventInterim, Text: s.transcript[:n], Language: "en"}:
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
		// interim results are best effort
	}
	return nil
}

// Events returns the events channel.
func (s *FakeSTTStream) Events() <-chan stt.SpeechEvent {
	return s.events
}

// CloseSend sends the final transcript and closes the events channel.
func (s *FakeSTTStream) CloseSend() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	defer close(s.events)

	select {
	case s.events <- stt.SpeechEvent{Type: stt.SpeechEventFinal, Text: s.transcript, Language: "en"}:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	}
}
