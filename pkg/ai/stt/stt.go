// Package stt provides interfaces and types for speech-to-text providers.
// A stream accepts 10 ms audio frames and emits interim and final transcripts.
package stt

import (
	"context"

	"github.com/chriscow/interview-agent/pkg/rtc"
)

// StreamConfig contains configuration for STT streams.
type StreamConfig struct {
	SampleRate  int
	NumChannels int
	Lang        string
}

// SpeechEventType represents the type of speech recognition event.
type SpeechEventType int

const (
	// SpeechEventInterim represents partial transcription results that may change
	SpeechEventInterim SpeechEventType = iota
	// SpeechEventFinal represents final transcription results that won't change
	SpeechEventFinal
	// SpeechEventError represents transcription errors
	SpeechEventError
)

// SpeechEvent represents a speech recognition event containing transcription results or errors.
type SpeechEvent struct {
	Type     SpeechEventType
	Text     string
	Language string
	Error    error // only set for SpeechEventError
}

// STT is the main interface for speech-to-text providers.
type STT interface {
	// NewStream creates a new streaming STT session.
	NewStream(ctx context.Context, cfg StreamConfig) (STTStream, error)
}

// STTStream represents an active STT streaming session.
type STTStream interface {
	// Push sends an audio frame for processing.
	Push(frame rtc.AudioFrame) error

	// Events returns a channel of speech recognition events. It is closed after the
	// final (or error) event that follows CloseSend.
	Events() <-chan SpeechEvent

	// CloseSend signals that no more audio will be sent and flushes any pending data.
	CloseSend() error
}
