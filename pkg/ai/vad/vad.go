package vad

import (
	"context"
	"time"

	"github.com/chriscow/interview-agent/pkg/rtc"
)

// VADEventType represents the type of VAD event.
type VADEventType int

const (
	VADEventSpeechStart VADEventType = iota
	VADEventSpeechEnd
	VADEventError
)

// VADEvent represents a voice activity detection event.
type VADEvent struct {
	Type      VADEventType
	Timestamp time.Time
	Error     error
}

// VAD is the interface for voice activity detection providers.
type VAD interface {
	// Detect processes audio frames and returns VAD events.
	// The returned channel will be closed when the input channel is closed or context is cancelled.
	Detect(ctx context.Context, frames <-chan rtc.AudioFrame) (<-chan VADEvent, error)
}
