package tts

import (
	"context"

	"github.com/chriscow/interview-agent/pkg/rtc"
)

// SynthesizeRequest contains parameters for text-to-speech synthesis.
type SynthesizeRequest struct {
	Text     string
	Voice    string
	Language string
	Speed    float32
}

// TTS is the main interface for text-to-speech providers.
type TTS interface {
	// Synthesize converts text to 10 ms PCM frames.
	// The frame channel closes when synthesis is complete. A failure during streaming is
	// reported on the error channel, which carries at most one value and closes with the
	// frame channel.
	Synthesize(ctx context.Context, req SynthesizeRequest) (<-chan rtc.AudioFrame, <-chan error, error)
}
