package fake

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/chriscow/interview-agent/pkg/ai/tts"
	"github.com/chriscow/interview-agent/pkg/rtc"
)

const (
	// SampleRate is the output sample rate of the fake provider.
	SampleRate = 24000
	// FramesPerWord controls how much audio each word of input produces.
	FramesPerWord = 5
)

// FakeTTS is a fake TTS implementation for testing. It renders a quiet sine tone
// whose length is proportional to the word count of the input.
type FakeTTS struct {
	// Pace is the pause between frames; zero emits frames as fast as they are read.
	Pace time.Duration

	mu    sync.Mutex
	texts []string
	err   error
}

// NewFakeTTS creates a new fake TTS provider.
func NewFakeTTS() *FakeTTS {
	return &FakeTTS{}
}

// FailWith makes every subsequent synthesis report err on its error channel.
func (f *FakeTTS) FailWith(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// Texts returns every text synthesized so far.
func (f *FakeTTS) Texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.texts))
	copy(out, f.texts)
	return out
}

// Synthesize generates sine-wave frames for the given text.
func (f *FakeTTS) Synthesize(ctx context.Context, req tts.SynthesizeRequest) (<-chan rtc.AudioFrame, <-chan error, error) {
	f.mu.Lock()
	f.texts = append(f.texts, req.Text)
	failure := f.err
	f.mu.Unlock()

	output := make(chan rtc.AudioFrame, 10)
	errs := make(chan error, 1)

	go func() {
		defer close(errs)
		defer close(output)

		if failure != nil {
			errs <- failure
			return
		}

		words := 0
		inWord := false
		for _, r := range req.Text {
			if r == ' ' || r == '\n' || r == '\t' {
				inWord = false
				continue
			}
			if !inWord {
				words++
				inWord = true
			}
		}

		samples := make([]int16, words*FramesPerWord*SampleRate/100)
		for i := range samples {
			samples[i] = int16(0.3 * 32767 * math.Sin(2*math.Pi*440*float64(i)/SampleRate))
		}

		for _, frame := range rtc.SplitPCM(samples, SampleRate, 1, 0) {
			select {
			case output <- frame:
			case <-ctx.Done():
				return
			}
			if f.Pace > 0 {
				select {
				case <-time.After(f.Pace):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return output, errs, nil
}
