package fake

import (
	"context"
	"time"

	"github.com/chriscow/interview-agent/pkg/ai/vad"
	"github.com/chriscow/interview-agent/pkg/rtc"
)

// FakeVAD is a scripted VAD for testing. Audio frames are consumed and discarded;
// events are produced only when the test calls StartSpeech or EndSpeech.
type FakeVAD struct {
	events chan vad.VADEvent
}

// NewFakeVAD creates a new fake VAD provider.
func NewFakeVAD() *FakeVAD {
	return &FakeVAD{events: make(chan vad.VADEvent, 16)}
}

// StartSpeech emits a speech start event.
func (f *FakeVAD) StartSpeech() {
	f.events <- vad.VADEvent{Type: vad.VADEventSpeechStart, Timestamp: time.Now()}
}

// EndSpeech emits a speech end event.
func (f *FakeVAD) EndSpeech() {
	f.events <- vad.VADEvent{Type: vad.VADEventSpeechEnd, Timestamp: time.Now()}
}

// Fail emits an error event.
func (f *FakeVAD) Fail(err error) {
	f.events <- vad.VADEvent{Type: vad.VADEventError, Timestamp: time.Now(), Error: err}
}

// Detect forwards scripted events until frames is closed or ctx is cancelled.
func (f *FakeVAD) Detect(ctx context.Context, frames <-chan rtc.AudioFrame) (<-chan vad.VADEvent, error) {
	output := make(chan vad.VADEvent, 16)

	go func() {
		defer close(output)
		for {
			select {
			case _, ok := <-frames:
				if !ok {
					return
				}
			case ev := <-f.events:
				select {
				case output <- ev:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return output, nil
}
