package room

import (
	"fmt"
	"log/slog"
	"sync"

	media "github.com/livekit/media-sdk"

	"github.com/chriscow/interview-agent/pkg/rtc"
)

// frameWriter receives decoded PCM from a remote track and re-chunks it into 10 ms
// frames. The decoder hands over samples in whatever sizes the codec produced, so a
// carry buffer holds the remainder between writes.
type frameWriter struct {
	sampleRate  int
	numChannels int
	out         chan<- rtc.AudioFrame
	logger      *slog.Logger

	mu      sync.Mutex
	carry   []int16
	dropped int
	closed  bool
}

func newFrameWriter(sampleRate, numChannels int, out chan<- rtc.AudioFrame, logger *slog.Logger) *frameWriter {
	return &frameWriter{
		sampleRate:  sampleRate,
		numChannels: numChannels,
		out:         out,
		logger:      logger,
	}
}

func (w *frameWriter) String() string {
	return fmt.Sprintf("frameWriter(%dHz/%dch)", w.sampleRate, w.numChannels)
}

func (w *frameWriter) SampleRate() int { return w.sampleRate }

// WriteSample appends sample to the carry buffer and emits every complete frame. Frames
// are dropped rather than blocking the decoder when the consumer falls behind.
func (w *frameWriter) WriteSample(sample media.PCM16Sample) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}

	per := w.sampleRate / 100 * w.numChannels
	w.carry = append(w.carry, sample...)
	for len(w.carry) >= per {
		frames := rtc.SplitPCM(w.carry[:per], w.sampleRate, w.numChannels, 0)
		w.carry = w.carry[per:]
		select {
		case w.out <- frames[0]:
		default:
			w.dropped++
			if w.dropped%100 == 1 {
				w.logger.Warn("Audio input channel is full, dropping frames",
					slog.Int("dropped", w.dropped))
			}
		}
	}
	// keep the backing array from growing without bound
	if len(w.carry) == 0 {
		w.carry = w.carry[:0:0]
	}
	return nil
}

// Close discards any partial frame. The output channel is owned by the Room.
func (w *frameWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	w.carry = nil
	return nil
}

// toPCM16 converts an outgoing frame into the sample type the local track accepts.
func toPCM16(f rtc.AudioFrame) media.PCM16Sample {
	return media.PCM16Sample(f.Samples())
}
