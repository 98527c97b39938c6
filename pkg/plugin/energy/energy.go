// Package energy provides a frame-energy voice activity detector. It thresholds the RMS
// level of each 10 ms frame with start and hangover counts to debounce speech edges.
package energy

import (
	"context"
	"encoding/binary"
	"math"
	"time"

	"github.com/chriscow/interview-agent/pkg/ai"
	"github.com/chriscow/interview-agent/pkg/ai/vad"
	"github.com/chriscow/interview-agent/pkg/plugin"
	"github.com/chriscow/interview-agent/pkg/rtc"
)

const (
	DefaultThreshold     = 0.02
	DefaultStartFrames   = 3  // 30 ms of speech opens a segment
	DefaultSilenceFrames = 30 // 300 ms of silence closes it
)

// Config tunes the detector. Zero values take the defaults.
type Config struct {
	Threshold     float64 // normalized RMS in [0,1]
	StartFrames   int
	SilenceFrames int
}

// VAD implements vad.VAD on frame energy.
type VAD struct {
	cfg Config
	now func() time.Time
}

// New creates an energy detector.
func New(cfg Config) *VAD {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.StartFrames <= 0 {
		cfg.StartFrames = DefaultStartFrames
	}
	if cfg.SilenceFrames <= 0 {
		cfg.SilenceFrames = DefaultSilenceFrames
	}
	return &VAD{cfg: cfg, now: time.Now}
}

// Detect consumes frames and emits speech start/end events until frames closes or ctx ends.
// An open segment is closed with a final SpeechEnd when the input ends.
func (v *VAD) Detect(ctx context.Context, frames <-chan rtc.AudioFrame) (<-chan vad.VADEvent, error) {
	events := make(chan vad.VADEvent, 8)
	go func() {
		defer close(events)

		emit := func(t vad.VADEventType) bool {
			select {
			case events <- vad.VADEvent{Type: t, Timestamp: v.now()}:
				return true
			case <-ctx.Done():
				return false
			}
		}

		var speaking bool
		var voiced, silent int
		for {
			select {
			case <-ctx.Done():
				return
			case frame, ok := <-frames:
				if !ok {
					if speaking {
						emit(vad.VADEventSpeechEnd)
					}
					return
				}

				if RMS(frame.Data) > v.cfg.Threshold {
					voiced++
					silent = 0
					if !speaking && voiced >= v.cfg.StartFrames {
						speaking = true
						if !emit(vad.VADEventSpeechStart) {
							return
						}
					}
					continue
				}

				silent++
				voiced = 0
				if speaking && silent >= v.cfg.SilenceFrames {
					speaking = false
					if !emit(vad.VADEventSpeechEnd) {
						return
					}
				}
			}
		}
	}()
	return events, nil
}

// RMS returns the normalized root-mean-square level of 16-bit little-endian PCM.
func RMS(data []byte) float64 {
	n := len(data) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		s := float64(int16(binary.LittleEndian.Uint16(data[i*2:])))
		sum += s * s
	}
	return math.Sqrt(sum/float64(n)) / 32768.0
}

func newEnergyVAD(cfg map[string]any) (any, error) {
	return New(Config{
		Threshold:     plugin.Float(cfg, "threshold", DefaultThreshold),
		StartFrames:   int(plugin.Float(cfg, "start_frames", DefaultStartFrames)),
		SilenceFrames: int(plugin.Float(cfg, "silence_frames", DefaultSilenceFrames)),
	}), nil
}

func init() {
	plugin.Register(&plugin.Plugin{
		Kind:        ai.KindVAD,
		Name:        "energy",
		Factory:     newEnergyVAD,
		Description: "Frame-energy voice activity detector",
		Version:     "1.0.0",
		Config: map[string]any{
			"threshold":      DefaultThreshold,
			"start_frames":   DefaultStartFrames,
			"silence_frames": DefaultSilenceFrames,
		},
	})
}
