package energy

import (
	"context"
	"testing"
	"time"

	"github.com/chriscow/interview-agent/pkg/ai/vad"
	"github.com/chriscow/interview-agent/pkg/rtc"
	"github.com/matryer/is"
)

func frames(amplitude int16, n int) []rtc.AudioFrame {
	samples := make([]int16, n*160)
	for i := range samples {
		if i%2 == 0 {
			samples[i] = amplitude
		} else {
			samples[i] = -amplitude
		}
	}
	return rtc.SplitPCM(samples, 16000, 1, 0)
}

func collect(t *testing.T, v *VAD, input []rtc.AudioFrame) []vad.VADEventType {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	in := make(chan rtc.AudioFrame)
	events, err := v.Detect(ctx, in)
	if err != nil {
		t.Fatal(err)
	}
	go func() {
		defer close(in)
		for _, f := range input {
			in <- f
		}
	}()

	var got []vad.VADEventType
	for ev := range events {
		got = append(got, ev.Type)
	}
	return got
}

func TestRMS(t *testing.T) {
	is := is.New(t)
	is.Equal(RMS(nil), 0.0)
	is.Equal(RMS(frames(0, 1)[0].Data), 0.0)
	is.True(RMS(frames(16384, 1)[0].Data) > 0.49) // half scale square wave
	is.True(RMS(frames(-32768, 1)[0].Data) <= 1.0)
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name  string
		input []rtc.AudioFrame
		want  []vad.VADEventType
	}{
		{
			name:  "silence only",
			input: frames(0, 50),
		},
		{
			name:  "blip shorter than start window",
			input: append(frames(8000, 2), frames(0, 40)...),
		},
		{
			name:  "speech then silence",
			input: append(frames(8000, 20), frames(0, 40)...),
			want:  []vad.VADEventType{vad.VADEventSpeechStart, vad.VADEventSpeechEnd},
		},
		{
			name:  "speech until input closes",
			input: frames(8000, 20),
			want:  []vad.VADEventType{vad.VADEventSpeechStart, vad.VADEventSpeechEnd},
		},
		{
			name:  "short pause bridged",
			input: append(append(append(frames(8000, 10), frames(0, 10)...), frames(8000, 10)...), frames(0, 40)...),
			want:  []vad.VADEventType{vad.VADEventSpeechStart, vad.VADEventSpeechEnd},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			is := is.New(t)
			got := collect(t, New(Config{}), tt.input)
			is.Equal(len(got), len(tt.want))
			for i := range tt.want {
				is.Equal(got[i], tt.want[i])
			}
		})
	}
}

func TestFactoryDefaults(t *testing.T) {
	is := is.New(t)
	v, err := newEnergyVAD(map[string]any{"threshold": 0.1})
	is.NoErr(err)
	e := v.(*VAD)
	is.Equal(e.cfg.Threshold, 0.1)
	is.Equal(e.cfg.SilenceFrames, DefaultSilenceFrames)
}
