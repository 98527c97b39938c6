package rtc

import (
	"testing"
	"time"

	"github.com/matryer/is"
)

func TestNewAudioFrame(t *testing.T) {
	tests := []struct {
		name        string
		sampleRate  int
		numChannels int
		dataLen     int
		wantErr     bool
	}{
		{name: "valid 48kHz mono", sampleRate: 48000, numChannels: 1, dataLen: 960},
		{name: "valid 16kHz mono", sampleRate: 16000, numChannels: 1, dataLen: 320},
		{name: "valid 48kHz stereo", sampleRate: 48000, numChannels: 2, dataLen: 1920},
		{name: "invalid data length", sampleRate: 48000, numChannels: 1, dataLen: 500, wantErr: true},
		{name: "zero sample rate", sampleRate: 0, numChannels: 1, dataLen: 0, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			is := is.New(t)

			frame, err := NewAudioFrame(make([]byte, tt.dataLen), tt.sampleRate, tt.numChannels, 100*time.Millisecond)
			if tt.wantErr {
				is.True(err != nil) // expected a validation error
				return
			}

			is.NoErr(err)
			is.Equal(frame.SamplesPerChannel, tt.sampleRate/100)
			is.Equal(frame.Timestamp, 100*time.Millisecond)
			is.Equal(frame.Duration(), 10*time.Millisecond)
		})
	}
}

func TestAudioFrame_SamplesRoundTrip(t *testing.T) {
	is := is.New(t)

	in := make([]int16, 160)
	for i := range in {
		in[i] = int16(i*200 - 16000)
	}

	frames := SplitPCM(in, 16000, 1, 0)
	is.Equal(len(frames), 1)
	is.Equal(frames[0].Samples(), in)
}

func TestSplitPCM_PadsTrailingFrame(t *testing.T) {
	is := is.New(t)

	frames := SplitPCM(make([]int16, 250), 16000, 1, time.Second)

	is.Equal(len(frames), 2)
	is.Equal(len(frames[1].Data), 320) // partial frame padded to 10ms
	is.Equal(frames[1].Timestamp, time.Second+10*time.Millisecond)
}

func TestAudioFrame_Clone(t *testing.T) {
	is := is.New(t)

	original := &AudioFrame{Data: []byte{1, 2, 3, 4}, SampleRate: 200, SamplesPerChannel: 2, NumChannels: 1}
	clone := original.Clone()
	clone.Data[0] = 9

	is.Equal(original.Data[0], byte(1)) // clone must not share the buffer
	is.Equal(clone.SampleRate, original.SampleRate)
}
