// Package rtc holds the PCM audio frame type shared by the room transport and the
// speech pipeline.
package rtc

import (
	"encoding/binary"
	"fmt"
	"time"
)

// FrameDuration is the length of audio carried by one AudioFrame.
const FrameDuration = 10 * time.Millisecond

// AudioFrame represents exactly 10 ms of PCM audio.
// Len(Data) == SamplesPerChannel * NumChannels * 2.
//
// A zero Timestamp means "live"; otherwise it is the offset from the start of the stream.
type AudioFrame struct {
	Data              []byte        // 16-bit PCM, little-endian, interleaved
	SampleRate        int           // 48 000, 24 000 or 16 000
	SamplesPerChannel int           // SampleRate / 100
	NumChannels       int           // 1 or 2
	Timestamp         time.Duration // optional
}

// NewAudioFrame creates a frame from raw PCM bytes, validating that the data holds
// exactly 10 ms of audio for the given format.
func NewAudioFrame(data []byte, sampleRate, numChannels int, timestamp time.Duration) (*AudioFrame, error) {
	if sampleRate <= 0 || numChannels <= 0 {
		return nil, fmt.Errorf("invalid audio format: %d Hz, %d channels", sampleRate, numChannels)
	}
	samplesPerChannel := sampleRate / 100
	expectedLen := samplesPerChannel * numChannels * 2
	if len(data) != expectedLen {
		return nil, fmt.Errorf("audio frame data length mismatch: got %d bytes, expected %d bytes for %dHz %d-channel 10ms audio",
			len(data), expectedLen, sampleRate, numChannels)
	}

	return &AudioFrame{
		Data:              data,
		SampleRate:        sampleRate,
		SamplesPerChannel: samplesPerChannel,
		NumChannels:       numChannels,
		Timestamp:         timestamp,
	}, nil
}

// Samples decodes the frame into signed 16-bit samples.
func (f *AudioFrame) Samples() []int16 {
	out := make([]int16, len(f.Data)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(f.Data[i*2:]))
	}
	return out
}

// Clone creates a deep copy of the AudioFrame.
func (f *AudioFrame) Clone() *AudioFrame {
	data := make([]byte, len(f.Data))
	copy(data, f.Data)
	c := *f
	c.Data = data
	return &c
}

// Duration returns the duration represented by this frame (always 10ms).
func (f *AudioFrame) Duration() time.Duration {
	return FrameDuration
}

// SplitPCM cuts a stream of interleaved 16-bit samples into 10 ms frames. A trailing
// partial frame is padded with silence so every returned frame satisfies the size invariant.
func SplitPCM(samples []int16, sampleRate, numChannels int, start time.Duration) []AudioFrame {
	per := sampleRate / 100 * numChannels
	if per <= 0 {
		return nil
	}

	frames := make([]AudioFrame, 0, (len(samples)+per-1)/per)
	for off := 0; off < len(samples); off += per {
		data := make([]byte, per*2)
		end := min(off+per, len(samples))
		for i, s := range samples[off:end] {
			binary.LittleEndian.PutUint16(data[i*2:], uint16(s))
		}
		frames = append(frames, AudioFrame{
			Data:              data,
			SampleRate:        sampleRate,
			SamplesPerChannel: sampleRate / 100,
			NumChannels:       numChannels,
			Timestamp:         start + time.Duration(len(frames))*FrameDuration,
		})
	}
	return frames
}
