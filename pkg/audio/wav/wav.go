// Package wav encodes and decodes 16-bit PCM RIFF/WAVE data to and from 10 ms
// audio frames.
package wav

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/chriscow/interview-agent/pkg/rtc"
)

// ErrUnsupported is returned for WAVE data that is not 16-bit integer PCM.
var ErrUnsupported = errors.New("unsupported wav format")

// Header describes the PCM format of a WAVE stream.
type Header struct {
	SampleRate    uint32
	NumChannels   uint16
	BitsPerSample uint16
	DataSize      uint32
}

// Encode writes frames as a single WAVE file. All frames must share the format of the first.
func Encode(w io.Writer, frames []rtc.AudioFrame) error {
	if len(frames) == 0 {
		return errors.New("no frames to encode")
	}
	rate, channels := frames[0].SampleRate, frames[0].NumChannels

	var size int
	for i, f := range frames {
		if f.SampleRate != rate || f.NumChannels != channels {
			return fmt.Errorf("frame %d: format %d Hz/%d ch differs from %d Hz/%d ch",
				i, f.SampleRate, f.NumChannels, rate, channels)
		}
		size += len(f.Data)
	}

	blockAlign := uint16(channels * 2)
	hdr := struct {
		Riff          [4]byte
		ChunkSize     uint32
		Wave          [4]byte
		Fmt           [4]byte
		FmtSize       uint32
		AudioFormat   uint16
		NumChannels   uint16
		SampleRate    uint32
		ByteRate      uint32
		BlockAlign    uint16
		BitsPerSample uint16
		Data          [4]byte
		DataSize      uint32
	}{
		Riff:          [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     uint32(36 + size),
		Wave:          [4]byte{'W', 'A', 'V', 'E'},
		Fmt:           [4]byte{'f', 'm', 't', ' '},
		FmtSize:       16,
		AudioFormat:   1,
		NumChannels:   uint16(channels),
		SampleRate:    uint32(rate),
		ByteRate:      uint32(rate) * uint32(blockAlign),
		BlockAlign:    blockAlign,
		BitsPerSample: 16,
		Data:          [4]byte{'d', 'a', 't', 'a'},
		DataSize:      uint32(size),
	}
	if err := binary.Write(w, binary.LittleEndian, hdr); err != nil {
		return fmt.Errorf("write wav header: %w", err)
	}
	for _, f := range frames {
		if _, err := w.Write(f.Data); err != nil {
			return fmt.Errorf("write wav data: %w", err)
		}
	}
	return nil
}

// EncodeBytes is Encode into a fresh buffer.
func EncodeBytes(frames []rtc.AudioFrame) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, frames); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode reads a WAVE stream and cuts its samples into 10 ms frames; the last frame is
// padded with silence.
func Decode(r io.Reader) (Header, []rtc.AudioFrame, error) {
	var h Header

	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return h, nil, fmt.Errorf("read riff header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return h, nil, fmt.Errorf("not a RIFF/WAVE stream: %w", ErrUnsupported)
	}

	var haveFmt bool
	for {
		var chunk [8]byte
		if _, err := io.ReadFull(r, chunk[:]); err != nil {
			return h, nil, fmt.Errorf("read chunk header: %w", err)
		}
		id := string(chunk[0:4])
		size := binary.LittleEndian.Uint32(chunk[4:8])

		switch id {
		case "fmt ":
			if size < 16 {
				return h, nil, fmt.Errorf("fmt chunk too small: %d bytes", size)
			}
			data := make([]byte, size+size%2)
			if _, err := io.ReadFull(r, data); err != nil {
				return h, nil, fmt.Errorf("read fmt chunk: %w", err)
			}
			if format := binary.LittleEndian.Uint16(data[0:2]); format != 1 {
				return h, nil, fmt.Errorf("audio format %d: %w", format, ErrUnsupported)
			}
			h.NumChannels = binary.LittleEndian.Uint16(data[2:4])
			h.SampleRate = binary.LittleEndian.Uint32(data[4:8])
			h.BitsPerSample = binary.LittleEndian.Uint16(data[14:16])
			if h.BitsPerSample != 16 {
				return h, nil, fmt.Errorf("%d-bit samples: %w", h.BitsPerSample, ErrUnsupported)
			}
			if h.NumChannels == 0 || h.SampleRate == 0 || h.SampleRate%100 != 0 {
				return h, nil, fmt.Errorf("%d Hz, %d channels: %w", h.SampleRate, h.NumChannels, ErrUnsupported)
			}
			haveFmt = true

		case "data":
			if !haveFmt {
				return h, nil, errors.New("data chunk before fmt chunk")
			}
			h.DataSize = size
			raw := make([]byte, size)
			n, err := io.ReadFull(r, raw)
			if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
				return h, nil, fmt.Errorf("read data chunk: %w", err)
			}
			samples := make([]int16, n/2)
			for i := range samples {
				samples[i] = int16(binary.LittleEndian.Uint16(raw[i*2:]))
			}
			return h, rtc.SplitPCM(samples, int(h.SampleRate), int(h.NumChannels), 0), nil

		default:
			if _, err := io.CopyN(io.Discard, r, int64(size+size%2)); err != nil {
				return h, nil, fmt.Errorf("skip %q chunk: %w", id, err)
			}
		}
	}
}
