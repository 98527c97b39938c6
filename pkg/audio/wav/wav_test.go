package wav

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/chriscow/interview-agent/pkg/rtc"
	"github.com/matryer/is"
)

func tone(n int) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = int16((i%50)*600 - 15000)
	}
	return out
}

func TestEncodeDecode(t *testing.T) {
	is := is.New(t)
	frames := rtc.SplitPCM(tone(1600), 16000, 1, 0)

	data, err := EncodeBytes(frames)
	is.NoErr(err)
	is.Equal(len(data), 44+1600*2)
	is.Equal(string(data[0:4]), "RIFF")

	h, got, err := Decode(bytes.NewReader(data))
	is.NoErr(err)
	is.Equal(h.SampleRate, uint32(16000))
	is.Equal(h.NumChannels, uint16(1))
	is.Equal(len(got), 10)
	is.Equal(got[3].Samples(), frames[3].Samples())
}

func TestEncode_MixedFormats(t *testing.T) {
	is := is.New(t)
	frames := append(rtc.SplitPCM(tone(160), 16000, 1, 0), rtc.SplitPCM(tone(480), 48000, 1, 0)...)

	_, err := EncodeBytes(frames)
	is.True(err != nil) // frames of different rates cannot share a file
}

func TestDecode_SkipsUnknownChunks(t *testing.T) {
	is := is.New(t)
	data, err := EncodeBytes(rtc.SplitPCM(tone(480), 48000, 1, 0))
	is.NoErr(err)

	// splice a LIST chunk between the RIFF header and fmt
	var spliced bytes.Buffer
	spliced.Write(data[:12])
	spliced.WriteString("LIST")
	_ = binary.Write(&spliced, binary.LittleEndian, uint32(3))
	spliced.Write([]byte{1, 2, 3, 0}) // odd size plus pad byte
	spliced.Write(data[12:])

	h, frames, err := Decode(&spliced)
	is.NoErr(err)
	is.Equal(h.SampleRate, uint32(48000))
	is.Equal(len(frames), 1)
}

func TestDecode_Rejects(t *testing.T) {
	is := is.New(t)
	data, err := EncodeBytes(rtc.SplitPCM(tone(160), 16000, 1, 0))
	is.NoErr(err)

	eightBit := bytes.Clone(data)
	binary.LittleEndian.PutUint16(eightBit[34:], 8)
	_, _, err = Decode(bytes.NewReader(eightBit))
	is.True(errors.Is(err, ErrUnsupported))

	_, _, err = Decode(bytes.NewReader([]byte("RIFF\x00\x00\x00\x00AVI LIST")))
	is.True(errors.Is(err, ErrUnsupported))
}
