package openai

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/chriscow/interview-agent/pkg/ai"
	"github.com/chriscow/interview-agent/pkg/ai/tts"
	"github.com/chriscow/interview-agent/pkg/rtc"
	openai "github.com/sashabaranov/go-openai"
)

// TTSSampleRate is the rate of the raw PCM the speech endpoint returns.
const TTSSampleRate = 24000

// TTS implements tts.TTS with the speech API, requesting raw 16-bit mono PCM and
// re-framing it into 10 ms frames.
type TTS struct {
	client *openai.Client
	model  string
	voice  string
	speed  float64
}

// NewTTS creates a speech provider.
func NewTTS(cfg Config, model, voice string, speed float64) (*TTS, error) {
	client, err := cfg.client()
	if err != nil {
		return nil, err
	}
	if model == "" {
		model = string(openai.TTSModel1)
	}
	if voice == "" {
		voice = string(openai.VoiceAlloy)
	}
	return &TTS{client: client, model: model, voice: voice, speed: speed}, nil
}

// Synthesize streams the spoken text as frames.
func (o *TTS) Synthesize(ctx context.Context, req tts.SynthesizeRequest) (<-chan rtc.AudioFrame, <-chan error, error) {
	if req.Text == "" {
		return nil, nil, ai.NewProviderError(ai.KindTTS, ProviderName, errors.New("empty text"))
	}

	voice := req.Voice
	if voice == "" {
		voice = o.voice
	}
	speed := o.speed
	if req.Speed > 0 {
		speed = float64(req.Speed)
	}

	frames := make(chan rtc.AudioFrame, 10)
	errs := make(chan error, 1)

	go func() {
		defer close(errs)
		defer close(frames)

		resp, err := o.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
			Model:          openai.SpeechModel(o.model),
			Input:          req.Text,
			Voice:          openai.SpeechVoice(voice),
			ResponseFormat: openai.SpeechResponseFormatPcm,
			Speed:          speed,
		})
		if err != nil {
			if ctx.Err() == nil {
				errs <- classify(ai.KindTTS, err)
			}
			return
		}
		defer resp.Close()

		if err := readFrames(ctx, resp, frames); err != nil && ctx.Err() == nil {
			errs <- ai.NewProviderError(ai.KindTTS, ProviderName, err)
		}
	}()

	return frames, errs, nil
}

// readFrames cuts the PCM body into 10 ms frames, padding the last one with silence.
func readFrames(ctx context.Context, r io.Reader, out chan<- rtc.AudioFrame) error {
	const frameBytes = TTSSampleRate / 100 * 2
	var n int
	for {
		buf := make([]byte, frameBytes)
		read, err := io.ReadFull(r, buf)
		if read > 0 {
			// ReadFull leaves the tail zeroed on a short read
			frame := rtc.AudioFrame{
				Data:              buf,
				SampleRate:        TTSSampleRate,
				SamplesPerChannel: TTSSampleRate / 100,
				NumChannels:       1,
				Timestamp:         time.Duration(n) * rtc.FrameDuration,
			}
			select {
			case out <- frame:
			case <-ctx.Done():
				return ctx.Err()
			}
			n++
		}
		switch {
		case err == nil:
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			return nil
		default:
			return err
		}
	}
}
