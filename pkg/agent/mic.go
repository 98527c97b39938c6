package agent

import (
	"context"
	"sync"

	"github.com/chriscow/interview-agent/pkg/ai/stt"
	"github.com/chriscow/interview-agent/pkg/rtc"
)

// prerollFrames is how much audio before the VAD speech start is replayed into a new
// STT stream, so the first syllable is not clipped.
const prerollFrames = 30

// micPump fans microphone frames out to the VAD and, while one is attached, the
// current STT stream.
type micPump struct {
	mu      sync.Mutex
	stream  stt.STTStream
	preroll []rtc.AudioFrame
}

func newMicPump() *micPump {
	return &micPump{preroll: make([]rtc.AudioFrame, 0, prerollFrames)}
}

// start forwards in to the returned channel until in closes or ctx ends.
func (p *micPump) start(ctx context.Context, in <-chan rtc.AudioFrame) <-chan rtc.AudioFrame {
	out := make(chan rtc.AudioFrame, 16)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case frame, ok := <-in:
				if !ok {
					return
				}
				p.push(frame)
				select {
				case out <- frame:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

func (p *micPump) push(frame rtc.AudioFrame) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stream != nil {
		if err := p.stream.Push(frame); err != nil {
			p.stream = nil
		}
		return
	}
	if len(p.preroll) == prerollFrames {
		copy(p.preroll, p.preroll[1:])
		p.preroll = p.preroll[:prerollFrames-1]
	}
	p.preroll = append(p.preroll, frame)
}

func (p *micPump) attach(s stt.STTStream) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, frame := range p.preroll {
		if err := s.Push(frame); err != nil {
			break
		}
	}
	p.preroll = p.preroll[:0]
	p.stream = s
}

func (p *micPump) detach() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stream = nil
}
