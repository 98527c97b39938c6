package agent

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/chriscow/interview-agent/pkg/ai"
	"github.com/chriscow/interview-agent/pkg/ai/llm"
	"github.com/chriscow/interview-agent/pkg/ai/stt"
	"github.com/chriscow/interview-agent/pkg/ai/tts"
	"github.com/chriscow/interview-agent/pkg/ai/vad"
	"github.com/chriscow/interview-agent/pkg/turn"
)

// errFinished ends the loop after the final reply has played.
var errFinished = errors.New("conversation finished")

type sttEvent struct {
	stream int
	ev     stt.SpeechEvent
	closed bool // the stream's event channel closed
}

type llmResult struct {
	gen  int
	resp llm.ChatResponse
	err  error
}

type utterance struct {
	text      string
	allow     bool
	final     bool
	say       *sayRequest
	userEnded time.Time // zero for scripted lines
	cancel    context.CancelFunc
}

type playResult struct {
	interrupted bool
	err         error
}

// loop is the single consumer of provider events. All fields are owned by the run
// goroutine.
type loop struct {
	a   *Agent
	ctx context.Context
	mic *micPump

	vadEvents <-chan vad.VADEvent
	sttEvents chan sttEvent

	active        stt.STTStream
	activeID      int
	nextID        int
	pendingFinals int
	turnText      []string
	userEnded     time.Time

	endpoint  *time.Timer
	endpointC <-chan time.Time

	llmGen     int
	llmCancel  context.CancelFunc
	llmResults chan llmResult

	speech     *utterance
	speechDone chan playResult
	queued     []*sayRequest
}

func newLoop(ctx context.Context, a *Agent) (*loop, error) {
	mic := newMicPump()
	vadIn := mic.start(ctx, a.cfg.MicIn)

	events, err := a.cfg.VAD.Detect(ctx, vadIn)
	if err != nil {
		return nil, ai.NewProviderError(ai.KindVAD, "", err)
	}

	return &loop{
		a:          a,
		ctx:        ctx,
		mic:        mic,
		vadEvents:  events,
		sttEvents:  make(chan sttEvent, 16),
		llmResults: make(chan llmResult, 1),
		speechDone: make(chan playResult, 1),
	}, nil
}

func (l *loop) run() error {
	defer l.stop()

	for {
		var err error
		select {
		case <-l.ctx.Done():
			return l.ctx.Err()
		case ev, ok := <-l.vadEvents:
			if !ok {
				if l.ctx.Err() != nil {
					return l.ctx.Err()
				}
				l.a.logger.Info("Microphone input ended")
				return nil
			}
			err = l.onVAD(ev)
		case ev := <-l.sttEvents:
			err = l.onSTT(ev)
		case <-l.endpointC:
			l.onEndpoint()
		case res := <-l.llmResults:
			err = l.onLLM(res)
		case res := <-l.speechDone:
			err = l.onSpeechDone(res)
		case req := <-l.a.says:
			l.queued = append(l.queued, req)
			l.speakQueued()
		}

		if errors.Is(err, errFinished) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (l *loop) onVAD(ev vad.VADEvent) error {
	switch ev.Type {
	case vad.VADEventSpeechStart:
		if l.speech != nil {
			if !l.speech.allow {
				return nil
			}
			l.a.logger.Debug("User interrupted agent speech")
			l.speech.cancel()
		}
		l.cancelEndpoint()
		l.cancelLLM()
		if l.active == nil {
			if err := l.openStream(); err != nil {
				return err
			}
		}
		l.a.setState(StateListening)

	case vad.VADEventSpeechEnd:
		if l.active == nil {
			return nil
		}
		l.closeStream()
		l.userEnded = ev.Timestamp
		if l.userEnded.IsZero() {
			l.userEnded = time.Now()
		}
		l.a.setState(StateThinking)
		l.maybeEndpoint()

	case vad.VADEventError:
		return ai.NewProviderError(ai.KindVAD, "", ev.Error)
	}
	return nil
}

func (l *loop) openStream() error {
	stream, err := l.a.cfg.STT.NewStream(l.ctx, stt.StreamConfig{
		SampleRate:  l.a.cfg.InputSampleRate,
		NumChannels: 1,
		Lang:        l.a.cfg.Language,
	})
	if err != nil {
		return ai.NewProviderError(ai.KindSTT, "", err)
	}

	l.nextID++
	id := l.nextID
	l.active, l.activeID = stream, id

	go func() {
		for ev := range stream.Events() {
			select {
			case l.sttEvents <- sttEvent{stream: id, ev: ev}:
			case <-l.ctx.Done():
				return
			}
		}
		select {
		case l.sttEvents <- sttEvent{stream: id, closed: true}:
		case <-l.ctx.Done():
		}
	}()

	l.mic.attach(stream)
	return nil
}

func (l *loop) closeStream() {
	l.mic.detach()
	if err := l.active.CloseSend(); err != nil {
		l.a.logger.Debug("Closing STT stream", slog.String("error", err.Error()))
	}
	l.active = nil
	l.pendingFinals++
}

func (l *loop) onSTT(e sttEvent) error {
	if e.closed {
		if e.stream == l.activeID && l.active != nil {
			// the provider ended a stream that was still listening
			l.mic.detach()
			l.active = nil
		} else {
			l.pendingFinals--
		}
		l.maybeEndpoint()
		return nil
	}

	switch e.ev.Type {
	case stt.SpeechEventFinal:
		if text := strings.TrimSpace(e.ev.Text); text != "" {
			l.turnText = append(l.turnText, text)
		}
	case stt.SpeechEventError:
		return ai.NewProviderError(ai.KindSTT, "", e.ev.Error)
	}
	return nil
}

// maybeEndpoint starts the endpointing wait once every closed stream has delivered
// its transcript.
func (l *loop) maybeEndpoint() {
	if l.a.State() != StateThinking || l.active != nil || l.pendingFinals > 0 ||
		l.endpointC != nil || l.llmCancel != nil {
		return
	}
	if len(l.turnText) == 0 {
		l.a.setState(StateIdle)
		l.speakQueued()
		return
	}

	delay := l.endpointDelay(strings.Join(l.turnText, " "))
	l.endpoint = time.NewTimer(delay)
	l.endpointC = l.endpoint.C
}

func (l *loop) endpointDelay(pending string) time.Duration {
	cfg := l.a.cfg
	if cfg.TurnDetector == nil {
		return cfg.MinEndpointingDelay
	}

	msgs := append(l.a.History(), llm.Message{Role: llm.RoleUser, Content: pending})
	p, err := cfg.TurnDetector.PredictEndOfTurn(l.ctx, turn.ChatContext{Messages: msgs, Language: cfg.Language})
	if err != nil {
		l.a.logger.Warn("Turn detection failed, using min endpointing delay", slog.String("error", err.Error()))
		return cfg.MinEndpointingDelay
	}

	threshold := turn.Threshold(cfg.TurnDetector, cfg.Language)
	l.a.logger.Debug("End of turn prediction",
		slog.Float64("probability", p),
		slog.Float64("threshold", threshold))
	if p >= threshold {
		return cfg.MinEndpointingDelay
	}
	return cfg.MaxEndpointingDelay
}

func (l *loop) cancelEndpoint() {
	if l.endpoint != nil {
		l.endpoint.Stop()
	}
	l.endpoint, l.endpointC = nil, nil
}

func (l *loop) onEndpoint() {
	l.endpoint, l.endpointC = nil, nil

	text := strings.Join(l.turnText, " ")
	l.turnText = nil
	l.a.appendHistory(llm.RoleUser, text)
	if h := l.a.cfg.Hooks.OnUserTurn; h != nil {
		h(text)
	}

	l.llmGen++
	gen := l.llmGen
	ctx, cancel := context.WithCancel(l.ctx)
	l.llmCancel = cancel
	req := llm.ChatRequest{Messages: l.a.History()}

	go func() {
		resp, err := l.a.cfg.LLM.Chat(ctx, req)
		select {
		case l.llmResults <- llmResult{gen: gen, resp: resp, err: err}:
		case <-l.ctx.Done():
		}
	}()
}

// cancelLLM abandons an in-flight completion because the user resumed speaking. The
// user message stays in the history and the next turn is appended to it.
func (l *loop) cancelLLM() {
	if l.llmCancel == nil {
		return
	}
	l.llmCancel()
	l.llmCancel = nil
	l.llmGen++

	// fold the unanswered message back into the pending turn
	l.a.mu.Lock()
	if n := len(l.a.history); n > 0 && l.a.history[n-1].Role == llm.RoleUser {
		l.turnText = append([]string{l.a.history[n-1].Content}, l.turnText...)
		l.a.history = l.a.history[:n-1]
	}
	l.a.mu.Unlock()
}

func (l *loop) onLLM(res llmResult) error {
	if res.gen != l.llmGen {
		return nil
	}
	l.llmCancel = nil
	if res.err != nil {
		return ai.NewProviderError(ai.KindLLM, "", res.err)
	}

	reply := strings.TrimSpace(res.resp.Message.Content)
	if reply == "" {
		l.a.setState(StateIdle)
		l.speakQueued()
		return nil
	}

	l.a.appendHistory(llm.RoleAssistant, reply)
	if h := l.a.cfg.Hooks.OnReply; h != nil {
		h(reply)
	}

	final := l.a.cfg.IsFinalReply(reply)
	l.speak(&utterance{
		text:      reply,
		allow:     l.a.cfg.AllowInterruptions && !final,
		final:     final,
		userEnded: l.userEnded,
	})
	return nil
}

func (l *loop) idle() bool {
	return l.speech == nil && l.active == nil && l.pendingFinals == 0 &&
		l.endpointC == nil && l.llmCancel == nil && len(l.turnText) == 0
}

func (l *loop) speakQueued() {
	if len(l.queued) == 0 || !l.idle() {
		return
	}
	req := l.queued[0]
	l.queued = l.queued[1:]

	l.a.appendHistory(llm.RoleAssistant, req.text)
	final := l.a.cfg.IsFinalReply(req.text)
	l.speak(&utterance{text: req.text, allow: req.allow && !final, final: final, say: req})
}

func (l *loop) speak(u *utterance) {
	ctx, cancel := context.WithCancel(l.ctx)
	u.cancel = cancel
	l.speech = u
	l.a.setState(StateSpeaking)

	go func() {
		res := l.play(ctx, u)
		select {
		case l.speechDone <- res:
		case <-l.ctx.Done():
		}
	}()
}

// play synthesizes u and streams its frames to TTSOut until done or cancelled.
func (l *loop) play(ctx context.Context, u *utterance) playResult {
	frames, errs, err := l.a.cfg.TTS.Synthesize(ctx, tts.SynthesizeRequest{
		Text:     u.text,
		Voice:    l.a.cfg.Voice,
		Language: l.a.cfg.Language,
	})
	if err != nil {
		return playResult{err: err, interrupted: ctx.Err() != nil}
	}

	first := true
	for frame := range frames {
		select {
		case l.a.cfg.TTSOut <- frame:
		case <-ctx.Done():
			return playResult{interrupted: true}
		}
		if first {
			first = false
			if h := l.a.cfg.Hooks.OnReplyLatency; h != nil && !u.userEnded.IsZero() {
				h(time.Since(u.userEnded))
			}
		}
	}
	if err := <-errs; err != nil {
		return playResult{err: err, interrupted: ctx.Err() != nil}
	}
	return playResult{interrupted: ctx.Err() != nil}
}

func (l *loop) onSpeechDone(res playResult) error {
	u := l.speech
	l.speech = nil
	u.cancel()

	if res.err != nil && !res.interrupted {
		err := ai.NewProviderError(ai.KindTTS, "", res.err)
		if u.say != nil {
			u.say.done <- err
		}
		return err
	}

	if h := l.a.cfg.Hooks.OnSpeechDone; h != nil {
		h(u.text, res.interrupted)
	}
	if u.say != nil {
		u.say.done <- nil
	}
	if u.final && !res.interrupted {
		l.a.logger.Info("Final line spoken")
		return errFinished
	}

	if l.a.State() == StateSpeaking {
		l.a.setState(StateIdle)
	}
	l.speakQueued()
	return nil
}

func (l *loop) stop() {
	l.cancelEndpoint()
	if l.llmCancel != nil {
		l.llmCancel()
	}
	if l.speech != nil {
		l.speech.cancel()
	}
	if l.active != nil {
		l.mic.detach()
		_ = l.active.CloseSend()
	}
}
