// Package worker runs one interview session: it joins the assigned room, waits for the
// candidate, greets them and drives the voice pipeline until the closing line has been
// spoken or the room goes away.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chriscow/interview-agent/pkg/agent"
	"github.com/chriscow/interview-agent/pkg/ai"
	"github.com/chriscow/interview-agent/pkg/ai/llm"
	"github.com/chriscow/interview-agent/pkg/ai/stt"
	"github.com/chriscow/interview-agent/pkg/ai/tts"
	"github.com/chriscow/interview-agent/pkg/ai/vad"
	"github.com/chriscow/interview-agent/pkg/interview"
	"github.com/chriscow/interview-agent/pkg/plugin"
	"github.com/chriscow/interview-agent/pkg/room"
	"github.com/chriscow/interview-agent/pkg/rtc"
	"github.com/chriscow/interview-agent/pkg/turn"
)

var (
	// ErrRoomClosed is returned when the room connection ends before anyone joins.
	ErrRoomClosed = errors.New("room closed before a participant joined")
	// ErrNoParticipant is returned when nobody joins within JoinTimeout.
	ErrNoParticipant = errors.New("no participant joined")
)

// Room is the transport a session runs over. *room.Room satisfies it.
type Room interface {
	Events() <-chan room.Event
	Audio() <-chan rtc.AudioFrame
	Output() chan<- rtc.AudioFrame
	InputSampleRate() int
	ClearOutput()
	Disconnect()
}

// Connector opens the session's room.
type Connector func(ctx context.Context) (Room, error)

// LiveKit returns a Connector joining a LiveKit room audio-only.
func LiveKit(cfg room.Config, logger *slog.Logger) Connector {
	return func(ctx context.Context) (Room, error) {
		return room.Connect(ctx, cfg, logger)
	}
}

// Metrics receives session telemetry.
type Metrics interface {
	SessionStarted()
	SessionEnded()
	Transition(from, to string)
	ReplyLatency(d time.Duration)
}

type nopMetrics struct{}

func (nopMetrics) SessionStarted()            {}
func (nopMetrics) SessionEnded()              {}
func (nopMetrics) Transition(string, string)  {}
func (nopMetrics) ReplyLatency(time.Duration) {}

// Pipeline holds the speech providers for one session.
type Pipeline struct {
	STT stt.STT
	TTS tts.TTS
	LLM llm.LLM
	VAD vad.VAD
}

// Providers names the registered plugin for each stage.
type Providers struct {
	STT string
	TTS string
	LLM string
	VAD string

	// Options are passed to the plugin factories, keyed by kind.
	Options map[ai.Kind]map[string]any
}

// Resolve builds the pipeline from registry. Failures are fatal provider errors.
func (p Providers) Resolve(registry *plugin.Registry) (Pipeline, error) {
	var (
		out Pipeline
		err error
	)
	if out.STT, err = registry.NewSTT(p.STT, p.Options[ai.KindSTT]); err != nil {
		return Pipeline{}, ai.NewProviderError(ai.KindSTT, p.STT, err)
	}
	if out.TTS, err = registry.NewTTS(p.TTS, p.Options[ai.KindTTS]); err != nil {
		return Pipeline{}, ai.NewProviderError(ai.KindTTS, p.TTS, err)
	}
	if out.LLM, err = registry.NewLLM(p.LLM, p.Options[ai.KindLLM]); err != nil {
		return Pipeline{}, ai.NewProviderError(ai.KindLLM, p.LLM, err)
	}
	if out.VAD, err = registry.NewVAD(p.VAD, p.Options[ai.KindVAD]); err != nil {
		return Pipeline{}, ai.NewProviderError(ai.KindVAD, p.VAD, err)
	}
	return out, nil
}

// Config holds configuration for creating a Worker.
type Config struct {
	Plan     interview.Plan
	Pipeline Pipeline
	Connect  Connector

	// TurnDetector is optional.
	TurnDetector turn.Detector

	Language string
	Voice    string

	// JoinTimeout bounds the wait for the candidate; zero waits until the room closes.
	JoinTimeout time.Duration

	Metrics Metrics
	Logger  *slog.Logger
}

// Worker runs a single session. It is not reusable.
type Worker struct {
	cfg     Config
	logger  *slog.Logger
	metrics Metrics
	fsm     *Machine
}

// New creates a Worker.
func New(cfg Config) (*Worker, error) {
	if err := cfg.Plan.Validate(); err != nil {
		return nil, err
	}
	p := cfg.Pipeline
	if p.STT == nil || p.TTS == nil || p.LLM == nil || p.VAD == nil {
		return nil, errors.New("pipeline requires STT, TTS, LLM and VAD providers")
	}
	if cfg.Connect == nil {
		return nil, errors.New("room connector is required")
	}

	w := &Worker{cfg: cfg, logger: cfg.Logger, metrics: cfg.Metrics}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	if w.metrics == nil {
		w.metrics = nopMetrics{}
	}
	w.fsm = NewMachine(func(from, to State, ev Event) {
		w.logger.Info("Session state change",
			slog.String("from", from.String()),
			slog.String("to", to.String()),
			slog.String("event", ev.String()))
		w.metrics.Transition(from.String(), to.String())
	})
	return w, nil
}

// State returns the session state.
func (w *Worker) State() State { return w.fsm.State() }

// Run executes the session. It returns nil when the interview ends normally, the room
// disconnects or ctx is cancelled, and a *ai.ProviderError when a provider fails.
func (w *Worker) Run(ctx context.Context) error {
	sd := &shutdown{logger: w.logger}
	reason := "process exit"
	defer func() {
		w.fsm.Fire(EventProcessExit)
		sd.run(reason)
	}()

	r, err := w.cfg.Connect(ctx)
	if err != nil {
		reason = "connect failed"
		return fmt.Errorf("connect to room: %w", err)
	}
	sd.add(func(string) { r.Disconnect() })
	w.fsm.Fire(EventRoomConnected)

	w.metrics.SessionStarted()
	sd.add(func(string) { w.metrics.SessionEnded() })

	identity, err := w.awaitParticipant(ctx, r)
	if err != nil {
		reason = err.Error()
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	w.fsm.Fire(EventParticipantJoined)

	err = w.converse(ctx, r, identity)
	switch {
	case err == nil:
		reason = "session ended"
	case errors.Is(err, ErrRoomClosed):
		reason = "room disconnected"
		err = nil
	default:
		reason = err.Error()
	}
	return err
}

func (w *Worker) awaitParticipant(ctx context.Context, r Room) (string, error) {
	var timeout <-chan time.Time
	if w.cfg.JoinTimeout > 0 {
		timer := time.NewTimer(w.cfg.JoinTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	w.logger.Info("Waiting for participant")
	for {
		select {
		case ev, ok := <-r.Events():
			if !ok {
				return "", ErrRoomClosed
			}
			next, relevant := sessionEvent(ev, "")
			if !relevant {
				continue
			}
			// disconnect while waiting leaves the state untouched; the process just exits
			w.fsm.Fire(next)
			switch next {
			case EventParticipantJoined:
				w.logger.Info("Participant joined", slog.String("identity", ev.Identity()))
				return ev.Identity(), nil
			case EventRoomDisconnected:
				return "", ErrRoomClosed
			}
		case <-timeout:
			return "", fmt.Errorf("%w within %s", ErrNoParticipant, w.cfg.JoinTimeout)
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// sessionEvent maps a room event onto the session machine. linked is the candidate's
// identity; other participants leaving do not end the session.
func sessionEvent(ev room.Event, linked string) (Event, bool) {
	switch ev.Type {
	case room.EventParticipantJoined:
		return EventParticipantJoined, true
	case room.EventDisconnected:
		return EventRoomDisconnected, true
	case room.EventParticipantLeft:
		if linked != "" && ev.Identity() == linked {
			return EventRoomDisconnected, true
		}
	}
	return 0, false
}

func (w *Worker) converse(ctx context.Context, r Room, identity string) error {
	plan := w.cfg.Plan
	prompt, err := plan.SystemPrompt()
	if err != nil {
		return err
	}

	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	ag, err := agent.New(agent.Config{
		STT:                 w.cfg.Pipeline.STT,
		TTS:                 w.cfg.Pipeline.TTS,
		LLM:                 w.cfg.Pipeline.LLM,
		VAD:                 w.cfg.Pipeline.VAD,
		TurnDetector:        w.cfg.TurnDetector,
		MicIn:               r.Audio(),
		TTSOut:              r.Output(),
		SystemPrompt:        prompt,
		Language:            w.cfg.Language,
		Voice:               w.cfg.Voice,
		InputSampleRate:     r.InputSampleRate(),
		AllowInterruptions:  plan.AllowInterruptions,
		MinEndpointingDelay: plan.MinEndpointingDelay,
		MaxEndpointingDelay: plan.MaxEndpointingDelay,
		IsFinalReply:        plan.IsClosing,
		Hooks:               w.hooks(r),
		Logger:              w.logger,
	})
	if err != nil {
		return err
	}

	runErr := make(chan error, 1)
	go func() { runErr <- ag.Run(sessCtx) }()

	greeted := make(chan error, 1)
	go func() { greeted <- ag.Say(sessCtx, plan.Greeting, plan.AllowInterruptions) }()

	for {
		select {
		case err := <-greeted:
			greeted = nil
			if err == nil {
				w.fsm.Fire(EventGreetingDone)
			}

		case err := <-runErr:
			return w.finish(ctx, err)

		case ev, ok := <-r.Events():
			next, relevant := EventRoomDisconnected, !ok
			if ok {
				next, relevant = sessionEvent(ev, identity)
			}
			if !relevant || next != EventRoomDisconnected {
				continue
			}
			w.fsm.Fire(EventRoomDisconnected)
			cancel()
			<-runErr
			return ErrRoomClosed

		case <-ctx.Done():
			<-runErr
			return nil
		}
	}
}

func (w *Worker) finish(ctx context.Context, err error) error {
	var pe *ai.ProviderError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &pe):
		w.logger.Error("Provider failed, ending session",
			slog.String("kind", string(pe.Kind)),
			slog.String("provider", pe.Provider),
			slog.String("error", pe.Err.Error()))
		w.fsm.Fire(EventProviderError)
		return err
	case ctx.Err() != nil:
		return nil
	default:
		return err
	}
}

func (w *Worker) hooks(r Room) agent.Hooks {
	plan := w.cfg.Plan
	return agent.Hooks{
		OnStateChange: func(from, to agent.State) {
			w.logger.Debug("Agent state change",
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
		OnUserTurn: func(text string) {
			w.logger.Info("User turn", slog.String("text", text))
		},
		OnReply: func(text string) {
			w.logger.Info("Agent reply", slog.String("text", text))
			if plan.IsClosing(text) {
				w.fsm.Fire(EventReplyClosing)
			}
		},
		OnSpeechDone: func(text string, interrupted bool) {
			if interrupted {
				r.ClearOutput()
				return
			}
			if plan.IsClosing(text) {
				w.fsm.Fire(EventClosingSpoken)
			}
		},
		OnReplyLatency: w.metrics.ReplyLatency,
	}
}
