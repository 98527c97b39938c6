// Package agent implements the voice pipeline agent. A single run loop drives a finite
// state machine Idle → Listening → Thinking → Speaking over VAD, STT, turn detection,
// LLM and TTS providers.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chriscow/interview-agent/pkg/ai/llm"
	"github.com/chriscow/interview-agent/pkg/ai/stt"
	"github.com/chriscow/interview-agent/pkg/ai/tts"
	"github.com/chriscow/interview-agent/pkg/ai/vad"
	"github.com/chriscow/interview-agent/pkg/rtc"
	"github.com/chriscow/interview-agent/pkg/turn"
)

// State represents the current state of the voice agent.
type State int32

const (
	StateIdle State = iota
	StateListening
	StateThinking
	StateSpeaking
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateListening:
		return "Listening"
	case StateThinking:
		return "Thinking"
	case StateSpeaking:
		return "Speaking"
	default:
		return fmt.Sprintf("Unknown(%d)", s)
	}
}

const (
	DefaultMinEndpointingDelay = 500 * time.Millisecond
	DefaultMaxEndpointingDelay = 5 * time.Second
	DefaultLanguage            = "en-US"
	DefaultInputSampleRate     = 48000
)

var (
	// ErrNotRunning is returned by Say when the agent stops before the line is spoken.
	ErrNotRunning = errors.New("agent is not running")
	// ErrAlreadyStarted is returned by a second call to Run.
	ErrAlreadyStarted = errors.New("agent already started")
)

// Hooks receive pipeline notifications. They are called from the agent's goroutines
// and must not block.
type Hooks struct {
	OnStateChange  func(from, to State)
	OnUserTurn     func(text string)
	OnReply        func(text string)
	OnSpeechDone   func(text string, interrupted bool)
	OnReplyLatency func(d time.Duration) // end of user speech to first reply audio
}

// Config holds configuration for creating an Agent.
type Config struct {
	STT stt.STT
	TTS tts.TTS
	LLM llm.LLM
	VAD vad.VAD

	// TurnDetector is optional; without one every turn uses MinEndpointingDelay.
	TurnDetector turn.Detector

	MicIn  <-chan rtc.AudioFrame
	TTSOut chan<- rtc.AudioFrame

	SystemPrompt    string
	Language        string
	Voice           string
	InputSampleRate int

	AllowInterruptions  bool
	MinEndpointingDelay time.Duration
	MaxEndpointingDelay time.Duration

	// IsFinalReply marks the line that ends the conversation. It is spoken without
	// interruption and Run returns nil once it has played.
	IsFinalReply func(text string) bool

	Hooks  Hooks
	Logger *slog.Logger
}

// Agent coordinates the providers for one conversation.
type Agent struct {
	cfg    Config
	logger *slog.Logger

	state   atomic.Int32
	started atomic.Bool

	mu      sync.Mutex
	history []llm.Message

	says chan *sayRequest
	done chan struct{}
}

type sayRequest struct {
	text  string
	allow bool
	done  chan error
}

// New creates a new Agent with the given configuration.
func New(cfg Config) (*Agent, error) {
	switch {
	case cfg.STT == nil:
		return nil, errors.New("STT is required")
	case cfg.TTS == nil:
		return nil, errors.New("TTS is required")
	case cfg.LLM == nil:
		return nil, errors.New("LLM is required")
	case cfg.VAD == nil:
		return nil, errors.New("VAD is required")
	case cfg.MicIn == nil:
		return nil, errors.New("MicIn channel is required")
	case cfg.TTSOut == nil:
		return nil, errors.New("TTSOut channel is required")
	}

	if cfg.MinEndpointingDelay <= 0 {
		cfg.MinEndpointingDelay = DefaultMinEndpointingDelay
	}
	if cfg.MaxEndpointingDelay <= 0 {
		cfg.MaxEndpointingDelay = DefaultMaxEndpointingDelay
	}
	if cfg.MaxEndpointingDelay < cfg.MinEndpointingDelay {
		return nil, fmt.Errorf("max endpointing delay %v is below min %v", cfg.MaxEndpointingDelay, cfg.MinEndpointingDelay)
	}
	if cfg.Language == "" {
		cfg.Language = DefaultLanguage
	}
	if cfg.InputSampleRate <= 0 {
		cfg.InputSampleRate = DefaultInputSampleRate
	}
	if cfg.IsFinalReply == nil {
		cfg.IsFinalReply = func(string) bool { return false }
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	a := &Agent{
		cfg:    cfg,
		logger: logger,
		says:   make(chan *sayRequest, 8),
		done:   make(chan struct{}),
	}
	if cfg.SystemPrompt != "" {
		a.history = []llm.Message{{Role: llm.RoleSystem, Content: cfg.SystemPrompt}}
	}
	return a, nil
}

// Run drives the conversation until ctx is cancelled, the microphone input ends, the
// final reply has been spoken, or a provider fails. Provider failures are returned as
// *ai.ProviderError; a cancelled context returns ctx.Err().
func (a *Agent) Run(ctx context.Context) error {
	if !a.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	defer close(a.done)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	l, err := newLoop(ctx, a)
	if err != nil {
		return err
	}
	return l.run()
}

// Say speaks a scripted line and records it as an assistant message. It blocks until
// the line has played, been interrupted, or the agent stopped. Lines queue behind any
// speech or user turn in progress.
func (a *Agent) Say(ctx context.Context, text string, allowInterruptions bool) error {
	req := &sayRequest{text: text, allow: allowInterruptions, done: make(chan error, 1)}

	select {
	case a.says <- req:
	case <-a.done:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-req.done:
		return err
	case <-a.done:
		select {
		case err := <-req.done:
			return err
		default:
			return ErrNotRunning
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns the current state of the agent.
func (a *Agent) State() State {
	return State(a.state.Load())
}

// History returns a copy of the conversation so far, system prompt first.
func (a *Agent) History() []llm.Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]llm.Message, len(a.history))
	copy(out, a.history)
	return out
}

func (a *Agent) appendHistory(role llm.MessageRole, content string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.history = append(a.history, llm.Message{Role: role, Content: content})
}

func (a *Agent) setState(s State) {
	old := State(a.state.Swap(int32(s)))
	if old == s {
		return
	}
	a.logger.Debug("Agent state change", slog.String("from", old.String()), slog.String("to", s.String()))
	if a.cfg.Hooks.OnStateChange != nil {
		a.cfg.Hooks.OnStateChange(old, s)
	}
}
