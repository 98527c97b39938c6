// Package ai provides the error taxonomy shared by the speech-pipeline providers
// (STT, TTS, LLM, VAD and turn detection).
package ai

import (
	"errors"
	"fmt"
)

var (
	// ErrRecoverable indicates a temporary provider failure that may succeed if retried.
	// Examples: network timeout, rate limiting, temporary service unavailability.
	ErrRecoverable = errors.New("recoverable AI provider error")

	// ErrFatal indicates a permanent provider failure that will not succeed if retried.
	// Examples: invalid API key, unsupported format, malformed request.
	ErrFatal = errors.New("fatal AI provider error")
)

// Kind names the pipeline stage a provider serves.
type Kind string

const (
	KindSTT  Kind = "stt"
	KindTTS  Kind = "tts"
	KindLLM  Kind = "llm"
	KindVAD  Kind = "vad"
	KindTurn Kind = "turn"
)

// ProviderError reports a failure inside a speech-pipeline provider. The interview
// session treats every ProviderError as fatal regardless of its classification; the
// classification is kept so callers outside a live session can still decide to retry.
type ProviderError struct {
	Kind      Kind
	Provider  string
	Retryable bool
	Err       error
}

func (e *ProviderError) Error() string {
	if e.Provider == "" {
		return fmt.Sprintf("%s provider: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s provider %s: %v", e.Kind, e.Provider, e.Err)
}

// Unwrap exposes both the classification sentinel and the underlying error.
func (e *ProviderError) Unwrap() []error {
	class := ErrFatal
	if e.Retryable {
		class = ErrRecoverable
	}
	return []error{class, e.Err}
}

// NewProviderError wraps err for the given stage. Errors already classified as
// recoverable keep that classification; everything else is fatal. A nil err yields nil.
func NewProviderError(kind Kind, provider string, err error) error {
	if err == nil {
		return nil
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return err
	}
	return &ProviderError{
		Kind:      kind,
		Provider:  provider,
		Retryable: errors.Is(err, ErrRecoverable),
		Err:       err,
	}
}

// IsRecoverable checks if an error is recoverable and could be retried.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrRecoverable)
}

// IsFatal checks if an error is fatal and should not be retried.
func IsFatal(err error) bool {
	return errors.Is(err, ErrFatal)
}

// Recoverable marks err as a temporary failure.
func Recoverable(err error) error {
	return fmt.Errorf("%w: %w", ErrRecoverable, err)
}
