package ai

import (
	"errors"
	"testing"

	"github.com/matryer/is"
)

func TestNewProviderError_Classification(t *testing.T) {
	is := is.New(t)
	base := errors.New("connection reset")

	fatal := NewProviderError(KindSTT, "openai", base)
	is.True(IsFatal(fatal))
	is.True(!IsRecoverable(fatal))
	is.True(errors.Is(fatal, base)) // underlying error must stay reachable

	temp := NewProviderError(KindTTS, "openai", Recoverable(base))
	is.True(IsRecoverable(temp))
	is.True(!IsFatal(temp))

	var pe *ProviderError
	is.True(errors.As(temp, &pe))
	is.Equal(pe.Kind, KindTTS)
	is.Equal(pe.Error(), "tts provider openai: recoverable AI provider error: connection reset")
}

func TestNewProviderError_NilAndIdempotent(t *testing.T) {
	is := is.New(t)

	is.NoErr(NewProviderError(KindLLM, "openai", nil))

	first := NewProviderError(KindLLM, "openai", errors.New("boom"))
	second := NewProviderError(KindSTT, "other", first)
	is.Equal(first, second) // already-wrapped errors are returned as is
}
