// Package turn estimates whether a speaker has finished their conversational turn.
//
// Detectors score the recent conversation with an end-of-utterance (EOU)
// probability. The voice agent compares the score with the language threshold
// to pick the short or the long endpointing delay.
package turn

import (
	"context"

	"github.com/chriscow/interview-agent/pkg/ai/llm"
)

// DefaultThreshold is used when a detector has no tuned threshold for a language.
const DefaultThreshold = 0.5

// Detector interface for end-of-utterance (EOU) detection.
type Detector interface {
	// UnlikelyThreshold returns the probability below which the turn is considered
	// unfinished for the given language.
	UnlikelyThreshold(language string) (float64, error)

	// SupportsLanguage returns true if the detector has a tuned threshold for this language.
	SupportsLanguage(language string) bool

	// PredictEndOfTurn returns probability (0–1) that the user has finished speaking
	// given recent chat context.
	PredictEndOfTurn(ctx context.Context, chatCtx ChatContext) (float64, error)
}

// ChatContext represents the conversation history needed for turn detection.
type ChatContext struct {
	Messages []llm.Message
	Language string
}

// Threshold returns d's threshold for language, or DefaultThreshold if d has none.
func Threshold(d Detector, language string) float64 {
	if d == nil || !d.SupportsLanguage(language) {
		return DefaultThreshold
	}
	t, err := d.UnlikelyThreshold(language)
	if err != nil {
		return DefaultThreshold
	}
	return t
}

func clamp01(p float64) float64 {
	return min(max(p, 0), 1)
}
