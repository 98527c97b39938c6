package fake

import (
	"context"
	"sync"

	"github.com/chriscow/interview-agent/pkg/turn"
)

// FakeTurnDetector returns a fixed probability and threshold and records the
// contexts it was asked about.
type FakeTurnDetector struct {
	mu          sync.Mutex
	probability float64
	threshold   float64
	err         error
	calls       []turn.ChatContext
}

// NewFakeTurnDetector creates a detector that always reports a finished turn.
func NewFakeTurnDetector() *FakeTurnDetector {
	return NewFakeTurnDetectorWithValues(0.9, 0.5)
}

// NewFakeTurnDetectorWithValues creates a fake detector with specific values.
func NewFakeTurnDetectorWithValues(probability, threshold float64) *FakeTurnDetector {
	return &FakeTurnDetector{probability: probability, threshold: threshold}
}

// SetProbability changes the probability returned by later predictions.
func (f *FakeTurnDetector) SetProbability(p float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probability = p
}

// FailWith makes later predictions return err.
func (f *FakeTurnDetector) FailWith(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// UnlikelyThreshold returns the configured threshold.
func (f *FakeTurnDetector) UnlikelyThreshold(string) (float64, error) {
	return f.threshold, nil
}

// SupportsLanguage always returns true for testing.
func (f *FakeTurnDetector) SupportsLanguage(string) bool {
	return true
}

// PredictEndOfTurn returns the configured probability.
func (f *FakeTurnDetector) PredictEndOfTurn(ctx context.Context, chatCtx turn.ChatContext) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, chatCtx)
	if f.err != nil {
		return 0, f.err
	}
	return f.probability, nil
}

// Calls returns the contexts passed to PredictEndOfTurn.
func (f *FakeTurnDetector) Calls() []turn.ChatContext {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]turn.ChatContext(nil), f.calls...)
}
