// Package plugin keeps a registry of speech-pipeline providers (STT, TTS, LLM, VAD)
// keyed by kind and name. Provider packages register themselves from init(); the worker
// resolves the configured names at startup.
package plugin

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/chriscow/interview-agent/pkg/ai"
	"github.com/chriscow/interview-agent/pkg/ai/llm"
	"github.com/chriscow/interview-agent/pkg/ai/stt"
	"github.com/chriscow/interview-agent/pkg/ai/tts"
	"github.com/chriscow/interview-agent/pkg/ai/vad"
)

// ErrNotFound is returned when no plugin is registered under the requested kind and name.
var ErrNotFound = errors.New("plugin not found")

// Factory creates a new provider instance from configuration.
// The returned value is one of stt.STT, tts.TTS, llm.LLM or vad.VAD depending on Kind.
type Factory func(cfg map[string]any) (any, error)

// Plugin represents a registered plugin with its metadata.
type Plugin struct {
	Kind        ai.Kind        // stt, tts, llm, vad
	Name        string         // e.g. "openai", "energy"
	Factory     Factory        // Factory function to create instances
	Description string         // Human-readable description
	Version     string         // Plugin version
	Config      map[string]any // Documented configuration keys and defaults
}

// Registry manages plugin registration and lookup.
type Registry struct {
	mu      sync.RWMutex
	plugins map[ai.Kind]map[string]*Plugin
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{plugins: make(map[ai.Kind]map[string]*Plugin)}
}

var globalRegistry = NewRegistry()

// Register adds a plugin to the global registry. It panics on duplicate registration,
// so it is meant to be called from init().
func Register(p *Plugin) {
	globalRegistry.Register(p)
}

// Get retrieves a plugin from the global registry.
func Get(kind ai.Kind, name string) (*Plugin, bool) {
	return globalRegistry.Get(kind, name)
}

// List returns registered plugins of a kind, or all plugins if kind is empty.
func List(kind ai.Kind) []*Plugin {
	return globalRegistry.List(kind)
}

// Default returns the process-wide registry.
func Default() *Registry {
	return globalRegistry
}

// Register adds a plugin to this registry instance.
// Panics if a plugin with the same kind and name is already registered.
func (r *Registry) Register(p *Plugin) {
	if p.Kind == "" {
		panic("plugin kind cannot be empty")
	}
	if p.Name == "" {
		panic("plugin name cannot be empty")
	}
	if p.Factory == nil {
		panic("plugin factory cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.plugins[p.Kind] == nil {
		r.plugins[p.Kind] = make(map[string]*Plugin)
	}
	if existing, ok := r.plugins[p.Kind][p.Name]; ok {
		panic(fmt.Sprintf("plugin %s/%s already registered (existing version: %s, new version: %s)",
			p.Kind, p.Name, existing.Version, p.Version))
	}
	r.plugins[p.Kind][p.Name] = p
}

// Get retrieves a plugin from this registry instance.
func (r *Registry) Get(kind ai.Kind, name string) (*Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.plugins[kind][name]
	return p, ok
}

// List returns registered plugins of a kind sorted by kind then name.
// An empty kind lists everything.
func (r *Registry) List(kind ai.Kind) []*Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Plugin
	for k, byName := range r.plugins {
		if kind != "" && k != kind {
			continue
		}
		for _, p := range byName {
			out = append(out, p)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func (r *Registry) build(kind ai.Kind, name string, cfg map[string]any) (any, error) {
	p, ok := r.Get(kind, name)
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", kind, name, ErrNotFound)
	}
	if cfg == nil {
		cfg = map[string]any{}
	}
	v, err := p.Factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("create %s/%s: %w", kind, name, err)
	}
	return v, nil
}

// NewSTT creates the STT provider registered under name.
func (r *Registry) NewSTT(name string, cfg map[string]any) (stt.STT, error) {
	v, err := r.build(ai.KindSTT, name, cfg)
	if err != nil {
		return nil, err
	}
	s, ok := v.(stt.STT)
	if !ok {
		return nil, fmt.Errorf("plugin stt/%s returned %T, not an STT", name, v)
	}
	return s, nil
}

// NewTTS creates the TTS provider registered under name.
func (r *Registry) NewTTS(name string, cfg map[string]any) (tts.TTS, error) {
	v, err := r.build(ai.KindTTS, name, cfg)
	if err != nil {
		return nil, err
	}
	s, ok := v.(tts.TTS)
	if !ok {
		return nil, fmt.Errorf("plugin tts/%s returned %T, not a TTS", name, v)
	}
	return s, nil
}

// NewLLM creates the LLM provider registered under name.
func (r *Registry) NewLLM(name string, cfg map[string]any) (llm.LLM, error) {
	v, err := r.build(ai.KindLLM, name, cfg)
	if err != nil {
		return nil, err
	}
	s, ok := v.(llm.LLM)
	if !ok {
		return nil, fmt.Errorf("plugin llm/%s returned %T, not an LLM", name, v)
	}
	return s, nil
}

// NewVAD creates the VAD provider registered under name.
func (r *Registry) NewVAD(name string, cfg map[string]any) (vad.VAD, error) {
	v, err := r.build(ai.KindVAD, name, cfg)
	if err != nil {
		return nil, err
	}
	s, ok := v.(vad.VAD)
	if !ok {
		return nil, fmt.Errorf("plugin vad/%s returned %T, not a VAD", name, v)
	}
	return s, nil
}

// String reads a string option, falling back to def when absent or empty.
func String(cfg map[string]any, key, def string) string {
	if v, ok := cfg[key].(string); ok && v != "" {
		return v
	}
	return def
}

// Float reads a numeric option.
func Float(cfg map[string]any, key string, def float64) float64 {
	switch v := cfg[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	}
	return def
}
