package worker

import (
	"log/slog"
	"sync"
	"time"
)

// ShutdownHookTimeout bounds how long session teardown waits for its hooks.
var ShutdownHookTimeout = 5 * time.Second

// shutdown runs registered hooks exactly once, concurrently, with a timeout.
type shutdown struct {
	mu     sync.Mutex
	hooks  []func(reason string)
	done   bool
	logger *slog.Logger
}

// add registers a hook. Hooks added after run execute immediately.
func (s *shutdown) add(hook func(reason string)) {
	s.mu.Lock()
	if !s.done {
		s.hooks = append(s.hooks, hook)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	s.call(hook, "session already shut down")
}

func (s *shutdown) run(reason string) {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return
	}
	s.done = true
	hooks := s.hooks
	s.hooks = nil
	s.mu.Unlock()

	s.logger.Info("Session shutdown initiated", slog.String("reason", reason))

	var wg sync.WaitGroup
	for _, h := range hooks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.call(h, reason)
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(ShutdownHookTimeout):
		s.logger.Warn("Shutdown hooks timed out", slog.Duration("timeout", ShutdownHookTimeout))
	}
}

func (s *shutdown) call(h func(string), reason string) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Shutdown hook panicked", slog.Any("panic", r))
		}
	}()
	h(reason)
}
