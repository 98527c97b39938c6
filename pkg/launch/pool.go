package launch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxJobs bounds concurrently running workers.
const DefaultMaxJobs = 8

// Status is the lifecycle stage of a Job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further transitions follow.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Job is a snapshot of one launch.
type Job struct {
	ID        string    `json:"id"`
	Room      string    `json:"room"`
	Status    Status    `json:"status"`
	Error     string    `json:"error,omitempty"`
	PID       int       `json:"pid,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	StartedAt time.Time `json:"started_at,omitzero"`
	EndedAt   time.Time `json:"ended_at,omitzero"`
}

// Observer is notified of every job transition. Observers run while the pool is
// locked and must not call back into it.
type Observer func(Job)

// Option configures a Pool.
type Option func(*Pool)

// WithMaxJobs sets the concurrency limit. Values below 1 are ignored.
func WithMaxJobs(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.max = n
		}
	}
}

// WithLogger sets the pool's logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pool) { p.logger = l }
}

// WithObserver registers fn for job transitions.
func WithObserver(fn Observer) Option {
	return func(p *Pool) { p.observers = append(p.observers, fn) }
}

// Pool launches workers with bounded concurrency and tracks them as jobs.
type Pool struct {
	launcher  Launcher
	max       int
	logger    *slog.Logger
	observers []Observer
	now       func() time.Time

	mu     sync.Mutex
	jobs   map[string]*Job
	order  []string
	active int
	subs   map[string][]chan Job
	wg     sync.WaitGroup
}

// NewPool creates a pool around launcher.
func NewPool(launcher Launcher, opts ...Option) *Pool {
	p := &Pool{
		launcher: launcher,
		max:      DefaultMaxJobs,
		logger:   slog.Default(),
		now:      time.Now,
		jobs:     make(map[string]*Job),
		subs:     make(map[string][]chan Job),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Submit launches a worker for spec. It returns when the worker has started or
// failed to start. A start failure yields the failed job together with an error
// matching ErrLaunchFailure.
func (p *Pool) Submit(ctx context.Context, spec Spec) (Job, error) {
	p.mu.Lock()
	if p.active >= p.max {
		p.mu.Unlock()
		return Job{}, fmt.Errorf("%w: %d workers running", ErrPoolFull, p.max)
	}
	job := &Job{
		ID:        uuid.NewString(),
		Room:      spec.Room,
		Status:    StatusPending,
		CreatedAt: p.now(),
	}
	p.jobs[job.ID] = job
	p.order = append(p.order, job.ID)
	p.active++
	p.publishLocked(job)
	p.mu.Unlock()

	logger := p.logger.With(slog.String("job", job.ID), slog.String("room", spec.Room))

	handle, err := p.launcher.Launch(ctx, spec)
	if err != nil {
		if !errors.Is(err, ErrLaunchFailure) {
			err = fmt.Errorf("%w: %w", ErrLaunchFailure, err)
		}
		logger.Error("worker launch failed", slog.String("error", err.Error()))
		return p.finish(job.ID, err), err
	}

	p.mu.Lock()
	job.Status = StatusRunning
	job.PID = handle.PID()
	job.StartedAt = p.now()
	p.publishLocked(job)
	snapshot := *job
	p.mu.Unlock()

	logger.Info("worker started", slog.Int("pid", snapshot.PID))

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		werr := handle.Wait()
		final := p.finish(job.ID, werr)
		if werr != nil {
			logger.Warn("worker exited with error", slog.String("error", werr.Error()))
		} else {
			logger.Info("worker exited", slog.Duration("ran_for", final.EndedAt.Sub(final.StartedAt)))
		}
	}()

	return snapshot, nil
}

// finish moves a job to its terminal status and releases its slot.
func (p *Pool) finish(id string, err error) Job {
	p.mu.Lock()
	defer p.mu.Unlock()

	job := p.jobs[id]
	job.Status = StatusCompleted
	if err != nil {
		job.Status = StatusFailed
		job.Error = err.Error()
	}
	job.EndedAt = p.now()
	p.active--
	p.publishLocked(job)

	for _, ch := range p.subs[id] {
		close(ch)
	}
	delete(p.subs, id)
	return *job
}

// publishLocked fans a snapshot out to subscribers and observers. Subscriber
// channels are sized to hold every transition of a job, so sends never block.
func (p *Pool) publishLocked(job *Job) {
	snapshot := *job
	for _, ch := range p.subs[job.ID] {
		select {
		case ch <- snapshot:
		default:
		}
	}
	for _, fn := range p.observers {
		fn(snapshot)
	}
}

// Get returns the current snapshot of a job.
func (p *Pool) Get(id string) (Job, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	job, ok := p.jobs[id]
	if !ok {
		return Job{}, fmt.Errorf("%w: %s", ErrUnknownJob, id)
	}
	return *job, nil
}

// List returns all jobs in submission order.
func (p *Pool) List() []Job {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Job, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, *p.jobs[id])
	}
	return out
}

// Active returns the number of jobs holding a slot.
func (p *Pool) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// Subscribe follows a job. The channel first carries the current snapshot, then
// every later transition, and is closed after the terminal one. The returned
// cancel func stops the subscription early.
func (p *Pool) Subscribe(id string) (<-chan Job, func(), error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	job, ok := p.jobs[id]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownJob, id)
	}

	ch := make(chan Job, 4)
	ch <- *job
	if job.Status.Terminal() {
		close(ch)
		return ch, func() {}, nil
	}
	p.subs[id] = append(p.subs[id], ch)

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			subs := p.subs[id]
			for i, c := range subs {
				if c == ch {
					p.subs[id] = append(subs[:i], subs[i+1:]...)
					close(ch)
					break
				}
			}
		})
	}
	return ch, cancel, nil
}

// Wait blocks until every started worker has exited or ctx is done.
func (p *Pool) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
