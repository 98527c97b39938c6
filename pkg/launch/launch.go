// Package launch starts interview workers and tracks their outcome.
//
// A Launcher starts one worker bound to one room. The Pool wraps a Launcher with
// bounded concurrency and records every launch as a Job whose status can be
// queried or followed.
package launch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/chriscow/interview-agent/pkg/interview"
)

// PlanEnv carries the encoded interview plan into a worker process.
const PlanEnv = "INTERVIEW_PLAN_JSON"

var (
	// ErrLaunchFailure is returned when a worker could not be started.
	ErrLaunchFailure = errors.New("worker launch failed")
	// ErrPoolFull is returned when the pool is at its concurrency limit.
	ErrPoolFull = errors.New("launch pool is full")
	// ErrUnknownJob is returned for job IDs the pool has never seen.
	ErrUnknownJob = errors.New("unknown job")
)

// Spec describes one worker launch.
type Spec struct {
	Room string
	Plan interview.Plan
}

// Handle is a started worker.
type Handle interface {
	// PID returns the worker process ID, or 0 when not backed by a process.
	PID() int
	// Wait blocks until the worker exits and reports its exit error.
	Wait() error
}

// Launcher starts workers. Launch returns once the worker has started, not when it
// has joined its room.
type Launcher interface {
	Launch(ctx context.Context, spec Spec) (Handle, error)
}

// ProcessLauncher runs each worker as a child process: "<Path> agent --room <room>".
type ProcessLauncher struct {
	// Path is the worker executable; empty means the running binary.
	Path string
	// Env is appended to the parent's environment.
	Env []string
	// Stdout and Stderr default to the parent's.
	Stdout io.Writer
	Stderr io.Writer
}

// Launch starts the worker process. The process is not tied to ctx: it outlives
// the request that launched it.
func (l *ProcessLauncher) Launch(ctx context.Context, spec Spec) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLaunchFailure, err)
	}
	if spec.Room == "" {
		return nil, fmt.Errorf("%w: room is required", ErrLaunchFailure)
	}

	plan, err := spec.Plan.Encode()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLaunchFailure, err)
	}

	path := l.Path
	if path == "" {
		if path, err = os.Executable(); err != nil {
			return nil, fmt.Errorf("%w: locate executable: %w", ErrLaunchFailure, err)
		}
	}

	cmd := exec.Command(path, "agent", "--room", spec.Room)
	cmd.Env = append(append(os.Environ(), l.Env...), PlanEnv+"="+plan)
	cmd.Stdout = l.Stdout
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	cmd.Stderr = l.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLaunchFailure, err)
	}
	return &processHandle{cmd: cmd}, nil
}

type processHandle struct {
	cmd *exec.Cmd
}

func (h *processHandle) PID() int { return h.cmd.Process.Pid }

func (h *processHandle) Wait() error { return h.cmd.Wait() }
