// Copyright (c) 2025 Meterflow Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package supervisor owns the worker processes serving the API. It
// spawns a configured number of workers over one shared listening
// socket, reaps and respawns them as they exit and drives the signal
// protocol: SIGTERM is a hard stop of the whole process group, SIGHUP
// is a graceful drain that lets in-flight requests finish.
//
// With zero workers configured the supervisor instead serves requests
// in-process over a bounded concurrency pool, which is useful for
// profiling, tests and debugging.
package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"sync"

	"github.com/meterflow/meterflow/internal/taskgroup"

	"golang.org/x/sys/unix"
)

// Config sizes the worker pool.
type Config struct {
	// Workers is the number of worker processes. Zero selects the
	// single process serving mode.
	Workers int `config:"workers"`

	// ThreadPoolSize bounds how many requests one worker (or the
	// single process mode) serves concurrently.
	ThreadPoolSize int `config:"thread_pool_size"`
}

// DefaultThreadPoolSize is used when ThreadPoolSize is unset.
const DefaultThreadPoolSize = 1000

// State of the supervisor.
type State int

const (
	Unstarted State = iota
	Running
	Draining
	Stopped
)

// String implements the [fmt.Stringer] interface.
func (s State) String() string {
	switch s {
	case Unstarted:
		return "unstarted"
	case Running:
		return "running"
	case Draining:
		return "draining"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Process is one spawned, already started worker process.
type Process interface {
	PID() int
	Signal(os.Signal) error
	Wait() error
}

// SpawnFunc starts a new worker process.
type SpawnFunc func(ctx context.Context) (Process, error)

// WorkerHandle tracks one live worker. Handles are owned exclusively
// by the supervisor: created on spawn, removed on confirmed exit and
// never shared.
type WorkerHandle struct {
	PID  int
	proc Process
}

type exitEvent struct {
	pid int
	err error
}

// Supervisor manages the worker pool for one listening socket.
type Supervisor struct {
	cfg     Config
	ls      net.Listener
	handler http.Handler
	spawn   SpawnFunc
	log     *slog.Logger

	mu       sync.Mutex
	state    State
	children map[int]*WorkerHandle
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// LogHandler sets the slog.Handler used by the supervisor.
func LogHandler(h slog.Handler) Option {
	return func(s *Supervisor) {
		s.log = slog.New(h)
	}
}

// WithSpawnFunc overrides how worker processes are started. The
// default re-executes the current binary in worker mode.
func WithSpawnFunc(f SpawnFunc) Option {
	return func(s *Supervisor) {
		s.spawn = f
	}
}

// New returns a Supervisor serving handler over ls.
func New(ls net.Listener, handler http.Handler, cfg Config, opts ...Option) *Supervisor {
	if cfg.ThreadPoolSize <= 0 {
		cfg.ThreadPoolSize = DefaultThreadPoolSize
	}

	s := &Supervisor{
		cfg:      cfg,
		ls:       ls,
		handler:  handler,
		log:      slog.Default(),
		children: make(map[int]*WorkerHandle),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.spawn == nil {
		s.spawn = ExecSpawner(ls, "worker")
	}
	return s
}

// State returns the current supervisor state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// WorkerCount returns the number of live worker handles.
func (s *Supervisor) WorkerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.children)
}

// Run starts the worker pool and blocks until shutdown. A bind error
// has already been surfaced by the listener at this point; any spawn
// failure during startup is fatal, while later worker exits only ever
// trigger respawns.
func (s *Supervisor) Run(ctx context.Context) error {
	if s.cfg.Workers == 0 {
		return s.runSingle(ctx)
	}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, unix.SIGTERM, unix.SIGHUP)
	defer signal.Stop(sigCh)

	exitCh := make(chan exitEvent, s.cfg.Workers)

	s.setState(Running)
	s.log.Info("starting workers", slog.Int("workers", s.cfg.Workers))
	for range s.cfg.Workers {
		err := s.spawnOne(ctx, exitCh)
		if err != nil {
			s.killGroup()
			return err
		}
	}

	return s.reap(ctx, sigCh, exitCh)
}

// reap blocks waiting for worker exits and signals. Every observed
// exit removes the worker handle and, while still running, spawns
// exactly one replacement. Context cancellation plays the role of a
// keyboard interrupt: log, stop restarting workers and release the
// shared socket.
func (s *Supervisor) reap(ctx context.Context, sigCh <-chan os.Signal, exitCh chan exitEvent) error {
	defer s.ls.Close()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("caught interrupt, exiting")
			s.setState(Stopped)
			return nil

		case sig := <-sigCh:
			s.handleSignal(sig)
			if s.State() == Stopped {
				return nil
			}
			if s.State() == Draining && s.WorkerCount() == 0 {
				return nil
			}

		case ev := <-exitCh:
			err := s.onExit(ctx, ev, exitCh)
			if err != nil {
				return err
			}
			if s.State() == Draining && s.WorkerCount() == 0 {
				s.log.Info("all workers drained")
				return nil
			}
		}
	}
}

// onExit removes the dead worker and respawns a replacement while the
// supervisor is still running. Exits caused by signals or non-zero
// statuses are expected and never fatal; only spawn plumbing failures
// propagate.
func (s *Supervisor) onExit(ctx context.Context, ev exitEvent, exitCh chan exitEvent) error {
	var exitErr *exec.ExitError
	if ev.err != nil && !errors.As(ev.err, &exitErr) {
		return ev.err
	}

	s.mu.Lock()
	delete(s.children, ev.pid)
	state := s.state
	s.mu.Unlock()

	s.log.Error("removing dead child", slog.Int("pid", ev.pid))
	if state != Running {
		return nil
	}

	err := s.spawnOne(ctx, exitCh)
	if err != nil {
		s.log.Error("failed to respawn worker", slog.Any("error", err))
	}
	return nil
}

func (s *Supervisor) spawnOne(ctx context.Context, exitCh chan exitEvent) error {
	proc, err := s.spawn(ctx)
	if err != nil {
		return err
	}

	pid := proc.PID()
	s.mu.Lock()
	s.children[pid] = &WorkerHandle{PID: pid, proc: proc}
	s.mu.Unlock()

	s.log.Info("started child", slog.Int("pid", pid))
	go func() {
		exitCh <- exitEvent{pid: pid, err: proc.Wait()}
	}()
	return nil
}

// handleSignal applies the signal protocol. Repeated SIGHUPs only ever
// transition into the drain state once and never spawn workers.
func (s *Supervisor) handleSignal(sig os.Signal) {
	switch sig {
	case unix.SIGTERM:
		s.log.Error("SIGTERM received")
		// a hard stop tears down the whole group, including this
		// process, so further SIGTERMs must be ignored during teardown
		signal.Ignore(unix.SIGTERM)
		s.setState(Stopped)
		s.killGroup()

	case unix.SIGHUP:
		s.mu.Lock()
		if s.state != Running {
			s.mu.Unlock()
			return
		}
		s.state = Draining
		children := make([]*WorkerHandle, 0, len(s.children))
		for _, h := range s.children {
			children = append(children, h)
		}
		s.mu.Unlock()

		s.log.Error("SIGHUP received")
		for _, h := range children {
			err := h.proc.Signal(unix.SIGHUP)
			if err != nil {
				s.log.Error("failed to forward SIGHUP",
					slog.Int("pid", h.PID),
					slog.Any("error", err),
				)
			}
		}
	}
}

// killGroup terminates the entire process group without waiting for
// in-flight requests.
func (s *Supervisor) killGroup() {
	// pid 0 addresses the caller's own process group
	err := unix.Kill(0, unix.SIGTERM)
	if err != nil {
		s.log.Error("failed to kill process group", slog.Any("error", err))
	}
}

func (s *Supervisor) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// runSingle serves requests in-process over a bounded concurrency
// pool. SIGHUP drains it the same way it drains workers.
func (s *Supervisor) runSingle(ctx context.Context) error {
	s.setState(Running)
	s.log.Info("starting single process server")

	hupCh := make(chan os.Signal, 1)
	signal.Notify(hupCh, unix.SIGHUP)
	defer signal.Stop(hupCh)

	srv := &http.Server{
		Handler: BoundedHandler(s.handler, s.cfg.ThreadPoolSize),
	}

	err := taskgroup.Wait(
		ctx,
		func(ctx context.Context) error {
			return srv.Serve(s.ls)
		},
		func(ctx context.Context) error {
			select {
			case <-ctx.Done():
			case <-hupCh:
				s.log.Error("SIGHUP received")
			}
			s.setState(Draining)
			defer s.setState(Stopped)
			return srv.Shutdown(context.Background())
		},
	)

	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// BoundedHandler wraps h with a concurrency limit. Requests that
// cannot obtain a slot before their context is cancelled receive a
// 503 Service Unavailable.
func BoundedHandler(h http.Handler, size int) http.Handler {
	limiter := taskgroup.NewLimiter(size)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		err := limiter.Do(r.Context(), func() {
			h.ServeHTTP(w, r)
		})
		if err != nil {
			http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
		}
	})
}
