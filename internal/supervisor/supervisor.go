// Package supervisor owns the lifecycle of the backend sidecar: spawning it,
// waiting for its control endpoint, and terminating it gracefully.
//
// Lock hierarchy:
//  1. singleflight group - at most one start attempt in flight
//  2. mu - state, handle and attempt bookkeeping
//  3. process.Process internal lock
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/loykin/sidecar/internal/health"
	"github.com/loykin/sidecar/internal/history"
	"github.com/loykin/sidecar/internal/metrics"
	"github.com/loykin/sidecar/internal/process"
)

var (
	// ErrMissingInstallation means the sidecar root directory does not exist.
	ErrMissingInstallation = errors.New("sidecar installation missing")
	// ErrSpawnFailure means the child could not be created, or exited before
	// it became ready.
	ErrSpawnFailure = errors.New("sidecar spawn failed")
	// ErrStartupTimeout means the control endpoint did not answer in time.
	ErrStartupTimeout = errors.New("sidecar startup timed out")
)

const (
	DefaultStartupTimeout = 30 * time.Second
	DefaultGracePeriod    = 5 * time.Second
)

// Config fixes everything needed to launch the sidecar.
type Config struct {
	Name           string
	Root           string       // installation root; must exist at start time
	Spec           process.Spec // command, args, workdir, env, stream capture
	StartupTimeout time.Duration
	PollInterval   time.Duration
	GracePeriod    time.Duration
}

// Spawner creates and starts the child process.
type Spawner interface {
	Spawn(spec process.Spec, env []string) (*process.Process, error)
}

// ExecSpawner starts real OS processes.
type ExecSpawner struct{}

func (ExecSpawner) Spawn(spec process.Spec, env []string) (*process.Process, error) {
	p := process.New(spec)
	if err := p.TryStart(p.ConfigureCmd(env)); err != nil {
		return nil, err
	}
	return p, nil
}

// EnvMerger composes the child environment from per-process entries.
type EnvMerger interface {
	Merge(perProc []string) []string
}

// Status is a point-in-time view of the supervisor.
type Status struct {
	Name       string    `json:"name"`
	State      string    `json:"state"`
	PID        int       `json:"pid,omitempty"`
	Attempt    string    `json:"attempt,omitempty"`
	StartedAt  time.Time `json:"started_at,omitzero"`
	ReadyAt    time.Time `json:"ready_at,omitzero"`
	LastExit   string    `json:"last_exit,omitempty"`
	LastError  string    `json:"last_error,omitempty"`
	Restarts   int       `json:"restarts"`
	RSSBytes   uint64    `json:"rss_bytes,omitempty"`
	CPUPercent float64   `json:"cpu_percent,omitempty"`
}

// Supervisor manages one sidecar. All methods are safe for concurrent use.
type Supervisor struct {
	cfg     Config
	prober  health.Checker
	spawner Spawner
	env     EnvMerger
	log     *slog.Logger
	sinks   []history.Sink

	sf singleflight.Group

	mu        sync.Mutex
	state     State
	handle    *process.Process
	released  chan struct{} // closed once the exit of handle has been applied
	attempt   string
	startedAt time.Time
	readyAt   time.Time
	lastExit  error
	lastErr   error
}

// New creates a Supervisor in the Idle state.
func New(cfg Config, prober health.Checker) *Supervisor {
	if cfg.Name == "" {
		cfg.Name = "sidecar"
	}
	if cfg.StartupTimeout <= 0 {
		cfg.StartupTimeout = DefaultStartupTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = health.DefaultPollInterval
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = DefaultGracePeriod
	}
	if cfg.Spec.Name == "" {
		cfg.Spec.Name = cfg.Name
	}
	if cfg.Spec.WorkDir == "" {
		cfg.Spec.WorkDir = cfg.Root
	}
	return &Supervisor{
		cfg:     cfg,
		prober:  prober,
		spawner: ExecSpawner{},
		log:     slog.Default(),
		state:   StateIdle,
	}
}

func (s *Supervisor) SetSpawner(sp Spawner) {
	s.mu.Lock()
	s.spawner = sp
	s.mu.Unlock()
}

func (s *Supervisor) SetEnvMerger(m EnvMerger) {
	s.mu.Lock()
	s.env = m
	s.mu.Unlock()
}

func (s *Supervisor) SetLogger(l *slog.Logger) {
	s.mu.Lock()
	s.log = l
	s.mu.Unlock()
}

// SetHistory configures lifecycle journal sinks.
func (s *Supervisor) SetHistory(sinks ...history.Sink) {
	s.mu.Lock()
	s.sinks = append([]history.Sink(nil), sinks...)
	s.mu.Unlock()
}

// Start brings the sidecar up and waits for its control endpoint. Concurrent
// callers join the attempt in flight and receive its result. The startup
// deadline is enforced here; ctx cancellation does not abort an attempt.
func (s *Supervisor) Start(ctx context.Context) error {
	ctx = context.WithoutCancel(ctx)
	_, err, _ := s.sf.Do("start", func() (any, error) {
		return nil, s.start(ctx)
	})
	return err
}

func (s *Supervisor) start(ctx context.Context) error {
	if err := s.awaitPendingStop(); err != nil {
		return err
	}

	if s.prober.Probe(ctx).Ready {
		s.mu.Lock()
		if s.state == StateRunning {
			s.mu.Unlock()
			return nil
		}
		s.fireLocked(evAdopt)
		s.attempt = uuid.NewString()
		s.readyAt = time.Now()
		s.mu.Unlock()
		metrics.IncStart("adopted")
		s.logger().Info("sidecar already running, adopting", "sidecar", s.cfg.Name)
		s.record(history.EventAdopt, 0, nil)
		return nil
	}

	if err := s.releaseStale(); err != nil {
		return err
	}

	s.mu.Lock()
	if !s.fireLocked(evStart) {
		st := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: cannot start from state %s", ErrSpawnFailure, st)
	}
	attempt := uuid.NewString()
	s.attempt = attempt
	s.lastErr = nil
	spawner, envm := s.spawner, s.env
	s.mu.Unlock()

	log := s.logger().With("sidecar", s.cfg.Name, "attempt", attempt)
	s.record(history.EventStart, 0, nil)

	if st, err := os.Stat(s.cfg.Root); err != nil || !st.IsDir() {
		if err == nil {
			err = errors.New("not a directory")
		}
		return s.failStart(log, "missing", fmt.Errorf("%w: %s: %v", ErrMissingInstallation, s.cfg.Root, err))
	}

	var childEnv []string
	if envm != nil {
		childEnv = envm.Merge(s.cfg.Spec.Env)
	} else if len(s.cfg.Spec.Env) > 0 {
		childEnv = append(os.Environ(), s.cfg.Spec.Env...)
	}
	p, err := spawner.Spawn(s.cfg.Spec, childEnv)
	if err != nil {
		return s.failStart(log, "spawn_failed", fmt.Errorf("%w: %v", ErrSpawnFailure, err))
	}

	spawnedAt := time.Now()
	released := make(chan struct{})
	s.mu.Lock()
	s.handle = p
	s.released = released
	s.startedAt = spawnedAt
	s.mu.Unlock()
	go s.watch(p, released)

	log.Info("sidecar spawned", "pid", p.PID(), "command", s.cfg.Spec.Command, "args", s.cfg.Spec.Args)

	waitCtx, cancel := context.WithTimeout(ctx, s.cfg.StartupTimeout)
	err = health.WaitReady(waitCtx, s.prober, s.cfg.PollInterval, p.Done())
	cancel()

	switch {
	case err == nil:
		s.mu.Lock()
		ok := s.fireLocked(evReady)
		s.readyAt = time.Now()
		s.mu.Unlock()
		if !ok {
			// Stop was requested while the endpoint came up.
			return fmt.Errorf("%w: stopped before ready", ErrSpawnFailure)
		}
		metrics.IncStart("ready")
		metrics.ObserveStartupDuration(time.Since(spawnedAt).Seconds())
		log.Info("sidecar ready", "pid", p.PID(), "elapsed", time.Since(spawnedAt).Round(time.Millisecond))
		s.record(history.EventReady, p.PID(), nil)
		return nil

	case errors.Is(err, health.ErrAborted):
		<-released
		exit := p.Snapshot().ExitErr
		if exit == nil {
			exit = errors.New("exit status 0")
		}
		return s.failStart(log, "spawn_failed", fmt.Errorf("%w: exited before ready: %v", ErrSpawnFailure, exit))

	default:
		s.abandon(p)
		// Give the terminated child one poll interval to be reaped.
		t := time.NewTimer(s.cfg.PollInterval)
		select {
		case <-released:
		case <-t.C:
		}
		t.Stop()
		metrics.IncStart("timeout")
		err = fmt.Errorf("%w after %s", ErrStartupTimeout, s.cfg.StartupTimeout)
		s.mu.Lock()
		s.lastErr = err
		s.mu.Unlock()
		log.Error("sidecar did not become ready", "pid", p.PID(), "timeout", s.cfg.StartupTimeout)
		s.record(history.EventFail, p.PID(), err)
		return err
	}
}

func (s *Supervisor) failStart(log *slog.Logger, result string, err error) error {
	s.mu.Lock()
	s.fireLocked(evFail)
	s.lastErr = err
	s.mu.Unlock()
	metrics.IncStart(result)
	log.Error("sidecar start failed", "error", err)
	s.record(history.EventFail, 0, err)
	return err
}

// abandon terminates a child that never became ready and marks the attempt
// failed in one step, so the exit watcher cannot observe Stopping first.
func (s *Supervisor) abandon(p *process.Process) {
	s.mu.Lock()
	signal := p.MarkStopRequested()
	if signal {
		s.fireLocked(evStop)
	}
	s.fireLocked(evFail)
	s.mu.Unlock()
	if signal {
		s.signal(p)
	}
}

// awaitPendingStop lets a child that was asked to stop finish exiting before
// a new attempt, so two children never overlap.
func (s *Supervisor) awaitPendingStop() error {
	s.mu.Lock()
	p, released := s.handle, s.released
	s.mu.Unlock()
	if p == nil || !p.StopRequested() {
		return nil
	}
	t := time.NewTimer(s.cfg.GracePeriod + time.Second)
	defer t.Stop()
	select {
	case <-released:
		return nil
	case <-t.C:
		return fmt.Errorf("%w: previous sidecar pid %d did not exit", ErrSpawnFailure, p.PID())
	}
}

// releaseStale handles a Running state whose sidecar no longer answers: an
// adopted sidecar that went away is forgotten, a hung child is stopped.
func (s *Supervisor) releaseStale() error {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return nil
	}
	p, released := s.handle, s.released
	if p == nil {
		s.fireLocked(evExited)
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	s.logger().Warn("sidecar not answering, restarting", "sidecar", s.cfg.Name, "pid", p.PID())
	_ = s.Stop()
	t := time.NewTimer(s.cfg.GracePeriod + time.Second)
	defer t.Stop()
	select {
	case <-released:
		return nil
	case <-t.C:
		return fmt.Errorf("%w: previous sidecar pid %d did not exit", ErrSpawnFailure, p.PID())
	}
}

// Stop sends the graceful termination signal and arms the forced-kill timer.
// It is a no-op without a handle or when a stop was already issued for it.
// It does not wait for the process to exit.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	p := s.handle
	if p == nil || !p.MarkStopRequested() {
		s.mu.Unlock()
		return nil
	}
	s.fireLocked(evStop)
	s.mu.Unlock()
	return s.signal(p)
}

func (s *Supervisor) signal(p *process.Process) error {
	pid := p.PID()
	s.logger().Info("stopping sidecar", "sidecar", s.cfg.Name, "pid", pid, "grace", s.cfg.GracePeriod)
	s.record(history.EventStop, pid, nil)
	err := p.Terminate()
	go s.escalate(p)
	if err != nil {
		return fmt.Errorf("terminate sidecar pid %d: %w", pid, err)
	}
	return nil
}

func (s *Supervisor) escalate(p *process.Process) {
	t := time.NewTimer(s.cfg.GracePeriod)
	defer t.Stop()
	select {
	case <-p.Done():
		metrics.IncStop(false)
	case <-t.C:
		s.logger().Warn("sidecar ignored termination, killing", "sidecar", s.cfg.Name, "pid", p.PID())
		if err := p.Kill(); err != nil {
			s.logger().Error("kill sidecar", "pid", p.PID(), "error", err)
		}
		metrics.IncStop(true)
	}
}

// Shutdown stops the sidecar and waits for it to exit, killing it when ctx
// ends first.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	p, released := s.handle, s.released
	s.mu.Unlock()
	if p == nil {
		return nil
	}
	err := s.Stop()
	select {
	case <-released:
		return err
	case <-ctx.Done():
		_ = p.Kill()
		t := time.NewTimer(time.Second)
		defer t.Stop()
		select {
		case <-released:
		case <-t.C:
		}
		return errors.Join(err, ctx.Err())
	}
}

// watch is the only caller of Wait for p. The exit of a child that is no
// longer the current handle does not touch the lifecycle state.
func (s *Supervisor) watch(p *process.Process, released chan struct{}) {
	exitErr := p.Wait()

	s.mu.Lock()
	current := s.handle == p
	from := s.state
	if current {
		s.handle = nil
		s.released = nil
		s.lastExit = exitErr
		s.fireLocked(evExited)
	}
	to := s.state
	s.mu.Unlock()
	close(released)

	log := s.logger().With("sidecar", s.cfg.Name, "pid", p.PID())
	switch {
	case !current:
		log.Info("previous sidecar exited", "error", exitErr)
	case from == StateRunning:
		log.Warn("sidecar exited unexpectedly", "error", exitErr, "state", to)
	default:
		log.Info("sidecar exited", "error", exitErr, "state", to)
	}
	s.record(history.EventExit, p.PID(), exitErr)
}

// IsRunning reports whether the control endpoint answers right now.
func (s *Supervisor) IsRunning(ctx context.Context) bool {
	return s.prober.Probe(ctx).Ready
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// HasHandle reports whether a spawned child is currently owned.
func (s *Supervisor) HasHandle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle != nil
}

// Status returns a snapshot, sampling resource usage when a child exists.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	st := Status{
		Name:      s.cfg.Name,
		State:     s.state.String(),
		Attempt:   s.attempt,
		StartedAt: s.startedAt,
		ReadyAt:   s.readyAt,
	}
	if s.lastExit != nil {
		st.LastExit = s.lastExit.Error()
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	p := s.handle
	s.mu.Unlock()

	if p != nil {
		st.PID = p.PID()
		if stats, err := p.Stats(); err == nil {
			st.RSSBytes = stats.RSSBytes
			st.CPUPercent = stats.CPUPercent
			metrics.SetResources(stats.RSSBytes, stats.CPUPercent)
		}
	}
	return st
}

// fireLocked applies ev to the state machine. s.mu must be held.
func (s *Supervisor) fireLocked(ev event) bool {
	from := s.state
	to, ok := next(from, ev)
	if !ok {
		s.log.Debug("rejected state transition", "sidecar", s.cfg.Name, "state", from, "event", ev)
		return false
	}
	if to == from {
		return true
	}
	s.state = to
	s.log.Debug("state transition", "sidecar", s.cfg.Name, "from", from, "to", to, "event", ev)
	metrics.RecordStateTransition(from.String(), to.String())
	return true
}

func (s *Supervisor) logger() *slog.Logger {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.log
}

func (s *Supervisor) record(typ history.EventType, pid int, err error) {
	s.mu.Lock()
	sinks := s.sinks
	e := history.Event{
		Type:       typ,
		OccurredAt: time.Now().UTC(),
		Sidecar:    s.cfg.Name,
		Attempt:    s.attempt,
		PID:        pid,
		State:      s.state.String(),
	}
	log := s.log
	s.mu.Unlock()
	if len(sinks) == 0 {
		return
	}
	if err != nil {
		e.Error = err.Error()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for _, h := range sinks {
		if serr := h.Send(ctx, e); serr != nil {
			log.Debug("history send failed", "event", typ, "error", serr)
		}
	}
}
