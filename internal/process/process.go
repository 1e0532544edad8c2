package process

import (
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// ErrNotStarted is returned by operations that need a live child.
var ErrNotStarted = errors.New("process not started")

// Process owns one spawned child. Wait must be called exactly once, by the
// goroutine that monitors the child; everyone else observes exit through Done.
type Process struct {
	spec      Spec
	cmd       *exec.Cmd
	status    Status
	mu        sync.Mutex
	stopping  bool
	outCloser io.WriteCloser
	errCloser io.WriteCloser
	done      chan struct{}
}

func New(spec Spec) *Process {
	return &Process{spec: spec, done: make(chan struct{})}
}

// Spec returns a copy of the launch spec.
func (r *Process) Spec() Spec {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.spec
}

// ConfigureCmd builds the *exec.Cmd with workdir, environment, stdio capture
// and process group attributes. Streams go to rotating files when the spec's
// log config names any. Otherwise Stdout and Stderr stay nil and exec
// connects them to the null device itself.
func (r *Process) ConfigureCmd(mergedEnv []string) *exec.Cmd {
	r.mu.Lock()
	spec := r.spec
	r.mu.Unlock()

	cmd := spec.BuildCommand()
	if spec.WorkDir != "" {
		cmd.Dir = spec.WorkDir
	}
	if len(mergedEnv) > 0 {
		cmd.Env = mergedEnv
	}
	configureSysProcAttr(cmd)

	f := spec.Log.File
	if f.Dir != "" {
		_ = os.MkdirAll(f.Dir, 0o750)
	}
	outW, errW, _ := spec.Log.ProcessWriters(spec.Name)
	r.mu.Lock()
	r.outCloser, r.errCloser = outW, errW
	r.mu.Unlock()

	if outW != nil {
		cmd.Stdout = outW
	}
	if errW != nil {
		cmd.Stderr = errW
	}
	return cmd
}

// TryStart starts cmd and records the PID. The child is not reaped here; the
// caller must arrange for Wait to run.
func (r *Process) TryStart(cmd *exec.Cmd) error {
	if err := cmd.Start(); err != nil {
		r.CloseWriters()
		return err
	}
	r.mu.Lock()
	r.cmd = cmd
	r.status = Status{
		Name:      r.spec.Name,
		Running:   true,
		PID:       cmd.Process.Pid,
		StartedAt: time.Now(),
	}
	r.mu.Unlock()
	return nil
}

// Wait blocks until the child exits, then records the exit, closes the log
// writers and closes Done.
func (r *Process) Wait() error {
	r.mu.Lock()
	cmd := r.cmd
	r.mu.Unlock()
	if cmd == nil {
		return ErrNotStarted
	}
	err := cmd.Wait()
	r.MarkExited(err)
	r.CloseWriters()
	close(r.done)
	return err
}

// Done is closed once the child has exited and been reaped.
func (r *Process) Done() <-chan struct{} { return r.done }

// Exited reports whether Done is closed.
func (r *Process) Exited() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

func (r *Process) MarkExited(err error) {
	r.mu.Lock()
	r.status.Running = false
	r.status.StoppedAt = time.Now()
	r.status.ExitErr = err
	r.mu.Unlock()
}

// MarkStopRequested flags the process as stopping. It returns false when a
// stop was already requested, so callers signal at most once.
func (r *Process) MarkStopRequested() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopping {
		return false
	}
	r.stopping = true
	r.status.Stopping = true
	return true
}

func (r *Process) StopRequested() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopping
}

// Terminate sends the graceful termination signal to the process group.
func (r *Process) Terminate() error {
	pid := r.PID()
	if pid == 0 {
		return ErrNotStarted
	}
	if r.Exited() {
		return nil
	}
	return terminate(pid)
}

// Kill forcibly ends the process group.
func (r *Process) Kill() error {
	pid := r.PID()
	if pid == 0 {
		return ErrNotStarted
	}
	if r.Exited() {
		return nil
	}
	return kill(pid)
}

func (r *Process) PID() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status.PID
}

func (r *Process) CloseWriters() {
	r.mu.Lock()
	if r.outCloser != nil {
		_ = r.outCloser.Close()
		r.outCloser = nil
	}
	if r.errCloser != nil {
		_ = r.errCloser.Close()
		r.errCloser = nil
	}
	r.mu.Unlock()
}

// Snapshot returns a copy of the current status.
func (r *Process) Snapshot() Status {
	r.mu.Lock()
	s := r.status
	r.mu.Unlock()
	return s
}

// Stats samples memory and CPU usage of the child.
func (r *Process) Stats() (Stats, error) {
	pid := r.PID()
	if pid == 0 || r.Exited() {
		return Stats{}, ErrNotStarted
	}
	p, err := gopsproc.NewProcess(int32(pid))
	if err != nil {
		return Stats{}, err
	}
	var st Stats
	if mi, err := p.MemoryInfo(); err == nil && mi != nil {
		st.RSSBytes = mi.RSS
	} else if err != nil {
		return Stats{}, err
	}
	if cpu, err := p.CPUPercent(); err == nil {
		st.CPUPercent = cpu
	}
	return st, nil
}
