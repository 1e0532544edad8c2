// Package instance keeps the shell to a single running copy per user and
// forwards later launches to the running copy as focus requests.
//
// Files live in Config.Dir:
//
//	<name>.lock  exclusive advisory lock held for the process lifetime
//	<name>.pid   holder PID, informational
//	<name>.sock  focus channel served by the holder
package instance

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ErrAlreadyRunning is returned by Acquire when another process holds the lock.
var ErrAlreadyRunning = errors.New("another instance is already running")

const (
	focusMessage = "focus"
	ackMessage   = "ok"
)

type Config struct {
	Dir  string // default: os.TempDir()
	Name string // default: "sidecar-shell"
}

// Guard holds the single-instance lock and its focus listener.
type Guard struct {
	lockPath string
	pidPath  string
	sockPath string

	mu       sync.Mutex
	lockFile *os.File
	listener net.Listener
	held     bool
}

func New(cfg Config) *Guard {
	if cfg.Dir == "" {
		cfg.Dir = os.TempDir()
	}
	if cfg.Name == "" {
		cfg.Name = "sidecar-shell"
	}
	base := filepath.Join(cfg.Dir, cfg.Name)
	return &Guard{
		lockPath: base + ".lock",
		pidPath:  base + ".pid",
		sockPath: base + ".sock",
	}
}

// Acquire takes the lock without blocking and opens the focus listener. When
// another process holds the lock the error wraps ErrAlreadyRunning.
func (g *Guard) Acquire() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.held {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(g.lockPath), 0o750); err != nil {
		return fmt.Errorf("create lock dir: %w", err)
	}
	f, err := os.OpenFile(g.lockPath, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return fmt.Errorf("open lock file %s: %w", g.lockPath, err)
	}
	if err := tryLock(f); err != nil {
		_ = f.Close()
		if errors.Is(err, errLocked) {
			if pid := g.readHolderPID(); pid > 0 {
				return fmt.Errorf("%w (pid %d)", ErrAlreadyRunning, pid)
			}
			return ErrAlreadyRunning
		}
		return fmt.Errorf("lock %s: %w", g.lockPath, err)
	}

	// A socket left behind by a crashed holder is stale once we own the lock.
	_ = os.Remove(g.sockPath)
	ln, err := net.Listen("unix", g.sockPath)
	if err != nil {
		_ = unlock(f)
		_ = f.Close()
		return fmt.Errorf("listen %s: %w", g.sockPath, err)
	}

	_ = os.WriteFile(g.pidPath, []byte(strconv.Itoa(os.Getpid())), 0o600)
	g.lockFile = f
	g.listener = ln
	g.held = true
	return nil
}

// Serve accepts focus requests until ctx is done or the guard is released.
// onFocus runs once per request, on the serving goroutine.
func (g *Guard) Serve(ctx context.Context, onFocus func()) error {
	g.mu.Lock()
	ln := g.listener
	g.mu.Unlock()
	if ln == nil {
		return errors.New("instance lock not held")
	}

	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		g.handle(conn, onFocus)
	}
}

func (g *Guard) handle(conn net.Conn, onFocus func()) {
	defer func() { _ = conn.Close() }()
	_ = conn.SetDeadline(time.Now().Add(2 * time.Second))
	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil && line == "" {
		return
	}
	if strings.TrimSpace(line) != focusMessage {
		slog.Debug("unknown instance message", "message", strings.TrimSpace(line))
		return
	}
	slog.Info("second launch detected, focusing window")
	if onFocus != nil {
		onFocus()
	}
	_, _ = conn.Write([]byte(ackMessage + "\n"))
}

// NotifyExisting asks the running instance to bring its window forward.
func (g *Guard) NotifyExisting(ctx context.Context) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", g.sockPath)
	if err != nil {
		return fmt.Errorf("contact running instance: %w", err)
	}
	defer func() { _ = conn.Close() }()
	deadline := time.Now().Add(2 * time.Second)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	_ = conn.SetDeadline(deadline)
	if _, err := conn.Write([]byte(focusMessage + "\n")); err != nil {
		return fmt.Errorf("send focus request: %w", err)
	}
	reply, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return fmt.Errorf("read focus reply: %w", err)
	}
	if strings.TrimSpace(reply) != ackMessage {
		return fmt.Errorf("unexpected focus reply %q", strings.TrimSpace(reply))
	}
	return nil
}

// Release closes the listener, removes the pid and socket files and unlocks.
// It is safe to call more than once.
func (g *Guard) Release() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.held {
		return nil
	}
	var errs []error
	if g.listener != nil {
		if err := g.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, err)
		}
		g.listener = nil
	}
	_ = os.Remove(g.sockPath)
	_ = os.Remove(g.pidPath)
	if err := unlock(g.lockFile); err != nil {
		errs = append(errs, err)
	}
	if err := g.lockFile.Close(); err != nil {
		errs = append(errs, err)
	}
	g.lockFile = nil
	g.held = false
	return errors.Join(errs...)
}

// IsHeld reports whether this guard owns the lock.
func (g *Guard) IsHeld() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.held
}

// HolderPID returns the PID recorded by the lock holder, or 0.
func (g *Guard) HolderPID() int { return g.readHolderPID() }

func (g *Guard) readHolderPID() int {
	b, err := os.ReadFile(g.pidPath)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil {
		return 0
	}
	return pid
}
