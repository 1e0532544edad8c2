// Package shell runs the privileged side of the desktop app: it enforces a
// single instance, brings the sidecar up, opens the window and serves the
// message channel until asked to quit.
package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/afero"

	"github.com/loykin/sidecar/internal/instance"
	"github.com/loykin/sidecar/internal/vault"
)

// ErrSecondInstance is returned by Run after the launch was handed over to
// an already running shell.
var ErrSecondInstance = errors.New("handed over to running instance")

// Sidecar is the lifecycle surface the shell needs from the supervisor.
type Sidecar interface {
	Start(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// Guard enforces a single running shell.
type Guard interface {
	Acquire() error
	Serve(ctx context.Context, onFocus func()) error
	NotifyExisting(ctx context.Context) error
	Release() error
}

// WindowHost owns the UI window.
type WindowHost interface {
	Open() error
	Focus()
	HasWindow() bool
	Close()
}

// ServeFunc starts the message channel and returns its closer.
type ServeFunc func(ctx context.Context) (io.Closer, error)

type App struct {
	Guard           Guard
	Sidecar         Sidecar
	Window          WindowHost
	Serve           ServeFunc
	VaultFs         afero.Fs
	VaultDir        string
	ShutdownTimeout time.Duration // bound for stopping the sidecar and the server
	Logger          *slog.Logger

	ready atomic.Bool // window opened after a successful sidecar start
}

// Run executes the shell until ctx is done. Startup order: instance guard,
// vault directory, sidecar, window, message channel. A sidecar start failure
// aborts startup and is returned.
func (a *App) Run(ctx context.Context) error {
	log := a.Logger
	if log == nil {
		log = slog.Default()
	}

	if err := a.Guard.Acquire(); err != nil {
		if !errors.Is(err, instance.ErrAlreadyRunning) {
			return fmt.Errorf("single instance lock: %w", err)
		}
		log.Info("shell already running, handing over", "error", err)
		nctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if nerr := a.Guard.NotifyExisting(nctx); nerr != nil {
			log.Warn("could not reach running instance", "error", nerr)
		}
		return ErrSecondInstance
	}
	defer func() {
		if err := a.Guard.Release(); err != nil {
			log.Warn("release instance lock", "error", err)
		}
	}()

	serveCtx, stopServe := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := a.Guard.Serve(serveCtx, a.focusOrCreate(log)); err != nil {
			log.Warn("instance channel stopped", "error", err)
		}
	}()
	defer func() {
		stopServe()
		wg.Wait()
	}()

	fs := a.VaultFs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if err := vault.Ensure(fs, a.VaultDir); err != nil {
		log.Warn("vault directory not created", "dir", a.VaultDir, "error", err)
	}

	if err := a.Sidecar.Start(ctx); err != nil {
		log.Error("sidecar failed to start, aborting", "error", err)
		return err
	}
	defer a.stopSidecar(log)

	if err := a.Window.Open(); err != nil {
		return fmt.Errorf("open window: %w", err)
	}
	defer a.Window.Close()
	a.ready.Store(true)
	defer a.ready.Store(false)

	if a.Serve != nil {
		closer, err := a.Serve(ctx)
		if err != nil {
			return fmt.Errorf("start message channel: %w", err)
		}
		defer func() { _ = closer.Close() }()
	}

	log.Info("shell ready")
	<-ctx.Done()
	log.Info("shell shutting down")
	return nil
}

func (a *App) stopSidecar(log *slog.Logger) {
	timeout := a.ShutdownTimeout
	if timeout <= 0 {
		timeout = 6 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := a.Sidecar.Shutdown(ctx); err != nil {
		log.Warn("sidecar shutdown", "error", err)
	}
}

func (a *App) focusOrCreate(log *slog.Logger) func() {
	return func() {
		if !a.ready.Load() {
			log.Info("focus request ignored, shell still starting")
			return
		}
		if !a.Window.HasWindow() {
			if err := a.Window.Open(); err != nil {
				log.Warn("reopen window", "error", err)
				return
			}
		}
		a.Window.Focus()
	}
}
