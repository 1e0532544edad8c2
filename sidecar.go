// Package sidecar supervises a local backend service on behalf of a desktop
// shell. It re-exports the lifecycle supervisor for embedding and runs the
// complete shell via Run.
package sidecar

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/sidecar/internal/config"
	"github.com/loykin/sidecar/internal/health"
	"github.com/loykin/sidecar/internal/logger"
	"github.com/loykin/sidecar/internal/metrics"
	"github.com/loykin/sidecar/internal/process"
	"github.com/loykin/sidecar/internal/shell"
	"github.com/loykin/sidecar/internal/supervisor"
)

type Config = config.Config

type Status = supervisor.Status

var (
	ErrMissingInstallation = supervisor.ErrMissingInstallation
	ErrSpawnFailure        = supervisor.ErrSpawnFailure
	ErrStartupTimeout      = supervisor.ErrStartupTimeout
	ErrSecondInstance      = shell.ErrSecondInstance
)

// Options describes a sidecar for embedding without a config file.
type Options struct {
	Name           string
	Root           string // installation root and working directory
	Command        string
	Args           []string
	Env            []string
	HealthURL      string
	StartupTimeout time.Duration
	PollInterval   time.Duration
	GracePeriod    time.Duration
	LogDir         string // stdout/stderr capture; discarded when empty
}

// Supervisor is a thin facade over internal/supervisor.
type Supervisor struct{ inner *supervisor.Supervisor }

func New(o Options) *Supervisor {
	cfg := supervisor.Config{
		Name: o.Name,
		Root: o.Root,
		Spec: process.Spec{
			Name:    o.Name,
			Command: o.Command,
			Args:    o.Args,
			WorkDir: o.Root,
			Env:     o.Env,
			Log:     logger.Config{File: logger.FileConfig{Dir: o.LogDir}},
		},
		StartupTimeout: o.StartupTimeout,
		PollInterval:   o.PollInterval,
		GracePeriod:    o.GracePeriod,
	}
	return &Supervisor{inner: supervisor.New(cfg, health.NewProber(health.Config{URL: o.HealthURL}))}
}

// NewFromConfig builds the supervisor for the configured uvicorn backend.
func NewFromConfig(c *Config) *Supervisor {
	sc := c.Sidecar
	return &Supervisor{inner: supervisor.New(
		supervisor.FromConfig(sc, c.Log.Logger()),
		health.NewProber(health.Config{URL: sc.HealthURL(), Timeout: sc.ProbeTimeout}),
	)}
}

func (s *Supervisor) SetLogger(l *slog.Logger)           { s.inner.SetLogger(l) }
func (s *Supervisor) Start(ctx context.Context) error    { return s.inner.Start(ctx) }
func (s *Supervisor) Stop() error                        { return s.inner.Stop() }
func (s *Supervisor) Shutdown(ctx context.Context) error { return s.inner.Shutdown(ctx) }
func (s *Supervisor) IsRunning(ctx context.Context) bool { return s.inner.IsRunning(ctx) }
func (s *Supervisor) Status() Status                     { return s.inner.Status() }
func (s *Supervisor) State() string                      { return s.inner.State().String() }

func LoadConfig(path string) (*Config, error) { return config.Load(path) }

// Run executes the whole shell until ctx is done. It returns
// ErrSecondInstance when another shell already runs.
func Run(ctx context.Context, c *Config) error {
	log := logger.New(c.Log.Logger())
	app, cleanup, err := shell.Build(c, log)
	if err != nil {
		return err
	}
	defer cleanup()
	return app.Run(ctx)
}

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
