package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"

	"github.com/loykin/sidecar/internal/config"
	"github.com/loykin/sidecar/internal/env"
	"github.com/loykin/sidecar/internal/gateway"
	"github.com/loykin/sidecar/internal/health"
	"github.com/loykin/sidecar/internal/history/sqlite"
	"github.com/loykin/sidecar/internal/instance"
	"github.com/loykin/sidecar/internal/metrics"
	"github.com/loykin/sidecar/internal/server"
	"github.com/loykin/sidecar/internal/supervisor"
	"github.com/loykin/sidecar/internal/vault"
)

// Build assembles an App from cfg. The returned cleanup closes resources
// opened here (history database) and must run after App.Run returns.
func Build(cfg *config.Config, log *slog.Logger) (*App, func(), error) {
	if log == nil {
		log = slog.Default()
	}
	cleanup := func() {}

	sc := cfg.Sidecar
	sup := supervisor.New(
		supervisor.FromConfig(sc, cfg.Log.Logger()),
		health.NewProber(health.Config{URL: sc.HealthURL(), Timeout: sc.ProbeTimeout}),
	)
	sup.SetLogger(log)

	e := env.New()
	e.FromOS()
	applied, err := e.LoadFiles(sc.EnvFiles...)
	if err != nil {
		return nil, cleanup, fmt.Errorf("load env files: %w", err)
	}
	if len(applied) > 0 {
		log.Debug("env files applied", "files", applied)
	}
	sup.SetEnvMerger(e)

	if cfg.History.Enabled {
		sink, err := sqlite.New(cfg.History.Path)
		if err != nil {
			log.Warn("history disabled", "path", cfg.History.Path, "error", err)
		} else {
			sup.SetHistory(sink)
			cleanup = func() { _ = sink.Close() }
		}
	}

	if cfg.Metrics.Enabled {
		if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
			cleanup()
			return nil, func() {}, fmt.Errorf("register metrics: %w", err)
		}
	}

	host := &HeadlessHost{URL: "http://" + cfg.Gateway.Listen + cfg.Gateway.BasePath}
	resolver := vault.Resolver{Product: cfg.Vault.Product, Dir: cfg.Vault.Dir}
	fs := afero.NewOsFs()
	gw := gateway.New(gateway.Options{
		Fs:       fs,
		Resolver: resolver,
		Anchor:   host,
		Logger:   log,
	})

	app := &App{
		Guard:           instance.New(instance.Config{Dir: cfg.Instance.LockDir, Name: cfg.Instance.Name}),
		Sidecar:         sup,
		Window:          host,
		VaultFs:         fs,
		VaultDir:        resolver.Path(),
		ShutdownTimeout: sc.GracePeriod + time.Second,
		Logger:          log,
		Serve: func(ctx context.Context) (io.Closer, error) {
			return serveChannels(cfg, server.NewRouter(gw, cfg.Gateway.BasePath), sup, log)
		},
	}
	return app, cleanup, nil
}

// servers shuts down every listener it holds.
type servers []*server.Server

func (s servers) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var errs []error
	for _, srv := range s {
		errs = append(errs, srv.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

// serveChannels starts the UI message channel and, when enabled, the
// diagnostics listener (metrics and supervisor status).
func serveChannels(cfg *config.Config, router *server.Router, status server.StatusSource, log *slog.Logger) (io.Closer, error) {
	gwSrv, err := server.Listen(cfg.Gateway.Listen, router.Handler())
	if err != nil {
		return nil, err
	}
	log.Info("gateway listening", "url", gwSrv.URL()+cfg.Gateway.BasePath)
	out := servers{gwSrv}

	if cfg.Metrics.Enabled {
		mSrv, err := server.Listen(cfg.Metrics.Listen, server.DiagnosticsHandler(status))
		if err != nil {
			_ = out.Close()
			return nil, fmt.Errorf("diagnostics listener: %w", err)
		}
		log.Info("diagnostics listening", "metrics", mSrv.URL()+"/metrics", "status", mSrv.URL()+"/status")
		out = append(out, mSrv)
	}
	return out, nil
}
