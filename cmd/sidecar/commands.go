package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/loykin/sidecar/internal/config"
	"github.com/loykin/sidecar/internal/health"
	"github.com/loykin/sidecar/internal/history/sqlite"
	"github.com/loykin/sidecar/internal/logger"
	"github.com/loykin/sidecar/internal/shell"
	"github.com/loykin/sidecar/internal/vault"
	"github.com/loykin/sidecar/pkg/client"
)

func createRunCommand(global *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the shell and its backend",
		Long: `Start the shell. A second launch hands over to the running copy,
which brings its window forward, and exits without starting a backend.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(global.ConfigPath)
			if err != nil {
				return fmt.Errorf("error loading config: %w", err)
			}
			log := logger.New(cfg.Log.Logger())

			app, cleanup, err := shell.Build(cfg, log)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return app.Run(ctx)
		},
	}
}

type probeResult struct {
	URL   string `json:"url"`
	Ready bool   `json:"ready"`
}

func createProbeCommand(global *GlobalFlags) *cobra.Command {
	var wait time.Duration
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Check whether the backend health endpoint answers",
		Long: `Probe the configured health endpoint once and print the result as JSON.
With --wait the probe is repeated at the configured poll interval until the
backend answers or the wait elapses; the command fails if it never does.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(global.ConfigPath)
			if err != nil {
				return fmt.Errorf("error loading config: %w", err)
			}
			sc := cfg.Sidecar
			p := health.NewProber(health.Config{URL: sc.HealthURL(), Timeout: sc.ProbeTimeout})
			res := probeResult{URL: sc.HealthURL()}
			if wait <= 0 {
				res.Ready = p.Probe(cmd.Context()).Ready
				return printJSON(cmd, res)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), wait)
			defer cancel()
			werr := health.WaitReady(ctx, p, sc.PollInterval, nil)
			res.Ready = werr == nil
			if err := printJSON(cmd, res); err != nil {
				return err
			}
			return werr
		},
	}
	cmd.Flags().DurationVar(&wait, "wait", 0, "keep probing up to this long")
	return cmd
}

func createVaultCommand(global *GlobalFlags, gw *GatewayFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vault",
		Short: "Inspect the upload directory shared with the backend",
	}

	dir := &cobra.Command{
		Use:   "dir",
		Short: "Print the vault directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(global.ConfigPath)
			if err != nil {
				return fmt.Errorf("error loading config: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), resolver(cfg).Path())
			return err
		},
	}

	ls := &cobra.Command{
		Use:   "ls",
		Short: "List files in the vault directory",
		Long: `List files in the vault directory as JSON. With --gateway-url the listing
comes from a running shell instead of the local filesystem.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if gw.URL != "" {
				files, err := client.New(client.Config{BaseURL: gw.URL, Timeout: gw.Timeout}).ListFiles(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd, files)
			}
			cfg, err := config.Load(global.ConfigPath)
			if err != nil {
				return fmt.Errorf("error loading config: %w", err)
			}
			files, err := vault.ListFiles(afero.NewOsFs(), resolver(cfg).Path())
			if err != nil {
				return err
			}
			return printJSON(cmd, files)
		},
	}
	addGatewayFlags(ls, gw)

	cmd.AddCommand(dir, ls)
	return cmd
}

func createStatusCommand(global *GlobalFlags) *cobra.Command {
	var diag GatewayFlags
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the backend lifecycle state reported by a running shell",
		Long: `Show the supervisor snapshot from a running shell's diagnostics listener
([metrics] enabled = true). The address defaults to [metrics] listen.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			base := diag.URL
			if base == "" {
				cfg, err := config.Load(global.ConfigPath)
				if err != nil {
					return fmt.Errorf("error loading config: %w", err)
				}
				base = "http://" + cfg.Metrics.Listen
			}
			st, err := client.New(client.Config{BaseURL: base, Timeout: diag.Timeout}).Status(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, st)
		},
	}
	cmd.Flags().StringVar(&diag.URL, "diag-url", "", "diagnostics listener of a running shell (e.g. http://127.0.0.1:9465)")
	cmd.Flags().DurationVar(&diag.Timeout, "diag-timeout", client.DefaultConfig().Timeout, "request timeout")
	return cmd
}

func createHistoryCommand(global *GlobalFlags) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent backend lifecycle events",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(global.ConfigPath)
			if err != nil {
				return fmt.Errorf("error loading config: %w", err)
			}
			if !cfg.History.Enabled {
				return fmt.Errorf("history is disabled in config")
			}
			if _, err := os.Stat(cfg.History.Path); err != nil {
				return fmt.Errorf("no history at %s: %w", cfg.History.Path, err)
			}
			sink, err := sqlite.New(cfg.History.Path)
			if err != nil {
				return err
			}
			defer func() { _ = sink.Close() }()
			events, err := sink.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return printJSON(cmd, events)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of events to show")
	return cmd
}

func createVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "sidecar", version)
		},
	}
}

func addGatewayFlags(cmd *cobra.Command, gw *GatewayFlags) {
	def := client.DefaultConfig()
	cmd.Flags().StringVar(&gw.URL, "gateway-url", "", "message channel of a running shell (e.g. "+def.BaseURL+")")
	cmd.Flags().DurationVar(&gw.Timeout, "gateway-timeout", def.Timeout, "request timeout")
}

func resolver(cfg *config.Config) vault.Resolver {
	return vault.Resolver{Product: cfg.Vault.Product, Dir: cfg.Vault.Dir}
}
