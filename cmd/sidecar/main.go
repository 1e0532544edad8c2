package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/loykin/sidecar/internal/shell"
)

// version is overridden at link time.
var version = "dev"

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		if errors.Is(err, shell.ErrSecondInstance) {
			// the running copy was focused; not a failure
			os.Exit(0)
		}
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds persistent flags shared by all commands.
type GlobalFlags struct {
	ConfigPath string
}

// GatewayFlags selects a running shell's message channel.
type GatewayFlags struct {
	URL     string
	Timeout time.Duration
}

func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	gwFlags := &GatewayFlags{}

	root := createRootCommand(globalFlags)
	root.AddCommand(
		createRunCommand(globalFlags),
		createProbeCommand(globalFlags),
		createVaultCommand(globalFlags, gwFlags),
		createStatusCommand(globalFlags),
		createHistoryCommand(globalFlags),
		createVersionCommand(),
	)
	return root
}

func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "sidecar",
		Short: "Desktop shell that supervises the local backend service",
		Long: `sidecar runs the privileged side of the desktop app. It keeps a single
instance per user, launches the Python backend, waits for its health
endpoint, serves the file gateway to the UI and stops the backend on exit.

Examples:
  sidecar run                          # start the shell
  sidecar probe                        # is the backend answering?
  sidecar vault ls                     # list uploaded files
  sidecar status --diag-url=http://127.0.0.1:9465`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	return root
}
