package supervisor

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/loykin/sidecar/internal/config"
	"github.com/loykin/sidecar/internal/logger"
	"github.com/loykin/sidecar/internal/process"
)

// FromConfig builds the supervisor configuration for the uvicorn backend:
//
//	<python> -m <module> <app> --host <host> --port <port>
//
// run from the installation root with PYTHONPATH pointing at it.
func FromConfig(c config.SidecarConfig, logs logger.Config) Config {
	python := c.Python
	if python == "" {
		python = ResolveInterpreter(c.Root, runtime.GOOS, fileExists, exec.LookPath)
	}
	env := append([]string{"PYTHONPATH=" + c.Root}, c.Env...)
	return Config{
		Name: c.Name,
		Root: c.Root,
		Spec: process.Spec{
			Name:    c.Name,
			Command: python,
			Args:    []string{"-m", c.Module, c.App, "--host", c.Host, "--port", strconv.Itoa(c.Port)},
			WorkDir: c.Root,
			Env:     env,
			Log:     logs,
		},
		StartupTimeout: c.StartupTimeout,
		PollInterval:   c.PollInterval,
		GracePeriod:    c.GracePeriod,
	}
}

// ResolveInterpreter picks the first existing virtualenv interpreter under
// root (.venv, then venv), falling back to python3 or python on PATH. When
// nothing is found it returns "python3" and the spawn reports the failure.
func ResolveInterpreter(root, goos string, exists func(string) bool, lookPath func(string) (string, error)) string {
	rel := filepath.Join("bin", "python")
	if goos == "windows" {
		rel = filepath.Join("Scripts", "python.exe")
	}
	for _, venv := range []string{".venv", "venv"} {
		candidate := filepath.Join(root, venv, rel)
		if exists(candidate) {
			return candidate
		}
	}
	for _, name := range []string{"python3", "python"} {
		if p, err := lookPath(name); err == nil {
			return p
		}
	}
	return "python3"
}

func fileExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}
