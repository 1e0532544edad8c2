package supervisor

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/loykin/sidecar/internal/config"
	"github.com/loykin/sidecar/internal/logger"
)

func TestResolveInterpreter(t *testing.T) {
	root := filepath.Join("opt", "backend")
	noPath := func(string) (string, error) { return "", errors.New("not found") }
	tests := []struct {
		name     string
		goos     string
		existing []string
		lookPath func(string) (string, error)
		want     string
	}{
		{
			name:     "dot venv wins",
			goos:     "linux",
			existing: []string{filepath.Join(root, ".venv", "bin", "python"), filepath.Join(root, "venv", "bin", "python")},
			lookPath: noPath,
			want:     filepath.Join(root, ".venv", "bin", "python"),
		},
		{
			name:     "venv",
			goos:     "darwin",
			existing: []string{filepath.Join(root, "venv", "bin", "python")},
			lookPath: noPath,
			want:     filepath.Join(root, "venv", "bin", "python"),
		},
		{
			name:     "windows scripts",
			goos:     "windows",
			existing: []string{filepath.Join(root, ".venv", "Scripts", "python.exe")},
			lookPath: noPath,
			want:     filepath.Join(root, ".venv", "Scripts", "python.exe"),
		},
		{
			name: "system python",
			goos: "linux",
			lookPath: func(name string) (string, error) {
				if name == "python" {
					return "/usr/bin/python", nil
				}
				return "", errors.New("not found")
			},
			want: "/usr/bin/python",
		},
		{name: "nothing", goos: "linux", lookPath: noPath, want: "python3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exists := func(p string) bool {
				for _, e := range tt.existing {
					if e == p {
						return true
					}
				}
				return false
			}
			assert.Equal(t, tt.want, ResolveInterpreter(root, tt.goos, exists, tt.lookPath))
		})
	}
}

func TestFromConfig(t *testing.T) {
	sc := config.SidecarConfig{
		Name:           "backend",
		Root:           "/opt/privatix/backend",
		Python:         "/usr/bin/python3.11",
		Module:         "uvicorn",
		App:            "app:app",
		Host:           "127.0.0.1",
		Port:           8000,
		StartupTimeout: 30 * time.Second,
		PollInterval:   time.Second,
		GracePeriod:    5 * time.Second,
		Env:            []string{"DEBUG=false"},
	}
	c := FromConfig(sc, logger.Config{File: logger.FileConfig{Dir: "/var/log/privatix"}})

	assert.Equal(t, "/usr/bin/python3.11", c.Spec.Command)
	assert.Equal(t, []string{"-m", "uvicorn", "app:app", "--host", "127.0.0.1", "--port", "8000"}, c.Spec.Args)
	assert.Equal(t, "/opt/privatix/backend", c.Spec.WorkDir)
	assert.Equal(t, []string{"PYTHONPATH=/opt/privatix/backend", "DEBUG=false"}, c.Spec.Env)
	assert.Equal(t, "/var/log/privatix", c.Spec.Log.File.Dir)
	assert.Equal(t, 30*time.Second, c.StartupTimeout)
	assert.Equal(t, 5*time.Second, c.GracePeriod)
}
