package sidecar

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func requireUnix(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires Unix-like environment")
	}
}

func TestSupervisorFacadeAdoptsRunningBackend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	s := New(Options{
		Name:         "adopted",
		Root:         t.TempDir(),
		Command:      "sleep",
		Args:         []string{"30"},
		HealthURL:    srv.URL,
		PollInterval: 20 * time.Millisecond,
	})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !s.IsRunning(context.Background()) {
		t.Fatalf("expected running")
	}
	if got := s.State(); got != "running" {
		t.Fatalf("state = %q", got)
	}
	if st := s.Status(); st.PID != 0 {
		t.Fatalf("adopted sidecar must not have a child, got pid %d", st.PID)
	}
}

func TestSupervisorFacadeMissingInstallation(t *testing.T) {
	s := New(Options{
		Name:      "missing",
		Root:      filepath.Join(t.TempDir(), "nope"),
		Command:   "sleep",
		Args:      []string{"30"},
		HealthURL: "http://127.0.0.1:1/health",
	})
	err := s.Start(context.Background())
	if !errors.Is(err, ErrMissingInstallation) {
		t.Fatalf("expected ErrMissingInstallation, got %v", err)
	}
}

func TestSupervisorFacadeStartupTimeout(t *testing.T) {
	requireUnix(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s := New(Options{
		Name:           "slow",
		Root:           t.TempDir(),
		Command:        "sleep",
		Args:           []string{"30"},
		HealthURL:      srv.URL,
		StartupTimeout: 300 * time.Millisecond,
		PollInterval:   50 * time.Millisecond,
		GracePeriod:    500 * time.Millisecond,
	})
	err := s.Start(context.Background())
	if !errors.Is(err, ErrStartupTimeout) {
		t.Fatalf("expected ErrStartupTimeout, got %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestRegisterMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := RegisterMetrics(reg); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := RegisterMetrics(reg); err != nil {
		t.Fatalf("second register should be a no-op: %v", err)
	}
}
