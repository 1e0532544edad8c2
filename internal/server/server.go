package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// Server is a running loopback HTTP server.
type Server struct {
	srv *http.Server
	ln  net.Listener
}

// Listen binds addr, which must be a loopback address, and serves h in the
// background. Port 0 picks a free port; see Addr.
func Listen(addr string, h http.Handler) (*Server, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("listen address %q: %w", addr, err)
	}
	if !isLoopback(host) {
		return nil, fmt.Errorf("listen address %q is not loopback", addr)
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s := &Server{
		ln: ln,
		srv: &http.Server{
			Handler:           h,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			// the file dialog blocks until the user answers
			WriteTimeout: 0,
			IdleTimeout:  60 * time.Second,
		},
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server stopped", "addr", ln.Addr().String(), "error", err)
		}
	}()
	return s, nil
}

// Addr is the bound address, e.g. 127.0.0.1:8765.
func (s *Server) Addr() string { return s.ln.Addr().String() }

// URL is the http origin of the server.
func (s *Server) URL() string { return "http://" + s.Addr() }

func (s *Server) Shutdown(ctx context.Context) error { return s.srv.Shutdown(ctx) }
