package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeShell(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ipc/data-dir", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"path":"/home/u/.local/share/PrivatixAI/data/uploads"}`))
	})
	mux.HandleFunc("GET /ipc/files", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"files":[{"name":"a.pdf","sizeBytes":3,"modifiedAtMs":5,"extension":"pdf"}]}`))
	})
	mux.HandleFunc("POST /ipc/open-file-dialog", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"paths":[]}`))
	})
	mux.HandleFunc("GET /ipc/status", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"status not available"}`))
	})
	mux.HandleFunc("GET /status", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"name":"backend","state":"running","pid":12}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient(t *testing.T) {
	srv := fakeShell(t)
	c := New(Config{BaseURL: srv.URL + "/ipc/"})
	ctx := context.Background()

	dir, err := c.DataDir(ctx)
	require.NoError(t, err)
	assert.Equal(t, "/home/u/.local/share/PrivatixAI/data/uploads", dir)
	assert.True(t, c.IsReachable(ctx))

	files, err := c.ListFiles(ctx)
	require.NoError(t, err)
	assert.Equal(t, []FileMetadata{{Name: "a.pdf", SizeBytes: 3, ModifiedAtMs: 5, Extension: "pdf"}}, files)

	paths, err := c.OpenFileDialog(ctx)
	require.NoError(t, err)
	assert.Empty(t, paths)

	// status lives on the diagnostics listener, not the message channel
	_, err = c.Status(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status not available")

	st, err := New(Config{BaseURL: srv.URL}).Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "running", st.State)
	assert.Equal(t, 12, st.PID)
}

func TestClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := New(Config{BaseURL: url})
	assert.False(t, c.IsReachable(context.Background()))
}
