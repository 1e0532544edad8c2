package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/sidecar/internal/supervisor"
	"github.com/loykin/sidecar/internal/vault"
)

type stubGateway struct {
	dir   string
	files []vault.FileMetadata
	paths []string
}

func (s stubGateway) DataDir(context.Context) string                 { return s.dir }
func (s stubGateway) ListFiles(context.Context) []vault.FileMetadata { return s.files }
func (s stubGateway) OpenFileDialog(context.Context) []string        { return s.paths }

type stubStatus struct{}

func (stubStatus) Status() supervisor.Status {
	return supervisor.Status{Name: "backend", State: "running", PID: 99}
}

func setupRouter(t *testing.T, gw stubGateway, base string) http.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)
	return NewRouter(gw, base).Handler()
}

func doReq(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestDataDir(t *testing.T) {
	h := setupRouter(t, stubGateway{dir: "/home/u/.local/share/PrivatixAI/data/uploads"}, "/ipc")
	rec := doReq(t, h, http.MethodGet, "/ipc/data-dir")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"path":"/home/u/.local/share/PrivatixAI/data/uploads"}`, rec.Body.String())
}

func TestFiles(t *testing.T) {
	gw := stubGateway{files: []vault.FileMetadata{{Name: "a.pdf", SizeBytes: 10, ModifiedAtMs: 1700000000000, Extension: "pdf"}}}
	h := setupRouter(t, gw, "/ipc/")
	rec := doReq(t, h, http.MethodGet, "/ipc/files")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"files":[{"name":"a.pdf","sizeBytes":10,"modifiedAtMs":1700000000000,"extension":"pdf"}]}`, rec.Body.String())
}

func TestEmptyResultsAreArrays(t *testing.T) {
	h := setupRouter(t, stubGateway{}, "ipc")
	rec := doReq(t, h, http.MethodGet, "/ipc/files")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"files":[]}`, rec.Body.String())

	rec = doReq(t, h, http.MethodPost, "/ipc/open-file-dialog")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"paths":[]}`, rec.Body.String())
}

func TestOpenFileDialog(t *testing.T) {
	h := setupRouter(t, stubGateway{paths: []string{"/tmp/a.srt"}}, "")
	rec := doReq(t, h, http.MethodPost, "/open-file-dialog")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"paths":["/tmp/a.srt"]}`, rec.Body.String())

	rec = doReq(t, h, http.MethodGet, "/open-file-dialog")
	assert.NotEqual(t, http.StatusOK, rec.Code)
}

func TestRouterExposesOnlyGatewayOperations(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewRouter(stubGateway{}, "/ipc").Handler()
	for _, path := range []string{"/ipc/status", "/metrics", "/status"} {
		assert.Equal(t, http.StatusNotFound, doReq(t, h, http.MethodGet, path).Code, path)
	}
}

func TestDiagnosticsStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := DiagnosticsHandler(nil)
	assert.Equal(t, http.StatusNotFound, doReq(t, h, http.MethodGet, "/status").Code)

	h = DiagnosticsHandler(stubStatus{})
	rec := doReq(t, h, http.MethodGet, "/status")
	require.Equal(t, http.StatusOK, rec.Code)
	var st supervisor.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, "running", st.State)
	assert.Equal(t, 99, st.PID)
}

func TestListen_LoopbackOnly(t *testing.T) {
	_, err := Listen("0.0.0.0:0", http.NotFoundHandler())
	assert.Error(t, err)
	_, err = Listen("no-port", http.NotFoundHandler())
	assert.Error(t, err)

	gin.SetMode(gin.TestMode)
	s, err := Listen("127.0.0.1:0", NewRouter(stubGateway{dir: "/v"}, "/ipc").Handler())
	require.NoError(t, err)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	}()

	resp, err := http.Get(s.URL() + "/ipc/data-dir")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	b, _ := io.ReadAll(resp.Body)
	assert.JSONEq(t, `{"path":"/v"}`, string(b))
}

func TestDiagnosticsMetrics(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := doReq(t, DiagnosticsHandler(stubStatus{}), http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSanitizeBase(t *testing.T) {
	cases := map[string]string{"": "", "/": "", "ipc": "/ipc", "/ipc/": "/ipc", " /a/b ": "/a/b"}
	for in, want := range cases {
		assert.Equal(t, want, sanitizeBase(in), in)
	}
}
