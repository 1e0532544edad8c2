package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/loykin/sidecar/internal/gateway"
	"github.com/loykin/sidecar/internal/metrics"
	"github.com/loykin/sidecar/internal/supervisor"
	"github.com/loykin/sidecar/internal/vault"
)

// Router exposes the privileged gateway to the UI.
// Endpoints:
//
//	GET  {basePath}/data-dir          {"path": "..."}
//	GET  {basePath}/files             {"files": [...]}
//	POST {basePath}/open-file-dialog  {"paths": [...]}
//
// Only these three operations are reachable from the UI. Status and metrics
// are served by DiagnosticsHandler on a separate listener.
// Gateway routes always answer 200; failures surface as empty results.
type Router struct {
	gw       gateway.Gateway
	basePath string
}

// StatusSource reports the sidecar lifecycle snapshot.
type StatusSource interface {
	Status() supervisor.Status
}

type dataDirResp struct {
	Path string `json:"path"`
}

type filesResp struct {
	Files []vault.FileMetadata `json:"files"`
}

type pathsResp struct {
	Paths []string `json:"paths"`
}

type errorResp struct {
	Error string `json:"error"`
}

// NewRouter constructs a Router. Example basePath: "/ipc" results in
// /ipc/data-dir, /ipc/files and /ipc/open-file-dialog.
func NewRouter(gw gateway.Gateway, basePath string) *Router {
	return &Router{gw: gw, basePath: sanitizeBase(basePath)}
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/data-dir", r.handleDataDir)
	group.GET("/files", r.handleFiles)
	group.POST("/open-file-dialog", r.handleOpenFileDialog)
	return g
}

func (r *Router) handleDataDir(c *gin.Context) {
	writeJSON(c, http.StatusOK, dataDirResp{Path: r.gw.DataDir(c.Request.Context())})
}

func (r *Router) handleFiles(c *gin.Context) {
	files := r.gw.ListFiles(c.Request.Context())
	if files == nil {
		files = []vault.FileMetadata{}
	}
	writeJSON(c, http.StatusOK, filesResp{Files: files})
}

func (r *Router) handleOpenFileDialog(c *gin.Context) {
	paths := r.gw.OpenFileDialog(c.Request.Context())
	if paths == nil {
		paths = []string{}
	}
	writeJSON(c, http.StatusOK, pathsResp{Paths: paths})
}

// DiagnosticsHandler serves Prometheus metrics at /metrics and, when status
// is non-nil, the supervisor snapshot at /status.
func DiagnosticsHandler(status StatusSource) http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	g.GET("/metrics", gin.WrapH(metrics.Handler()))
	g.GET("/status", func(c *gin.Context) {
		if status == nil {
			writeJSON(c, http.StatusNotFound, errorResp{Error: "status not available"})
			return
		}
		writeJSON(c, http.StatusOK, status.Status())
	})
	return g
}
