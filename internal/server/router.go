// Package server exposes the suite's management API: service status from the
// supervisor and the browser-session registry operations.
package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/k2riddim/linkedin-research-suite/internal/metrics"
	"github.com/k2riddim/linkedin-research-suite/internal/registry"
	"github.com/k2riddim/linkedin-research-suite/internal/supervisor"
)

// Router provides embeddable HTTP handlers for the suite API.
// Endpoints under {basePath}:
//   POST   /sessions              body: registry.CreateParams JSON
//   POST   /sessions/:id/:action  body: registry.ActionRequest JSON
//   DELETE /sessions/:id          always succeeds, unknown ids included
//   POST   /sessions/cleanup      closes every tracked session
//   GET    /sessions              list live sessions
//   GET    /sessions/stats        registry counters
//   GET    /services              supervisor status
// Plus GET /health and GET /metrics at the root.
// basePath may be empty or start with '/'; no trailing slash.

type Router struct {
	sup      *supervisor.Supervisor
	reg      *registry.Registry
	basePath string
	events   http.Handler
}

// NewRouter constructs a Router with configurable basePath.
// Example basePath: "/api" results in /api/sessions, /api/services.
func NewRouter(sup *supervisor.Supervisor, reg *registry.Registry, basePath string) *Router {
	return &Router{sup: sup, reg: reg, basePath: sanitizeBase(basePath)}
}

// WithEvents mounts a live event stream handler at GET /events.
func (r *Router) WithEvents(h http.Handler) *Router {
	r.events = h
	return r
}

// Handler returns an http.Handler powered by gin that can be mounted in any
// server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	g.GET("/health", r.handleHealth)
	g.GET("/metrics", gin.WrapH(metrics.Handler()))
	if r.events != nil {
		g.GET("/events", gin.WrapH(r.events))
	}
	group := g.Group(r.basePath)
	group.POST("/sessions", r.handleCreate)
	group.GET("/sessions", r.handleList)
	group.GET("/sessions/stats", r.handleStats)
	group.POST("/sessions/cleanup", r.handleCleanup)
	group.POST("/sessions/:id/:action", r.handleAction)
	group.DELETE("/sessions/:id", r.handleDelete)
	group.GET("/services", r.handleServices)
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
func NewServer(addr string, r *Router) *http.Server {
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server
}

// --- Handlers ---

func (r *Router) handleHealth(c *gin.Context) {
	writeJSON(c, http.StatusOK, gin.H{
		"status":   "ok",
		"services": len(r.sup.StatusAll()),
		"sessions": r.reg.Stats().Active,
	})
}

func (r *Router) handleServices(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.sup.StatusAll())
}

func (r *Router) handleCreate(c *gin.Context) {
	var p registry.CreateParams
	if err := c.ShouldBindJSON(&p); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error(), Category: "client_error"})
		return
	}
	created, err := r.reg.Create(c.Request.Context(), p)
	if err != nil {
		writeErr(c, err)
		return
	}
	writeJSON(c, http.StatusOK, created)
}

func (r *Router) handleAction(c *gin.Context) {
	action, err := registry.ParseAction(c.Param("action"))
	if err != nil {
		writeErr(c, err)
		return
	}
	var req registry.ActionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error(), Category: "client_error"})
			return
		}
	}
	res, err := r.reg.Do(c.Request.Context(), c.Param("id"), action, req)
	if err != nil {
		writeErr(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"success": true, "result": res})
}

// handleDelete never fails from the caller's point of view. A delete of an
// unknown or already-closed session is a success; a remote close failure is
// reported but the record is gone either way.
func (r *Router) handleDelete(c *gin.Context) {
	resp := gin.H{"success": true}
	if err := r.reg.Close(c.Request.Context(), c.Param("id")); err != nil {
		resp["detail"] = err.Error()
	}
	writeJSON(c, http.StatusOK, resp)
}

func (r *Router) handleCleanup(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.reg.CleanupAll(c.Request.Context()))
}

func (r *Router) handleList(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.reg.List())
}

func (r *Router) handleStats(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.reg.Stats())
}
