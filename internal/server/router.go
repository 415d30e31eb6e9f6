package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/loykin/vigil/internal/heartbeat"
	"github.com/loykin/vigil/internal/metrics"
	"github.com/loykin/vigil/internal/monitor"
)

// Router provides embeddable HTTP handlers for monitor diagnostics.
// Endpoints:
//
//	GET  {basePath}/instances   all records currently in the shared directory
//	GET  {basePath}/self        this instance's descriptor and role
//	POST {basePath}/stop        graceful stop (tombstones the own record)
//	GET  {basePath}/metrics     Prometheus metrics
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	mon      *monitor.CrashMonitor
	store    *heartbeat.Store
	basePath string
}

// NewRouter constructs a Router with a configurable basePath.
func NewRouter(mon *monitor.CrashMonitor, store *heartbeat.Store, basePath string) *Router {
	return &Router{mon: mon, store: store, basePath: sanitizeBase(basePath)}
}

// Handler returns an http.Handler powered by gin that can be mounted in any
// server or mux, including non-gin frameworks.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/instances", r.handleInstances)
	group.GET("/self", r.handleSelf)
	group.POST("/stop", r.handleStop)
	group.GET("/metrics", gin.WrapH(metrics.Handler()))
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
func NewServer(addr, basePath string, mon *monitor.CrashMonitor, store *heartbeat.Store) (*http.Server, error) {
	r := NewRouter(mon, store, basePath)
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server, nil
}

type errorResp struct {
	Error string `json:"error"`
}

type selfResp struct {
	Instance heartbeat.Record `json:"instance"`
	State    string           `json:"state"`
	Primary  bool             `json:"primary"`
}

func (r *Router) handleInstances(c *gin.Context) {
	recs, err := r.store.List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, recs)
}

func (r *Router) handleSelf(c *gin.Context) {
	c.JSON(http.StatusOK, selfResp{
		Instance: r.mon.Self(),
		State:    stateName(r.mon.State()),
		Primary:  r.mon.IsPrimary(),
	})
}

func (r *Router) handleStop(c *gin.Context) {
	if err := r.mon.Stop(); err != nil {
		c.JSON(http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"stopped": true})
}

func stateName(s int32) string {
	switch s {
	case monitor.StateRunning:
		return "running"
	case monitor.StateStopped:
		return "stopped"
	default:
		return "idle"
	}
}

func sanitizeBase(bp string) string {
	if bp == "" {
		return ""
	}
	if !strings.HasPrefix(bp, "/") {
		bp = "/" + bp
	}
	return strings.TrimSuffix(bp, "/")
}
