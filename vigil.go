// Package vigil implements cooperative crash detection for co-installed
// instances of the same application. Every instance heartbeats into a shared
// filesystem directory; one instance at a time (the elected primary) scans
// the directory, classifies stale siblings as crashed, and reports each
// crash exactly once. There is no coordinator process and no IPC: the
// directory is the only communication medium.
package vigil

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/loykin/vigil/internal/heartbeat"
	"github.com/loykin/vigil/internal/history"
	"github.com/loykin/vigil/internal/metrics"
	"github.com/loykin/vigil/internal/monitor"
	"github.com/loykin/vigil/internal/registry"
	"github.com/loykin/vigil/internal/reporter"
	"github.com/loykin/vigil/internal/server"
	"github.com/loykin/vigil/internal/store"
	"github.com/prometheus/client_golang/prometheus"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

// Instance is the per-instance record kept in the shared directory.
type Instance = heartbeat.Record

// Event is the structured crash report handed to the Reporter.
type Event = reporter.Event

// Reporter receives one Event per detected crash.
type Reporter = reporter.Reporter

// ReporterFunc adapts a function to the Reporter interface.
type ReporterFunc = reporter.Func

// Sink is a best-effort export destination for crash events.
type Sink = history.Sink

// Store is the persistent key/value handle used for registry bookkeeping.
type Store = store.Store

// Config configures one monitor instance. Only WorkDir is required; the
// zero value of everything else picks production defaults (session id from
// uuid, pid from the OS, minutes-scale intervals).
type Config struct {
	WorkDir           string
	SessionID         string
	PID               int
	IsDebug           bool
	HeartbeatInterval time.Duration
	CheckInterval     time.Duration
	CrashThreshold    time.Duration
	Now               func() time.Time
	Reporter          Reporter
	Sinks             []Sink // fanned out in addition to Reporter
	Bookkeep          Store
	Logger            *slog.Logger

	// Stale overrides the built-in schema-marker staleness check for the
	// shared directory. When it reports true the directory is cleared
	// before this instance writes its first record.
	Stale func(dir string) (bool, error)
}

// Monitor is the public handle: Start begins heartbeating and checking,
// Stop tombstones this instance's record and halts both loops.
type Monitor struct {
	inner *monitor.CrashMonitor
	store *heartbeat.Store
}

// New registers this instance in the shared directory and builds its
// monitor. Directory creation failure is the only fatal error.
func New(cfg Config) (*Monitor, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SessionID == "" {
		cfg.SessionID = uuid.NewString()
	}
	if cfg.PID == 0 {
		cfg.PID = os.Getpid()
	}

	reg, err := registry.Open(registry.Options{
		WorkDir:   cfg.WorkDir,
		PID:       cfg.PID,
		SessionID: cfg.SessionID,
		IsDebug:   cfg.IsDebug,
		Now:       cfg.Now,
		Bookkeep:  cfg.Bookkeep,
		Logger:    logger,
		Stale:     cfg.Stale,
	})
	if err != nil {
		return nil, err
	}

	rep := cfg.Reporter
	if rep == nil {
		rep = reporter.SlogReporter{Logger: logger}
	}
	if len(cfg.Sinks) > 0 {
		rep = reporter.Multi(rep, reporter.SinkReporter{Sinks: cfg.Sinks, Logger: logger})
	}

	inner, err := monitor.New(monitor.Config{
		HeartbeatInterval: cfg.HeartbeatInterval,
		CheckInterval:     cfg.CheckInterval,
		CrashThreshold:    cfg.CrashThreshold,
		Now:               cfg.Now,
		Reporter:          rep,
		Logger:            logger,
	}, reg.Store, reg.Instance)
	if err != nil {
		return nil, err
	}
	return &Monitor{inner: inner, store: reg.Store}, nil
}

// Start launches the heartbeat and check loops. ctx bounds crash-report
// delivery, not the loops themselves; use Stop to halt them.
func (m *Monitor) Start(ctx context.Context) error { return m.inner.Start(ctx) }

// Stop is idempotent and safe to call even if Start failed or never ran.
func (m *Monitor) Stop() error { return m.inner.Stop() }

// Self returns this instance's descriptor with its last written heartbeat.
func (m *Monitor) Self() Instance { return m.inner.Self() }

// IsPrimary reports whether the last check tick elected this instance.
func (m *Monitor) IsPrimary() bool { return m.inner.IsPrimary() }

// Instances lists every record currently readable in the shared directory.
func (m *Monitor) Instances() ([]Instance, error) { return m.store.List() }

// NewHTTPServer starts the diagnostics HTTP server for this monitor.
func (m *Monitor) NewHTTPServer(addr, basePath string) (*http.Server, error) {
	return server.NewServer(addr, basePath, m.inner, m.store)
}

// HTTPHandler returns the diagnostics handler for embedding in any mux or
// framework.
func (m *Monitor) HTTPHandler(basePath string) http.Handler {
	return server.NewRouter(m.inner, m.store, basePath).Handler()
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// NewKVStore builds a bookkeeping store from driver ("sqlite", "postgres")
// and DSN via the store factory.
func NewKVStore(driver, dsn string) (Store, error) {
	return store.New(store.Config{Driver: driver, DSN: dsn})
}
