package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loykin/vigil/internal/heartbeat"
	"github.com/loykin/vigil/internal/metrics"
	"github.com/loykin/vigil/internal/reporter"
)

// Lifecycle states. Stopped is absorbing: a stopped monitor never resumes
// heartbeating under the same session.
const (
	StateIdle int32 = iota
	StateRunning
	StateStopped
)

// Default intervals for production use. The crash threshold defaults to
// DefaultThresholdMultiplier heartbeat intervals; the multiplier is a tuning
// knob trading detection latency against false positives under system
// sleep/wake, so it stays configurable.
const (
	DefaultHeartbeatInterval   = time.Minute
	DefaultCheckInterval       = 2 * time.Minute
	DefaultThresholdMultiplier = 4

	// electionWindowMultiplier bounds how stale a record may be and still
	// count as an election candidate: one missed heartbeat.
	electionWindowMultiplier = 2
)

var (
	ErrAlreadyStarted = errors.New("monitor: already started")
	ErrStopped        = errors.New("monitor: stopped")
)

// Config parameterizes one CrashMonitor.
type Config struct {
	HeartbeatInterval time.Duration
	CheckInterval     time.Duration
	CrashThreshold    time.Duration
	Now               func() time.Time
	Reporter          reporter.Reporter
	Logger            *slog.Logger
}

func (c *Config) applyDefaults() {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = DefaultCheckInterval
	}
	if c.CrashThreshold <= 0 {
		c.CrashThreshold = DefaultThresholdMultiplier * c.HeartbeatInterval
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Reporter == nil {
		c.Reporter = reporter.SlogReporter{Logger: c.Logger}
	}
}

// Validate rejects threshold/interval combinations that would classify a
// live instance as crashed after a single missed beat.
func (c Config) Validate() error {
	if c.CrashThreshold > 0 && c.HeartbeatInterval > 0 && c.CrashThreshold <= c.HeartbeatInterval {
		return fmt.Errorf("monitor: crash threshold %v must exceed heartbeat interval %v", c.CrashThreshold, c.HeartbeatInterval)
	}
	return nil
}

// CrashMonitor runs the two periodic loops for one instance: a heartbeat
// loop refreshing its own record, and a check loop that scans siblings when
// this instance is the elected primary. The shared heartbeat store is the
// only state the loops share; all I/O errors inside either loop are logged
// and retried on the next tick, never propagated.
type CrashMonitor struct {
	cfg   Config
	store *heartbeat.Store
	self  heartbeat.Record

	state     atomic.Int32
	isPrimary atomic.Bool

	mu      sync.Mutex
	stopCh  chan struct{}
	hbDone  chan struct{}
	chkDone chan struct{}
	hbTick  *time.Ticker
	chkTick *time.Ticker
}

// New binds a monitor to its store and local instance descriptor.
func New(cfg Config, st *heartbeat.Store, self heartbeat.Record) (*CrashMonitor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &CrashMonitor{cfg: cfg, store: st, self: self}, nil
}

// Self returns the descriptor the monitor registered with, with the most
// recently written heartbeat timestamp.
func (m *CrashMonitor) Self() heartbeat.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.self
}

// IsPrimary reports whether the last check tick elected this instance.
func (m *CrashMonitor) IsPrimary() bool { return m.isPrimary.Load() }

// State returns the current lifecycle state.
func (m *CrashMonitor) State() int32 { return m.state.Load() }

// Start writes the initial heartbeat record and launches both loops.
// The initial write must succeed: an instance that cannot persist its own
// record would be invisible to every checker.
func (m *CrashMonitor) Start(ctx context.Context) error {
	// The state transition and loop setup stay under one critical section:
	// a Stop that observes StateRunning must find the tickers and channels
	// already initialized.
	m.mu.Lock()
	if !m.state.CompareAndSwap(StateIdle, StateRunning) {
		m.mu.Unlock()
		if m.state.Load() == StateStopped {
			return ErrStopped
		}
		return ErrAlreadyStarted
	}
	m.self.LastHeartbeat = m.cfg.Now().UnixMilli()
	rec := m.self
	m.stopCh = make(chan struct{})
	m.hbDone = make(chan struct{})
	m.chkDone = make(chan struct{})
	m.hbTick = time.NewTicker(m.cfg.HeartbeatInterval)
	m.chkTick = time.NewTicker(m.cfg.CheckInterval)

	if err := m.store.Write(rec); err != nil {
		m.state.Store(StateStopped)
		m.hbTick.Stop()
		m.chkTick.Stop()
		close(m.stopCh)
		close(m.hbDone)
		close(m.chkDone)
		m.mu.Unlock()
		return fmt.Errorf("monitor: initial heartbeat: %w", err)
	}
	metrics.IncHeartbeatWrite(true)

	go m.heartbeatLoop()
	go m.checkLoop(ctx)
	m.mu.Unlock()

	m.cfg.Logger.Info("crash monitor started",
		"session", rec.SessionID, "pid", rec.PID, "debug", rec.IsDebug,
		"heartbeatInterval", m.cfg.HeartbeatInterval,
		"checkInterval", m.cfg.CheckInterval,
		"crashThreshold", m.cfg.CrashThreshold)
	return nil
}

// Stop cancels both loops and deletes the instance's own record so no later
// check tick can classify this session as crashed. Idempotent, and safe to
// call even when Start never ran or failed.
func (m *CrashMonitor) Stop() error {
	m.mu.Lock()
	if m.state.Swap(StateStopped) != StateRunning {
		// Never started, start failed, or already stopped.
		m.mu.Unlock()
		return nil
	}
	m.hbTick.Stop()
	m.chkTick.Stop()
	close(m.stopCh)
	session := m.self.SessionID
	m.mu.Unlock()

	<-m.hbDone
	<-m.chkDone

	m.isPrimary.Store(false)
	metrics.SetPrimary(false)

	// Tombstone: the graceful-stop delete happens before Stop returns, so
	// it happens-before process exit on the graceful path.
	if err := m.store.Delete(session); err != nil {
		m.cfg.Logger.Warn("failed to remove own heartbeat record on stop",
			"session", session, "error", err)
		return err
	}
	m.cfg.Logger.Info("crash monitor stopped", "session", session)
	return nil
}

// abandon halts both loops without writing the tombstone. It simulates an
// abnormal termination and exists for tests.
func (m *CrashMonitor) abandon() {
	m.mu.Lock()
	if m.state.Swap(StateStopped) != StateRunning {
		m.mu.Unlock()
		return
	}
	m.hbTick.Stop()
	m.chkTick.Stop()
	close(m.stopCh)
	m.mu.Unlock()
	<-m.hbDone
	<-m.chkDone
}

func (m *CrashMonitor) heartbeatLoop() {
	defer close(m.hbDone)
	for {
		select {
		case <-m.stopCh:
			return
		case <-m.hbTick.C:
			m.beat()
		}
	}
}

// beat overwrites this instance's record with a fresh timestamp. Failures
// are logged and retried next tick: a missed write must not look like a
// crash from the instance's own perspective, only an external checker
// decides that.
func (m *CrashMonitor) beat() {
	m.mu.Lock()
	m.self.LastHeartbeat = m.cfg.Now().UnixMilli()
	rec := m.self
	m.mu.Unlock()

	if err := m.store.Write(rec); err != nil {
		metrics.IncHeartbeatWrite(false)
		m.cfg.Logger.Warn("heartbeat write failed, retrying next tick",
			"session", rec.SessionID, "error", err)
		return
	}
	metrics.IncHeartbeatWrite(true)
}

func (m *CrashMonitor) checkLoop(ctx context.Context) {
	defer close(m.chkDone)
	for {
		select {
		case <-m.stopCh:
			return
		case <-m.chkTick.C:
			m.check(ctx)
		}
	}
}

// check recomputes the election from live records and, when this instance
// wins, classifies every other record against the crash threshold.
func (m *CrashMonitor) check(ctx context.Context) {
	now := m.cfg.Now()
	self := m.Self()

	records, err := m.store.List()
	if err != nil {
		m.cfg.Logger.Warn("record scan failed, retrying next tick", "error", err)
		return
	}
	metrics.SetKnownInstances(len(records))

	window := electionWindowMultiplier * m.cfg.HeartbeatInterval
	primary, ok := electPrimary(aliveCandidates(records, self, now, window))
	isPrimary := ok && primary == self.SessionID && !self.IsDebug
	m.isPrimary.Store(isPrimary)
	metrics.SetPrimary(isPrimary)
	metrics.IncCheckTick(isPrimary)
	if !isPrimary {
		return
	}

	for _, rec := range records {
		if rec.SessionID == self.SessionID || rec.IsDebug {
			continue
		}
		if rec.Age(now) <= m.cfg.CrashThreshold {
			continue
		}
		m.reportCrash(ctx, rec, now)
	}
}

// reportCrash emits exactly one crash event for a stale record, then
// deletes it so it can never be reported twice. The delete happens even
// when the reporter fails: detected once, reported best-effort.
func (m *CrashMonitor) reportCrash(ctx context.Context, rec heartbeat.Record, now time.Time) {
	evt := reporter.NewEvent(rec.SessionID, rec.PID, rec.IsDebug, m.Self().SessionID, now)
	if err := m.cfg.Reporter.Report(ctx, evt); err != nil {
		metrics.IncReportFailure()
		m.cfg.Logger.Error("crash report delivery failed",
			"proxiedSessionId", rec.SessionID, "error", err)
	} else {
		metrics.IncCrashReported()
		m.cfg.Logger.Info("reported crashed sibling",
			"proxiedSessionId", rec.SessionID, "pid", rec.PID,
			"staleFor", rec.Age(now))
	}
	if err := m.store.Delete(rec.SessionID); err != nil {
		m.cfg.Logger.Warn("failed to remove crashed record, may re-report",
			"session", rec.SessionID, "error", err)
	}
}
