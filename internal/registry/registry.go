package registry

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/loykin/vigil/internal/heartbeat"
	"github.com/loykin/vigil/internal/store"
)

// Options configure registration of the local instance.
type Options struct {
	WorkDir   string
	PID       int
	SessionID string
	IsDebug   bool
	Now       func() time.Time
	Bookkeep  store.Store // optional persistent KV for session bookkeeping
	Logger    *slog.Logger

	// Stale overrides the store's own schema check. Hosts that version
	// their state directory themselves can decide staleness here.
	Stale func(dir string) (bool, error)
}

// Registration is the result of Open: the bound heartbeat store plus the
// descriptor the monitor will keep refreshed.
type Registration struct {
	Store    *heartbeat.Store
	Instance heartbeat.Record
}

// Open bootstraps the shared working directory and builds the local
// instance descriptor. It ensures the directory exists (the only fatal
// error in the subsystem), and clears a store left behind by an
// incompatible schema before any instance writes into it, so leftover
// records from an old layout are never classified as alive or crashed.
func Open(opts Options) (*Registration, error) {
	if opts.WorkDir == "" {
		return nil, fmt.Errorf("registry: working directory is required")
	}
	if opts.SessionID == "" {
		return nil, fmt.Errorf("registry: session id is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	if err := os.MkdirAll(opts.WorkDir, 0o755); err != nil {
		return nil, fmt.Errorf("registry: create working directory: %w", err)
	}

	hs := heartbeat.NewStore(opts.WorkDir, logger)
	isStale := opts.Stale
	if isStale == nil {
		isStale = func(string) (bool, error) { return hs.IsStale() }
	}
	stale, err := isStale(opts.WorkDir)
	if err != nil {
		return nil, err
	}
	if stale {
		logger.Warn("heartbeat store predates current schema, clearing", "dir", opts.WorkDir)
		if err := hs.Clear(); err != nil {
			return nil, err
		}
	}
	if err := hs.WriteSchemaMarker(); err != nil {
		return nil, err
	}

	rec := heartbeat.Record{
		PID:           opts.PID,
		SessionID:     opts.SessionID,
		LastHeartbeat: now().UnixMilli(),
		IsDebug:       opts.IsDebug,
	}

	bookkeep(opts, rec, now(), logger)

	return &Registration{Store: hs, Instance: rec}, nil
}

// bookkeep records session metadata in the host's persistent KV store.
// Best-effort: failures are logged, never fatal to registration.
func bookkeep(opts Options, rec heartbeat.Record, now time.Time, logger *slog.Logger) {
	if opts.Bookkeep == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := opts.Bookkeep.EnsureSchema(ctx); err != nil {
		logger.Warn("bookkeeping store schema setup failed", "error", err)
		return
	}
	put := func(k, v string) {
		if err := opts.Bookkeep.Put(ctx, k, v); err != nil {
			logger.Warn("bookkeeping write failed", "key", k, "error", err)
		}
	}
	put("schema_version", heartbeat.SchemaVersion)
	put("session."+rec.SessionID+".pid", strconv.Itoa(rec.PID))
	put("session."+rec.SessionID+".registered", now.UTC().Format(time.RFC3339))
}
