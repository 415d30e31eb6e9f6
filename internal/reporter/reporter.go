package reporter

import (
	"context"
	"log/slog"
	"time"

	"github.com/loykin/vigil/internal/history"
)

// Event field values are fixed by the telemetry contract: every detected
// crash is a Failed session end with reason InstanceCrashed.
const (
	ResultFailed          = "Failed"
	ReasonInstanceCrashed = "InstanceCrashed"
)

// Event is one structured crash report handed to the host's telemetry sink.
type Event struct {
	Result           string
	Reason           string
	ProxiedSessionID string
	PID              int
	IsDebug          bool
	ObservedBy       string
	OccurredAt       time.Time
}

// NewEvent builds the canonical crash event for a dead sibling session.
func NewEvent(proxiedSessionID string, pid int, isDebug bool, observedBy string, now time.Time) Event {
	return Event{
		Result:           ResultFailed,
		Reason:           ReasonInstanceCrashed,
		ProxiedSessionID: proxiedSessionID,
		PID:              pid,
		IsDebug:          isDebug,
		ObservedBy:       observedBy,
		OccurredAt:       now,
	}
}

// Reporter delivers a crash event. Implementations must not retry or
// buffer: the monitor treats a failed Report as logged-and-done, and the
// crashed record is removed either way.
type Reporter interface {
	Report(ctx context.Context, e Event) error
}

// Func adapts a function to the Reporter interface.
type Func func(ctx context.Context, e Event) error

func (f Func) Report(ctx context.Context, e Event) error { return f(ctx, e) }

// SlogReporter writes crash events as structured log lines. It is the
// default reporter when the host does not supply a telemetry sink.
type SlogReporter struct {
	Logger *slog.Logger
}

func (r SlogReporter) Report(_ context.Context, e Event) error {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Error("sibling instance crashed",
		"result", e.Result,
		"reason", e.Reason,
		"proxiedSessionId", e.ProxiedSessionID,
		"pid", e.PID,
		"isDebug", e.IsDebug,
		"observedBy", e.ObservedBy,
	)
	return nil
}

// SinkReporter fans a crash event out to history sinks. Per-sink failures
// are logged and do not stop delivery to the remaining sinks; the first
// error is returned so callers can count it.
type SinkReporter struct {
	Sinks  []history.Sink
	Logger *slog.Logger
}

func (r SinkReporter) Report(ctx context.Context, e Event) error {
	he := history.Event{
		Result:           e.Result,
		Reason:           e.Reason,
		ProxiedSessionID: e.ProxiedSessionID,
		PID:              e.PID,
		IsDebug:          e.IsDebug,
		ObservedBy:       e.ObservedBy,
		OccurredAt:       e.OccurredAt,
	}
	var firstErr error
	for _, s := range r.Sinks {
		if err := s.Send(ctx, he); err != nil {
			if r.Logger != nil {
				r.Logger.Warn("history sink rejected crash event",
					"proxiedSessionId", e.ProxiedSessionID, "error", err)
			}
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Multi composes reporters; every reporter sees every event.
func Multi(reporters ...Reporter) Reporter {
	return Func(func(ctx context.Context, e Event) error {
		var firstErr error
		for _, r := range reporters {
			if err := r.Report(ctx, e); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	})
}
