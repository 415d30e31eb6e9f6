package reporter

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/loykin/vigil/internal/history"
	"github.com/stretchr/testify/require"
)

func TestNewEventShape(t *testing.T) {
	now := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	e := NewEvent("dead-session", 321, true, "checker-session", now)
	require.Equal(t, ResultFailed, e.Result)
	require.Equal(t, ReasonInstanceCrashed, e.Reason)
	require.Equal(t, "dead-session", e.ProxiedSessionID)
	require.Equal(t, 321, e.PID)
	require.True(t, e.IsDebug)
	require.Equal(t, "checker-session", e.ObservedBy)
	require.Equal(t, now, e.OccurredAt)
}

func TestSlogReporterWritesStructuredLine(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	r := SlogReporter{Logger: logger}

	err := r.Report(context.Background(), NewEvent("s-1", 9, false, "s-0", time.Now()))
	require.NoError(t, err)
	out := buf.String()
	require.Contains(t, out, "proxiedSessionId=s-1")
	require.Contains(t, out, "reason=InstanceCrashed")
	require.Contains(t, out, "observedBy=s-0")
}

type memSink struct {
	mu     sync.Mutex
	events []history.Event
	err    error
}

func (s *memSink) Send(_ context.Context, e history.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, e)
	return nil
}

func TestSinkReporterFanOut(t *testing.T) {
	good1 := &memSink{}
	bad := &memSink{err: errors.New("sink down")}
	good2 := &memSink{}
	r := SinkReporter{Sinks: []history.Sink{good1, bad, good2}}

	err := r.Report(context.Background(), NewEvent("s-1", 1, false, "s-0", time.Now()))
	// The first sink error is surfaced, but delivery continues past it.
	require.Error(t, err)
	require.Len(t, good1.events, 1)
	require.Len(t, good2.events, 1)
	require.Equal(t, "s-1", good1.events[0].ProxiedSessionID)
}

func TestMultiDeliversToAll(t *testing.T) {
	var got []string
	mk := func(name string, fail bool) Reporter {
		return Func(func(_ context.Context, e Event) error {
			got = append(got, name)
			if fail {
				return errors.New(name + " failed")
			}
			return nil
		})
	}
	r := Multi(mk("a", false), mk("b", true), mk("c", false))
	err := r.Report(context.Background(), Event{})
	require.Error(t, err)
	require.Equal(t, []string{"a", "b", "c"}, got)
}
