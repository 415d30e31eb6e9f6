package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/loykin/vigil/internal/heartbeat"
	"github.com/loykin/vigil/internal/store"
	"github.com/stretchr/testify/require"
)

func TestOpenCreatesWorkDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "vigil")
	reg, err := Open(Options{WorkDir: dir, PID: 42, SessionID: "s-1"})
	require.NoError(t, err)
	require.Equal(t, 42, reg.Instance.PID)
	require.Equal(t, "s-1", reg.Instance.SessionID)
	require.NotZero(t, reg.Instance.LastHeartbeat)

	// Fresh directory must carry the schema marker already.
	stale, err := reg.Store.IsStale()
	require.NoError(t, err)
	require.False(t, stale)
}

func TestOpenRequiresWorkDirAndSession(t *testing.T) {
	_, err := Open(Options{SessionID: "s"})
	require.Error(t, err)
	_, err = Open(Options{WorkDir: t.TempDir()})
	require.Error(t, err)
}

func TestOpenClearsStaleStore(t *testing.T) {
	dir := t.TempDir()

	// Leftover records from an incompatible layout: no schema marker.
	old := heartbeat.NewStore(dir, nil)
	require.NoError(t, old.Write(heartbeat.Record{PID: 1, SessionID: "leftover", LastHeartbeat: 1}))

	reg, err := Open(Options{WorkDir: dir, PID: 2, SessionID: "fresh"})
	require.NoError(t, err)

	recs, err := reg.Store.List()
	require.NoError(t, err)
	require.Empty(t, recs, "stale records must be cleared before first write")
}

func TestOpenKeepsCompatibleStore(t *testing.T) {
	dir := t.TempDir()
	first, err := Open(Options{WorkDir: dir, PID: 1, SessionID: "s-1"})
	require.NoError(t, err)
	require.NoError(t, first.Store.Write(first.Instance))

	second, err := Open(Options{WorkDir: dir, PID: 2, SessionID: "s-2"})
	require.NoError(t, err)
	recs, err := second.Store.List()
	require.NoError(t, err)
	require.Len(t, recs, 1, "compatible sibling records survive registration")
}

func TestOpenWorkDirCreationFailureIsFatal(t *testing.T) {
	// A file where the directory should go makes MkdirAll fail.
	blocked := filepath.Join(t.TempDir(), "blocked")
	require.NoError(t, os.WriteFile(blocked, []byte("x"), 0o644))

	_, err := Open(Options{WorkDir: filepath.Join(blocked, "sub"), PID: 1, SessionID: "s"})
	require.Error(t, err)
}

func TestOpenHonorsCustomStalePredicate(t *testing.T) {
	dir := t.TempDir()
	first, err := Open(Options{WorkDir: dir, PID: 1, SessionID: "s-1"})
	require.NoError(t, err)
	require.NoError(t, first.Store.Write(first.Instance))

	// Host decides the directory is stale even though the schema matches.
	second, err := Open(Options{
		WorkDir:   dir,
		PID:       2,
		SessionID: "s-2",
		Stale:     func(string) (bool, error) { return true, nil },
	})
	require.NoError(t, err)
	recs, err := second.Store.List()
	require.NoError(t, err)
	require.Empty(t, recs)
}

func TestBookkeepingRecordsSession(t *testing.T) {
	kv, err := store.NewSQLiteStore("")
	require.NoError(t, err)
	defer func() { _ = kv.Close() }()

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	_, err = Open(Options{
		WorkDir:   t.TempDir(),
		PID:       77,
		SessionID: "s-book",
		Now:       func() time.Time { return now },
		Bookkeep:  kv,
	})
	require.NoError(t, err)

	ctx := context.Background()
	e, err := kv.Get(ctx, "session.s-book.pid")
	require.NoError(t, err)
	require.Equal(t, "77", e.Value)

	e, err = kv.Get(ctx, "session.s-book.registered")
	require.NoError(t, err)
	require.Equal(t, now.Format(time.RFC3339), e.Value)

	e, err = kv.Get(ctx, "schema_version")
	require.NoError(t, err)
	require.Equal(t, heartbeat.SchemaVersion, e.Value)
}

func TestBookkeepingFailureIsNotFatal(t *testing.T) {
	kv, err := store.NewSQLiteStore("")
	require.NoError(t, err)
	require.NoError(t, kv.Close()) // closed store: every call errors

	_, err = Open(Options{WorkDir: t.TempDir(), PID: 1, SessionID: "s", Bookkeep: kv})
	require.NoError(t, err)
}
