package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSQLiteCRUD(t *testing.T) {
	st, err := NewSQLiteStore("")
	require.NoError(t, err)
	defer func() { _ = st.Close() }()

	ctx := context.Background()
	require.NoError(t, st.EnsureSchema(ctx))
	require.NoError(t, st.EnsureSchema(ctx)) // idempotent

	require.NoError(t, st.Put(ctx, "k", "v1"))
	e, err := st.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "v1", e.Value)
	require.False(t, e.UpdatedAt.IsZero())

	// Upsert overwrites.
	require.NoError(t, st.Put(ctx, "k", "v2"))
	e, err = st.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "v2", e.Value)

	require.NoError(t, st.Delete(ctx, "k"))
	_, err = st.Get(ctx, "k")
	require.ErrorIs(t, err, ErrNotFound)

	// Deleting an absent key is not an error.
	require.NoError(t, st.Delete(ctx, "k"))
}

func TestSQLiteFileBacked(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vigil.db")
	st, err := NewSQLiteStore(path)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, st.EnsureSchema(ctx))
	require.NoError(t, st.Put(ctx, "persisted", "yes"))
	require.NoError(t, st.Close())

	st2, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer func() { _ = st2.Close() }()
	e, err := st2.Get(ctx, "persisted")
	require.NoError(t, err)
	require.Equal(t, "yes", e.Value)
}

func TestFactory(t *testing.T) {
	st, err := New(Config{}) // empty driver defaults to sqlite
	require.NoError(t, err)
	require.NoError(t, st.Close())

	_, err = New(Config{Driver: "bogus"})
	require.Error(t, err)

	require.Contains(t, SupportedDrivers(), "sqlite")
	require.Contains(t, SupportedDrivers(), "postgres")
}

func TestFactoryCustomDriver(t *testing.T) {
	called := false
	RegisterDriver("custom-test", func(cfg Config) (Store, error) {
		called = true
		return NewSQLiteStore("")
	})
	st, err := New(Config{Driver: "custom-test"})
	require.NoError(t, err)
	require.True(t, called)
	require.NoError(t, st.Close())
}
