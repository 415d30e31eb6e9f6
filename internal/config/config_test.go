package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vigil.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
[monitor]
workdir = "/var/lib/demo/vigil"
session_id = "fixed-session"
heartbeat_interval = "30s"
check_interval = "1m"
crash_threshold = "2m"
debug = true

[log]
dir = "/var/log/demo"
level = "debug"
color = true
max_size_mb = 5

[store]
driver = "postgres"
dsn = "postgres://localhost/vigil"

[history]
clickhouse_addr = "localhost:9000"
clickhouse_table = "crashes"

[server]
listen = ":9321"
base_path = "/vigil"
`)
	c, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "/var/lib/demo/vigil", c.Monitor.WorkDir)
	require.Equal(t, "fixed-session", c.Monitor.SessionID)
	require.Equal(t, 30*time.Second, c.Monitor.HeartbeatInterval)
	require.Equal(t, time.Minute, c.Monitor.CheckInterval)
	require.Equal(t, 2*time.Minute, c.Monitor.CrashThreshold)
	require.True(t, c.Monitor.Debug)

	require.Equal(t, "debug", c.Log.Level)
	require.Equal(t, 5, c.Log.MaxSizeMB)
	require.True(t, c.Log.Color)

	require.Equal(t, "postgres", c.StoreConfig().Driver)
	require.Equal(t, "localhost:9000", c.History.ClickHouseAddr)
	require.Equal(t, ":9321", c.Server.Listen)
	require.Equal(t, "/vigil", c.Server.BasePath)
}

func TestLoadMinimalConfig(t *testing.T) {
	path := writeConfig(t, `
[monitor]
workdir = "/tmp/vigil"
`)
	c, err := Load(path)
	require.NoError(t, err)
	require.Zero(t, c.Monitor.HeartbeatInterval)
	require.Empty(t, c.Store.Driver)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.Error(t, err)
}

func TestValidateRejectsTightThreshold(t *testing.T) {
	path := writeConfig(t, `
[monitor]
workdir = "/tmp/vigil"
heartbeat_interval = "1m"
crash_threshold = "30s"
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestValidateThresholdAgainstDefaultInterval(t *testing.T) {
	// No heartbeat interval set: the threshold must still exceed the
	// default interval the monitor will apply.
	path := writeConfig(t, `
[monitor]
workdir = "/tmp/vigil"
crash_threshold = "10s"
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoggerConfigMapping(t *testing.T) {
	c := &Config{}
	c.Log.Dir = "/logs"
	c.Log.Level = "warn"
	lc := c.LoggerConfig()
	require.Equal(t, "/logs", lc.Dir)
	require.Equal(t, "warn", lc.Level)
}
