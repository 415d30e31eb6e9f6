package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

// Collectors are package-global and Register is once-only, so every test
// shares the default registerer.

func TestRegisterIdempotent(t *testing.T) {
	require.NoError(t, Register(prometheus.DefaultRegisterer))
	require.NoError(t, Register(prometheus.DefaultRegisterer))
	// No-op after first success, even with a different registerer.
	require.NoError(t, Register(prometheus.NewRegistry()))
}

func TestHelpersRecordAfterRegister(t *testing.T) {
	require.NoError(t, Register(prometheus.DefaultRegisterer))

	IncHeartbeatWrite(true)
	IncHeartbeatWrite(false)
	IncCheckTick(true)
	IncCheckTick(false)
	IncCrashReported()
	IncReportFailure()
	SetPrimary(true)
	SetKnownInstances(3)

	mfs, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(mfs))
	for _, mf := range mfs {
		names = append(names, mf.GetName())
	}
	joined := strings.Join(names, ",")
	require.Contains(t, joined, "vigil_monitor_heartbeat_writes_total")
	require.Contains(t, joined, "vigil_monitor_crashes_reported_total")
	require.Contains(t, joined, "vigil_monitor_primary")
}

func TestHandlerServes(t *testing.T) {
	require.NoError(t, Register(prometheus.DefaultRegisterer))
	w := httptest.NewRecorder()
	Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
}
