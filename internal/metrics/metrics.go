package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	heartbeatWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vigil",
			Subsystem: "monitor",
			Name:      "heartbeat_writes_total",
			Help:      "Number of heartbeat record writes by result.",
		}, []string{"result"},
	)
	checkTicks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vigil",
			Subsystem: "monitor",
			Name:      "check_ticks_total",
			Help:      "Number of check-loop ticks by role (primary or standby).",
		}, []string{"role"},
	)
	crashesReported = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "vigil",
			Subsystem: "monitor",
			Name:      "crashes_reported_total",
			Help:      "Number of sibling crashes reported by this instance.",
		},
	)
	reportFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "vigil",
			Subsystem: "monitor",
			Name:      "report_failures_total",
			Help:      "Number of crash reports the reporter failed to deliver.",
		},
	)
	primary = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "vigil",
			Subsystem: "monitor",
			Name:      "primary",
			Help:      "1 when this instance is the elected primary checker.",
		},
	)
	knownInstances = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "vigil",
			Subsystem: "monitor",
			Name:      "known_instances",
			Help:      "Records observed in the shared directory on the last scan.",
		},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{heartbeatWrites, checkTicks, crashesReported, reportFailures, primary, knownInstances}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the
// DefaultGatherer. The caller is responsible for wiring the route.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncHeartbeatWrite(ok bool) {
	if !regOK.Load() {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	heartbeatWrites.WithLabelValues(result).Inc()
}

func IncCheckTick(isPrimary bool) {
	if !regOK.Load() {
		return
	}
	role := "standby"
	if isPrimary {
		role = "primary"
	}
	checkTicks.WithLabelValues(role).Inc()
}

func IncCrashReported() {
	if regOK.Load() {
		crashesReported.Inc()
	}
}

func IncReportFailure() {
	if regOK.Load() {
		reportFailures.Inc()
	}
}

func SetPrimary(isPrimary bool) {
	if !regOK.Load() {
		return
	}
	if isPrimary {
		primary.Set(1)
	} else {
		primary.Set(0)
	}
}

func SetKnownInstances(n int) {
	if regOK.Load() {
		knownInstances.Set(float64(n))
	}
}
