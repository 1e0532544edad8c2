package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sidecar"

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	stateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Number of lifecycle state transitions.",
		}, []string{"from", "to"},
	)
	currentState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "current_state",
			Help:      "Current lifecycle state (1 = active state, 0 = inactive).",
		}, []string{"state"},
	)
	starts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "starts_total",
			Help:      "Start attempts by outcome (ready, adopted, missing, spawn_failed, timeout).",
		}, []string{"result"},
	)
	stops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stops_total",
			Help:      "Stops by kind (graceful or forced).",
		}, []string{"kind"},
	)
	probes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probes_total",
			Help:      "Health probes by result.",
		}, []string{"result"},
	)
	startupDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "startup_duration_seconds",
			Help:      "Time from spawn until the control endpoint answered.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		},
	)
	memoryRSS = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "memory_rss_bytes",
			Help:      "Resident memory of the sidecar process.",
		},
	)
	cpuPercent = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cpu_percent",
			Help:      "CPU usage of the sidecar process.",
		},
	)
	gatewayRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "requests_total",
			Help:      "Privileged gateway operations by name and outcome.",
		}, []string{"op", "result"},
	)
)

// States lists every lifecycle state reported through current_state.
var States = []string{"idle", "starting", "running", "stopping", "stopped", "failed"}

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{stateTransitions, currentState, starts, stops, probes, startupDuration, memoryRSS, cpuPercent, gatewayRequests}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
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

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func RecordStateTransition(from, to string) {
	if !regOK.Load() {
		return
	}
	stateTransitions.WithLabelValues(from, to).Inc()
	for _, s := range States {
		v := 0.0
		if s == to {
			v = 1
		}
		currentState.WithLabelValues(s).Set(v)
	}
}

func IncStart(result string) {
	if regOK.Load() {
		starts.WithLabelValues(result).Inc()
	}
}

func IncStop(forced bool) {
	if !regOK.Load() {
		return
	}
	kind := "graceful"
	if forced {
		kind = "forced"
	}
	stops.WithLabelValues(kind).Inc()
}

func IncProbe(ready bool) {
	if !regOK.Load() {
		return
	}
	result := "not_ready"
	if ready {
		result = "ready"
	}
	probes.WithLabelValues(result).Inc()
}

func ObserveStartupDuration(seconds float64) {
	if regOK.Load() {
		startupDuration.Observe(seconds)
	}
}

func SetResources(rss uint64, cpu float64) {
	if regOK.Load() {
		memoryRSS.Set(float64(rss))
		cpuPercent.Set(cpu)
	}
}

func IncGatewayRequest(op string, ok bool) {
	if !regOK.Load() {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	gatewayRequests.WithLabelValues(op, result).Inc()
}
