package simulation

import (
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	phaseLabel   = "phase"
	moduleLabel  = "module"
	errTypeLabel = "error_type"
)

var (
	worldAgents = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "world_agents",
		Help: "The number of agents in the world.",
	})

	worldFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "world_frames_total",
		Help: "The number of completed ticks.",
	})

	worldTickErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "world_tick_errors",
		Help: "The errors that aborted a tick.",
	}, []string{errTypeLabel})

	worldPhaseLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "world_phase_latency",
		Help:    "The duration of the tick phases.",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
	}, []string{phaseLabel})

	worldModuleLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "world_module_latency",
		Help:    "The duration of module query phases.",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
	}, []string{moduleLabel})
)

func instrumentFrame(f Frame) {
	worldAgents.Set(float64(f.Agents))
	worldFrames.Inc()
}

func instrumentPhase(phase string, d time.Duration) {
	worldPhaseLatency.
		With(prometheus.Labels{phaseLabel: phase}).
		Observe(d.Seconds())
}

func instrumentModule(module string, d time.Duration) {
	worldModuleLatency.
		With(prometheus.Labels{moduleLabel: module}).
		Observe(d.Seconds())
}

func instrumentTickError(err error) {
	worldTickErrors.
		With(prometheus.Labels{errTypeLabel: errors.Type(err)}).
		Inc()
}
