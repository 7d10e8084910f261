package streamer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "streamrelay"

var (
	metricProbes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "probe_total",
		Help:      "Stream classifications by outcome.",
	}, []string{"outcome"})

	metricSessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "relay_sessions_active",
		Help:      "Relay sessions currently streaming.",
	})

	metricSessions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "relay_sessions_total",
		Help:      "Relay sessions by how they ended.",
	}, []string{"result"})

	metricRelayBytes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "relay_bytes_total",
		Help:      "Transcoded bytes sent to listeners.",
	})
)
