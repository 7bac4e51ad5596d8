package comms

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	messagesEmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "swarm",
			Subsystem: "comms",
			Name:      "messages_emitted_total",
			Help:      "Messages accepted by the bus.",
		},
		[]string{"type"},
	)
	messagesRejected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "swarm",
			Subsystem: "comms",
			Name:      "messages_rejected_total",
			Help:      "Emits refused because the system was not running.",
		},
	)
	deliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "swarm",
			Subsystem: "comms",
			Name:      "deliveries_total",
			Help:      "Handler invocations by route.",
		},
		[]string{"route"},
	)
	handlerErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "swarm",
			Subsystem: "comms",
			Name:      "handler_errors_total",
			Help:      "Handlers that returned an error or panicked.",
		},
	)
	historySize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "swarm",
			Subsystem: "comms",
			Name:      "history_messages",
			Help:      "Messages currently held in the all bucket.",
		},
	)
)

// RegisterMetrics registers the bus collectors with the default registry.
// Safe to call repeatedly.
func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(messagesEmitted, messagesRejected, deliveries, handlerErrors, historySize)
	})
}
