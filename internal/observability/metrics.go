package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Domain collectors. Label values come from fixed sets (counter names,
// service names, operation names), which keeps cardinality bounded.
var (
	counterAdjustments = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "threads_counter_adjustments_total",
			Help: "Denormalized counter updates by counter and direction.",
		},
		[]string{"counter", "direction"},
	)

	remoteCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "threads_remote_calls_total",
			Help: "Calls to sibling services by service, operation and outcome.",
		},
		[]string{"service", "op", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(counterAdjustments, remoteCalls)
}

// Directions for ObserveCounter.
const (
	DirectionUp   = "increment"
	DirectionDown = "decrement"
)

// Outcomes for ObserveRemoteCall.
const (
	OutcomeOK       = "ok"
	OutcomeNotFound = "not_found"
	OutcomeError    = "error"
)

// ObserveCounter records one counter adjustment.
func ObserveCounter(counter, direction string) {
	counterAdjustments.WithLabelValues(counter, direction).Inc()
}

// ObserveRemoteCall records one outbound call to a sibling service.
func ObserveRemoteCall(service, op, outcome string) {
	remoteCalls.WithLabelValues(service, op, outcome).Inc()
}
