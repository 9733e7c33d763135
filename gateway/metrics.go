package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the gateway's instrumentation. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	requests      *prometheus.CounterVec
	invalidations prometheus.Counter
}

// Request outcome label values.
const (
	outcomeOK                = "ok"
	outcomeError             = "error"
	outcomeNetwork           = "network_error"
	outcomeExpired           = "session_expired"
	outcomeCredentialMissing = "credential_missing"
	outcomeStale             = "stale_result"
)

// NewMetrics registers the gateway's collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "backoffice",
			Subsystem: "gateway",
			Name:      "requests_total",
			Help:      "Outbound API calls by outcome.",
		}, []string{"outcome"}),
		invalidations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "backoffice",
			Subsystem: "gateway",
			Name:      "session_invalidations_total",
			Help:      "Sessions cleared by the gateway's fail-fast policy.",
		}),
	}
}

func (m *Metrics) observeRequest(outcome string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observeInvalidation() {
	if m == nil {
		return
	}
	m.invalidations.Inc()
}
