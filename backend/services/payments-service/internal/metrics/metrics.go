package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds reconciliation counters.
type Metrics struct {
	ReconcileOutcomes  *prometheus.CounterVec
	WebhookRejected    *prometheus.CounterVec
	EnrollmentFailures prometheus.Counter
}

// New registers counters on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ReconcileOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "payments_reconcile_outcomes_total",
			Help: "Reconciliation results by outcome.",
		}, []string{"outcome"}),
		WebhookRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "payments_webhook_rejected_total",
			Help: "Webhook deliveries rejected before reaching the state machine.",
		}, []string{"reason"}),
		EnrollmentFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "payments_enrollment_failures_total",
			Help: "Enrollment creations that failed after a completed payment.",
		}),
	}
}
