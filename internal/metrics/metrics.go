// Package metrics holds the Prometheus collectors of the booking core.
// They register on the default registry and are served at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BookingTransitions counts committed booking status changes by target status.
	BookingTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ticketsys",
		Subsystem: "booking",
		Name:      "transitions_total",
		Help:      "Committed booking status transitions by resulting status.",
	}, []string{"status"})

	// RejectedBookings counts domain failures by sentinel name.
	RejectedBookings = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ticketsys",
		Subsystem: "booking",
		Name:      "rejected_total",
		Help:      "Booking operations rejected with a domain error.",
	}, []string{"reason"})

	// RetryAttempts counts extra attempts made after transient contention.
	RetryAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ticketsys",
		Subsystem: "booking",
		Name:      "retry_attempts_total",
		Help:      "Transactional units re-run after lock contention.",
	})

	// RetriesExhausted counts units that failed after the whole retry budget.
	RetriesExhausted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ticketsys",
		Subsystem: "booking",
		Name:      "retries_exhausted_total",
		Help:      "Transactional units that ran out of retry attempts.",
	})

	// ReclaimSweeps observes how many bookings each reconciliation sweep expired.
	ReclaimSweeps = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "ticketsys",
		Subsystem: "reclaimer",
		Name:      "sweep_expired",
		Help:      "Bookings expired per reconciliation sweep.",
		Buckets:   []float64{0, 1, 5, 10, 25, 50, 100},
	})
)
