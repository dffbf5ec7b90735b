package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	reservationsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reserva_reservations_created_total",
			Help: "Reservations successfully created",
		},
		[]string{"platform"},
	)

	reservationsFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reserva_reservations_finished_total",
			Help: "Reservations moved to a terminal state",
		},
		[]string{"outcome"},
	)

	reservationsRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reserva_reservations_rejected_total",
			Help: "Reservation attempts rejected for insufficient inventory",
		},
	)

	ordersPaid = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reserva_orders_paid_total",
			Help: "Orders materialized from confirmed payments",
		},
		[]string{"platform"},
	)

	lapsedPayments = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reserva_lapsed_payments_total",
			Help: "Payment confirmations for reservations that already lapsed",
		},
	)

	sweepReleases = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reserva_sweep_released_total",
			Help: "Expired reservations released by the background sweep",
		},
	)
)

func TrackReservationCreated(platform string) {
	reservationsCreated.WithLabelValues(platform).Inc()
}

// TrackReservationFinished records a terminal transition. Outcome is one
// of "expired", "cancelled" or "converted".
func TrackReservationFinished(outcome string) {
	reservationsFinished.WithLabelValues(outcome).Inc()
}

func TrackReservationRejected() {
	reservationsRejected.Inc()
}

func TrackOrderPaid(platform string) {
	ordersPaid.WithLabelValues(platform).Inc()
}

func TrackLapsedPayment() {
	lapsedPayments.Inc()
}

func TrackSweepReleased(n int) {
	sweepReleases.Add(float64(n))
}
