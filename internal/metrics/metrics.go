package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "clinicq"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	bookings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_confirmed_total",
			Help:      "Confirmed bookings by tier.",
		},
		[]string{"tier"},
	)

	checkIns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkins_total",
			Help:      "Check-in sessions that reached a terminal state, by outcome.",
		},
		[]string{"outcome"},
	)

	feesApplied = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fees_applied_total",
			Help:      "Ledger charges applied by the fee worker, by kind.",
		},
		[]string{"kind"},
	)

	servingToken = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "current_serving_token",
			Help:      "Token currently being served.",
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, bookings, checkIns, feesApplied, servingToken)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

func IncBooking(tier string) {
	bookings.WithLabelValues(tier).Inc()
}

func IncCheckIn(outcome string) {
	checkIns.WithLabelValues(outcome).Inc()
}

func IncFee(kind string) {
	feesApplied.WithLabelValues(kind).Inc()
}

func SetServingToken(token int) {
	servingToken.Set(float64(token))
}
