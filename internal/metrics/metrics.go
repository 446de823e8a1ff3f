package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "dontforget_gateway"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status class.",
		},
		[]string{"route", "status"},
	)

	bookingsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_created_total",
			Help:      "Bookings created by flow path (unpaid, stripe, paypal).",
		},
		[]string{"path"},
	)

	payments = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_total",
			Help:      "Payment attempts by provider and outcome.",
		},
		[]string{"provider", "outcome"},
	)

	resumptions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resumptions_total",
			Help:      "Redirect resumptions by outcome.",
		},
		[]string{"outcome"},
	)

	activeFlows = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_flows",
			Help:      "Booking flows held in memory.",
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, bookingsCreated, payments, resumptions, activeFlows)
	})
}

// IncHTTP counts a served request.
func IncHTTP(route, status string) {
	httpRequests.WithLabelValues(route, status).Inc()
}

func IncBookingCreated(path string) {
	bookingsCreated.WithLabelValues(path).Inc()
}

func IncPayment(provider, outcome string) {
	payments.WithLabelValues(provider, outcome).Inc()
}

func IncResumption(outcome string) {
	resumptions.WithLabelValues(outcome).Inc()
}

func SetActiveFlows(n int) {
	activeFlows.Set(float64(n))
}
