package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "courtbook"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		},
		[]string{"route", "code"},
	)

	admissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admissions_total",
			Help:      "Booking admission attempts by outcome.",
		},
		[]string{"result"},
	)

	cancellations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cancellations_total",
			Help:      "Confirmed bookings cancelled.",
		},
	)

	waitlistEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "waitlist_events_total",
			Help:      "Waitlist transitions: joined, withdrawn, promoted, blocked, expired.",
		},
		[]string{"event"},
	)

	lockWait = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "lock_wait_seconds",
			Help:      "Time spent acquiring resource locks.",
			Buckets:   []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2, 5},
		},
		[]string{"result"},
	)

	notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Outbox notification deliveries by status.",
		},
		[]string{"status"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, admissions, cancellations, waitlistEvents, lockWait, notifications)
	})
}

func IncHTTP(route, code string) {
	httpRequests.WithLabelValues(route, code).Inc()
}

// IncAdmission counts an admission by result: confirmed or the failed check.
func IncAdmission(result string) {
	admissions.WithLabelValues(result).Inc()
}

func IncCancellation() {
	cancellations.Inc()
}

func IncWaitlist(event string) {
	waitlistEvents.WithLabelValues(event).Inc()
}

func ObserveLockWait(result string, d time.Duration) {
	lockWait.WithLabelValues(result).Observe(d.Seconds())
}

func IncNotification(status string) {
	notifications.WithLabelValues(status).Inc()
}
