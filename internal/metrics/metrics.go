package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OffersAccepted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offers_accepted_total",
			Help: "Total number of hire offers accepted",
		},
		[]string{"kind"}, // kind: direct, team
	)

	MilestonesApproved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "milestones_approved_total",
			Help: "Total number of milestones approved",
		},
	)

	FundsReleasedCents = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "funds_released_cents_total",
			Help: "Total pending funds made available to freelancers, in cents",
		},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)
)

func RecordOfferAccepted(team bool) {
	kind := "direct"
	if team {
		kind = "team"
	}
	OffersAccepted.WithLabelValues(kind).Inc()
}

func RecordFundsReleased(amountCents int64) {
	FundsReleasedCents.Add(float64(amountCents))
}

func RecordHTTPRequest(method, path, status string, d time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(d.Seconds())
}
