package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder holds the provider pipeline collectors. A nil *Recorder is valid
// and records nothing.
type Recorder struct {
	searches      *prometheus.CounterVec
	placesLatency *prometheus.HistogramVec
	upserts       *prometheus.CounterVec
	subscriptions *prometheus.CounterVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		searches: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "upkeep_provider_searches_total",
				Help: "Provider searches by service type and result source (live, cache)",
			},
			[]string{"service_type", "source"},
		),
		placesLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "upkeep_places_request_duration_seconds",
				Help:    "Latency of external places search calls",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),
		upserts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "upkeep_provider_upserts_total",
				Help: "Provider upserts by result",
			},
			[]string{"result"},
		),
		subscriptions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "upkeep_billing_subscriptions_total",
				Help: "Billing subscriptions created by tier and initial status",
			},
			[]string{"tier", "status"},
		),
	}
}

func (r *Recorder) Search(serviceType, source string) {
	if r == nil {
		return
	}
	r.searches.WithLabelValues(serviceType, source).Inc()
}

func (r *Recorder) PlacesRequest(d time.Duration, err error) {
	if r == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	r.placesLatency.WithLabelValues(outcome).Observe(d.Seconds())
}

func (r *Recorder) Upsert(result string) {
	if r == nil {
		return
	}
	r.upserts.WithLabelValues(result).Inc()
}

func (r *Recorder) Subscription(tier, status string) {
	if r == nil {
		return
	}
	r.subscriptions.WithLabelValues(tier, status).Inc()
}
