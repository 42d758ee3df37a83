package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registerOnce sync.Once
	registerErr  error

	EventsApplied = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lansync_events_applied_total",
		Help: "Mutation events folded into a local snapshot",
	}, []string{"collection", "action"})

	Fetches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lansync_fetch_total",
		Help: "Snapshot fetches by result (applied|discarded|failed)",
	}, []string{"collection", "result"})

	SnapshotRecords = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "lansync_snapshot_records",
		Help: "Records currently held in the local snapshot",
	}, []string{"collection"})

	SubscriptionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "lansync_subscriptions_active",
		Help: "Open realtime subscriptions",
	})

	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lansync_http_requests_total",
		Help: "Read API requests by route and status",
	}, []string{"method", "route", "status"})

	HTTPDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lansync_http_request_duration_seconds",
		Help:    "Read API latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
)

// Register adds the collectors to reg (DefaultRegisterer when nil) and
// returns the handler for /metrics. Safe to call more than once.
func Register(reg prometheus.Registerer) (http.Handler, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	registerOnce.Do(func() {
		for _, c := range []prometheus.Collector{EventsApplied, Fetches, SnapshotRecords, SubscriptionsActive, HTTPRequests, HTTPDuration} {
			if err := reg.Register(c); err != nil {
				registerErr = err
				return
			}
		}
	})
	if registerErr != nil {
		return nil, registerErr
	}
	if g, ok := reg.(prometheus.Gatherer); ok {
		return promhttp.HandlerFor(g, promhttp.HandlerOpts{}), nil
	}
	return promhttp.Handler(), nil
}
