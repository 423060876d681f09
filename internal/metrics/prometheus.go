// internal/metrics/prometheus.go
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"solarwatch/internal/database"
	"solarwatch/internal/status"
)

var (
	CycleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "solarwatch_cycle_duration_seconds",
			Help:    "Time spent on one site's acquisition cycle",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"site", "strategy"},
	)

	AcquisitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solarwatch_acquisitions_total",
			Help: "Acquisition attempts by strategy and result",
		},
		[]string{"site", "strategy", "result"},
	)

	FallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solarwatch_fallbacks_total",
			Help: "Times the API path fell back to the browser strategy",
		},
		[]string{"site"},
	)

	SiteStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "solarwatch_site_status",
			Help: "Current site status (0=ONLINE, 1=OFFLINE, 2=ERROR)",
		},
		[]string{"site"},
	)

	AlertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solarwatch_alerts_total",
			Help: "Transition alerts handed to the message gateway",
		},
		[]string{"site", "status"},
	)

	SessionDaysRemaining = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "solarwatch_session_days_remaining",
			Help: "Days until a captured session's bearer token expires",
		},
		[]string{"artifact"},
	)

	MonitoredSites = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "solarwatch_monitored_sites_total",
			Help: "Number of sites in the fleet registry",
		},
	)
)

type Collector struct {
	store database.Store
}

func NewCollector(store database.Store) *Collector {
	return &Collector{store: store}
}

func (c *Collector) RecordAcquisition(site, strategy, result string) {
	AcquisitionsTotal.WithLabelValues(site, strategy, result).Inc()
}

func (c *Collector) RecordFallback(site string) {
	FallbacksTotal.WithLabelValues(site).Inc()
}

func (c *Collector) RecordOutcome(site, strategy string, st status.Status, duration time.Duration) {
	CycleDuration.WithLabelValues(site, strategy).Observe(duration.Seconds())
	SiteStatus.WithLabelValues(site).Set(statusValue(st))
}

func (c *Collector) RecordAlert(site string, st status.Status) {
	AlertsTotal.WithLabelValues(site, string(st)).Inc()
}

func (c *Collector) RecordSessionExpiry(artifact string, days int) {
	SessionDaysRemaining.WithLabelValues(artifact).Set(float64(days))
}

func (c *Collector) SetFleetSize(n int) {
	MonitoredSites.Set(float64(n))
}

// UpdateSystemMetrics refreshes gauges straight from the store, so the
// metrics endpoint stays truthful between sweeps.
func (c *Collector) UpdateSystemMetrics(ctx context.Context) error {
	states, err := c.store.List(ctx)
	if err != nil {
		return err
	}
	for _, state := range states {
		SiteStatus.WithLabelValues(state.Site).Set(statusValue(state.Status))
	}
	return nil
}

func statusValue(st status.Status) float64 {
	switch st {
	case status.Online:
		return 0
	case status.Offline:
		return 1
	default:
		return 2
	}
}
