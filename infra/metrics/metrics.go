// Package metrics holds the prometheus collectors of the view service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "weakgate"

const (
	ResultOK   = "ok"
	ResultGone = "gone"
)

var (
	Promotions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "view",
		Name:      "promotions_total",
		Help:      "Weak to owning promotions by result.",
	}, []string{"result"})

	Finalizations = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "view",
		Name:      "finalizations_total",
		Help:      "Views finalized after their last owning reference was released.",
	})

	WeakRegistrations = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "view",
		Name:      "weak_registrations_total",
		Help:      "Weak references registered on views.",
	})

	LiveViews = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "view",
		Name:      "live",
		Help:      "Views that have not been finalized.",
	})

	Reclaimed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "memory",
		Name:      "reclaimed_total",
		Help:      "Retired snapshots closed by the reclaimer.",
	})

	Published = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "outbox",
		Name:      "published_total",
		Help:      "Outbox events handed to the broker, by result.",
	}, []string{"result"})
)

// Register adds all collectors to r.
func Register(r prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		Promotions, Finalizations, WeakRegistrations, LiveViews, Reclaimed, Published,
	} {
		if err := r.Register(c); err != nil {
			return err
		}
	}
	return nil
}
