package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	storeWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cart_store_writes_total",
			Help: "Total cart persistence attempts by tier and result",
		},
		[]string{"tier", "result"},
	)

	storeFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cart_store_fallbacks_total",
			Help: "Total degradation-ladder stages entered during cart persistence",
		},
		[]string{"stage"},
	)

	storeDegraded = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cart_store_degraded",
			Help: "Number of cart stores currently holding state in memory only",
		},
	)

	legacyMigrations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cart_legacy_migrations_total",
			Help: "Total carts migrated from the legacy tier to the primary tier",
		},
	)
)
