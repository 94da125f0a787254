package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SearchRemote — сколько раз реально ходили в каталог.
	SearchRemote = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pos_catalog_search_remote_total",
		Help: "Remote catalog searches issued.",
	})

	// SearchCacheHit — ответы из кеша поиска.
	SearchCacheHit = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pos_catalog_search_cache_hits_total",
		Help: "Catalog searches served from the memoized cache.",
	})

	// OrdersSubmitted — проведённые заказы.
	OrdersSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pos_orders_submitted_total",
		Help: "Orders submitted from the terminal.",
	})

	// PricingErrors — неудачные походы в сервис пересчёта.
	PricingErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pos_pricing_errors_total",
		Help: "Failed pricing recompute calls.",
	})
)
