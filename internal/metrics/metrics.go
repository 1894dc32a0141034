package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	Renders = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "glassy_renders_total",
		Help: "Full view renders across all sessions.",
	})

	Snapshots = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "glassy_snapshots_total",
		Help: "Subscription snapshots delivered, by subscription kind and outcome.",
	}, []string{"kind", "outcome"})

	Subscriptions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "glassy_subscriptions_active",
		Help: "Currently attached real-time subscriptions.",
	})

	GatewayOps = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "glassy_gateway_ops_total",
		Help: "Backend gateway operations by name and error kind (ok when successful).",
	}, []string{"op", "result"})

	Sessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "glassy_sessions_active",
		Help: "Live client sessions.",
	})

	AssetCache = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "glassy_asset_cache_requests_total",
		Help: "Asset cache lookups by result (hit, miss, fallback, offline).",
	}, []string{"result"})
)

func init() {
	prometheus.MustRegister(Renders)
	prometheus.MustRegister(Snapshots)
	prometheus.MustRegister(Subscriptions)
	prometheus.MustRegister(GatewayOps)
	prometheus.MustRegister(Sessions)
	prometheus.MustRegister(AssetCache)
}
