// 包 metrics：进程级 Prometheus 指标，init 时注册到默认注册表
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var msBuckets = []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000, 5000}

var (
	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geodash_requests_total",
		Help: "Total number of API requests by route",
	}, []string{"route"})
	RequestDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "geodash_request_duration_ms",
		Help:    "API request duration in milliseconds",
		Buckets: msBuckets,
	}, []string{"route"})
	GeoLoadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geodash_geo_loads_total",
		Help: "Geometry loads by serving layer (memo, disk, redis, remote) and result",
	}, []string{"source", "result"})
	GeoLoadDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "geodash_geo_load_duration_ms",
		Help:    "Geometry load duration in milliseconds (including parse)",
		Buckets: msBuckets,
	})
	RemoteRequestsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "geodash_remote_requests_total",
		Help: "Total remote mirror / catalog HTTP requests",
	})
	RemoteFailTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "geodash_remote_fail_total",
		Help: "Total remote mirror / catalog HTTP failures",
	})
	RemoteDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "geodash_remote_duration_ms",
		Help:    "Remote HTTP call duration in milliseconds",
		Buckets: msBuckets,
	})
	RedisHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "geodash_redis_hits_total",
		Help: "Total redis cache hits",
	})
	RedisMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "geodash_redis_misses_total",
		Help: "Total redis cache misses",
	})
	ActionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geodash_actions_total",
		Help: "Drill-down actions by kind and outcome notice",
	}, []string{"kind", "outcome"})
	ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "geodash_active_sessions",
		Help: "Number of live dashboard sessions",
	})
	ChartRendersTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "geodash_chart_renders_total",
		Help: "Total rendered chart pages",
	})
	LocateTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geodash_locate_total",
		Help: "Visitor state hint lookups by locator and result",
	}, []string{"locator", "result"})
	RateLimitedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "geodash_rate_limited_total",
		Help: "Requests rejected by the rate limiter",
	})
	PanicsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "geodash_panics_total",
		Help: "Recovered handler panics",
	})
)

func init() {
	prometheus.MustRegister(RequestsTotal)
	prometheus.MustRegister(RequestDurationMs)
	prometheus.MustRegister(GeoLoadsTotal)
	prometheus.MustRegister(GeoLoadDurationMs)
	prometheus.MustRegister(RemoteRequestsTotal)
	prometheus.MustRegister(RemoteFailTotal)
	prometheus.MustRegister(RemoteDurationMs)
	prometheus.MustRegister(RedisHitsTotal)
	prometheus.MustRegister(RedisMissesTotal)
	prometheus.MustRegister(ActionsTotal)
	prometheus.MustRegister(ActiveSessions)
	prometheus.MustRegister(ChartRendersTotal)
	prometheus.MustRegister(LocateTotal)
	prometheus.MustRegister(RateLimitedTotal)
	prometheus.MustRegister(PanicsTotal)
}

// 文档注释：返回 Prometheus 指标处理器
// 背景：统一暴露注册指标，在主入口挂载到 {API_BASE}/metrics。
func Handler() http.Handler { return promhttp.Handler() }
