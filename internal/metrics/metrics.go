package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	AssignRequestsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "districtapi_assign_requests_total",
		Help: "Total number of district assignment POST requests",
	})
	AssignSuccessTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "districtapi_assign_success_total",
		Help: "Total successful district assignments",
	})
	AssignFailTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "districtapi_assign_fail_total",
		Help: "Total failed district assignments (rejected or errored)",
	})
	AssignDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "districtapi_assign_duration_ms",
		Help:    "Assignment request duration in milliseconds",
		Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000},
	})
	AssignUnits = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "districtapi_assign_units",
		Help:    "Number of geounits per assignment request",
		Buckets: []float64{1, 5, 10, 50, 100, 500, 1000, 5000},
	})
	SelectionRequestsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "districtapi_selection_requests_total",
		Help: "Total selection queries across all sessions",
	})
	SelectionStaleTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "districtapi_selection_stale_total",
		Help: "Selection responses discarded because a newer query or tool switch happened",
	})
	SelectionUnits = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "districtapi_selection_units",
		Help:    "Number of geounits matched per selection query",
		Buckets: []float64{0, 1, 3, 10, 30, 100, 300, 1000},
	})
	SessionsCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "districtapi_sessions_created_total",
		Help: "Total edit sessions created",
	})
	SessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "districtapi_sessions_active",
		Help: "Edit sessions currently alive",
	})
	LayerCacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "districtapi_layer_cache_hits_total",
		Help: "District layer responses served from redis",
	})
	LayerCacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "districtapi_layer_cache_misses_total",
		Help: "District layer responses rebuilt from the database",
	})
	SourceRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "districtapi_source_requests_total",
		Help: "Total feature source Query requests",
	}, []string{"source"})
	SourceSuccessTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "districtapi_source_success_total",
		Help: "Total feature source Query successes",
	}, []string{"source"})
	SourceFailTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "districtapi_source_fail_total",
		Help: "Total feature source Query failures",
	}, []string{"source"})
	SourceDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "districtapi_source_duration_ms",
		Help:    "Feature source Query duration in milliseconds",
		Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000},
	}, []string{"source"})
	SourceHeartbeatTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "districtapi_source_heartbeat_total",
		Help: "Feature source heartbeat count by status",
	}, []string{"source", "status"})
	WFSRequestsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "districtapi_wfs_requests_total",
		Help: "Total WFS GetFeature requests",
	})
	WFSFailTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "districtapi_wfs_fail_total",
		Help: "Total WFS GetFeature failures",
	})
	WFSDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "districtapi_wfs_duration_ms",
		Help:    "WFS GetFeature duration in milliseconds",
		Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000},
	})
	NotifyTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "districtapi_notify_total",
		Help: "Plan submission notifications by outcome",
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(AssignRequestsTotal)
	prometheus.MustRegister(AssignSuccessTotal)
	prometheus.MustRegister(AssignFailTotal)
	prometheus.MustRegister(AssignDurationMs)
	prometheus.MustRegister(AssignUnits)
	prometheus.MustRegister(SelectionRequestsTotal)
	prometheus.MustRegister(SelectionStaleTotal)
	prometheus.MustRegister(SelectionUnits)
	prometheus.MustRegister(SessionsCreatedTotal)
	prometheus.MustRegister(SessionsActive)
	prometheus.MustRegister(LayerCacheHitsTotal)
	prometheus.MustRegister(LayerCacheMissesTotal)
	prometheus.MustRegister(SourceRequestsTotal)
	prometheus.MustRegister(SourceSuccessTotal)
	prometheus.MustRegister(SourceFailTotal)
	prometheus.MustRegister(SourceDurationMs)
	prometheus.MustRegister(SourceHeartbeatTotal)
	prometheus.MustRegister(WFSRequestsTotal)
	prometheus.MustRegister(WFSFailTotal)
	prometheus.MustRegister(WFSDurationMs)
	prometheus.MustRegister(NotifyTotal)
}

// 文档注释：返回 Prometheus 指标监听器
// 背景：统一暴露注册指标到 /metrics 路径，供 Prometheus 抓取；在主入口挂载。
func Handler() http.Handler { return promhttp.Handler() }
