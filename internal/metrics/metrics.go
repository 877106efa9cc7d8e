package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	metricPrefix = "healthtrack_"

	ResultSuccess = "success"
	ResultError   = "error"

	SinkDurable   = "durable"
	SinkBroadcast = "broadcast"
)

var (
	registerOnce sync.Once

	ingestEvents  *prometheus.CounterVec
	ingestLatency prometheus.Histogram

	alertEvents *prometheus.CounterVec

	aggregatedEntries prometheus.Counter
	aggregationLag    prometheus.Gauge

	recentAlertsSize prometheus.Gauge
)

// Init 注册服务指标（幂等）
func Init() {
	registerOnce.Do(func() {
		ingestEvents = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_events_total",
				Help: "Total telemetry events submitted by result",
			},
			[]string{"result"},
		)
		ingestLatency = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "ingest_latency_seconds",
				Help:    "Telemetry commit latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
		)
		alertEvents = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "alert_events_total",
				Help: "Total alert deliveries by sink and result",
			},
			[]string{"sink", "result"},
		)
		aggregatedEntries = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "aggregated_entries_total",
				Help: "Total stream entries aggregated into hour buckets",
			},
		)
		aggregationLag = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "aggregation_lag_seconds",
				Help: "Seconds between the last aggregated event timestamp and now",
			},
		)
		recentAlertsSize = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "recent_alerts_buffer_size",
				Help: "Current number of alerts held in the in-memory ring buffer",
			},
		)

		prometheus.MustRegister(
			ingestEvents,
			ingestLatency,
			alertEvents,
			aggregatedEntries,
			aggregationLag,
			recentAlertsSize,
		)
	})
}

// ObserveIngest 记录一次事件提交
func ObserveIngest(result string, duration time.Duration) {
	if ingestEvents == nil {
		return
	}
	ingestEvents.WithLabelValues(result).Inc()
	ingestLatency.Observe(duration.Seconds())
}

// ObserveAlertSink 记录一次告警投递
func ObserveAlertSink(sink, result string) {
	if alertEvents == nil {
		return
	}
	alertEvents.WithLabelValues(sink, result).Inc()
}

// ObserveAggregated 记录已聚合的条目数与消费滞后
func ObserveAggregated(count int, lastEventTS int64) {
	if aggregatedEntries == nil {
		return
	}
	aggregatedEntries.Add(float64(count))
	if lastEventTS > 0 {
		aggregationLag.Set(time.Since(time.Unix(lastEventTS, 0)).Seconds())
	}
}

// SetRecentAlertsSize 更新环形缓冲当前大小
func SetRecentAlertsSize(n int) {
	if recentAlertsSize == nil {
		return
	}
	recentAlertsSize.Set(float64(n))
}

// Handler Prometheus 抓取端点
func Handler() http.Handler {
	return promhttp.Handler()
}
