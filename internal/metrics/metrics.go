// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector はPrometheusメトリクスを収集する実装。
// ssm.MetricsRecorderとdashboard.CacheMetricsRecorderの両方を満たす。
type Collector struct {
	ssmFetchSuccess prometheus.Counter
	ssmFetchFail    *prometheus.CounterVec
	ssmHTTPStatus   *prometheus.CounterVec
	ssmFetchLatency prometheus.Histogram
	cacheHit        *prometheus.CounterVec
	cacheMiss       *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		ssmFetchSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "worklog_ssm_fetch_success_total",
			Help: "SSMレポート取得成功の合計数",
		}),
		ssmFetchFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worklog_ssm_fetch_fail_total",
			Help: "SSM API呼び出し失敗のエンドポイント別合計数",
		}, []string{"endpoint"}),
		ssmHTTPStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worklog_ssm_http_status_total",
			Help: "SSM APIのエンドポイント・HTTPステータスコード別レスポンス数",
		}, []string{"endpoint", "status_code"}),
		ssmFetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "worklog_ssm_fetch_latency_seconds",
			Help:    "SSM API呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		cacheHit: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worklog_cache_hit_total",
			Help: "SSM集計キャッシュのヒット数（用途別）",
		}, []string{"purpose"}),
		cacheMiss: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worklog_cache_miss_total",
			Help: "SSM集計キャッシュのミス数（用途別）",
		}, []string{"purpose"}),
	}

	reg.MustRegister(
		c.ssmFetchSuccess,
		c.ssmFetchFail,
		c.ssmHTTPStatus,
		c.ssmFetchLatency,
		c.cacheHit,
		c.cacheMiss,
	)

	return c
}

// RecordSSMFetchSuccess はSSMレポート取得成功を記録する。
func (c *Collector) RecordSSMFetchSuccess() {
	c.ssmFetchSuccess.Inc()
}

// RecordSSMFetchFailure はSSM API呼び出し失敗を記録する。
func (c *Collector) RecordSSMFetchFailure(endpoint string) {
	c.ssmFetchFail.WithLabelValues(endpoint).Inc()
}

// RecordSSMHTTPStatus はSSM APIのHTTPステータスコードを記録する。
func (c *Collector) RecordSSMHTTPStatus(endpoint string, statusCode int) {
	c.ssmHTTPStatus.WithLabelValues(endpoint, strconv.Itoa(statusCode)).Inc()
}

// RecordSSMFetchLatency はSSM API呼び出しのレイテンシを記録する。
func (c *Collector) RecordSSMFetchLatency(duration time.Duration) {
	c.ssmFetchLatency.Observe(duration.Seconds())
}

// RecordCacheHit はキャッシュヒットを記録する。
func (c *Collector) RecordCacheHit(purpose string) {
	c.cacheHit.WithLabelValues(purpose).Inc()
}

// RecordCacheMiss はキャッシュミスを記録する。
func (c *Collector) RecordCacheMiss(purpose string) {
	c.cacheMiss.WithLabelValues(purpose).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
