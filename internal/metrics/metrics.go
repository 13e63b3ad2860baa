// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector は寄稿パイプラインのPrometheusメトリクスを収集する。
type Collector struct {
	registry            *prometheus.Registry
	contributionSuccess prometheus.Counter
	contributionFail    *prometheus.CounterVec
	stageLatency        *prometheus.HistogramVec
	httpStatus          *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、専用レジストリにメトリクスを登録する。
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		contributionSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "picpool_contribution_success_total",
			Help: "寄稿取り込み成功の合計数",
		}),
		contributionFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "picpool_contribution_fail_total",
			Help: "寄稿取り込み失敗の合計数（失敗ステージ別）",
		}, []string{"stage"}),
		stageLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "picpool_pipeline_stage_latency_seconds",
			Help:    "パイプラインステージのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "picpool_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	c.registry.MustRegister(
		c.contributionSuccess,
		c.contributionFail,
		c.stageLatency,
		c.httpStatus,
	)

	return c
}

// RecordContributionSuccess は寄稿成功を記録する。
func (c *Collector) RecordContributionSuccess() {
	c.contributionSuccess.Inc()
}

// RecordContributionFailure は寄稿失敗を失敗ステージのラベル付きで記録する。
func (c *Collector) RecordContributionFailure(stage string) {
	c.contributionFail.WithLabelValues(stage).Inc()
}

// RecordStageLatency はステージのレイテンシを記録する。
func (c *Collector) RecordStageLatency(stage string, duration time.Duration) {
	c.stageLatency.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusエクスポジション用のHTTPハンドラーを返す。
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
