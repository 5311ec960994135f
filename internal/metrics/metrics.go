// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector はPrometheusメトリクスを収集する実装。
// コレクター・インジェスター・スケジューラの各メトリクスインターフェースを満たす。
type Collector struct {
	sourceSuccess *prometheus.CounterVec
	sourceFail    *prometheus.CounterVec
	recordsIn     *prometheus.CounterVec
	recordsSkip   *prometheus.CounterVec
	jobsCompleted prometheus.Counter
	jobsFailed    prometheus.Counter
	jobDuration   prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		sourceSuccess: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "brandpulse_source_success_total",
			Help: "外部ソース取得成功の合計数",
		}, []string{"source"}),
		sourceFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "brandpulse_source_fail_total",
			Help: "外部ソース取得失敗の合計数",
		}, []string{"source"}),
		recordsIn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "brandpulse_records_inserted_total",
			Help: "挿入された履歴レコードの合計数",
		}, []string{"kind"}),
		recordsSkip: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "brandpulse_records_skipped_total",
			Help: "保存失敗でスキップされた履歴レコードの合計数",
		}, []string{"kind"}),
		jobsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "brandpulse_jobs_completed_total",
			Help: "正常終了した収集ジョブの合計数",
		}),
		jobsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "brandpulse_jobs_failed_total",
			Help: "異常終了した収集ジョブの合計数",
		}),
		jobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "brandpulse_job_duration_seconds",
			Help:    "収集ジョブの実行時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.sourceSuccess,
		c.sourceFail,
		c.recordsIn,
		c.recordsSkip,
		c.jobsCompleted,
		c.jobsFailed,
		c.jobDuration,
	)

	return c
}

// RecordSourceSuccess は外部ソース取得成功を記録する。
func (c *Collector) RecordSourceSuccess(sourceName string) {
	c.sourceSuccess.WithLabelValues(sourceName).Inc()
}

// RecordSourceFailure は外部ソース取得失敗を記録する。
func (c *Collector) RecordSourceFailure(sourceName string) {
	c.sourceFail.WithLabelValues(sourceName).Inc()
}

// RecordInserted は挿入された履歴レコード数を記録する。
func (c *Collector) RecordInserted(kind string, count int) {
	c.recordsIn.WithLabelValues(kind).Add(float64(count))
}

// RecordSkipped はスキップされた履歴レコード数を記録する。
func (c *Collector) RecordSkipped(kind string, count int) {
	c.recordsSkip.WithLabelValues(kind).Add(float64(count))
}

// RecordJobCompleted は収集ジョブの正常終了を記録する。
func (c *Collector) RecordJobCompleted() {
	c.jobsCompleted.Inc()
}

// RecordJobFailed は収集ジョブの異常終了を記録する。
func (c *Collector) RecordJobFailed() {
	c.jobsFailed.Inc()
}

// ObserveJobDuration は収集ジョブの実行時間を記録する。
func (c *Collector) ObserveJobDuration(d time.Duration) {
	c.jobDuration.Observe(d.Seconds())
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
