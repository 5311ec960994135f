package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// TestCollector_SourceCounters はソース成功/失敗カウンターがラベルごとに
// 加算されることを検証する。
func TestCollector_SourceCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordSourceSuccess("newsapi")
	c.RecordSourceSuccess("newsapi")
	c.RecordSourceFailure("twitter")

	if got := testutil.ToFloat64(c.sourceSuccess.WithLabelValues("newsapi")); got != 2 {
		t.Errorf("source_success{newsapi} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.sourceFail.WithLabelValues("twitter")); got != 1 {
		t.Errorf("source_fail{twitter} = %v, want 1", got)
	}
}

// TestCollector_RecordCounters は挿入/スキップカウンターが件数分
// 加算されることを検証する。
func TestCollector_RecordCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordInserted("news", 5)
	c.RecordInserted("social", 3)
	c.RecordSkipped("news", 1)

	if got := testutil.ToFloat64(c.recordsIn.WithLabelValues("news")); got != 5 {
		t.Errorf("records_inserted{news} = %v, want 5", got)
	}
	if got := testutil.ToFloat64(c.recordsIn.WithLabelValues("social")); got != 3 {
		t.Errorf("records_inserted{social} = %v, want 3", got)
	}
	if got := testutil.ToFloat64(c.recordsSkip.WithLabelValues("news")); got != 1 {
		t.Errorf("records_skipped{news} = %v, want 1", got)
	}
}

// TestCollector_JobMetrics はジョブカウンターとヒストグラムの記録を検証する。
func TestCollector_JobMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordJobCompleted()
	c.RecordJobFailed()
	c.ObserveJobDuration(2 * time.Second)

	if got := testutil.ToFloat64(c.jobsCompleted); got != 1 {
		t.Errorf("jobs_completed = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.jobsFailed); got != 1 {
		t.Errorf("jobs_failed = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(c.jobDuration); got != 1 {
		t.Errorf("job_duration series = %d, want 1", got)
	}
}

// TestSetupMetricsRoute は/metricsエンドポイントがPrometheus形式で
// メトリクスを公開することを検証する。
func TestSetupMetricsRoute(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordSourceSuccess("newsapi")

	handler := SetupMetricsRoute(reg)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	body := rec.Body.String()
	if !strings.Contains(body, `brandpulse_source_success_total{source="newsapi"} 1`) {
		t.Errorf("metrics output missing source success counter:\n%s", body)
	}
}
