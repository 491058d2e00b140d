// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// バックエンドクライアント、ストア、パイプライン、ルーターから利用する。
type MetricsCollector interface {
	RecordRemoteRequest(endpoint string, statusCode int, duration time.Duration)
	RecordUpload(outcome string, duration time.Duration)
	RecordSync(confirmed, failed int)
	SetPendingRecords(n int)
	RecordAuthExpired(source string)
	RecordNavigation(view string)
	RecordChartReleased()
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	remoteRequests *prometheus.CounterVec
	remoteLatency  *prometheus.HistogramVec
	uploads        *prometheus.CounterVec
	uploadLatency  prometheus.Histogram
	syncConfirmed  prometheus.Counter
	syncFailed     prometheus.Counter
	pendingRecords prometheus.Gauge
	authExpired    *prometheus.CounterVec
	navigations    *prometheus.CounterVec
	chartsReleased prometheus.Counter
}

var _ MetricsCollector = (*Collector)(nil)

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		remoteRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dermadash_remote_requests_total",
			Help: "リモートAPI呼び出しのエンドポイント・ステータス別の合計数（通信エラーはstatus_code=0）",
		}, []string{"endpoint", "status_code"}),
		remoteLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dermadash_remote_request_seconds",
			Help:    "リモートAPI呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dermadash_uploads_total",
			Help: "画像アップロードの結果別の合計数",
		}, []string{"outcome"}),
		uploadLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dermadash_upload_seconds",
			Help:    "画像アップロードから記録作成までの所要時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		syncConfirmed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dermadash_sync_confirmed_total",
			Help: "再送によりリモートで確定した診断記録の合計数",
		}),
		syncFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dermadash_sync_failed_total",
			Help: "再送に失敗した診断記録の合計数",
		}),
		pendingRecords: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dermadash_pending_records",
			Help: "リモート未確定の診断記録数",
		}),
		authExpired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dermadash_auth_expired_total",
			Help: "トークン失効による強制ログアウトの発生箇所別の合計数",
		}, []string{"source"}),
		navigations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dermadash_navigations_total",
			Help: "遷移先の画面別の画面遷移数",
		}, []string{"view"}),
		chartsReleased: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dermadash_charts_released_total",
			Help: "再描画のために解放されたグラフの合計数",
		}),
	}

	reg.MustRegister(
		c.remoteRequests,
		c.remoteLatency,
		c.uploads,
		c.uploadLatency,
		c.syncConfirmed,
		c.syncFailed,
		c.pendingRecords,
		c.authExpired,
		c.navigations,
		c.chartsReleased,
	)

	return c
}

// RecordRemoteRequest はリモートAPI呼び出しを記録する。
func (c *Collector) RecordRemoteRequest(endpoint string, statusCode int, duration time.Duration) {
	c.remoteRequests.WithLabelValues(endpoint, strconv.Itoa(statusCode)).Inc()
	c.remoteLatency.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordUpload はアップロード結果を記録する。
func (c *Collector) RecordUpload(outcome string, duration time.Duration) {
	c.uploads.WithLabelValues(outcome).Inc()
	c.uploadLatency.Observe(duration.Seconds())
}

// RecordSync は再送結果を記録する。
func (c *Collector) RecordSync(confirmed, failed int) {
	c.syncConfirmed.Add(float64(confirmed))
	c.syncFailed.Add(float64(failed))
}

// SetPendingRecords は未確定記録数を更新する。
func (c *Collector) SetPendingRecords(n int) {
	c.pendingRecords.Set(float64(n))
}

// RecordAuthExpired は強制ログアウトを記録する。
func (c *Collector) RecordAuthExpired(source string) {
	c.authExpired.WithLabelValues(source).Inc()
}

// RecordNavigation は画面遷移を記録する。
func (c *Collector) RecordNavigation(view string) {
	c.navigations.WithLabelValues(view).Inc()
}

// RecordChartReleased はグラフの解放を記録する。
func (c *Collector) RecordChartReleased() {
	c.chartsReleased.Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
