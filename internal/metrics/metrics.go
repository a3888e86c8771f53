// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 認証チェーン、アカウントファクトリ、ヘルスチェック、HTTPミドルウェアから利用する。
type MetricsCollector interface {
	RecordAuthAttempt(authenticator, result string)
	RecordDuplicateIdentity()
	RecordIdentityCreated(method string)
	RecordHandleCollision()
	ObserveProbe(connected bool, latencyMs int64)
	RecordHTTPStatus(statusCode int)
	RecordRateLimited(limitType string)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	authAttempts      *prometheus.CounterVec
	duplicates        prometheus.Counter
	identitiesCreated *prometheus.CounterVec
	handleCollisions  prometheus.Counter
	probeLatency      prometheus.Histogram
	dbUp              prometheus.Gauge
	httpStatus        *prometheus.CounterVec
	rateLimited       *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		authAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ojeomneo_auth_attempts_total",
			Help: "認証方式・結果別の認証試行数",
		}, []string{"authenticator", "result"}),
		duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ojeomneo_duplicate_identities_total",
			Help: "同一(email, login_method)の行が複数見つかった回数",
		}),
		identitiesCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ojeomneo_identities_created_total",
			Help: "ログイン方式別のidentity作成数",
		}, []string{"login_method"}),
		handleCollisions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ojeomneo_handle_collisions_total",
			Help: "username衝突による再試行の合計数",
		}),
		probeLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ojeomneo_db_probe_latency_seconds",
			Help:    "データベース接続プローブのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		dbUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ojeomneo_db_up",
			Help: "直近のプローブでデータベースに接続できたか（1/0）",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ojeomneo_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ojeomneo_rate_limited_total",
			Help: "レート制限で拒否したリクエスト数",
		}, []string{"limit_type"}),
	}

	reg.MustRegister(
		c.authAttempts,
		c.duplicates,
		c.identitiesCreated,
		c.handleCollisions,
		c.probeLatency,
		c.dbUp,
		c.httpStatus,
		c.rateLimited,
	)

	return c
}

// RecordAuthAttempt は認証試行を記録する。
func (c *Collector) RecordAuthAttempt(authenticator, result string) {
	c.authAttempts.WithLabelValues(authenticator, result).Inc()
}

// RecordDuplicateIdentity は重複行の検出を記録する。
func (c *Collector) RecordDuplicateIdentity() {
	c.duplicates.Inc()
}

// RecordIdentityCreated はidentity作成を記録する。
func (c *Collector) RecordIdentityCreated(method string) {
	c.identitiesCreated.WithLabelValues(method).Inc()
}

// RecordHandleCollision はusername衝突を記録する。
func (c *Collector) RecordHandleCollision() {
	c.handleCollisions.Inc()
}

// ObserveProbe はプローブ結果を記録する。
func (c *Collector) ObserveProbe(connected bool, latencyMs int64) {
	c.probeLatency.Observe(float64(latencyMs) / 1000)
	if connected {
		c.dbUp.Set(1)
	} else {
		c.dbUp.Set(0)
	}
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRateLimited はレート制限による拒否を記録する。
func (c *Collector) RecordRateLimited(limitType string) {
	c.rateLimited.WithLabelValues(limitType).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

var _ MetricsCollector = (*Collector)(nil)
