package health

import (
	"context"
	"net/http"
)

// ヘルスチェックのステータス値
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusNotReady = "not_ready"
)

// Metrics はプローブ結果の記録先。
type Metrics interface {
	ObserveProbe(connected bool, latencyMs int64)
}

// ServiceInfo は診断レスポンスに含めるサービス情報。
type ServiceInfo struct {
	Name    string
	Version string
}

// LivenessReport はliveness応答。
type LivenessReport struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// StatusCode は常に200を返す。
func (LivenessReport) StatusCode() int { return http.StatusOK }

// ReadinessReport はreadiness応答。
type ReadinessReport struct {
	Status   string `json:"status"`
	Ready    bool   `json:"ready"`
	Database bool   `json:"database"`
}

// StatusCode はready時200、それ以外は503を返す。
func (r ReadinessReport) StatusCode() int {
	if r.Ready {
		return http.StatusOK
	}
	return http.StatusServiceUnavailable
}

// DatabaseStatus は診断応答のデータベース部分。
type DatabaseStatus struct {
	Connected bool   `json:"connected"`
	LatencyMs int64  `json:"latency_ms"`
	Message   string `json:"message"`
}

// DiagnosticReport は診断応答。
type DiagnosticReport struct {
	Status   string         `json:"status"`
	Service  string         `json:"service"`
	Version  string         `json:"version"`
	Database DatabaseStatus `json:"database"`
}

// StatusCode は監視用なので常に200を返す。
func (DiagnosticReport) StatusCode() int { return http.StatusOK }

// Aggregator はプローブ結果からヘルスチェック応答を組み立てる。
// 結果はキャッシュせず、リクエストごとにプローブを実行する。
type Aggregator struct {
	probe   Probe
	info    ServiceInfo
	metrics Metrics
}

// NewAggregator はAggregatorを生成する。metricsはnilでもよい。
func NewAggregator(probe Probe, info ServiceInfo, metrics Metrics) *Aggregator {
	return &Aggregator{probe: probe, info: info, metrics: metrics}
}

// Liveness はプロセスが応答できることだけを返す。データストアには触れない。
func (a *Aggregator) Liveness() LivenessReport {
	return LivenessReport{Status: StatusOK, Service: a.info.Name}
}

// Readiness はプローブが成功した場合のみreadyを返す。
func (a *Aggregator) Readiness(ctx context.Context) ReadinessReport {
	r := a.check(ctx)
	if !r.Connected {
		return ReadinessReport{Status: StatusNotReady, Ready: false, Database: false}
	}
	return ReadinessReport{Status: StatusOK, Ready: true, Database: true}
}

// Diagnostic はレイテンシと失敗メッセージを含む詳細を返す。失敗時はdegraded。
func (a *Aggregator) Diagnostic(ctx context.Context) DiagnosticReport {
	r := a.check(ctx)
	status := StatusOK
	if !r.Connected {
		status = StatusDegraded
	}
	return DiagnosticReport{
		Status:  status,
		Service: a.info.Name,
		Version: a.info.Version,
		Database: DatabaseStatus{
			Connected: r.Connected,
			LatencyMs: r.LatencyMs,
			Message:   r.Message,
		},
	}
}

func (a *Aggregator) check(ctx context.Context) Result {
	r := a.probe.Check(ctx)
	if a.metrics != nil {
		a.metrics.ObserveProbe(r.Connected, r.LatencyMs)
	}
	return r
}
