package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/ojeomneo/identitycore/internal/health"
)

// HealthReporter はヘルスチェックハンドラーが必要とするインターフェース。
// health.Aggregatorが実装する。
type HealthReporter interface {
	Liveness() health.LivenessReport
	Readiness(ctx context.Context) health.ReadinessReport
	Diagnostic(ctx context.Context) health.DiagnosticReport
}

var _ HealthReporter = (*health.Aggregator)(nil)

// HealthHandler はヘルスチェックのHTTPハンドラー。
type HealthHandler struct {
	reporter HealthReporter
}

// NewHealthHandler はHealthHandlerを生成する。
func NewHealthHandler(reporter HealthReporter) *HealthHandler {
	return &HealthHandler{reporter: reporter}
}

// Live はプロセスの生存を返す。データストアには触れない。
// GET /healthcheck/live
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	report := h.reporter.Liveness()
	writeJSON(w, report.StatusCode(), report)
}

// Ready はデータストアに到達できる場合のみ200を返す。
// GET /healthcheck/ready
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	report := h.reporter.Readiness(r.Context())
	writeJSON(w, report.StatusCode(), report)
}

// Diagnostic はレイテンシと失敗理由を含む詳細を返す。
// GET /healthcheck
func (h *HealthHandler) Diagnostic(w http.ResponseWriter, r *http.Request) {
	report := h.reporter.Diagnostic(r.Context())
	writeJSON(w, report.StatusCode(), report)
}

func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}
