package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"
)

// NewRecoveryMiddleware はハンドラー内のpanicを500 INTERNAL_ERRORに変換する。
// Loggingより外側に置かれるため、panicしたリクエストのステータスはここで記録する。
// metricsはnilでもよい。
func NewRecoveryMiddleware(metrics StatusRecorder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				// クライアント切断による中断はnet/httpに任せる
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				slog.Error("handler panicked",
					slog.Any("panic", rec),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("remote_ip", ClientIP(r)),
					slog.String("stack", string(debug.Stack())),
				)
				if metrics != nil {
					metrics.RecordHTTPStatus(http.StatusInternalServerError)
				}
				WriteInternalServerError(w)
			}()
			next.ServeHTTP(w, r)
		})
	}
}
