package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/ojeomneo/identitycore/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	Metrics           middleware.StatusRecorder
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// ヘルスチェック
	Health HealthReporter

	// 認証・アカウント
	Authenticator IdentityAuthenticator
	Accounts      AccountCreator

	// /metrics。nilの場合はルートを登録しない
	MetricsHandler http.Handler
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RealIP → Recovery → Logging → SecurityHeaders → CORS
//
// ログイン試行のみクライアントIPごとのレート制限を追加する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(chimiddleware.RealIP)
	r.Use(middleware.NewRecoveryMiddleware(deps.Metrics))
	r.Use(middleware.NewLoggingMiddleware(logger, deps.Metrics))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	healthHandler := NewHealthHandler(deps.Health)
	authHandler := NewAuthHandler(deps.Authenticator, deps.Accounts)

	// ヘルスチェック（コンテナオーケストレーター・監視向け）
	r.Route("/healthcheck", func(r chi.Router) {
		r.Get("/", healthHandler.Diagnostic)
		r.Get("/live", healthHandler.Live)
		r.Get("/ready", healthHandler.Ready)
	})

	// 認証・アカウント
	r.Route("/auth", func(r chi.Router) {
		if deps.RateLimiter != nil {
			r.With(deps.RateLimiter.LoginMiddleware()).Post("/login", authHandler.Login)
		} else {
			r.Post("/login", authHandler.Login)
		}
		r.Post("/signup", authHandler.Signup)
		r.Get("/users/{id}", authHandler.GetIdentity)
	})

	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	return r
}
