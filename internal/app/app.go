package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/ojeomneo/identitycore/internal/account"
	"github.com/ojeomneo/identitycore/internal/auth"
	"github.com/ojeomneo/identitycore/internal/auth/password"
	"github.com/ojeomneo/identitycore/internal/config"
	"github.com/ojeomneo/identitycore/internal/database"
	"github.com/ojeomneo/identitycore/internal/handler"
	"github.com/ojeomneo/identitycore/internal/health"
	"github.com/ojeomneo/identitycore/internal/logger"
	"github.com/ojeomneo/identitycore/internal/metrics"
	"github.com/ojeomneo/identitycore/internal/middleware"
	"github.com/ojeomneo/identitycore/internal/repository"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, *slog.Logger, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	l := logger.SetupDefault(w, logger.Options{Level: slog.LevelInfo})

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定に合わせてロガーを再構成する
	l = logger.SetupDefault(w, logger.Options{
		Level:   logger.ParseLevel(cfg.LogLevel),
		Service: cfg.ServiceName,
		Version: cfg.AppVersion,
	})

	return cfg, l, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	if cmd == CommandHelp {
		PrintUsage(w)
		return nil
	}

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(healthcheckURL(port))
	}

	cfg, l, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	l.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("database", cfg.DBName+"@"+cfg.DBHost+":"+cfg.DBPort),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandCreateSuperuser:
		return runCreateSuperuser(ctx, cfg, superuserFromEnv())
	default:
		return runServe(ctx, cfg, l)
	}
}

// application はHTTPサーバーが依存するコンポーネントをまとめたもの。
type application struct {
	router      http.Handler
	probe       *health.DBProbe
	accounts    *account.Factory
	rateLimiter *middleware.RateLimiter
}

// newApplication はDB接続から全依存関係をワイヤリングする。
// DBへの接続確認は行わない（readinessプローブが担う）。
func newApplication(cfg *config.Config, db *sql.DB, l *slog.Logger) (*application, error) {
	// 1. メトリクス
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(reg)

	// 2. リポジトリとパスワードハッシュ
	repo := repository.NewPostgresIdentityRepo(db, cfg.DBOperationTimeout)
	passwords, err := newPasswordManager(cfg)
	if err != nil {
		return nil, err
	}

	// 3. ドメインサービス
	accounts := account.NewFactory(repo, passwords, collector, account.Config{
		MaxHandleAttempts: cfg.MaxHandleAttempts,
	})
	chain := auth.NewChain(repo, collector,
		auth.NewEmailAuthenticator(repo, passwords, collector),
		auth.NewHandleAuthenticator(repo, passwords),
	)

	// 4. ヘルスチェック。HTTP経路ではブロッキングプローブを非同期ラッパー経由で使う
	probe := health.NewDBProbe(db, health.Target{
		Name: cfg.DBName,
		Host: cfg.DBHost,
		Port: cfg.DBPort,
	}, cfg.ProbeTimeout)
	aggregator := health.NewAggregator(health.NewAsyncProbe(probe), health.ServiceInfo{
		Name:    cfg.ServiceName,
		Version: cfg.AppVersion,
	}, collector)

	// 5. ルーター
	rateLimiter := middleware.NewRateLimiter(middleware.LoginRateLimiterConfig(cfg.RateLimitLogin), collector)
	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            l,
		Metrics:           collector,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		Health:            aggregator,
		Authenticator:     chain,
		Accounts:          accounts,
		MetricsHandler:    metrics.Handler(reg),
	})

	return &application{
		router:      router,
		probe:       probe,
		accounts:    accounts,
		rateLimiter: rateLimiter,
	}, nil
}

// close はバックグラウンドのゴルーチンを停止する。
func (a *application) close() {
	a.rateLimiter.Stop()
}

// newPasswordManager は新規ハッシュにPBKDF2を使い、bcrypt系は検証のみ受け付けるManagerを生成する。
func newPasswordManager(cfg *config.Config) (*password.Manager, error) {
	m, err := password.NewManager(
		password.NewPBKDF2Hasher(cfg.PBKDF2Iterations),
		password.NewBcryptSHA256Hasher(0),
		password.NewBcryptHasher(0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create password manager: %w", err)
	}
	return m, nil
}

func openDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL, database.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// runServe はAPIサーバーモードで起動する。
// 起動時にDBへ到達できなくても終了せず、readinessを503にしたまま待ち受ける。
// ctxがキャンセルされるとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config, l *slog.Logger) error {
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	app, err := newApplication(cfg, db, l)
	if err != nil {
		return err
	}
	defer app.close()

	if r := app.probe.Check(ctx); r.Connected {
		l.Info("database connection established", slog.Int64("latency_ms", r.LatencyMs))
	} else {
		l.Warn("database is not reachable at startup", slog.String("message", r.Message))
	}

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      app.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		l.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	l.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	l.Info("API server stopped gracefully")
	return nil
}

// superuserInput はcreatesuperuserの入力。
type superuserInput struct {
	Email    string
	Password *string
	Username string
}

// superuserFromEnv はSUPERUSER_*環境変数から入力を読み込む。
// SUPERUSER_PASSWORDが空の場合はローカル認証不可の管理者になる。
func superuserFromEnv() superuserInput {
	in := superuserInput{
		Email:    strings.TrimSpace(os.Getenv("SUPERUSER_EMAIL")),
		Username: strings.TrimSpace(os.Getenv("SUPERUSER_USERNAME")),
	}
	if pw := os.Getenv("SUPERUSER_PASSWORD"); pw != "" {
		in.Password = &pw
	}
	return in
}

// runCreateSuperuser は管理者identityを1件作成する。
// 作成前にブロッキングプローブでDBへの到達を確認する。
func runCreateSuperuser(ctx context.Context, cfg *config.Config, in superuserInput) error {
	if in.Email == "" {
		return fmt.Errorf("SUPERUSER_EMAIL is required")
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	app, err := newApplication(cfg, db, slog.Default())
	if err != nil {
		return err
	}
	defer app.close()

	if r := app.probe.Check(ctx); !r.Connected {
		return fmt.Errorf("database is not reachable: %s", r.Message)
	}

	identity, err := app.accounts.CreatePrivilegedIdentity(ctx, in.Email, in.Password, account.ExtraFields{
		Username: in.Username,
	})
	if err != nil {
		return fmt.Errorf("failed to create superuser: %w", err)
	}

	slog.Info("superuser created",
		slog.Int64("identity_id", identity.ID),
		slog.String("username", identity.Username),
	)
	return nil
}

func healthcheckURL(port string) string {
	return fmt.Sprintf("http://localhost:%s/healthcheck/ready", port)
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// readinessエンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(url string) error {
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}
