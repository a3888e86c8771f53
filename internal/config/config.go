package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultConnectTimeoutSeconds はDSNにconnect_timeoutが無い場合に付与する値。
const DefaultConnectTimeoutSeconds = 10

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL        string
	DBName             string
	DBHost             string
	DBPort             string
	DBMaxOpenConns     int
	DBMaxIdleConns     int
	DBConnMaxLifetime  time.Duration
	DBOperationTimeout time.Duration

	// Health
	ProbeTimeout time.Duration

	// Service
	ServiceName string
	AppVersion  string
	ServerPort  string
	LogLevel    string

	// CORS（管理画面フロントエンドのオリジン。空なら無効）
	CORSAllowedOrigin string

	// Account / Auth
	PBKDF2Iterations  int
	MaxHandleAttempts int

	// Rate Limit
	RateLimitLogin int // req/min/IP
}

// Load は環境変数からConfigを読み込む。
// DATABASE_URLが未設定の場合はPOSTGRES_*から接続URLを組み立てる。
// 必須環境変数が未設定の場合はまとめてエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	var missing []string

	rawURL := os.Getenv("DATABASE_URL")
	if rawURL == "" {
		password := os.Getenv("POSTGRES_PASSWORD")
		if password == "" {
			missing = append(missing, "DATABASE_URL or POSTGRES_PASSWORD")
		}
		rawURL = buildDatabaseURL(
			getEnvString("POSTGRES_USER", "ojeomneo"),
			password,
			getEnvString("POSTGRES_SERVER", "localhost"),
			getEnvString("POSTGRES_PORT", "5432"),
			getEnvString("POSTGRES_DB", "ojeomneo"),
			getEnvString("POSTGRES_SSLMODE", "disable"),
		)
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	dsn, err := WithConnectTimeout(rawURL, DefaultConnectTimeoutSeconds)
	if err != nil {
		return nil, fmt.Errorf("invalid DATABASE_URL: %w", err)
	}
	cfg.DatabaseURL = dsn
	cfg.DBName, cfg.DBHost, cfg.DBPort = describeTarget(dsn)

	// Optional fields with defaults
	cfg.DBMaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", 10)
	cfg.DBMaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", 5)
	cfg.DBConnMaxLifetime = getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute)
	cfg.DBOperationTimeout = getEnvDuration("DB_OPERATION_TIMEOUT", 10*time.Second)
	cfg.ProbeTimeout = getEnvDuration("PROBE_TIMEOUT", 5*time.Second)
	cfg.ServiceName = getEnvString("SERVICE_NAME", "ojeomneo-admin")
	cfg.AppVersion = getEnvString("APP_VERSION", "1.0.1")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.CORSAllowedOrigin = os.Getenv("CORS_ALLOWED_ORIGIN")
	cfg.PBKDF2Iterations = getEnvInt("PBKDF2_ITERATIONS", 1_000_000)
	cfg.MaxHandleAttempts = getEnvInt("MAX_HANDLE_ATTEMPTS", 5)
	cfg.RateLimitLogin = getEnvInt("RATE_LIMIT_LOGIN", 10)

	// 上限10秒
	if cfg.ProbeTimeout > 10*time.Second {
		cfg.ProbeTimeout = 10 * time.Second
	}
	if cfg.DBOperationTimeout > 10*time.Second {
		cfg.DBOperationTimeout = 10 * time.Second
	}

	return cfg, nil
}

func buildDatabaseURL(user, password, host, port, name, sslmode string) string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(user, password),
		Host:     net.JoinHostPort(host, port),
		Path:     "/" + name,
		RawQuery: url.Values{"sslmode": []string{sslmode}}.Encode(),
	}
	return u.String()
}

// WithConnectTimeout はDSNにconnect_timeoutが無ければ付与する。
// URL形式とkey=value形式の両方に対応する。
func WithConnectTimeout(dsn string, seconds int) (string, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", err
		}
		q := u.Query()
		if q.Get("connect_timeout") == "" {
			q.Set("connect_timeout", strconv.Itoa(seconds))
			u.RawQuery = q.Encode()
		}
		return u.String(), nil
	}

	if strings.Contains(dsn, "connect_timeout=") {
		return dsn, nil
	}
	return strings.TrimSpace(dsn + " connect_timeout=" + strconv.Itoa(seconds)), nil
}

// describeTarget はヘルスチェックのメッセージ用にDB名・ホスト・ポートを取り出す。
func describeTarget(dsn string) (name, host, port string) {
	name, host, port = "unknown", "localhost", "5432"

	u, err := url.Parse(dsn)
	if err != nil || u.Host == "" {
		return name, host, port
	}
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		name = p
	}
	if h := u.Hostname(); h != "" {
		host = h
	}
	if p := u.Port(); p != "" {
		port = p
	}
	return name, host, port
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
