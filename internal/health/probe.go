// Package health はデータベース接続プローブと、
// liveness/readiness/診断の各ヘルスチェックの集約を提供する。
package health

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// DefaultTimeout はプローブ1回あたりの上限時間。
const DefaultTimeout = 10 * time.Second

// Result はプローブ1回分の結果。
type Result struct {
	Connected bool
	LatencyMs int64
	Message   string
}

// Probe はデータストアへの接続確認を行う。
// Checkはエラーを返さず、失敗も結果として表現する。
type Probe interface {
	Check(ctx context.Context) Result
}

// DB はDBProbeが使う接続。*sql.DBが実装する。
type DB interface {
	PingContext(ctx context.Context) error
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Target はメッセージに表示する接続先。
type Target struct {
	Name string
	Host string
	Port string
}

// String は "name@host:port" 形式で返す。
func (t Target) String() string {
	return fmt.Sprintf("%s@%s:%s", t.Name, t.Host, t.Port)
}

// DBProbe は接続確認とSELECT 1でデータベースの疎通を確認する。
type DBProbe struct {
	db      DB
	target  Target
	timeout time.Duration
}

// NewDBProbe はDBProbeを生成する。timeoutが0以下の場合はDefaultTimeoutを使う。
func NewDBProbe(db DB, target Target, timeout time.Duration) *DBProbe {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &DBProbe{db: db, target: target, timeout: timeout}
}

// Check はデータベースの疎通を確認する。
func (p *DBProbe) Check(ctx context.Context) (result Result) {
	if p.db == nil {
		return FailedResult(0, errors.New("database not configured"))
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("Unexpected database error: %v", r)
			slog.Error(msg)
			result = Result{Connected: false, LatencyMs: time.Since(start).Milliseconds(), Message: msg}
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := p.db.PingContext(ctx)
	if err == nil {
		_, err = p.db.ExecContext(ctx, "SELECT 1")
	}
	latency := time.Since(start).Milliseconds()

	if err != nil {
		result = FailedResult(latency, err)
		slog.Error(result.Message, slog.Int64("latency_ms", latency))
		return result
	}

	return Result{
		Connected: true,
		LatencyMs: latency,
		Message:   "Database connection successful: " + p.target.String(),
	}
}

// FailedResult は接続失敗の結果を生成する。
func FailedResult(latencyMs int64, err error) Result {
	return Result{
		Connected: false,
		LatencyMs: latencyMs,
		Message:   "Database connection failed: " + err.Error(),
	}
}

var _ Probe = (*DBProbe)(nil)
