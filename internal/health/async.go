package health

import (
	"context"
	"time"
)

// AsyncProbe は同じProbeを別ゴルーチンで実行する。
// 判定ロジックは持たず、結果はすべて委譲先のProbeが生成する。
type AsyncProbe struct {
	probe Probe
}

// NewAsyncProbe はAsyncProbeを生成する。
func NewAsyncProbe(probe Probe) *AsyncProbe {
	return &AsyncProbe{probe: probe}
}

// Start はプローブを開始し、結果を1件だけ受け取れるチャネルを返す。
// 受信側が待たなくてもゴルーチンはリークしない。
func (a *AsyncProbe) Start(ctx context.Context) <-chan Result {
	ch := make(chan Result, 1)
	go func() {
		ch <- a.probe.Check(ctx)
	}()
	return ch
}

// Check は結果を待つ。ctxが先に終了した場合は失敗結果を返す。
func (a *AsyncProbe) Check(ctx context.Context) Result {
	start := time.Now()
	select {
	case r := <-a.Start(ctx):
		return r
	case <-ctx.Done():
		return FailedResult(time.Since(start).Milliseconds(), ctx.Err())
	}
}

var _ Probe = (*AsyncProbe)(nil)
