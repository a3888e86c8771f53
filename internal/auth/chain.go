package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ojeomneo/identitycore/internal/model"
	"github.com/ojeomneo/identitycore/internal/repository"
)

// Chain は登録順にAuthenticatorを試し、最初に成功した結果を採用する。
// 起動時に1度だけ構築し、参照で受け渡す。
type Chain struct {
	authenticators []Authenticator
	repo           repository.IdentityRepository
	metrics        Metrics
	now            func() time.Time
}

// NewChain はChainを生成する。metricsはnilでもよい。
func NewChain(repo repository.IdentityRepository, metrics Metrics, authenticators ...Authenticator) *Chain {
	return &Chain{
		authenticators: authenticators,
		repo:           repo,
		metrics:        metrics,
		now:            time.Now,
	}
}

// Authenticate は資格情報を検証してidentityを返す。
//
// すべて失敗した場合はmodel.ErrAuthenticationFailedを返す。
// いずれも成功せず、1つ以上がデータストアエラーだった場合はそのエラー（ErrConnectivity）を返す。
// 成功時はlast_loginを更新する（失敗してもログのみ）。
func (c *Chain) Authenticate(ctx context.Context, identifier, secret string) (*model.Identity, error) {
	var storeErr error
	for _, a := range c.authenticators {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		identity, err := a.Authenticate(ctx, identifier, secret)
		if err == nil {
			c.record(a.Name(), ResultSuccess)
			c.touchLastLogin(ctx, identity)
			slog.Info("authentication succeeded",
				slog.String("authenticator", a.Name()),
				slog.Int64("identity_id", identity.ID),
			)
			return identity, nil
		}

		if errors.Is(err, model.ErrConnectivity) {
			c.record(a.Name(), ResultError)
			slog.Error("authenticator failed to reach datastore",
				slog.String("authenticator", a.Name()),
				slog.String("error", err.Error()),
			)
			storeErr = err
			continue
		}
		c.record(a.Name(), ResultFailure)
	}

	if storeErr != nil {
		return nil, storeErr
	}
	return nil, model.ErrAuthenticationFailed
}

// ResolveByID はセッション復元用にIDからidentityを取得する。
// 論理削除済み・無効化済み・存在しない場合はnilを返す。
func (c *Chain) ResolveByID(ctx context.Context, id int64) (*model.Identity, error) {
	identity, err := c.repo.FindByID(ctx, id, repository.ExcludeDeleted)
	if err != nil {
		return nil, storeError("failed to resolve identity", err)
	}
	if identity == nil || !identity.IsActive {
		return nil, nil
	}
	return identity, nil
}

func (c *Chain) touchLastLogin(ctx context.Context, identity *model.Identity) {
	at := c.now()
	if err := c.repo.UpdateLastLogin(ctx, identity.ID, at); err != nil {
		slog.Warn("failed to update last login",
			slog.Int64("identity_id", identity.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	identity.LastLogin = &at
}

func (c *Chain) record(authenticator, result string) {
	if c.metrics != nil {
		c.metrics.RecordAuthAttempt(authenticator, result)
	}
}
