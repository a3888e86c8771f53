// Package auth は資格情報による認証と、認証方式を順に試す認証チェーンを提供する。
//
// 認証失敗は原因（identityが存在しない、パスワード誤り、無効化済み、
// ローカル認証不可）を区別せず、常にmodel.ErrAuthenticationFailedを返す。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ojeomneo/identitycore/internal/model"
	"github.com/ojeomneo/identitycore/internal/repository"
)

// Authenticator は1つの認証方式を表す。
// 成功時はidentityを、失敗時はmodel.ErrAuthenticationFailedまたは
// model.ErrConnectivityにマッチするエラーを返す。
type Authenticator interface {
	Name() string
	Authenticate(ctx context.Context, identifier, secret string) (*model.Identity, error)
}

// PasswordChecker はpassword列の検証を行う。password.Managerが実装する。
type PasswordChecker interface {
	Check(password, encoded string) (ok bool, mustUpdate bool)
	DummyCheck(password string)
	Make(password *string) (string, error)
}

// Metrics は認証に関するメトリクスの記録先。
type Metrics interface {
	RecordAuthAttempt(authenticator, result string)
	RecordDuplicateIdentity()
}

// 認証試行の結果ラベル
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultError   = "error"
)

// verifier は各Authenticatorで共通の資格情報検証を行う。
type verifier struct {
	repo      repository.IdentityRepository
	passwords PasswordChecker
}

// verify はidentityに対してsecretを検証する。
// identityがnilの場合もダミー照合を1回実行してから失敗を返す。
func (v *verifier) verify(ctx context.Context, identity *model.Identity, secret string) (*model.Identity, error) {
	if identity == nil {
		v.passwords.DummyCheck(secret)
		return nil, model.ErrAuthenticationFailed
	}

	ok, mustUpdate := v.passwords.Check(secret, identity.Password)
	if !ok || !identity.IsActive {
		return nil, model.ErrAuthenticationFailed
	}

	if mustUpdate {
		v.upgradeHash(ctx, identity, secret)
	}
	return identity, nil
}

// upgradeHash は現在のパラメータでpasswordを再エンコードする。
// 外部サービスが同時に書き換えていた場合は上書きしない。失敗しても認証結果には影響しない。
func (v *verifier) upgradeHash(ctx context.Context, identity *model.Identity, secret string) {
	encoded, err := v.passwords.Make(&secret)
	if err != nil {
		slog.Warn("failed to re-encode password", slog.Int64("identity_id", identity.ID), slog.String("error", err.Error()))
		return
	}

	swapped, err := v.repo.CompareAndSwapPassword(ctx, identity.ID, identity.Password, encoded)
	if err != nil {
		slog.Warn("failed to upgrade password hash", slog.Int64("identity_id", identity.ID), slog.String("error", err.Error()))
		return
	}
	if !swapped {
		slog.Info("password changed concurrently, hash upgrade skipped", slog.Int64("identity_id", identity.ID))
		return
	}
	identity.Password = encoded
}

// storeError はリポジトリのエラーをErrConnectivityとして扱えるようにする。
func storeError(msg string, err error) error {
	if errors.Is(err, model.ErrConnectivity) {
		return fmt.Errorf("%s: %w", msg, err)
	}
	return fmt.Errorf("%s: %w: %w", msg, model.ErrConnectivity, err)
}
