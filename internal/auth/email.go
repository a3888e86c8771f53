package auth

import (
	"context"
	"log/slog"

	"github.com/ojeomneo/identitycore/internal/account"
	"github.com/ojeomneo/identitycore/internal/model"
	"github.com/ojeomneo/identitycore/internal/repository"
)

// EmailAuthenticator はメールアドレスとパスワードでローカル認証を行う。
type EmailAuthenticator struct {
	verifier
	metrics Metrics
}

// NewEmailAuthenticator はEmailAuthenticatorを生成する。metricsはnilでもよい。
func NewEmailAuthenticator(repo repository.IdentityRepository, passwords PasswordChecker, metrics Metrics) *EmailAuthenticator {
	return &EmailAuthenticator{
		verifier: verifier{repo: repo, passwords: passwords},
		metrics:  metrics,
	}
}

// Name は認証方式の名前を返す。
func (a *EmailAuthenticator) Name() string { return "email" }

// Authenticate は(email, login_method=email)でidentityを検索して検証する。
//
// 同一キーの行が複数見つかった場合は最小IDの行を使う。
// 本来は一意制約で起こり得ない状態なので警告ログとメトリクスで検知できるようにする。
func (a *EmailAuthenticator) Authenticate(ctx context.Context, email, secret string) (*model.Identity, error) {
	normalized, err := account.NormalizeEmail(email)
	if err != nil {
		return a.verify(ctx, nil, secret)
	}

	rows, err := a.repo.FindByEmailAndLoginMethod(ctx, normalized, model.LoginMethodEmail, repository.ExcludeDeleted)
	if err != nil {
		return nil, storeError("failed to find identity by email", err)
	}

	var identity *model.Identity
	if len(rows) > 0 {
		identity = rows[0]
		for _, row := range rows[1:] {
			if row.ID < identity.ID {
				identity = row
			}
		}
	}
	if len(rows) > 1 {
		slog.Warn("duplicate identities for email and login method",
			slog.Int("count", len(rows)),
			slog.Int64("selected_identity_id", identity.ID),
			slog.String("login_method", string(model.LoginMethodEmail)),
		)
		if a.metrics != nil {
			a.metrics.RecordDuplicateIdentity()
		}
	}

	return a.verify(ctx, identity, secret)
}

var _ Authenticator = (*EmailAuthenticator)(nil)
