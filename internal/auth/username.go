package auth

import (
	"context"
	"strings"

	"github.com/ojeomneo/identitycore/internal/model"
	"github.com/ojeomneo/identitycore/internal/repository"
)

// HandleAuthenticator はusernameとパスワードで認証する。
// メール認証で見つからない既存アカウント向けのフォールバック。
type HandleAuthenticator struct {
	verifier
}

// NewHandleAuthenticator はHandleAuthenticatorを生成する。
func NewHandleAuthenticator(repo repository.IdentityRepository, passwords PasswordChecker) *HandleAuthenticator {
	return &HandleAuthenticator{verifier: verifier{repo: repo, passwords: passwords}}
}

// Name は認証方式の名前を返す。
func (a *HandleAuthenticator) Name() string { return "username" }

// Authenticate はusernameでidentityを検索して検証する。
func (a *HandleAuthenticator) Authenticate(ctx context.Context, username, secret string) (*model.Identity, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return a.verify(ctx, nil, secret)
	}

	identity, err := a.repo.FindByUsername(ctx, username, repository.ExcludeDeleted)
	if err != nil {
		return nil, storeError("failed to find identity by username", err)
	}
	return a.verify(ctx, identity, secret)
}

var _ Authenticator = (*HandleAuthenticator)(nil)
