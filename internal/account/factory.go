// Package account はidentityの作成（アカウントファクトリ）を提供する。
package account

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"

	"github.com/ojeomneo/identitycore/internal/model"
	"github.com/ojeomneo/identitycore/internal/repository"
)

// DefaultMaxHandleAttempts はusername衝突時の最大試行回数。
const DefaultMaxHandleAttempts = 5

// PasswordEncoder はパスワードのエンコードを行うインターフェース。
// nilを渡した場合は使用不可センチネルを返す。
type PasswordEncoder interface {
	Make(password *string) (string, error)
}

// MetricsRecorder はアカウント作成に関するメトリクスの記録先。
type MetricsRecorder interface {
	RecordIdentityCreated(method string)
	RecordHandleCollision()
}

// ExtraFields はidentity作成時の任意項目。
// ポインタ型のフラグはnilの場合デフォルト値を使う。
type ExtraFields struct {
	Username    string
	SocialID    string
	FirstName   string
	LastName    string
	IsActive    *bool
	IsStaff     *bool
	IsSuperuser *bool
}

// Config はFactoryの設定。
type Config struct {
	MaxHandleAttempts int
}

// createInput は入力検証用の構造体。
type createInput struct {
	Email       string `validate:"required,email,max=254"`
	LoginMethod string `validate:"required,oneof=email kakao google apple"`
	Username    string `validate:"omitempty,max=150"`
	SocialID    string `validate:"max=255"`
	FirstName   string `validate:"max=150"`
	LastName    string `validate:"max=150"`
}

// Factory はidentityの検証・ハンドル導出・資格情報設定・永続化を行う。
type Factory struct {
	repo      repository.IdentityRepository
	passwords PasswordEncoder
	metrics   MetricsRecorder
	validate  *validator.Validate
	policy    *bluemonday.Policy
	config    Config
}

// NewFactory はFactoryを生成する。metricsはnilでもよい。
func NewFactory(repo repository.IdentityRepository, passwords PasswordEncoder, metrics MetricsRecorder, config Config) *Factory {
	if config.MaxHandleAttempts <= 0 {
		config.MaxHandleAttempts = DefaultMaxHandleAttempts
	}
	return &Factory{
		repo:      repo,
		passwords: passwords,
		metrics:   metrics,
		validate:  validator.New(),
		policy:    bluemonday.StrictPolicy(),
		config:    config,
	}
}

// CreateIdentity はidentityを1件作成する。
//
// usernameが未指定の場合は導出し、データストアがusernameの一意制約違反を返した場合は
// 新しいランダム接尾辞で最大MaxHandleAttempts回まで再試行する。
// secretがnilまたは空文字列の場合はローカル認証不可のidentityになる。
func (f *Factory) CreateIdentity(ctx context.Context, email string, secret *string, method model.LoginMethod, extra ExtraFields) (*model.Identity, error) {
	if strings.TrimSpace(email) == "" {
		return nil, model.NewValidationError("email", "is required")
	}
	if method == "" {
		method = model.LoginMethodEmail
	}

	normalized, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}

	extra.FirstName = f.sanitize(extra.FirstName)
	extra.LastName = f.sanitize(extra.LastName)
	extra.Username = strings.TrimSpace(extra.Username)
	extra.SocialID = strings.TrimSpace(extra.SocialID)

	if err := f.validateInput(normalized, method, extra); err != nil {
		return nil, err
	}

	// 一意制約はデータストアが最終的に保証するが、
	// 論理削除済みの行も制約の対象になるため含めて事前確認する
	existing, err := f.repo.FindByEmailAndLoginMethod(ctx, normalized, method, repository.IncludeDeleted)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing identity: %w", err)
	}
	if len(existing) > 0 {
		return nil, &model.UniquenessError{Key: model.UniqueKeyEmailLoginMethod}
	}

	encoded, err := f.passwords.Make(presentSecret(secret))
	if err != nil {
		return nil, fmt.Errorf("failed to encode password: %w", err)
	}

	identity := &model.Identity{
		Email:       normalized,
		LoginMethod: method,
		Password:    encoded,
		SocialID:    extra.SocialID,
		FirstName:   extra.FirstName,
		LastName:    extra.LastName,
		IsActive:    boolOr(extra.IsActive, true),
		IsStaff:     boolOr(extra.IsStaff, false),
		IsSuperuser: boolOr(extra.IsSuperuser, false),
	}

	derived := extra.Username == ""
	for attempt := 0; attempt < f.config.MaxHandleAttempts; attempt++ {
		if derived {
			identity.Username = DeriveUsername(normalized, method, extra.SocialID, attempt)
		} else {
			identity.Username = extra.Username
		}

		err = f.repo.Create(ctx, identity)
		if err == nil {
			break
		}
		if !derived || !model.IsUsernameConflict(err) {
			return nil, err
		}

		f.recordHandleCollision()
		slog.Warn("username collision, retrying with a new suffix",
			slog.String("username", identity.Username),
			slog.Int("attempt", attempt+1),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("username retry budget exhausted after %d attempts: %w", f.config.MaxHandleAttempts, err)
	}

	if f.metrics != nil {
		f.metrics.RecordIdentityCreated(string(method))
	}
	slog.Info("identity created",
		slog.Int64("identity_id", identity.ID),
		slog.String("username", identity.Username),
		slog.String("login_method", string(method)),
	)

	return identity, nil
}

// CreatePrivilegedIdentity はローカル認証の管理者identityを作成する。
// is_staffとis_superuserは同時にtrueでなければならず、
// 明示的にfalseが渡された場合は降格せずに*model.PrivilegeErrorを返す。
func (f *Factory) CreatePrivilegedIdentity(ctx context.Context, email string, secret *string, extra ExtraFields) (*model.Identity, error) {
	if extra.IsStaff != nil && !*extra.IsStaff {
		return nil, &model.PrivilegeError{Flag: "is_staff"}
	}
	if extra.IsSuperuser != nil && !*extra.IsSuperuser {
		return nil, &model.PrivilegeError{Flag: "is_superuser"}
	}

	yes := true
	extra.IsStaff = &yes
	extra.IsSuperuser = &yes
	if extra.IsActive == nil {
		extra.IsActive = &yes
	}

	return f.CreateIdentity(ctx, email, secret, model.LoginMethodEmail, extra)
}

// SetPassword はpassword列のみを更新する。secretがnilまたは空の場合はローカル認証不可にする。
func (f *Factory) SetPassword(ctx context.Context, id int64, secret *string) error {
	encoded, err := f.passwords.Make(presentSecret(secret))
	if err != nil {
		return fmt.Errorf("failed to encode password: %w", err)
	}
	if err := f.repo.UpdatePassword(ctx, id, encoded); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	return nil
}

// presentSecret は空文字列のsecretを未指定として扱う。
func presentSecret(secret *string) *string {
	if secret == nil || *secret == "" {
		return nil
	}
	return secret
}

func (f *Factory) validateInput(email string, method model.LoginMethod, extra ExtraFields) error {
	in := createInput{
		Email:       email,
		LoginMethod: string(method),
		Username:    extra.Username,
		SocialID:    extra.SocialID,
		FirstName:   extra.FirstName,
		LastName:    extra.LastName,
	}

	err := f.validate.Struct(in)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return model.NewValidationError(toColumnName(fe.Field()), "failed on "+fe.Tag())
	}
	return fmt.Errorf("%w: %w", model.ErrValidation, err)
}

// sanitize は表示名からHTMLを取り除く。
func (f *Factory) sanitize(s string) string {
	return strings.TrimSpace(html.UnescapeString(f.policy.Sanitize(s)))
}

func (f *Factory) recordHandleCollision() {
	if f.metrics != nil {
		f.metrics.RecordHandleCollision()
	}
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

func toColumnName(field string) string {
	switch field {
	case "LoginMethod":
		return "login_method"
	case "SocialID":
		return "social_id"
	case "FirstName":
		return "first_name"
	case "LastName":
		return "last_name"
	default:
		return strings.ToLower(field)
	}
}
