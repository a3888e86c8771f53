// Package model はドメインモデルを定義する。
package model

import (
	"strings"
	"time"
)

// LoginMethod はidentityが確立された認証チャネルを表す。
type LoginMethod string

const (
	// LoginMethodEmail はメールアドレス+パスワードによるローカル認証。
	LoginMethodEmail LoginMethod = "email"
	// LoginMethodKakao はKakaoによる外部IdP認証。
	LoginMethodKakao LoginMethod = "kakao"
	// LoginMethodGoogle はGoogleによる外部IdP認証。
	LoginMethodGoogle LoginMethod = "google"
	// LoginMethodApple はAppleによる外部IdP認証。
	LoginMethodApple LoginMethod = "apple"
)

// LoginMethods は受け付けるログイン方式の一覧。
var LoginMethods = []LoginMethod{
	LoginMethodEmail,
	LoginMethodKakao,
	LoginMethodGoogle,
	LoginMethodApple,
}

// Valid は既知のログイン方式かどうかを返す。
func (m LoginMethod) Valid() bool {
	for _, known := range LoginMethods {
		if m == known {
			return true
		}
	}
	return false
}

// IsProvider は外部IdP由来のログイン方式かどうかを返す。
func (m LoginMethod) IsProvider() bool {
	return m != LoginMethodEmail
}

// UnusablePasswordPrefix はローカル認証不可を示すパスワード値の接頭辞。
// 外部の書き込みサービスと同じエンコーディングを使う。
const UnusablePasswordPrefix = "!"

// HasCredential はローカル資格情報を保持するレコードの能力。
type HasCredential interface {
	PasswordHash() string
	HasUsablePassword() bool
}

// HasUniquenessKey は(email, login_method)の一意性キーを持つレコードの能力。
type HasUniquenessKey interface {
	UniquenessKey() (email string, method LoginMethod)
}

// Identity は外部サービスが所有するusersテーブルの1行を表す。
// スキーマは外部の書き込みサービスが管理し、本サービスは行の読み書きのみを行う。
type Identity struct {
	ID          int64
	Email       string
	LoginMethod LoginMethod
	Username    string // 全identityで一意な表示用ハンドル
	Password    string // エンコード済みハッシュまたは "!" から始まる使用不可センチネル
	SocialID    string // 外部IdPのsubject ID。ローカル認証の場合は空
	FirstName   string
	LastName    string
	IsActive    bool
	IsStaff     bool
	IsSuperuser bool
	LastLogin   *time.Time
	DateJoined  time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   *time.Time // 外部サービスが設定する論理削除タイムスタンプ
}

// PasswordHash はエンコード済みのパスワード値を返す。
func (i *Identity) PasswordHash() string {
	return i.Password
}

// HasUsablePassword はローカル認証に使えるパスワードが設定されているかを返す。
func (i *Identity) HasUsablePassword() bool {
	return i.Password != "" && !strings.HasPrefix(i.Password, UnusablePasswordPrefix)
}

// UniquenessKey は(email, login_method)の組を返す。
func (i *Identity) UniquenessKey() (string, LoginMethod) {
	return i.Email, i.LoginMethod
}

// IsDeleted は論理削除済みかどうかを返す。
func (i *Identity) IsDeleted() bool {
	return i.DeletedAt != nil
}

// IsSocial は外部IdP由来のidentityかどうかを返す。
func (i *Identity) IsSocial() bool {
	return i.LoginMethod.IsProvider()
}

var (
	_ HasCredential    = (*Identity)(nil)
	_ HasUniquenessKey = (*Identity)(nil)
)
