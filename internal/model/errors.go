package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidation           = "VALIDATION_ERROR"
	ErrCodeUniquenessViolation  = "UNIQUENESS_VIOLATION"
	ErrCodeAuthenticationFailed = "AUTHENTICATION_FAILED"
	ErrCodeConnectivity         = "CONNECTIVITY_ERROR"
	ErrCodePrivilege            = "PRIVILEGE_ERROR"
	ErrCodeIdentityNotFound     = "IDENTITY_NOT_FOUND"
	ErrCodeRateLimited          = "RATE_LIMITED"
)

// ドメインエラーの分類。errors.Isで判定する。
var (
	// ErrValidation は必須入力の欠落や不正な入力を表す。リトライしない。
	ErrValidation = errors.New("validation error")
	// ErrUniquenessViolation はデータストアの一意制約違反を表す。
	ErrUniquenessViolation = errors.New("uniqueness violation")
	// ErrAuthenticationFailed は認証失敗を表す。失敗理由は区別しない。
	ErrAuthenticationFailed = errors.New("authentication failed")
	// ErrConnectivity はデータストアへの到達不能やクエリ失敗を表す。
	ErrConnectivity = errors.New("datastore unavailable")
	// ErrPrivilege は特権identityのフラグ不整合を表す。
	ErrPrivilege = errors.New("privilege error")
	// ErrIdentityNotFound は更新対象のidentityが存在しないことを表す。
	ErrIdentityNotFound = errors.New("identity not found")
)

// ValidationError は入力フィールド単位の検証エラー。
type ValidationError struct {
	Field  string
	Reason string
}

// Error はerrorインターフェースを実装する。
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s %s", e.Field, e.Reason)
}

// Is はErrValidationとの比較を可能にする。
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NewValidationError はValidationErrorを生成する。
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// PrivilegeError は特権identity作成時のフラグ不整合を表す。
// 呼び出し側の入力誤りなのでErrValidationとしても扱える。
type PrivilegeError struct {
	Flag string
}

// Error はerrorインターフェースを実装する。
func (e *PrivilegeError) Error() string {
	return fmt.Sprintf("privilege error: superuser must have %s=true", e.Flag)
}

// Is はErrPrivilegeおよびErrValidationとの比較を可能にする。
func (e *PrivilegeError) Is(target error) bool {
	return target == ErrPrivilege || target == ErrValidation
}

// UniquenessError はどの一意キーで衝突したかを保持する。
type UniquenessError struct {
	Key string // "username" または "email_login_method"
}

// 一意キーの種別
const (
	UniqueKeyUsername         = "username"
	UniqueKeyEmailLoginMethod = "email_login_method"
)

// Error はerrorインターフェースを実装する。
func (e *UniquenessError) Error() string {
	return fmt.Sprintf("uniqueness violation on %s", e.Key)
}

// Is はErrUniquenessViolationとの比較を可能にする。
func (e *UniquenessError) Is(target error) bool {
	return target == ErrUniquenessViolation
}

// IsUsernameConflict はハンドル(username)の衝突かどうかを返す。
func IsUsernameConflict(err error) bool {
	var ue *UniquenessError
	return errors.As(err, &ue) && ue.Key == UniqueKeyUsername
}

// NewValidationAPIError は入力検証エラーのAPIErrorを生成する。
func NewValidationAPIError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  fmt.Sprintf("入力内容が正しくありません: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewUniquenessAPIError は重複登録エラーのAPIErrorを生成する。
func NewUniquenessAPIError() *APIError {
	return &APIError{
		Code:     ErrCodeUniquenessViolation,
		Message:  "このアカウントは既に登録されています。",
		Category: "validation",
		Action:   "別のメールアドレスまたはログイン方式を使用してください。",
	}
}

// NewAuthenticationFailedAPIError は認証失敗のAPIErrorを生成する。
// 失敗理由（存在しない・パスワード誤り・無効化）は区別しない。
func NewAuthenticationFailedAPIError() *APIError {
	return &APIError{
		Code:     ErrCodeAuthenticationFailed,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度お試しください。",
	}
}

// NewConnectivityAPIError はデータストア到達不能のAPIErrorを生成する。
func NewConnectivityAPIError() *APIError {
	return &APIError{
		Code:     ErrCodeConnectivity,
		Message:  "データベースに接続できません。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewPrivilegeAPIError は特権フラグ不整合のAPIErrorを生成する。
func NewPrivilegeAPIError(flag string) *APIError {
	return &APIError{
		Code:     ErrCodePrivilege,
		Message:  fmt.Sprintf("管理者アカウントは %s=true である必要があります。", flag),
		Category: "validation",
		Action:   "is_staff と is_superuser の両方を有効にしてください。",
	}
}

// NewIdentityNotFoundAPIError はidentity未検出のAPIErrorを生成する。
func NewIdentityNotFoundAPIError() *APIError {
	return &APIError{
		Code:     ErrCodeIdentityNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewRateLimitedAPIError はレート制限超過のAPIErrorを生成する。
func NewRateLimitedAPIError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
