// Package repository はデータ永続化のインターフェースを定義する。
//
// usersテーブルのスキーマは外部の書き込みサービスが所有する。
// このパッケージはDML（SELECT / INSERT / 対象列を絞ったUPDATE）のみを発行し、
// テーブルの作成や変更は一切行わない。
package repository

import (
	"context"
	"time"

	"github.com/ojeomneo/identitycore/internal/model"
)

// Visibility は論理削除済み行を読み取り結果に含めるかどうかを表す。
// すべての読み取りメソッドで明示的に指定する。
type Visibility int

const (
	// ExcludeDeleted はdeleted_atが設定された行を除外する。
	ExcludeDeleted Visibility = iota
	// IncludeDeleted は論理削除済みの行も含める。
	IncludeDeleted
)

// IdentityRepository は外部所有のusersテーブルに対する読み書きインターフェース。
type IdentityRepository interface {
	// FindByID は指定IDのidentityを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64, vis Visibility) (*model.Identity, error)

	// FindByEmailAndLoginMethod はemailとlogin_methodでidentityを検索する。
	// 一意制約上は最大1件だが、重複行が存在し得るためid昇順のスライスで返す。
	FindByEmailAndLoginMethod(ctx context.Context, email string, method model.LoginMethod, vis Visibility) ([]*model.Identity, error)

	// FindByUsername はusernameでidentityを検索する。見つからない場合はnilを返す。
	FindByUsername(ctx context.Context, username string, vis Visibility) (*model.Identity, error)

	// Create はidentityを1行挿入し、採番されたIDとタイムスタンプを書き戻す。
	// 一意制約違反の場合は*model.UniquenessErrorを返す。
	Create(ctx context.Context, identity *model.Identity) error

	// UpdateLastLogin はlast_login列のみを更新する。
	UpdateLastLogin(ctx context.Context, id int64, at time.Time) error

	// UpdatePassword はpassword列のみを更新する。
	UpdatePassword(ctx context.Context, id int64, encoded string) error

	// CompareAndSwapPassword は現在値がoldと一致する場合のみpassword列を更新する。
	// 外部サービスによる同時更新を上書きしないために使う。更新した場合はtrueを返す。
	CompareAndSwapPassword(ctx context.Context, id int64, old, encoded string) (bool, error)
}
