package repository

import (
	"errors"
	"strings"

	"github.com/lib/pq"

	"github.com/ojeomneo/identitycore/internal/model"
)

// uniqueViolation はPostgreSQLの一意制約違反コード。
const uniqueViolation pq.ErrorCode = "23505"

// classifyUniqueViolation は一意制約違反を*model.UniquenessErrorに変換する。
// 一意制約違反でない場合はnilを返す。
//
// 制約名は外部サービスのマイグレーションが決めるため、
// 名前・詳細メッセージのどちらかに列名が含まれるかで判定する。
func classifyUniqueViolation(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != uniqueViolation {
		return nil
	}

	constraint := strings.ToLower(pqErr.Constraint)
	detail := strings.ToLower(pqErr.Detail)

	switch {
	case strings.Contains(constraint, "username") || strings.Contains(detail, "(username)"):
		return &model.UniquenessError{Key: model.UniqueKeyUsername}
	default:
		// idx_unique_email_login_method など
		return &model.UniquenessError{Key: model.UniqueKeyEmailLoginMethod}
	}
}
