package account

import (
	"encoding/hex"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/ojeomneo/identitycore/internal/model"
)

// MaxUsernameLength はusername列の最大長。
const MaxUsernameLength = 150

const suffixLength = 8

// randomSuffix はUUIDv4から8桁のhex文字列を取り出す。衝突回避のためだけに使う。
var randomSuffix = func() string {
	u := uuid.New()
	return hex.EncodeToString(u[:])[:suffixLength]
}

// DeriveUsername はusername未指定時のハンドルを導出する。
//
//   - ローカル認証: {メールのローカル部}_{hex8}
//   - 外部IdP: social_idがあれば {provider}_{social_id}、なければ {provider}_{hex8}
//
// attemptが1以上の場合は直前の候補が衝突したことを意味し、
// social_id由来のハンドルにもランダムな接尾辞を付けて再生成する。
func DeriveUsername(email string, method model.LoginMethod, socialID string, attempt int) string {
	if method == model.LoginMethodEmail {
		return withSuffix(localPart(email), randomSuffix())
	}

	if socialID == "" {
		return withSuffix(string(method), randomSuffix())
	}

	base := string(method) + "_" + socialID
	if attempt == 0 {
		return truncate(base, MaxUsernameLength)
	}
	return withSuffix(base, randomSuffix())
}

// withSuffix は長さ上限を守るようにbaseを切り詰めてから接尾辞を付ける。
func withSuffix(base, suffix string) string {
	return truncate(base, MaxUsernameLength-len(suffix)-1) + "_" + suffix
}

// truncate はrune境界を壊さずに最大nバイトへ切り詰める。
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	s = s[:n]
	for len(s) > 0 && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}
