package account

import (
	"strings"

	"golang.org/x/net/idna"

	"github.com/ojeomneo/identitycore/internal/model"
)

// NormalizeEmail はメールアドレスを正規化する。
// ドメイン部のみ小文字化し、ローカル部は大文字小文字を保持する。
// ドメイン部はIDNAの規則で検証するが、保存する値はUnicode表記のまま。
func NormalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", model.NewValidationError("email", "is required")
	}

	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return "", model.NewValidationError("email", "must contain a local part and a domain")
	}

	local, domain := email[:at], strings.ToLower(email[at+1:])
	if _, err := idna.Lookup.ToASCII(domain); err != nil {
		return "", model.NewValidationError("email", "has an invalid domain")
	}

	return local + "@" + domain, nil
}

// localPart はメールアドレスの@より前の部分を返す。
func localPart(email string) string {
	if at := strings.LastIndex(email, "@"); at >= 0 {
		return email[:at]
	}
	return email
}
