package password

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// BcryptHasher は書き込みサービスが生成する素のbcryptハッシュ（$2a$, $2b$, $2y$）を検証する。
// 新規エンコードにも使えるが、通常は検証専用として登録する。
type BcryptHasher struct {
	Cost int
}

// NewBcryptHasher はBcryptHasherを生成する。costが0以下の場合はbcrypt.DefaultCostを使う。
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{Cost: cost}
}

// Algorithm はアルゴリズム名を返す。
func (h *BcryptHasher) Algorithm() string {
	return "bcrypt"
}

// Handles は素のbcryptハッシュかどうかを返す。
func (h *BcryptHasher) Handles(encoded string) bool {
	return strings.HasPrefix(encoded, "$2a$") ||
		strings.HasPrefix(encoded, "$2b$") ||
		strings.HasPrefix(encoded, "$2y$")
}

// Encode はpasswordをbcryptでハッシュ化する。bcryptはsaltを内部生成するためsaltは無視する。
func (h *BcryptHasher) Encode(password, _ string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), h.Cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(b), nil
}

// Verify はpasswordがハッシュと一致するかを返す。
func (h *BcryptHasher) Verify(password, encoded string) bool {
	return bcrypt.CompareHashAndPassword([]byte(encoded), []byte(password)) == nil
}

// MustUpdate はcostが現在の設定より低い場合にtrueを返す。
func (h *BcryptHasher) MustUpdate(encoded string) bool {
	cost, err := bcrypt.Cost([]byte(encoded))
	return err == nil && cost < h.Cost
}

// BcryptSHA256Hasher は "bcrypt_sha256$<bcrypt hash>" 形式のHasher。
// 72バイト制限を避けるため、パスワードのSHA-256 hex値をbcryptに渡す。
type BcryptSHA256Hasher struct {
	inner *BcryptHasher
}

// NewBcryptSHA256Hasher はBcryptSHA256Hasherを生成する。
func NewBcryptSHA256Hasher(cost int) *BcryptSHA256Hasher {
	return &BcryptSHA256Hasher{inner: NewBcryptHasher(cost)}
}

const bcryptSHA256Algorithm = "bcrypt_sha256"

// Algorithm はアルゴリズム名を返す。
func (h *BcryptSHA256Hasher) Algorithm() string {
	return bcryptSHA256Algorithm
}

// Handles はbcrypt_sha256形式かどうかを返す。
func (h *BcryptSHA256Hasher) Handles(encoded string) bool {
	return strings.HasPrefix(encoded, bcryptSHA256Algorithm+"$")
}

// Encode はpasswordをエンコードする。
func (h *BcryptSHA256Hasher) Encode(password, salt string) (string, error) {
	inner, err := h.inner.Encode(prehash(password), salt)
	if err != nil {
		return "", err
	}
	return bcryptSHA256Algorithm + "$" + inner, nil
}

// Verify はpasswordがエンコード済み値と一致するかを返す。
func (h *BcryptSHA256Hasher) Verify(password, encoded string) bool {
	inner, ok := strings.CutPrefix(encoded, bcryptSHA256Algorithm+"$")
	if !ok {
		return false
	}
	return h.inner.Verify(prehash(password), inner)
}

// MustUpdate はcostが現在の設定より低い場合にtrueを返す。
func (h *BcryptSHA256Hasher) MustUpdate(encoded string) bool {
	inner, ok := strings.CutPrefix(encoded, bcryptSHA256Algorithm+"$")
	return ok && h.inner.MustUpdate(inner)
}

func prehash(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

var (
	_ Hasher = (*BcryptHasher)(nil)
	_ Hasher = (*BcryptSHA256Hasher)(nil)
)
