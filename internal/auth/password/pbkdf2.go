package password

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// DefaultPBKDF2Iterations は管理画面側フレームワークの現行デフォルトに合わせた反復回数。
const DefaultPBKDF2Iterations = 1_000_000

const pbkdf2Algorithm = "pbkdf2_sha256"

// PBKDF2Hasher は "pbkdf2_sha256$<iterations>$<salt>$<base64 hash>" 形式のHasher。
type PBKDF2Hasher struct {
	Iterations int
}

// NewPBKDF2Hasher はPBKDF2Hasherを生成する。iterationsが0以下の場合はデフォルト値を使う。
func NewPBKDF2Hasher(iterations int) *PBKDF2Hasher {
	if iterations <= 0 {
		iterations = DefaultPBKDF2Iterations
	}
	return &PBKDF2Hasher{Iterations: iterations}
}

// Algorithm はアルゴリズム名を返す。
func (h *PBKDF2Hasher) Algorithm() string {
	return pbkdf2Algorithm
}

// Handles はpbkdf2_sha256形式かどうかを返す。
func (h *PBKDF2Hasher) Handles(encoded string) bool {
	return strings.HasPrefix(encoded, pbkdf2Algorithm+"$")
}

// Encode はpasswordをエンコードする。
func (h *PBKDF2Hasher) Encode(password, salt string) (string, error) {
	if salt == "" || strings.Contains(salt, "$") {
		return "", fmt.Errorf("invalid salt")
	}
	return h.encode(password, salt, h.Iterations), nil
}

func (h *PBKDF2Hasher) encode(password, salt string, iterations int) string {
	key := pbkdf2.Key([]byte(password), []byte(salt), iterations, sha256.Size, sha256.New)
	return fmt.Sprintf("%s$%d$%s$%s", pbkdf2Algorithm, iterations, salt, base64.StdEncoding.EncodeToString(key))
}

// Verify はpasswordがエンコード済み値と一致するかを定数時間比較で返す。
func (h *PBKDF2Hasher) Verify(password, encoded string) bool {
	iterations, salt, ok := decodePBKDF2(encoded)
	if !ok {
		return false
	}
	candidate := h.encode(password, salt, iterations)
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(encoded)) == 1
}

// MustUpdate は反復回数が現在の設定と異なる場合にtrueを返す。
func (h *PBKDF2Hasher) MustUpdate(encoded string) bool {
	iterations, _, ok := decodePBKDF2(encoded)
	return ok && iterations != h.Iterations
}

func decodePBKDF2(encoded string) (iterations int, salt string, ok bool) {
	parts := strings.SplitN(encoded, "$", 4)
	if len(parts) != 4 || parts[0] != pbkdf2Algorithm {
		return 0, "", false
	}
	iterations, err := strconv.Atoi(parts[1])
	if err != nil || iterations <= 0 {
		return 0, "", false
	}
	return iterations, parts[2], true
}

var _ Hasher = (*PBKDF2Hasher)(nil)
