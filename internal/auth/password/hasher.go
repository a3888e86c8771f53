// Package password はusersテーブルのpassword列のエンコード・検証を提供する。
//
// 列の値は外部の書き込みサービスと共有するため、
// "<algorithm>$<params>$<salt>$<hash>" 形式（Django互換）と
// 書き込みサービスが生成する素のbcryptハッシュの両方を検証できる。
package password

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/ojeomneo/identitycore/internal/model"
)

// Hasher は1つのハッシュアルゴリズムを表す。
type Hasher interface {
	// Algorithm はエンコード済み値の先頭に付くアルゴリズム名を返す。
	Algorithm() string
	// Encode はpasswordとsaltからエンコード済み値を生成する。
	Encode(password, salt string) (string, error)
	// Verify はpasswordがエンコード済み値と一致するかを返す。
	Verify(password, encoded string) bool
	// MustUpdate はエンコード済み値を現在のパラメータで再生成すべきかを返す。
	MustUpdate(encoded string) bool
	// Handles はエンコード済み値がこのHasherの形式かどうかを返す。
	Handles(encoded string) bool
}

const (
	saltLength           = 22
	unusableSuffixLength = 40
	saltAlphabet         = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// decoyPassword はidentityが存在しない場合の照合に使う固定値。
const decoyPassword = "decoy-password-for-timing-equalization"

// Manager は優先Hasherでのエンコードと、登録済みHasherでの検証を行う。
type Manager struct {
	preferred Hasher
	hashers   []Hasher
	decoy     string
}

// NewManager はManagerを生成する。先頭のHasherが新規エンコードに使われる。
// 生成時にタイミング攻撃対策用のダミーハッシュを1回計算する。
func NewManager(preferred Hasher, others ...Hasher) (*Manager, error) {
	if preferred == nil {
		return nil, fmt.Errorf("preferred hasher is required")
	}

	m := &Manager{
		preferred: preferred,
		hashers:   append([]Hasher{preferred}, others...),
	}

	salt, err := randomString(saltLength)
	if err != nil {
		return nil, fmt.Errorf("failed to generate decoy salt: %w", err)
	}
	decoy, err := preferred.Encode(decoyPassword, salt)
	if err != nil {
		return nil, fmt.Errorf("failed to compute decoy hash: %w", err)
	}
	m.decoy = decoy

	return m, nil
}

// Make はpasswordをエンコードする。nilまたは空文字列の場合は使用不可センチネルを返す。
func (m *Manager) Make(password *string) (string, error) {
	if password == nil || *password == "" {
		suffix, err := randomString(unusableSuffixLength)
		if err != nil {
			return "", fmt.Errorf("failed to generate unusable password: %w", err)
		}
		return model.UnusablePasswordPrefix + suffix, nil
	}

	salt, err := randomString(saltLength)
	if err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	return m.preferred.Encode(*password, salt)
}

// Check はpasswordがエンコード済み値と一致するかを返す。
// mustUpdateは一致した上で優先Hasherによる再エンコードが必要な場合にtrueになる。
//
// 使用不可センチネルや未知の形式の場合もダミー照合を1回実行し、
// 実行時間から原因を推測できないようにする。
func (m *Manager) Check(password, encoded string) (ok bool, mustUpdate bool) {
	if encoded == "" || strings.HasPrefix(encoded, model.UnusablePasswordPrefix) {
		m.DummyCheck(password)
		return false, false
	}

	for _, h := range m.hashers {
		if !h.Handles(encoded) {
			continue
		}
		if !h.Verify(password, encoded) {
			return false, false
		}
		if h != m.preferred {
			// 書き込みサービスが自前で生成した形式は書き換えない
			return true, false
		}
		return true, h.MustUpdate(encoded)
	}

	m.DummyCheck(password)
	return false, false
}

// DummyCheck はダミーハッシュに対して照合を1回実行する。結果は常に破棄される。
func (m *Manager) DummyCheck(password string) {
	_ = m.preferred.Verify(password, m.decoy)
}

// IsUsable はエンコード済み値がローカル認証に使えるかを返す。
func IsUsable(encoded string) bool {
	return encoded != "" && !strings.HasPrefix(encoded, model.UnusablePasswordPrefix)
}

func randomString(n int) (string, error) {
	max := big.NewInt(int64(len(saltAlphabet)))
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = saltAlphabet[idx.Int64()]
	}
	return string(b), nil
}
