package password

import (
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

// テストでは反復回数を下げて実行時間を抑える。
const testIterations = 1000

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(NewPBKDF2Hasher(testIterations), NewBcryptSHA256Hasher(bcrypt.MinCost), NewBcryptHasher(bcrypt.MinCost))
	if err != nil {
		t.Fatalf("NewManager returned error: %v", err)
	}
	return m
}

func strPtr(s string) *string { return &s }

// 既知のPBKDF2-HMAC-SHA256テストベクタ（P="password", S="salt", c=1）と一致することを検証する。
func TestPBKDF2Hasher_KnownVector(t *testing.T) {
	h := NewPBKDF2Hasher(1)

	encoded, err := h.Encode("password", "salt")
	if err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}

	want := "pbkdf2_sha256$1$salt$Eg+2z/z4syxD5yJSVsT4N6hlSMkszDVICAWYfLcL4Xs="
	if encoded != want {
		t.Errorf("Encode() = %q, want %q", encoded, want)
	}
}

// 保存済みの反復回数で検証され、設定値と異なる場合は再エンコード対象になることを検証する。
func TestPBKDF2Hasher_VerifiesStoredIterations(t *testing.T) {
	h := NewPBKDF2Hasher(testIterations)
	stored := "pbkdf2_sha256$2$salt$rk0Mla9rRtMtCt/5KPBt0CowP47zwlHf1uLYWpVHTEM="

	if !h.Verify("password", stored) {
		t.Error("expected stored hash to verify")
	}
	if h.Verify("wrong", stored) {
		t.Error("expected wrong password to fail")
	}
	if !h.MustUpdate(stored) {
		t.Error("expected MustUpdate for outdated iterations")
	}
}

func TestPBKDF2Hasher_RejectsMalformed(t *testing.T) {
	h := NewPBKDF2Hasher(testIterations)

	for _, encoded := range []string{
		"pbkdf2_sha256$abc$salt$hash",
		"pbkdf2_sha256$salt",
		"md5$1$salt$hash",
	} {
		if h.Verify("password", encoded) {
			t.Errorf("Verify(%q) = true, want false", encoded)
		}
	}

	if _, err := h.Encode("password", "sa$lt"); err == nil {
		t.Error("expected error for salt containing separator")
	}
}

func TestManager_MakeAndCheck(t *testing.T) {
	m := newTestManager(t)

	encoded, err := m.Make(strPtr("p1"))
	if err != nil {
		t.Fatalf("Make returned error: %v", err)
	}
	if !strings.HasPrefix(encoded, "pbkdf2_sha256$1000$") {
		t.Errorf("encoded = %q, want pbkdf2_sha256 prefix", encoded)
	}

	ok, mustUpdate := m.Check("p1", encoded)
	if !ok {
		t.Error("expected correct password to verify")
	}
	if mustUpdate {
		t.Error("did not expect MustUpdate for fresh hash")
	}

	if ok, _ := m.Check("wrong", encoded); ok {
		t.Error("expected wrong password to fail")
	}
}

func TestManager_MakeSaltsEachHash(t *testing.T) {
	m := newTestManager(t)

	a, _ := m.Make(strPtr("same"))
	b, _ := m.Make(strPtr("same"))
	if a == b {
		t.Error("expected distinct encodings for the same password")
	}
}

func TestManager_UnusablePassword(t *testing.T) {
	m := newTestManager(t)

	encoded, err := m.Make(nil)
	if err != nil {
		t.Fatalf("Make returned error: %v", err)
	}
	if IsUsable(encoded) {
		t.Errorf("expected unusable sentinel, got %q", encoded)
	}
	if len(encoded) != 1+unusableSuffixLength {
		t.Errorf("len(encoded) = %d, want %d", len(encoded), 1+unusableSuffixLength)
	}

	if ok, _ := m.Check("", encoded); ok {
		t.Error("expected unusable password to never verify")
	}
	if ok, _ := m.Check(encoded, encoded); ok {
		t.Error("expected unusable password to never verify, even against itself")
	}
}

func TestManager_EmptyPasswordIsUnusable(t *testing.T) {
	m := newTestManager(t)

	encoded, err := m.Make(strPtr(""))
	if err != nil {
		t.Fatalf("Make returned error: %v", err)
	}
	if IsUsable(encoded) {
		t.Errorf("expected unusable sentinel for empty password, got %q", encoded)
	}
	if ok, _ := m.Check("", encoded); ok {
		t.Error("expected empty password to never verify")
	}
}

// 書き込みサービスが生成した素のbcryptハッシュは検証できるが、書き換え対象にはしない。
func TestManager_ForeignBcryptHash_VerifiedButNotUpgraded(t *testing.T) {
	m := newTestManager(t)

	raw, err := bcrypt.GenerateFromPassword([]byte("p1"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt returned error: %v", err)
	}

	ok, mustUpdate := m.Check("p1", string(raw))
	if !ok {
		t.Error("expected bcrypt hash to verify")
	}
	if mustUpdate {
		t.Error("did not expect upgrade of writer-owned hash format")
	}
}

func TestManager_BcryptSHA256Hash(t *testing.T) {
	m := newTestManager(t)
	h := NewBcryptSHA256Hasher(bcrypt.MinCost)

	encoded, err := h.Encode(strings.Repeat("x", 100), "")
	if err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}

	if ok, _ := m.Check(strings.Repeat("x", 100), encoded); !ok {
		t.Error("expected long password to verify")
	}
	// 72バイトを超える部分の差異も検出できる
	if ok, _ := m.Check(strings.Repeat("x", 99)+"y", encoded); ok {
		t.Error("expected difference beyond 72 bytes to be detected")
	}
}

func TestManager_UnknownAlgorithm(t *testing.T) {
	m := newTestManager(t)

	if ok, _ := m.Check("p1", "argon2$v=19$m=102400$salt$hash"); ok {
		t.Error("expected unknown algorithm to fail")
	}
}

func TestNewManager_RequiresPreferred(t *testing.T) {
	if _, err := NewManager(nil); err == nil {
		t.Error("expected error without preferred hasher")
	}
}
