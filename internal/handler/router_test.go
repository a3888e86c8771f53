package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ojeomneo/identitycore/internal/account"
	"github.com/ojeomneo/identitycore/internal/auth"
	"github.com/ojeomneo/identitycore/internal/auth/password"
	"github.com/ojeomneo/identitycore/internal/health"
	"github.com/ojeomneo/identitycore/internal/metrics"
	"github.com/ojeomneo/identitycore/internal/middleware"
	"github.com/ojeomneo/identitycore/internal/model"
	"github.com/ojeomneo/identitycore/internal/repository/repositorytest"
)

type mockHealthReporter struct {
	connected bool
}

func (m *mockHealthReporter) Liveness() health.LivenessReport {
	return health.LivenessReport{Status: health.StatusOK, Service: "ojeomneo-admin"}
}

func (m *mockHealthReporter) Readiness(ctx context.Context) health.ReadinessReport {
	if !m.connected {
		return health.ReadinessReport{Status: health.StatusNotReady}
	}
	return health.ReadinessReport{Status: health.StatusOK, Ready: true, Database: true}
}

func (m *mockHealthReporter) Diagnostic(ctx context.Context) health.DiagnosticReport {
	status := health.StatusOK
	msg := "Database connection successful: ojeomneo@localhost:5432"
	if !m.connected {
		status = health.StatusDegraded
		msg = "Database connection failed: connection refused"
	}
	return health.DiagnosticReport{
		Status:   status,
		Service:  "ojeomneo-admin",
		Version:  "1.0.1",
		Database: health.DatabaseStatus{Connected: m.connected, LatencyMs: 3, Message: msg},
	}
}

func TestRouter_HealthEndpoints(t *testing.T) {
	tests := []struct {
		name       string
		connected  bool
		path       string
		wantStatus int
		wantField  string
		wantValue  interface{}
	}{
		{"live", false, "/healthcheck/live", http.StatusOK, "status", "ok"},
		{"ready when connected", true, "/healthcheck/ready", http.StatusOK, "ready", true},
		{"not ready when disconnected", false, "/healthcheck/ready", http.StatusServiceUnavailable, "status", "not_ready"},
		{"diagnostic ok", true, "/healthcheck", http.StatusOK, "status", "ok"},
		{"diagnostic degraded still 200", false, "/healthcheck", http.StatusOK, "status", "degraded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := NewRouter(&RouterDeps{Health: &mockHealthReporter{connected: tt.connected}})

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			var body map[string]interface{}
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode: %v", err)
			}
			if body[tt.wantField] != tt.wantValue {
				t.Errorf("%s = %v, want %v", tt.wantField, body[tt.wantField], tt.wantValue)
			}
		})
	}
}

func TestRouter_DiagnosticIncludesDatabaseDetail(t *testing.T) {
	router := NewRouter(&RouterDeps{Health: &mockHealthReporter{connected: false}})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthcheck", nil))

	var body health.DiagnosticReport
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body.Version != "1.0.1" || body.Service != "ojeomneo-admin" {
		t.Errorf("service info = %s/%s", body.Service, body.Version)
	}
	if !strings.HasPrefix(body.Database.Message, "Database connection failed: ") {
		t.Errorf("message = %q", body.Database.Message)
	}
}

func TestRouter_AppliesSecurityHeaders(t *testing.T) {
	router := NewRouter(&RouterDeps{Health: &mockHealthReporter{}})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthcheck/live", nil))

	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
	if got := w.Header().Get("Cache-Control"); got != "no-store" {
		t.Errorf("Cache-Control = %q, want no-store", got)
	}
}

func TestRouter_MetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	router := NewRouter(&RouterDeps{
		Health:         &mockHealthReporter{},
		Metrics:        collector,
		MetricsHandler: metrics.Handler(reg),
	})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthcheck/live", nil))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), `ojeomneo_http_status_total{status_code="200"}`) {
		t.Errorf("metrics output missing http status counter:\n%s", w.Body.String())
	}
}

func TestRouter_MetricsRouteAbsentWithoutHandler(t *testing.T) {
	router := NewRouter(&RouterDeps{Health: &mockHealthReporter{}})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestRouter_LoginIsRateLimited(t *testing.T) {
	rl := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		LoginRate:       0.01,
		LoginBurst:      2,
		CleanupInterval: time.Minute,
	}, nil)
	defer rl.Stop()

	router := NewRouter(&RouterDeps{
		Health:        &mockHealthReporter{},
		Authenticator: &mockAuthenticator{},
		Accounts:      &mockAccountCreator{},
		RateLimiter:   rl,
	})

	var codes []int
	for i := 0; i < 3; i++ {
		req := postJSON("/auth/login", `{"email":"a@example.com","password":"x"}`)
		req.RemoteAddr = "192.0.2.10:4000"
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}

	want := []int{http.StatusUnauthorized, http.StatusUnauthorized, http.StatusTooManyRequests}
	for i := range want {
		if codes[i] != want[i] {
			t.Errorf("codes = %v, want %v", codes, want)
			break
		}
	}

	// ログイン以外のルートはレート制限の対象外
	req := httptest.NewRequest(http.MethodGet, "/healthcheck/live", nil)
	req.RemoteAddr = "192.0.2.10:4000"
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("health status = %d, want %d", w.Code, http.StatusOK)
	}
}

// newWiredRouter は実際のファクトリと認証チェーンをインメモリのリポジトリに接続したルーターを返す。
func newWiredRouter(t *testing.T) (http.Handler, *repositorytest.MemoryIdentityRepo, *auth.Chain) {
	t.Helper()
	repo := repositorytest.NewMemoryIdentityRepo()
	manager, err := password.NewManager(password.NewPBKDF2Hasher(1000))
	if err != nil {
		t.Fatalf("failed to create password manager: %v", err)
	}
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	factory := account.NewFactory(repo, manager, collector, account.Config{})
	chain := auth.NewChain(repo, collector,
		auth.NewEmailAuthenticator(repo, manager, collector),
		auth.NewHandleAuthenticator(repo, manager),
	)

	router := NewRouter(&RouterDeps{
		Health:        &mockHealthReporter{connected: true},
		Authenticator: chain,
		Accounts:      factory,
		Metrics:       collector,
	})
	return router, repo, chain
}

// TestRouter_SignupThenLogin は実際のファクトリと認証チェーンを通したHTTP経由の往復を検証する。
func TestRouter_SignupThenLogin(t *testing.T) {
	router, repo, _ := newWiredRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, postJSON("/auth/signup", `{"email":"Carol@Example.COM","password":"correct horse"}`))
	if w.Code != http.StatusCreated {
		t.Fatalf("signup status = %d, want %d; body=%s", w.Code, http.StatusCreated, w.Body.String())
	}
	var created struct {
		ID       int64  `json:"id"`
		Email    string `json:"email"`
		Username string `json:"username"`
	}
	json.NewDecoder(w.Body).Decode(&created)
	if created.Email != "Carol@example.com" {
		t.Errorf("email = %q, want domain-normalized", created.Email)
	}

	// 同じ(email, login_method)は409
	w = httptest.NewRecorder()
	router.ServeHTTP(w, postJSON("/auth/signup", `{"email":"Carol@example.com","password":"other"}`))
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate signup status = %d, want %d", w.Code, http.StatusConflict)
	}

	// メールアドレスでログイン
	w = httptest.NewRecorder()
	router.ServeHTTP(w, postJSON("/auth/login", `{"email":"Carol@example.com","password":"correct horse"}`))
	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d, want %d", w.Code, http.StatusOK)
	}

	// ハンドルでログイン
	w = httptest.NewRecorder()
	router.ServeHTTP(w, postJSON("/auth/login", `{"username":"`+created.Username+`","password":"correct horse"}`))
	if w.Code != http.StatusOK {
		t.Errorf("handle login status = %d, want %d", w.Code, http.StatusOK)
	}

	// 誤ったパスワード
	w = httptest.NewRecorder()
	router.ServeHTTP(w, postJSON("/auth/login", `{"email":"Carol@example.com","password":"wrong"}`))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong password status = %d, want %d", w.Code, http.StatusUnauthorized)
	}

	// セッション復元
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/users/"+strconv.FormatInt(created.ID, 10), nil))
	if w.Code != http.StatusOK {
		t.Errorf("resolve status = %d, want %d", w.Code, http.StatusOK)
	}
	if got := repo.Get(created.ID); got == nil || got.LastLogin == nil {
		t.Error("last_login should be set after successful login")
	} else if got.Password == "" || !strings.HasPrefix(got.Password, "pbkdf2_sha256$") {
		t.Errorf("stored password = %q, want pbkdf2 encoding", got.Password)
	}
}

// 空のパスワードでサインアップしたidentityはローカル認証できない。
func TestRouter_SignupWithEmptyPassword_CannotLogin(t *testing.T) {
	router, repo, chain := newWiredRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, postJSON("/auth/signup", `{"email":"e@x.com","password":""}`))
	if w.Code != http.StatusCreated {
		t.Fatalf("signup status = %d, want %d; body=%s", w.Code, http.StatusCreated, w.Body.String())
	}
	var created struct {
		ID int64 `json:"id"`
	}
	json.NewDecoder(w.Body).Decode(&created)

	stored := repo.Get(created.ID)
	if stored == nil {
		t.Fatal("expected identity to be stored")
	}
	if !strings.HasPrefix(stored.Password, model.UnusablePasswordPrefix) {
		t.Errorf("stored password = %q, want unusable sentinel", stored.Password)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, postJSON("/auth/login", `{"email":"e@x.com","password":""}`))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("login status = %d, want %d", w.Code, http.StatusUnauthorized)
	}

	identity, err := chain.Authenticate(context.Background(), "e@x.com", "")
	if !errors.Is(err, model.ErrAuthenticationFailed) {
		t.Errorf("Authenticate error = %v, want ErrAuthenticationFailed", err)
	}
	if identity != nil {
		t.Errorf("Authenticate identity = %+v, want nil", identity)
	}
}
