// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ojeomneo/identitycore/internal/account"
	"github.com/ojeomneo/identitycore/internal/auth"
	"github.com/ojeomneo/identitycore/internal/middleware"
	"github.com/ojeomneo/identitycore/internal/model"
)

// maxRequestBodyBytes はJSONリクエストボディの上限。
const maxRequestBodyBytes = 64 << 10

// IdentityAuthenticator は認証ハンドラーが必要とするインターフェース。
// auth.Chainが実装する。
type IdentityAuthenticator interface {
	Authenticate(ctx context.Context, identifier, secret string) (*model.Identity, error)
	ResolveByID(ctx context.Context, id int64) (*model.Identity, error)
}

// AccountCreator はサインアップハンドラーが必要とするインターフェース。
// account.Factoryが実装する。
type AccountCreator interface {
	CreateIdentity(ctx context.Context, email string, secret *string, method model.LoginMethod, extra account.ExtraFields) (*model.Identity, error)
}

var (
	_ IdentityAuthenticator = (*auth.Chain)(nil)
	_ AccountCreator        = (*account.Factory)(nil)
)

// AuthHandler はログイン・サインアップ・identity参照のHTTPハンドラー。
type AuthHandler struct {
	authenticator IdentityAuthenticator
	accounts      AccountCreator
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(authenticator IdentityAuthenticator, accounts AccountCreator) *AuthHandler {
	return &AuthHandler{
		authenticator: authenticator,
		accounts:      accounts,
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type signupRequest struct {
	Email       string  `json:"email"`
	Password    *string `json:"password"`
	LoginMethod string  `json:"login_method"`
	SocialID    string  `json:"social_id"`
	Username    string  `json:"username"`
	FirstName   string  `json:"first_name"`
	LastName    string  `json:"last_name"`
}

// identityResponse はidentityのJSON表現。パスワードは含めない。
type identityResponse struct {
	ID          int64      `json:"id"`
	Email       string     `json:"email"`
	LoginMethod string     `json:"login_method"`
	Username    string     `json:"username"`
	SocialID    string     `json:"social_id,omitempty"`
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	IsActive    bool       `json:"is_active"`
	IsStaff     bool       `json:"is_staff"`
	IsSuperuser bool       `json:"is_superuser"`
	LastLogin   *time.Time `json:"last_login"`
	DateJoined  time.Time  `json:"date_joined"`
}

// Login は認証チェーンでメールアドレスまたはハンドルとパスワードを検証する。
// 失敗理由はレスポンスで区別しない。
// POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	identifier := req.Email
	if identifier == "" {
		identifier = req.Username
	}

	identity, err := h.authenticator.Authenticate(r.Context(), identifier, req.Password)
	if err != nil {
		middleware.WriteDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toIdentityResponse(identity))
}

// Signup は新しいidentityを作成する。
// passwordを省略した場合は使用不可センチネルが設定される。
// POST /auth/signup
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	identity, err := h.accounts.CreateIdentity(r.Context(), req.Email, req.Password, model.LoginMethod(req.LoginMethod), account.ExtraFields{
		Username:  req.Username,
		SocialID:  req.SocialID,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		middleware.WriteDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toIdentityResponse(identity))
}

// GetIdentity はセッション復元のためにIDからidentityを引く。
// 存在しない・論理削除済み・無効化済みはいずれも404。
// GET /auth/users/{id}
func (h *AuthHandler) GetIdentity(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationAPIError("id must be a positive integer"))
		return
	}

	identity, err := h.authenticator.ResolveByID(r.Context(), id)
	if err != nil {
		middleware.WriteDomainError(w, err)
		return
	}
	if identity == nil {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewIdentityNotFoundAPIError())
		return
	}

	writeJSON(w, http.StatusOK, toIdentityResponse(identity))
}

// decodeJSON はリクエストボディをデコードする。失敗時は400を書き込みfalseを返す。
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationAPIError("invalid request body"))
		return false
	}
	return true
}

func toIdentityResponse(identity *model.Identity) identityResponse {
	return identityResponse{
		ID:          identity.ID,
		Email:       identity.Email,
		LoginMethod: string(identity.LoginMethod),
		Username:    identity.Username,
		SocialID:    identity.SocialID,
		FirstName:   identity.FirstName,
		LastName:    identity.LastName,
		IsActive:    identity.IsActive,
		IsStaff:     identity.IsStaff,
		IsSuperuser: identity.IsSuperuser,
		LastLogin:   identity.LastLogin,
		DateJoined:  identity.DateJoined,
	}
}
