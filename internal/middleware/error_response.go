package middleware

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ojeomneo/identitycore/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// 原因カテゴリと対処方法を含む。
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// WriteDomainError はドメインエラーの分類に応じたステータスコードで応答する。
//
//	ErrPrivilege            → 400 PRIVILEGE_ERROR
//	ErrValidation           → 400 VALIDATION_ERROR
//	ErrUniquenessViolation  → 409
//	ErrAuthenticationFailed → 401（原因は区別しない）
//	ErrConnectivity         → 503
//	その他                   → 500
func WriteDomainError(w http.ResponseWriter, err error) {
	var perr *model.PrivilegeError
	var verr *model.ValidationError

	switch {
	case errors.As(err, &perr):
		WriteErrorResponse(w, http.StatusBadRequest, model.NewPrivilegeAPIError(perr.Flag))
	case errors.As(err, &verr):
		WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationAPIError(verr.Field+" "+verr.Reason))
	case errors.Is(err, model.ErrValidation):
		WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationAPIError(err.Error()))
	case errors.Is(err, model.ErrUniquenessViolation):
		WriteErrorResponse(w, http.StatusConflict, model.NewUniquenessAPIError())
	case errors.Is(err, model.ErrIdentityNotFound):
		WriteErrorResponse(w, http.StatusNotFound, model.NewIdentityNotFoundAPIError())
	case errors.Is(err, model.ErrAuthenticationFailed):
		WriteErrorResponse(w, http.StatusUnauthorized, model.NewAuthenticationFailedAPIError())
	case errors.Is(err, model.ErrConnectivity):
		slog.Error("datastore unavailable", slog.String("error", err.Error()))
		WriteErrorResponse(w, http.StatusServiceUnavailable, model.NewConnectivityAPIError())
	default:
		slog.Error("unhandled error", slog.String("error", err.Error()))
		WriteInternalServerError(w)
	}
}
