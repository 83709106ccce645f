package middleware

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/wordcloud/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// 原因カテゴリと対処方法を含む。
type ErrorResponseBody struct {
	Code     string      `json:"code"`
	Message  string      `json:"message"`
	Category string      `json:"category"`
	Action   string      `json:"action"`
	Details  interface{} `json:"details,omitempty"`
}

// statusByCode はエラーコードとHTTPステータスの対応。
var statusByCode = map[string]int{
	model.ErrCodeInvalidRequest:     http.StatusBadRequest,
	model.ErrCodeInvalidWord:        http.StatusBadRequest,
	model.ErrCodeUnauthorized:       http.StatusUnauthorized,
	model.ErrCodeInvalidCredentials: http.StatusUnauthorized,
	model.ErrCodeInvalidOTP:         http.StatusUnauthorized,
	model.ErrCodeForbidden:          http.StatusForbidden,
	model.ErrCodeRoundNotFound:      http.StatusNotFound,
	model.ErrCodeQuestionNotFound:   http.StatusNotFound,
	model.ErrCodeMemberNotFound:     http.StatusNotFound,
	model.ErrCodeDuplicateResponse:  http.StatusConflict,
	model.ErrCodeMultipleAccounts:   http.StatusConflict,
	model.ErrCodeRoundInactive:      http.StatusConflict,
	model.ErrCodeRateLimited:        http.StatusTooManyRequests,
	model.ErrCodeOTPDispatchFailed:  http.StatusBadGateway,
}

// StatusForError はAPIErrorに対応するHTTPステータスを返す。
// 未知のコードは500として扱う。
func StatusForError(apiErr *model.APIError) int {
	if status, ok := statusByCode[apiErr.Code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
// すべてのAPIエンドポイントで一貫したエラーレスポンスを提供する。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
		Details:  apiErr.Details,
	})
}

// WriteError はサービス層から返されたエラーをレスポンスに変換する。
// APIError以外のエラーは詳細をログにのみ記録し、一般的な500レスポンスを返す。
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		WriteErrorResponse(w, StatusForError(apiErr), apiErr)
		return
	}
	slog.Error("request failed",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	WriteInternalServerError(w)
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, model.NewInternalError())
}
