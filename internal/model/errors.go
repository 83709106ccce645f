// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string      // エラーコード
	Message  string      // エラーメッセージ
	Category string      // カテゴリ: auth, validation, round, system
	Action   string      // ユーザー向け対処方法
	Details  interface{} // 追加情報（チーム選択肢など）。不要な場合はnil
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeInvalidWord        = "INVALID_WORD"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeInvalidOTP         = "INVALID_OTP"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeRoundNotFound      = "ROUND_NOT_FOUND"
	ErrCodeQuestionNotFound   = "QUESTION_NOT_FOUND"
	ErrCodeMemberNotFound     = "MEMBER_NOT_FOUND"
	ErrCodeDuplicateResponse  = "DUPLICATE_RESPONSE"
	ErrCodeMultipleAccounts   = "MULTIPLE_ACCOUNTS"
	ErrCodeRoundInactive      = "ROUND_INACTIVE"
	ErrCodeOTPDispatchFailed  = "OTP_DISPATCH_FAILED"
	ErrCodeRateLimited        = "RATE_LIMITED"
	ErrCodeInternal           = "INTERNAL_ERROR"
)

// TeamChoice はOTP送信先が複数アカウントに該当した場合の選択肢。
type TeamChoice struct {
	TeamNo   *int   `json:"team_no"`
	Username string `json:"username"`
}

// NewValidationError は入力値不正エラーを生成する。
func NewValidationError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  message,
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewInvalidWordError は回答語の形式不正エラーを生成する。
func NewInvalidWordError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidWord,
		Message:  fmt.Sprintf("回答は英数字のみの1語で入力してください: %s", reason),
		Category: "validation",
		Action:   "空白や記号を含まない1語を入力してください。",
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewInvalidCredentialsError はログイン失敗エラーを生成する。
// ユーザー名とパスワードのどちらが誤っているかは区別しない。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "ユーザー名またはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度ログインしてください。",
	}
}

// NewInvalidOTPError はOTP検証失敗エラーを生成する。
func NewInvalidOTPError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidOTP,
		Message:  "OTPが無効か、有効期限が切れています。",
		Category: "auth",
		Action:   "OTPを再発行してください。",
	}
}

// NewForbiddenError は権限不足エラーを生成する。
func NewForbiddenError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  message,
		Category: "auth",
		Action:   "操作権限のあるアカウントで実行してください。",
	}
}

// NewRoundNotFoundError はラウンド未検出エラーを生成する。
func NewRoundNotFoundError(ref string) *APIError {
	return &APIError{
		Code:     ErrCodeRoundNotFound,
		Message:  fmt.Sprintf("指定されたラウンドが見つかりません: %s", ref),
		Category: "round",
		Action:   "シェアリンクまたはラウンドIDを確認してください。",
	}
}

// NewQuestionNotFoundError はお題未検出エラーを生成する。
func NewQuestionNotFoundError(questionID string) *APIError {
	return &APIError{
		Code:     ErrCodeQuestionNotFound,
		Message:  fmt.Sprintf("指定されたお題が見つかりません: %s", questionID),
		Category: "round",
		Action:   "お題一覧から選択してください。",
	}
}

// NewMemberNotFoundError はOTP送信先が未登録の場合のエラーを生成する。
func NewMemberNotFoundError(channel OTPChannel) *APIError {
	msg := "メールアドレスが登録されていません。"
	if channel == OTPChannelWhatsApp {
		msg = "携帯電話番号が登録されていません。"
	}
	return &APIError{
		Code:     ErrCodeMemberNotFound,
		Message:  msg,
		Category: "auth",
		Action:   "登録済みの連絡先を入力してください。",
	}
}

// NewDuplicateResponseError は同一ラウンドへの二重回答エラーを生成する。
func NewDuplicateResponseError() *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateResponse,
		Message:  "このラウンドには既に回答済みです。",
		Category: "round",
		Action:   "次のラウンドをお待ちください。",
	}
}

// NewMultipleAccountsError は連絡先が複数チームに該当した場合のエラーを生成する。
// Detailsにチームの選択肢を含める。
func NewMultipleAccountsError(teams []TeamChoice) *APIError {
	return &APIError{
		Code:     ErrCodeMultipleAccounts,
		Message:  "この連絡先は複数のチームに登録されています。",
		Category: "auth",
		Action:   "チーム番号を指定して再度リクエストしてください。",
		Details:  map[string]interface{}{"teams": teams},
	}
}

// NewRoundInactiveError は終了済みラウンドへの操作エラーを生成する。
func NewRoundInactiveError() *APIError {
	return &APIError{
		Code:     ErrCodeRoundInactive,
		Message:  "このラウンドは終了しています。",
		Category: "round",
		Action:   "新しいラウンドのシェアリンクを確認してください。",
	}
}

// NewOTPDispatchFailedError はOTPゲートウェイへの送信失敗エラーを生成する。
func NewOTPDispatchFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeOTPDispatchFailed,
		Message:  "OTPの送信に失敗しました。",
		Category: "auth",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログにのみ記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
