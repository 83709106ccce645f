// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/wordcloud/internal/auth"
	"github.com/hitoshi/wordcloud/internal/middleware"
	"github.com/hitoshi/wordcloud/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Login(ctx context.Context, identifier, password string) (*auth.LoginResult, error)
	Logout(ctx context.Context, session *model.Session) error
	Me(ctx context.Context, session *model.Session) (*model.MemberWithAccount, error)
	RequestOTP(ctx context.Context, req auth.OTPRequest) (*auth.OTPChallengeResult, error)
	VerifyOTP(ctx context.Context, challengeID, code string) (*auth.LoginResult, error)
}

// AuthHandler はログイン、OTP、セッション関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface) *AuthHandler {
	return &AuthHandler{service: service}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type otpRequestBody struct {
	Channel string `json:"channel"`
	Phone   string `json:"phone"`
	Email   string `json:"email"`
	TeamNo  *int   `json:"team_no"`
}

type otpVerifyRequest struct {
	ChallengeID string `json:"challenge_id"`
	OTP         string `json:"otp"`
}

// userResponse はアカウント情報のAPIレスポンス。
type userResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	TeamNo   *int   `json:"team_no"`
	Points   int    `json:"points"`
}

type memberResponse struct {
	ID         string `json:"id"`
	MemberCode string `json:"member_code,omitempty"`
	Name       string `json:"name"`
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone,omitempty"`
}

type sessionResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      userResponse `json:"user"`
	MemberID  string       `json:"member_id,omitempty"`
}

type meResponse struct {
	User   userResponse   `json:"user"`
	Member memberResponse `json:"member"`
}

type otpChallengeResponse struct {
	ChallengeID string    `json:"challenge_id"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Login はユーザー名・メールアドレス・電話番号とパスワードでログインする。
// POST /api/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Username == "" || req.Password == "" {
		middleware.WriteError(w, r, model.NewValidationError("usernameとpasswordを指定してください。"))
		return
	}

	result, err := h.service.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(result))
}

// RequestOTP はOTPを送信し、検証用のチャレンジIDを返す。
// POST /api/otp/request
func (h *AuthHandler) RequestOTP(w http.ResponseWriter, r *http.Request) {
	var req otpRequestBody
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.service.RequestOTP(r.Context(), auth.OTPRequest{
		Channel: req.Channel,
		Phone:   req.Phone,
		Email:   req.Email,
		TeamNo:  req.TeamNo,
	})
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, otpChallengeResponse{
		ChallengeID: result.ChallengeID,
		ExpiresAt:   result.ExpiresAt,
	})
}

// VerifyOTP はOTPを検証してセッションを発行する。
// POST /api/otp/verify
func (h *AuthHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req otpVerifyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ChallengeID == "" || req.OTP == "" {
		middleware.WriteError(w, r, model.NewValidationError("challenge_idとotpを指定してください。"))
		return
	}

	result, err := h.service.VerifyOTP(r.Context(), req.ChallengeID, req.OTP)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(result))
}

// Me は現在のセッションのアカウントとメンバーを返す。
// GET /api/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	member, err := h.service.Me(r.Context(), middleware.SessionFromContext(r.Context()))
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, meResponse{
		User: toUserResponse(member.Account),
		Member: memberResponse{
			ID:         member.ID,
			MemberCode: member.MemberCode,
			Name:       member.Name,
			Email:      member.Email,
			Phone:      member.Phone,
		},
	})
}

// Logout はセッションを失効させる。有効なセッションがなくても成功を返す。
// POST /api/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Logout(r.Context(), middleware.SessionFromContext(r.Context())); err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func toUserResponse(a model.Account) userResponse {
	return userResponse{
		ID:       a.ID,
		Username: a.Username,
		TeamNo:   a.TeamNo,
		Points:   a.Points,
	}
}

func toSessionResponse(result *auth.LoginResult) sessionResponse {
	return sessionResponse{
		Token:     result.Token,
		ExpiresAt: result.ExpiresAt,
		User:      toUserResponse(result.Account),
		MemberID:  result.MemberID,
	}
}
