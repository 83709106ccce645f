// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/wordcloud/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// sessionContextKey はリクエストコンテキストに認証済みセッションを格納するためのキー。
var sessionContextKey = contextKey("session")

// SessionAuthenticator はBearerトークンからセッションを解決するインターフェース。
// 無効なトークンの場合はnilを返す。
type SessionAuthenticator interface {
	Authenticate(ctx context.Context, token string) (*model.Session, error)
}

// BearerToken はAuthorizationヘッダーからBearerトークンを取り出す。
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(h[len(prefix):])
}

// NewAuthMiddleware はBearerトークンを検証し、セッションをコンテキストに注入するミドルウェアを返す。
// トークンがない、または無効・失効・期限切れの場合は401を返す。
func NewAuthMiddleware(authenticator SessionAuthenticator) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, ok := resolveSession(w, r, authenticator)
			if !ok {
				return
			}
			if session == nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}
			next.ServeHTTP(w, r.WithContext(withSession(r.Context(), session)))
		})
	}
}

// NewOptionalAuthMiddleware は有効なトークンがあればセッションを注入し、
// なければそのまま次のハンドラに渡すミドルウェアを返す。
func NewOptionalAuthMiddleware(authenticator SessionAuthenticator) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, ok := resolveSession(w, r, authenticator)
			if !ok {
				return
			}
			if session != nil {
				r = r.WithContext(withSession(r.Context(), session))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// resolveSession はトークンからセッションを取得する。
// ストアの障害時は500を書き込んでfalseを返す。
func resolveSession(w http.ResponseWriter, r *http.Request, authenticator SessionAuthenticator) (*model.Session, bool) {
	token := BearerToken(r)
	if token == "" {
		return nil, true
	}
	session, err := authenticator.Authenticate(r.Context(), token)
	if err != nil {
		slog.Error("failed to authenticate session",
			slog.String("error", err.Error()),
		)
		WriteInternalServerError(w)
		return nil, false
	}
	return session, true
}

func withSession(ctx context.Context, session *model.Session) context.Context {
	setRequestMember(ctx, session.MemberID)
	return context.WithValue(ctx, sessionContextKey, session)
}

// SessionFromContext はリクエストコンテキストから認証済みセッションを取得する。
// 認証ミドルウェアを通過していない場合はnilを返す。
func SessionFromContext(ctx context.Context) *model.Session {
	session, _ := ctx.Value(sessionContextKey).(*model.Session)
	return session
}

// MemberIDFromContext は認証済みセッションのメンバーIDを返す。
// 未認証、またはメンバー未確定のセッションでは空文字列を返す。
func MemberIDFromContext(ctx context.Context) string {
	if session := SessionFromContext(ctx); session != nil {
		return session.MemberID
	}
	return ""
}

// ContextWithSession はコンテキストにセッションを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithSession(ctx context.Context, session *model.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, session)
}
