package middleware

import (
	"net/http"
	"strings"
)

// ParseOrigins はカンマ区切りのオリジン設定を分割する。空要素は除く。
func ParseOrigins(allowed string) []string {
	var origins []string
	for _, o := range strings.Split(allowed, ",") {
		if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// NewCORSMiddleware はカンマ区切りで指定されたオリジンに対するCORSミドルウェアを返す。
// "*" は全オリジンを許可する。複数指定時はリクエストのOriginが一致した場合のみ許可を返す。
// 認証はBearerトークンで行うため、Authorizationヘッダーを許可する。
func NewCORSMiddleware(allowed string) func(next http.Handler) http.Handler {
	origins := ParseOrigins(allowed)
	wildcard := false
	for _, o := range origins {
		if o == "*" {
			wildcard = true
		}
	}

	// allowOrigin はリクエストに返すAccess-Control-Allow-Originの値。空なら付与しない。
	allowOrigin := func(requestOrigin string) string {
		switch {
		case wildcard:
			return "*"
		case requestOrigin == "" && len(origins) == 1:
			return origins[0]
		}
		for _, o := range origins {
			if o == requestOrigin {
				return o
			}
		}
		return ""
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			if origin := allowOrigin(r.Header.Get("Origin")); origin != "" {
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
				h.Set("Access-Control-Max-Age", "86400")
			}
			if !wildcard {
				h.Add("Vary", "Origin")
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
