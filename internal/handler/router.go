package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/wordcloud/internal/metrics"
	"github.com/hitoshi/wordcloud/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Authenticator     middleware.SessionAuthenticator
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// 認証
	AuthService AuthServiceInterface

	// ラウンド
	RoundService     RoundServiceInterface
	ScoreService     ScoreServiceInterface
	WordCloudService WordCloudServiceInterface
	Collector        interface {
		ResponseCollectorInterface
		GlobalSubmitter
	}

	// お題
	QuestionService QuestionServiceInterface

	// リアルタイム配信（nilの場合は無効）
	Hub LiveHub

	// 運用
	DB             Pinger
	MetricsHandler http.Handler
	Metrics        metrics.MetricsCollector // nilの場合は記録しない
	Logger         *slog.Logger             // nilの場合はslog.Default()
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → Logging → Metrics → CORS
//	  → OptionalAuth → RateLimit(General) → [Auth（要ログインのルートのみ）]
//
// /health と /metrics にはレート制限と認証を適用しない。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	if deps.Metrics != nil {
		r.Use(metrics.Middleware(deps.Metrics))
	}
	// プリフライトはルーティング前に応答する
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	r.Get("/health", NewHealthHandler(deps.DB))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	authHandler := NewAuthHandler(deps.AuthService)
	roundHandler := NewRoundHandler(deps.RoundService, deps.ScoreService, deps.WordCloudService, deps.AuthService, deps.Hub)
	var publisher Publisher
	if deps.Hub != nil {
		publisher = deps.Hub
	}
	respondHandler := NewRespondHandler(deps.RoundService, deps.Collector, deps.ScoreService, deps.WordCloudService, deps.AuthService, publisher)
	cloudHandler := NewWordCloudHandler(deps.RoundService, deps.WordCloudService, deps.Collector)
	questionHandler := NewQuestionHandler(deps.QuestionService)

	requireAuth := middleware.NewAuthMiddleware(deps.Authenticator)

	r.Group(func(r chi.Router) {
		r.Use(middleware.NewOptionalAuthMiddleware(deps.Authenticator))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// 認証
		r.Post("/api/login", authHandler.Login)
		r.Post("/api/logout", authHandler.Logout)
		r.With(requireAuth).Get("/api/me", authHandler.Me)
		r.Route("/api/otp", func(r chi.Router) {
			r.Use(deps.RateLimiter.OTPMiddleware())
			r.Post("/request", authHandler.RequestOTP)
			r.Post("/verify", authHandler.VerifyOTP)
		})

		// お題
		r.Get("/api/questions", questionHandler.List)
		r.With(requireAuth).Post("/api/questions", questionHandler.Create)

		// ラウンド
		r.With(requireAuth).Post("/api/create-round", roundHandler.CreateRound)
		r.Route("/api/round/{id}", func(r chi.Router) {
			r.Get("/", roundHandler.GetRound)
			r.Get("/wordcloud", cloudHandler.RoundCloud)
			r.Get("/leaderboard", roundHandler.Leaderboard)
			r.Get("/qr", roundHandler.QRCode)
			r.Get("/live", roundHandler.Live)
			r.With(requireAuth).Post("/share", roundHandler.Share)
			r.With(requireAuth).Post("/end", roundHandler.EndRound)
		})

		// シェアリンク経由の回答
		r.Get("/respond/{share_token}", respondHandler.Show)
		r.Post("/respond/{share_token}", respondHandler.Submit)

		// グローバル集計
		r.Post("/api/submit-answer", cloudHandler.SubmitAnswer)
		r.Get("/api/wordcloud", cloudHandler.GlobalCloud)
	})

	return r
}
