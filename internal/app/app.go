// Package app はサブコマンドごとの依存関係のワイヤリングと起動処理を提供する。
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/time/rate"

	"github.com/hitoshi/wordcloud/internal/auth"
	"github.com/hitoshi/wordcloud/internal/config"
	"github.com/hitoshi/wordcloud/internal/database"
	"github.com/hitoshi/wordcloud/internal/handler"
	"github.com/hitoshi/wordcloud/internal/live"
	"github.com/hitoshi/wordcloud/internal/logger"
	"github.com/hitoshi/wordcloud/internal/metrics"
	"github.com/hitoshi/wordcloud/internal/middleware"
	"github.com/hitoshi/wordcloud/internal/otp"
	"github.com/hitoshi/wordcloud/internal/question"
	"github.com/hitoshi/wordcloud/internal/repository"
	"github.com/hitoshi/wordcloud/internal/response"
	"github.com/hitoshi/wordcloud/internal/round"
	"github.com/hitoshi/wordcloud/internal/score"
	"github.com/hitoshi/wordcloud/internal/security"
	"github.com/hitoshi/wordcloud/internal/wordfreq"
	"github.com/hitoshi/wordcloud/internal/worker/cleanup"
	"github.com/hitoshi/wordcloud/internal/worker/importer"
)

const (
	dbPingTimeout   = 5 * time.Second
	shutdownTimeout = 30 * time.Second
)

// Init はアプリケーションの初期化を行う。
// .envと環境変数からConfigを読み込み、LOG_LEVELに従ってJSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, *slog.Logger, error) {
	if err := config.LoadDotEnv(".env"); err != nil {
		return nil, nil, err
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))
	return cfg, log, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。ctxがキャンセルされると各モードはグレースフルに終了する。
func Run(ctx context.Context, w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(ctx, "http://localhost:"+port)
	}

	cfg, log, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	log.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(ctx, cfg, log)
	case CommandMigrate:
		migrateArgs, err := ParseMigrateArgs(args[1:])
		if err != nil {
			return err
		}
		return runMigrate(cfg, migrateArgs, log)
	default:
		return runServe(ctx, cfg, log)
	}
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL, database.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	})
	if err != nil {
		return nil, err
	}
	if err := database.Ping(ctx, db, dbPingTimeout); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// newMetrics はGo/プロセスのメトリクスを含むレジストリとCollectorを生成する。
func newMetrics() (*prometheus.Registry, *metrics.Collector) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, metrics.NewCollector(reg)
}

// newDispatcher はOTP送信器を返す。
// ゲートウェイ未設定の場合、ログ出力のみの送信器はOTP_LOG_CODES=trueまたはLOG_LEVEL=debugのときだけ許可する。
func newDispatcher(cfg *config.Config, log *slog.Logger) (auth.Dispatcher, error) {
	if cfg.OTPGatewayURL == "" {
		if !cfg.OTPLogCodes && logger.ParseLevel(cfg.LogLevel) != slog.LevelDebug {
			return nil, errors.New("OTP_GATEWAY_URL is required unless OTP_LOG_CODES=true or LOG_LEVEL=debug")
		}
		log.Warn("OTP_GATEWAY_URLが未設定のため、OTPコードはログに出力されます")
		return otp.NewLogDispatcher(log), nil
	}
	return otp.NewClient(&http.Client{}, log, otp.Config{
		Endpoint:       cfg.OTPGatewayURL,
		APIKey:         cfg.OTPGatewayAPIKey,
		MaxAttempts:    cfg.OTPDispatchRetries,
		AttemptTimeout: cfg.OTPDispatchTimeout,
		RetryDelay:     500 * time.Millisecond,
	}), nil
}

// rateLimiterConfig は1分あたりのリクエスト数の設定をトークンバケットの設定に変換する。
func rateLimiterConfig(cfg *config.Config) middleware.RateLimiterConfig {
	rl := middleware.DefaultRateLimiterConfig()
	if cfg.RateLimitGeneral > 0 {
		rl.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
		rl.GeneralBurst = cfg.RateLimitGeneral
	}
	if cfg.RateLimitOTP > 0 {
		rl.OTPRate = rate.Limit(float64(cfg.RateLimitOTP) / 60.0)
		rl.OTPBurst = cfg.RateLimitOTP
	}
	return rl
}

// liveOrigins はWebSocket接続を許可するオリジンを返す。"*"を含む場合は制限しない。
// CORSの許可オリジンに加えて、BASE_URLのオリジンも許可する。
func liveOrigins(cfg *config.Config) []string {
	origins := middleware.ParseOrigins(cfg.CORSAllowedOrigin)
	if len(origins) == 0 {
		return nil
	}
	for _, o := range origins {
		if o == "*" {
			return nil
		}
	}
	if u, err := url.Parse(cfg.BaseURL); err == nil && u.Host != "" {
		origins = append(origins, u.Scheme+"://"+u.Host)
	}
	return origins
}

// apiServer はAPIサーバーの構成要素。
type apiServer struct {
	handler     http.Handler
	rateLimiter *middleware.RateLimiter
}

// buildAPIServer はリポジトリからルーターまでの全依存関係をワイヤリングする。
func buildAPIServer(cfg *config.Config, db *sql.DB, dispatcher auth.Dispatcher, log *slog.Logger) *apiServer {
	reg, collector := newMetrics()

	// 1. リポジトリ
	accountRepo := repository.NewPostgresAccountRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	otpRepo := repository.NewPostgresOTPRepo(db)
	questionRepo := repository.NewPostgresQuestionRepo(db)
	roundRepo := repository.NewPostgresRoundRepo(db)
	responseRepo := repository.NewPostgresResponseRepo(db)
	scoreRepo := repository.NewPostgresScoreRepo(db)
	wordRepo := repository.NewPostgresWordFrequencyRepo(db)

	// 2. ドメインサービス
	authService := auth.NewService(
		accountRepo, sessionRepo, otpRepo,
		dispatcher,
		auth.NewTokenHasher(cfg.SessionSecret),
		collector,
		auth.ServiceConfig{
			SessionMaxAge:  cfg.SessionMaxAge,
			OTPTTL:         cfg.OTPTTL,
			OTPMaxAttempts: cfg.OTPMaxAttempts,
		},
	)
	wordService := wordfreq.NewService(wordRepo)
	roundService := round.NewService(roundRepo, questionRepo, responseRepo, collector, round.Config{
		BaseURL:        cfg.BaseURL,
		DefaultAugment: cfg.DefaultAugment,
	})
	scoreService := score.NewService(scoreRepo, collector)
	collectorService := response.NewCollector(responseRepo, wordService, collector, response.Config{
		AugmentCount:   cfg.AugmentCount,
		MirrorToGlobal: cfg.MirrorRoundWords,
	})
	questionService := question.NewService(questionRepo)

	// 3. ルーター
	rateLimiter := middleware.NewRateLimiter(rateLimiterConfig(cfg))
	deps := &handler.RouterDeps{
		Authenticator:     authService,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		AuthService:       authService,
		RoundService:      roundService,
		ScoreService:      scoreService,
		WordCloudService:  wordService,
		Collector:         collectorService,
		QuestionService:   questionService,
		DB:                db,
		MetricsHandler:    metrics.Handler(reg),
		Metrics:           collector,
		Logger:            log,
	}
	// 無効時にnilの*live.HubをLiveHubとして渡さない
	if cfg.LiveEnabled {
		deps.Hub = live.NewHub(liveOrigins(cfg), collector, log)
	}

	return &apiServer{
		handler:     handler.NewRouter(deps),
		rateLimiter: rateLimiter,
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// ctxがキャンセルされるとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	dispatcher, err := newDispatcher(cfg, log)
	if err != nil {
		return err
	}

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	log.Info("database connection established")

	api := buildAPIServer(cfg, db, dispatcher, log)
	defer api.rateLimiter.Stop()

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           api.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return serveUntilDone(ctx, server, log)
}

// serveUntilDone はサーバーを起動し、ctxのキャンセルでシャットダウンする。
func serveUntilDone(ctx context.Context, server *http.Server, log *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("HTTP server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// お題フィードの取り込みスケジューラと認証データのクリーンアップジョブを実行し、
// 監視用に /health と /metrics を公開する。
func runWorker(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	log.Info("database connection established (worker)")

	reg, collector := newMetrics()

	questionService := question.NewService(repository.NewPostgresQuestionRepo(db))
	imp := importer.NewImporter(
		questionService, security.NewURLGuard(), collector, log,
		cfg.ImportTimeout, cfg.ImportMaxSize,
	)
	scheduler := importer.NewScheduler(imp, cfg.QuestionFeedURLs, log, cfg.ImportMaxConcurrency)

	cleanupJob := cleanup.NewCleanupJob(db, log)
	cleanupJob.RetentionDays = cfg.CleanupRetentionDays

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	log.Info("worker starting",
		slog.Duration("import_interval", cfg.ImportInterval),
		slog.Int("feed_count", len(cfg.QuestionFeedURLs)),
		slog.Duration("cleanup_interval", cfg.CleanupInterval),
	)

	go cleanupJob.Start(ctx, cfg.CleanupInterval)
	go scheduler.Start(ctx, cfg.ImportInterval)

	mux := http.NewServeMux()
	mux.Handle("/health", handler.NewHealthHandler(db))
	mux.Handle("/metrics", metrics.Handler(reg))
	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	if err := serveUntilDone(ctx, server, log); err != nil {
		return err
	}

	log.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
func runMigrate(cfg *config.Config, args MigrateArgs, log *slog.Logger) error {
	log.Info("running database migrations",
		slog.String("action", string(args.Action)),
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	switch args.Action {
	case MigrateDown:
		if err := database.RollbackMigrations(cfg.DatabaseURL, args.Steps); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	case MigrateVersion:
		version, dirty, err := database.SchemaVersion(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		log.Info("current schema version",
			slog.Uint64("version", uint64(version)),
			slog.Bool("dirty", dirty),
		)
		return nil
	default:
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	log.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(ctx context.Context, baseURL string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
