package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/socialdash/internal/analytics"
	"github.com/hitoshi/socialdash/internal/config"
	"github.com/hitoshi/socialdash/internal/database"
	"github.com/hitoshi/socialdash/internal/handler"
	"github.com/hitoshi/socialdash/internal/identity"
	"github.com/hitoshi/socialdash/internal/logger"
	"github.com/hitoshi/socialdash/internal/metrics"
	"github.com/hitoshi/socialdash/internal/middleware"
	"github.com/hitoshi/socialdash/internal/repository"
	"github.com/hitoshi/socialdash/internal/security"
	"github.com/hitoshi/socialdash/internal/socialaccount"
	"github.com/hitoshi/socialdash/internal/tokenrefresh"
	"github.com/hitoshi/socialdash/internal/worker/cleanup"
)

// dotEnvPath は起動時に読み込む.envファイルのパス。
const dotEnvPath = ".env"

// shutdownTimeout はグレースフルシャットダウンの待機上限。
const shutdownTimeout = 30 * time.Second

// Init はアプリケーションの初期化を行う。
// .envと環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. .env の読み込み（存在しなければ何もしない）
	if err := config.LoadDotEnv(dotEnvPath); err != nil {
		return nil, err
	}
	// .env で LOG_LEVEL が指定された場合に反映する
	logger.SetupDefault(w)

	// 3. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// SIGINTまたはSIGTERMを受信するとコンテキストをキャンセルする。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return RunContext(ctx, w, args)
}

// RunContext はコマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// serveとworkerはctxがキャンセルされるまで実行を続ける。
func RunContext(ctx context.Context, w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(ctx, port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(ctx, cfg)
	case CommandMigrate:
		action, ok := ParseMigrateAction(args)
		if !ok {
			return fmt.Errorf("unknown migrate action: %q (use up, down or version)", args[1])
		}
		return runMigrate(cfg, action)
	default:
		return runServe(ctx, cfg)
	}
}

// newMetricsRegistry はプロセス・ランタイムのコレクタを含むレジストリを生成する。
func newMetricsRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
func runServe(ctx context.Context, cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	sessionRepo := repository.NewPostgresSessionRepo(db)
	accountRepo := repository.NewPostgresSocialAccountRepo(db)
	analyticsRepo := repository.NewPostgresAnalyticsRepo(db)

	// 3. メトリクスとドメインサービスの初期化
	reg := newMetricsRegistry()
	collector := metrics.NewCollector(reg)
	resolver := identity.NewContextResolver()

	accountService := socialaccount.NewService(accountRepo, resolver, security.NewTextSanitizer(), collector)
	analyticsService := analytics.NewService(analyticsRepo, resolver, collector)

	// 4. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitConnect))
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		HealthChecker:     db,
		MetricsHandler:    metrics.Handler(reg),
		Logger:            slog.Default(),
		SessionFinder:     sessionRepo,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: isHTTPS(cfg.BaseURL),
		},
		RateLimiter: rateLimiter,

		SocialAccountService: handler.NewSocialAccountServiceAdapter(accountService),
		AnalyticsService:     handler.NewAnalyticsServiceAdapter(analyticsService),
	})

	// 5. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return serveUntilDone(ctx, server, "API server")
}

// runWorker はワーカーモードで起動する。
// トークンリフレッシュスケジューラとセッションクリーンアップジョブを実行し、
// /health と /metrics のみを公開する。
func runWorker(ctx context.Context, cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	// 2. リポジトリとサービスの初期化
	sessionRepo := repository.NewPostgresSessionRepo(db)
	accountRepo := repository.NewPostgresSocialAccountRepo(db)

	reg := newMetricsRegistry()
	collector := metrics.NewCollector(reg)
	accountService := socialaccount.NewService(accountRepo, identity.NewContextResolver(), security.NewTextSanitizer(), collector)

	// 3. トークンリフレッシュの初期化
	refresher := tokenrefresh.NewOAuth2Refresher(cfg.OAuthClients, security.NewSSRFGuard(), cfg.TokenRefreshTimeout, collector)
	scheduler := tokenrefresh.NewScheduler(
		accountRepo, refresher, accountService, slog.Default(),
		cfg.TokenRefreshMaxConcurrent, cfg.TokenRefreshWindow,
	)

	// 4. クリーンアップジョブの初期化
	cleanupJob := cleanup.NewSessionCleanupJob(sessionRepo, slog.Default())
	cleanupJob.Interval = cfg.SessionCleanupInterval

	platforms := make([]string, 0, len(cfg.OAuthClients))
	for platform := range cfg.OAuthClients {
		platforms = append(platforms, platform)
	}
	slog.Info("worker starting",
		slog.Duration("refresh_interval", cfg.TokenRefreshInterval),
		slog.Int("max_concurrent", cfg.TokenRefreshMaxConcurrent),
		slog.Any("refreshable_platforms", platforms),
	)

	// 5. 監視用エンドポイント
	r := chi.NewRouter()
	r.Get("/health", handler.NewHealthHandler(db))
	r.Method(http.MethodGet, "/metrics", metrics.Handler(reg))
	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go cleanupJob.Start(ctx)
	go scheduler.Start(ctx, cfg.TokenRefreshInterval)

	return serveUntilDone(ctx, server, "worker")
}

// serveUntilDone はHTTPサーバーを起動し、ctxのキャンセルでグレースフルシャットダウンする。
func serveUntilDone(ctx context.Context, server *http.Server, name string) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info(name+" starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("%s listen error: %w", name, err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down " + name + "...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("%s shutdown failed: %w", name, err)
	}

	slog.Info(name + " stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
func runMigrate(cfg *config.Config, action MigrateAction) error {
	slog.Info("running database migrations",
		slog.String("action", string(action)),
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	switch action {
	case MigrateDown:
		if err := database.RollbackMigration(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migration rollback failed: %w", err)
		}
	case MigrateVersion:
		version, dirty, err := database.MigrationVersion(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to read migration version: %w", err)
		}
		slog.Info("current migration version",
			slog.Uint64("version", uint64(version)),
			slog.Bool("dirty", dirty),
		)
		return nil
	default:
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// healthcheckURL はヘルスチェック先のURLを返す。
// localhostはIPv6を先に解決する環境があるため、IPv4のループバックアドレスを直接指定する。
func healthcheckURL(port string) string {
	return "http://" + net.JoinHostPort("127.0.0.1", port) + "/health"
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(ctx context.Context, port string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthcheckURL(port), nil)
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

// isHTTPS はBASE_URLがhttpsかどうかを返す。CSRF Cookieのsecure属性に使用する。
func isHTTPS(baseURL string) bool {
	u, err := url.Parse(baseURL)
	return err == nil && u.Scheme == "https"
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	u.RawQuery = ""
	return u.Redacted()
}
