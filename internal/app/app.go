package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/playnet/internal/auth"
	"github.com/hitoshi/playnet/internal/community"
	"github.com/hitoshi/playnet/internal/config"
	"github.com/hitoshi/playnet/internal/database"
	"github.com/hitoshi/playnet/internal/handler"
	"github.com/hitoshi/playnet/internal/logger"
	"github.com/hitoshi/playnet/internal/mail"
	"github.com/hitoshi/playnet/internal/membership"
	"github.com/hitoshi/playnet/internal/metrics"
	"github.com/hitoshi/playnet/internal/middleware"
	"github.com/hitoshi/playnet/internal/repository"
	"github.com/hitoshi/playnet/internal/security"
	"github.com/hitoshi/playnet/internal/token"
	"github.com/hitoshi/playnet/internal/user"
	"github.com/hitoshi/playnet/internal/worker/cleanup"
)

const defaultPort = "4000"

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.SetLevel(cfg.LogLevel)
	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = defaultPort
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("env", cfg.Environment),
		slog.String("port", cfg.ServerPort),
		slog.Bool("google_enabled", cfg.GoogleEnabled),
		slog.Bool("mail_configured", cfg.MailConfigured),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandCleanup:
		return runCleanupOnce(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := database.Ping(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)
	return db, nil
}

// newMailer はSMTP設定がある場合のみ実際に送信するMailerを返す。
func newMailer(cfg *config.Config) mail.Mailer {
	if !cfg.MailConfigured {
		return mail.NoopMailer{}
	}
	return mail.NewSMTPMailer(mail.SMTPConfig{
		Host:      cfg.SMTPHost,
		Port:      cfg.SMTPPort,
		User:      cfg.SMTPUser,
		Pass:      cfg.SMTPPass,
		From:      cfg.SMTPFrom,
		Secure:    cfg.SMTPSecure,
		AppName:   cfg.AppName,
		ExpiresIn: humanDuration(cfg.ResetTokenTTL),
	})
}

// newOAuthProvider はGoogle OAuthの設定が揃っている場合のみプロバイダーを返す。
func newOAuthProvider(cfg *config.Config) auth.OAuthProvider {
	if !cfg.GoogleEnabled {
		return nil
	}
	return auth.NewGoogleOAuthProvider(auth.GoogleOAuthConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleCallbackURL,
	})
}

// buildRouter は全依存関係をワイヤリングしてHTTPハンドラーを構築する。
func buildRouter(cfg *config.Config, db *sql.DB, reg *prometheus.Registry) (http.Handler, error) {
	collector := metrics.NewCollector(reg)

	// 1. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	identRepo := repository.NewPostgresIdentityRepo(db)
	resetRepo := repository.NewPostgresPasswordResetRepo(db)
	communityRepo := repository.NewPostgresCommunityRepo(db)
	memberRepo := repository.NewPostgresMembershipRepo(db)
	inviteRepo := repository.NewPostgresInviteRepo(db)
	messageRepo := repository.NewPostgresMessageRepo(db)

	// 2. 資格情報とトークン
	hasher, err := auth.NewPasswordHasher(cfg.PasswordPepper, cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to create password hasher: %w", err)
	}
	codec, err := token.NewCodec(cfg.AuthTokenSecret, cfg.AuthTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to create token codec: %w", err)
	}

	// 3. ドメインサービスの初期化
	authService := auth.NewService(auth.Dependencies{
		OAuth:     newOAuthProvider(cfg),
		Users:     userRepo,
		Identity:  identRepo,
		Resets:    resetRepo,
		Hasher:    hasher,
		Tokens:    codec,
		Mailer:    newMailer(cfg),
		Collector: collector,
	}, auth.ServiceConfig{
		FrontendURL:   cfg.FrontendURL,
		ResetTokenTTL: cfg.ResetTokenTTL,
		Production:    cfg.Production,
	})
	userService := user.NewService(userRepo, authService)
	communityService := community.NewService(communityRepo, memberRepo, messageRepo, security.NewContentSanitizer(), collector)
	membershipService := membership.NewService(communityRepo, memberRepo, inviteRepo, collector)

	// 4. ルーターの構築
	deps := &handler.RouterDeps{
		Tokens:         codec,
		Users:          userRepo,
		CORS:           middleware.CORSConfig{AllowedOrigins: cfg.CORSAllowedOrigins, AllowVercelPreviews: cfg.AllowVercelPreviews},
		Logger:         slog.Default(),
		Metrics:        collector,
		MetricsHandler: metrics.Handler(reg),

		AuthService:    authService,
		ProfileService: userService,
		AuthConfig: handler.AuthHandlerConfig{
			FrontendURL:  cfg.FrontendURL,
			CookieDomain: cfg.CookieDomain,
			Production:   cfg.Production,
			CookieSecure: cfg.CookieSecure,
		},

		CommunityService:  communityService,
		MembershipService: membershipService,
		AdminService:      userService,

		DB: handler.PingerFunc(func(ctx context.Context) error { return database.Ping(ctx, db) }),
	}

	return handler.NewRouter(deps), nil
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	router, err := buildRouter(cfg, db, reg)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server listen error: %w", err)
	case <-stop:
	}
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 期限切れ・使用済みのパスワードリセット要求を定期的に削除する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	job := newCleanupJob(cfg, db, collector)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	// ワーカーはHTTP APIを持たないため、同じポートでメトリクスのみ公開する
	metricsServer := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           metrics.SetupMetricsRoute(reg),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("worker metrics server error", slog.String("error", err.Error()))
		}
	}()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		metricsServer.Shutdown(shutdownCtx)
	}()

	slog.Info("worker starting",
		slog.Duration("cleanup_interval", cfg.CleanupInterval),
		slog.Duration("reset_retention", job.Retention),
	)

	// ブロッキング。ctxのキャンセルで戻る
	job.Start(ctx, cfg.CleanupInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// newCleanupJob は設定の保持期間を反映したクリーンアップジョブを返す。
func newCleanupJob(cfg *config.Config, db *sql.DB, collector metrics.MetricsCollector) *cleanup.CleanupJob {
	job := cleanup.NewCleanupJob(db, slog.Default(), collector)
	if cfg.ResetRetention > 0 {
		job.Retention = cfg.ResetRetention
	}
	return job
}

// runCleanupOnce はリセット要求の削除を1回実行して終了する。
func runCleanupOnce(cfg *config.Config) error {
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if _, err := newCleanupJob(cfg, db, nil).Run(ctx); err != nil {
		return fmt.Errorf("cleanup failed: %w", err)
	}
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}

// humanDuration はメール本文用に有効期間を "1 hour" のような表記にする。
func humanDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "1 hour"
	case d%time.Hour == 0:
		h := int(d / time.Hour)
		if h == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", h)
	default:
		m := int(d / time.Minute)
		if m == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", m)
	}
}
