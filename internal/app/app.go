// Package app はアプリケーションの起動と依存関係のワイヤリングを提供する。
package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/hitoshi/brandpulse/internal/collector"
	"github.com/hitoshi/brandpulse/internal/compare"
	"github.com/hitoshi/brandpulse/internal/config"
	"github.com/hitoshi/brandpulse/internal/database"
	"github.com/hitoshi/brandpulse/internal/handler"
	"github.com/hitoshi/brandpulse/internal/ingest"
	"github.com/hitoshi/brandpulse/internal/logger"
	"github.com/hitoshi/brandpulse/internal/metrics"
	"github.com/hitoshi/brandpulse/internal/middleware"
	"github.com/hitoshi/brandpulse/internal/repository"
	"github.com/hitoshi/brandpulse/internal/scheduler"
	"github.com/hitoshi/brandpulse/internal/security"
	"github.com/hitoshi/brandpulse/internal/source"
)

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
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// pipeline はワイヤリング済みの収集パイプラインと読み取り系サービスをまとめる。
type pipeline struct {
	scheduler *scheduler.Service
	comparer  *compare.Engine
	snapRepo  repository.SnapshotRepository
	collector *metrics.Collector
	registry  *prometheus.Registry
}

// buildPipeline は全依存関係をワイヤリングする。
func buildPipeline(cfg *config.Config, db *sql.DB) *pipeline {
	// 1. リポジトリの初期化
	scheduleRepo := repository.NewPostgresScheduleSettingsRepo(db)
	keywordRepo := repository.NewPostgresKeywordRepo(db)
	jobRepo := repository.NewPostgresCollectionJobRepo(db)
	histRepo := repository.NewPostgresHistoricalRepo(db)
	snapRepo := repository.NewPostgresSnapshotRepo(db)

	// 2. セキュリティサービスの初期化
	ssrfGuard := security.NewSSRFGuard()
	sanitizer := security.NewTextSanitizer()

	// 3. メトリクスの初期化
	registry := prometheus.NewRegistry()
	metricsCollector := metrics.NewCollector(registry)

	// 4. ソースアダプタの初期化
	// APIキー不要のRSSソースは常に有効。キーが必要なソースは設定時のみ有効
	adapters := []source.Adapter{
		source.NewRSSNewsAdapter(source.RSSNewsConfig{
			BaseURL:     cfg.NewsRSSBaseURL,
			Timeout:     cfg.FetchTimeout,
			MaxBodySize: cfg.FetchMaxSize,
			RateLimit:   cfg.SourceRateLimit,
		}, ssrfGuard, sanitizer),
	}
	if cfg.NewsAPIKey != "" {
		adapters = append(adapters, source.NewNewsAPIAdapter(source.NewsAPIConfig{
			BaseURL:     cfg.NewsAPIBaseURL,
			APIKey:      cfg.NewsAPIKey,
			Timeout:     cfg.FetchTimeout,
			MaxBodySize: cfg.FetchMaxSize,
			RateLimit:   cfg.SourceRateLimit,
		}, ssrfGuard, sanitizer))
	}
	if cfg.SocialAPIKey != "" {
		for _, platform := range cfg.SocialPlatforms {
			adapters = append(adapters, source.NewSocialAdapter(source.SocialConfig{
				BaseURL:     cfg.SocialAPIBaseURL,
				APIKey:      cfg.SocialAPIKey,
				Platform:    platform,
				Timeout:     cfg.FetchTimeout,
				MaxBodySize: cfg.FetchMaxSize,
				RateLimit:   cfg.SourceRateLimit,
			}, ssrfGuard, sanitizer))
		}
	}

	// 5. パイプラインの組み立て
	col := collector.NewCollector(adapters, slog.Default(), metricsCollector,
		cfg.FetchTimeout, cfg.CollectMaxParallel)
	persister := ingest.NewPersister(jobRepo, histRepo, snapRepo, slog.Default(),
		metricsCollector, cfg.StoreTimeout)
	sched := scheduler.NewService(scheduleRepo, keywordRepo, jobRepo, col, persister,
		slog.Default(), metricsCollector, cfg.ReapStaleAfter)
	comparer := compare.NewEngine(histRepo, nil)

	return &pipeline{
		scheduler: sched,
		comparer:  comparer,
		snapRepo:  snapRepo,
		collector: metricsCollector,
		registry:  registry,
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、スケジューラとHTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	p := buildPipeline(cfg, db)

	// 2. スケジューラの起動（残留ジョブ回収を含む）
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := p.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer p.scheduler.Stop()

	// 3. ルーターの構築
	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	if cfg.RateLimitGeneral > 0 {
		// configのRateLimitGeneralはreq/min単位なのでreq/secに変換する
		rateLimiterCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
		rateLimiterCfg.GeneralBurst = cfg.RateLimitGeneral
	}
	rateLimiter := middleware.NewRateLimiter(rateLimiterCfg)
	defer rateLimiter.Stop()

	deps := &handler.RouterDeps{
		Logger:         slog.Default(),
		TenantResolver: &middleware.HeaderTenantResolver{},
		RateLimiter:    rateLimiter,

		ScheduleService:   p.scheduler,
		CollectionService: p.scheduler,
		SnapshotReader:    p.snapRepo,
		ComparisonService: p.comparer,
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(p.registry))
	mux.Handle("/", handler.NewRouter(deps))

	// 4. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// APIは公開せず、スケジューラとメトリクスエンドポイントのみ動作する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	p := buildPipeline(cfg, db)

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	// 2. スケジューラの起動（残留ジョブ回収を含む）
	if err := p.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	// 3. メトリクスとヘルスチェックのHTTPサーバー
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(p.registry))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("worker metrics server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down worker...")
	cancel()
	p.scheduler.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("worker stopped gracefully")
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
