package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/brandpulse/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger         *slog.Logger
	TenantResolver middleware.TenantResolver
	RateLimiter    *middleware.RateLimiter

	// サービス
	ScheduleService   ScheduleServiceInterface
	CollectionService CollectionServiceInterface
	SnapshotReader    SnapshotReader
	ComparisonService ComparisonServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → TenantMiddleware → RateLimitMiddleware(GeneralMiddleware)
//
// ヘルスチェック（/health）はテナント解決の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))

	scheduleHandler := NewScheduleHandler(deps.ScheduleService)
	collectionHandler := NewCollectionHandler(deps.CollectionService)
	snapshotHandler := NewSnapshotHandler(deps.SnapshotReader)
	comparisonHandler := NewComparisonHandler(deps.ComparisonService)

	// --- 認証不要のルート ---

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	// --- テナント解決が必要なルート ---
	// ミドルウェアスタック: Tenant → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewTenantMiddleware(deps.TenantResolver))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// スケジュール設定
		r.Route("/api/schedule", func(r chi.Router) {
			r.Get("/", scheduleHandler.GetSchedule)
			r.Put("/", scheduleHandler.UpdateSchedule)
		})

		// 収集ジョブ
		r.Route("/api/collections", func(r chi.Router) {
			// POST /api/collections/run - 手動実行（実行専用レート制限を追加）
			r.With(deps.RateLimiter.RunTriggerMiddleware()).Post("/run", collectionHandler.RunCollection)

			r.Get("/", collectionHandler.ListCollections)
			r.Get("/{id}", collectionHandler.GetCollection)
		})

		// ダッシュボード用スナップショット
		r.Get("/api/snapshot", snapshotHandler.GetSnapshot)

		// センチメント比較
		r.Get("/api/comparison", comparisonHandler.GetComparison)
	})

	return r
}
