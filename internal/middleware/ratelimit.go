package middleware

import (
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiterConfig はレート制限の設定を保持する。
type RateLimiterConfig struct {
	GeneralRate     rate.Limit    // API全般のレート（req/sec）。120/60 = 2 req/sec
	GeneralBurst    int           // API全般のバーストサイズ
	RunTriggerRate  rate.Limit    // 手動収集実行のレート（req/sec）。10/60
	RunTriggerBurst int           // 手動収集実行のバーストサイズ
	CleanupInterval time.Duration // 期限切れエントリのクリーンアップ間隔
}

// DefaultRateLimiterConfig はデフォルトのレート制限設定を返す。
// API全般 120 req/min/tenant、手動収集実行 10 req/min/tenant。
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     rate.Limit(120.0 / 60.0), // 2 req/sec
		GeneralBurst:    120,
		RunTriggerRate:  rate.Limit(10.0 / 60.0), // ~0.167 req/sec
		RunTriggerBurst: 10,
		CleanupInterval: 5 * time.Minute,
	}
}

// tenantLimiter はテナントごとのレートリミッターとアクセス時刻を保持する。
type tenantLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter はテナントごとのレート制限を管理する。
// API全般のレート制限と手動収集実行のレート制限の2種類を提供する。
type RateLimiter struct {
	config RateLimiterConfig

	generalMu       sync.RWMutex
	generalLimiters map[string]*tenantLimiter

	runTriggerMu       sync.RWMutex
	runTriggerLimiters map[string]*tenantLimiter

	stopCh chan struct{}
}

// NewRateLimiter は新しいRateLimiterを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		config:             config,
		generalLimiters:    make(map[string]*tenantLimiter),
		runTriggerLimiters: make(map[string]*tenantLimiter),
		stopCh:             make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (rl *RateLimiter) Stop() {
	close(rl.stopCh)
}

// GeneralMiddleware はAPI全般のレート制限ミドルウェアを返す。
// リクエストコンテキストにテナントIDが含まれている必要がある（TenantMiddlewareの後に配置）。
func (rl *RateLimiter) GeneralMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenantID, err := TenantIDFromContext(r.Context())
			if err != nil {
				WriteAuthenticationRequired(w)
				return
			}

			limiter := rl.getOrCreateGeneralLimiter(tenantID)

			if !limiter.Allow() {
				writeRateLimitResponse(w, rl.config.GeneralRate)
				slog.Warn("rate limit exceeded",
					slog.String("tenant_id", tenantID),
					slog.String("limit_type", "general"),
				)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RunTriggerMiddleware は手動収集実行専用のレート制限ミドルウェアを返す。
// API全般のレート制限とは独立に動作する。
func (rl *RateLimiter) RunTriggerMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenantID, err := TenantIDFromContext(r.Context())
			if err != nil {
				WriteAuthenticationRequired(w)
				return
			}

			limiter := rl.getOrCreateRunTriggerLimiter(tenantID)

			if !limiter.Allow() {
				writeRateLimitResponse(w, rl.config.RunTriggerRate)
				slog.Warn("rate limit exceeded",
					slog.String("tenant_id", tenantID),
					slog.String("limit_type", "run_trigger"),
				)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// GeneralLimiterCount は現在管理されているAPI全般リミッターのエントリ数を返す。
// テストおよびメトリクス用。
func (rl *RateLimiter) GeneralLimiterCount() int {
	rl.generalMu.RLock()
	defer rl.generalMu.RUnlock()
	return len(rl.generalLimiters)
}

// RunTriggerLimiterCount は現在管理されている手動実行リミッターのエントリ数を返す。
// テストおよびメトリクス用。
func (rl *RateLimiter) RunTriggerLimiterCount() int {
	rl.runTriggerMu.RLock()
	defer rl.runTriggerMu.RUnlock()
	return len(rl.runTriggerLimiters)
}

// getOrCreateGeneralLimiter はテナントのAPI全般リミッターを取得または作成する。
func (rl *RateLimiter) getOrCreateGeneralLimiter(tenantID string) *rate.Limiter {
	rl.generalMu.RLock()
	tl, exists := rl.generalLimiters[tenantID]
	rl.generalMu.RUnlock()

	if exists {
		rl.generalMu.Lock()
		tl.lastAccess = time.Now()
		rl.generalMu.Unlock()
		return tl.limiter
	}

	rl.generalMu.Lock()
	defer rl.generalMu.Unlock()

	// ダブルチェック
	if tl, exists := rl.generalLimiters[tenantID]; exists {
		tl.lastAccess = time.Now()
		return tl.limiter
	}

	limiter := rate.NewLimiter(rl.config.GeneralRate, rl.config.GeneralBurst)
	rl.generalLimiters[tenantID] = &tenantLimiter{
		limiter:    limiter,
		lastAccess: time.Now(),
	}

	return limiter
}

// getOrCreateRunTriggerLimiter はテナントの手動実行リミッターを取得または作成する。
func (rl *RateLimiter) getOrCreateRunTriggerLimiter(tenantID string) *rate.Limiter {
	rl.runTriggerMu.RLock()
	tl, exists := rl.runTriggerLimiters[tenantID]
	rl.runTriggerMu.RUnlock()

	if exists {
		rl.runTriggerMu.Lock()
		tl.lastAccess = time.Now()
		rl.runTriggerMu.Unlock()
		return tl.limiter
	}

	rl.runTriggerMu.Lock()
	defer rl.runTriggerMu.Unlock()

	// ダブルチェック
	if tl, exists := rl.runTriggerLimiters[tenantID]; exists {
		tl.lastAccess = time.Now()
		return tl.limiter
	}

	limiter := rate.NewLimiter(rl.config.RunTriggerRate, rl.config.RunTriggerBurst)
	rl.runTriggerLimiters[tenantID] = &tenantLimiter{
		limiter:    limiter,
		lastAccess: time.Now(),
	}

	return limiter
}

// cleanupLoop はバックグラウンドで期限切れエントリを定期的にクリーンアップする。
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup は最終アクセス時刻がCleanupIntervalの2倍を超えたエントリを削除する。
func (rl *RateLimiter) cleanup() {
	ttl := rl.config.CleanupInterval * 2

	now := time.Now()

	rl.generalMu.Lock()
	for tenantID, tl := range rl.generalLimiters {
		if now.Sub(tl.lastAccess) > ttl {
			delete(rl.generalLimiters, tenantID)
		}
	}
	rl.generalMu.Unlock()

	rl.runTriggerMu.Lock()
	for tenantID, tl := range rl.runTriggerLimiters {
		if now.Sub(tl.lastAccess) > ttl {
			delete(rl.runTriggerLimiters, tenantID)
		}
	}
	rl.runTriggerMu.Unlock()
}

// writeRateLimitResponse は429 Too Many Requestsレスポンスを書き込む。
// Retry-Afterヘッダーにはトークンが補充されるまでの推定秒数を設定する。
func writeRateLimitResponse(w http.ResponseWriter, r rate.Limit) {
	// Retry-Afterの算出: 1トークンが補充されるまでの秒数
	retryAfterSec := int(math.Ceil(1.0 / float64(r)))
	if retryAfterSec < 1 {
		retryAfterSec = 1
	}

	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)

	json.NewEncoder(w).Encode(map[string]string{
		"code":     "rate_limit_exceeded",
		"message":  "Too many requests. Please try again later.",
		"category": "system",
		"action":   "Please wait and retry after the specified time.",
	})
}
