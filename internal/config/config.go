package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Content sources
	NewsAPIBaseURL   string
	NewsAPIKey       string
	NewsRSSBaseURL   string
	SocialAPIBaseURL string
	SocialAPIKey     string
	SocialPlatforms  []string

	// Fetch
	FetchTimeout       time.Duration
	FetchMaxSize       int64
	CollectMaxParallel int
	SourceRateLimit    float64

	// Store
	StoreTimeout time.Duration

	// Scheduler
	ReapStaleAfter time.Duration

	// Rate Limit
	RateLimitGeneral int

	// Server
	ServerPort string
}

// defaultSocialPlatforms はSOCIAL_PLATFORMS未設定時のプラットフォーム一覧。
var defaultSocialPlatforms = []string{"twitter", "reddit", "youtube"}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	// APIキーが空のアダプタは起動時のワイヤリングから除外される。
	// キー不要のRSSアダプタは常に有効。
	cfg.NewsAPIBaseURL = getEnvString("NEWS_API_BASE_URL", "https://newsapi.org/v2")
	cfg.NewsAPIKey = os.Getenv("NEWS_API_KEY")
	cfg.NewsRSSBaseURL = getEnvString("NEWS_RSS_BASE_URL", "https://news.google.com/rss")
	cfg.SocialAPIBaseURL = getEnvString("SOCIAL_API_BASE_URL", "https://api.social-searcher.com/v2")
	cfg.SocialAPIKey = os.Getenv("SOCIAL_API_KEY")
	cfg.SocialPlatforms = getEnvList("SOCIAL_PLATFORMS", defaultSocialPlatforms)

	cfg.FetchTimeout = getEnvDuration("FETCH_TIMEOUT", 15*time.Second)
	cfg.FetchMaxSize = getEnvInt64("FETCH_MAX_SIZE", 5242880)
	cfg.CollectMaxParallel = getEnvInt("COLLECT_MAX_PARALLEL", 8)
	cfg.SourceRateLimit = getEnvFloat("SOURCE_RATE_LIMIT", 2.0)

	cfg.StoreTimeout = getEnvDuration("STORE_TIMEOUT", 10*time.Second)
	cfg.ReapStaleAfter = getEnvDuration("REAP_STALE_AFTER", 6*time.Hour)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func getEnvList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
