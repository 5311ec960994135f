package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/brandpulse/internal/model"
	"github.com/hitoshi/brandpulse/internal/security"
)

// userAgent は全アダプタの外向きリクエストに付与するUser-Agent。
const userAgent = "BrandPulse/1.0 Reputation Monitor"

// NewsAPIAdapter はニュース検索API（newsapi.org互換）のアダプタ。
type NewsAPIAdapter struct {
	baseURL     string
	apiKey      string
	client      *http.Client
	limiter     *rate.Limiter
	sanitizer   security.TextSanitizerService
	maxBodySize int64
	pageSize    int
}

// NewsAPIConfig はNewsAPIAdapterの設定パラメータ。
type NewsAPIConfig struct {
	BaseURL     string
	APIKey      string
	Timeout     time.Duration
	MaxBodySize int64
	// RateLimit は1秒あたりの最大リクエスト数。
	RateLimit float64
	// PageSize は1回の検索で要求する件数（デフォルト: 20）。
	PageSize int
}

// NewNewsAPIAdapter はNewsAPIAdapterの新しいインスタンスを生成する。
// 外向きHTTPはSSRF防止機能付きクライアントを使用する。
func NewNewsAPIAdapter(cfg NewsAPIConfig, guard security.SSRFGuardService, sanitizer security.TextSanitizerService) *NewsAPIAdapter {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 20
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 2.0
	}
	return &NewsAPIAdapter{
		baseURL:     cfg.BaseURL,
		apiKey:      cfg.APIKey,
		client:      guard.NewSafeClient(cfg.Timeout),
		limiter:     rate.NewLimiter(rate.Limit(cfg.RateLimit), 1),
		sanitizer:   sanitizer,
		maxBodySize: cfg.MaxBodySize,
		pageSize:    cfg.PageSize,
	}
}

// Name はソース名を返す。
func (a *NewsAPIAdapter) Name() string {
	return "newsapi"
}

// Kind はレコード種別を返す。
func (a *NewsAPIAdapter) Kind() model.RecordKind {
	return model.RecordKindNews
}

// newsAPIResponse はニュース検索APIのレスポンスボディ。
// フィールドは欠損しうるため、正規化はNormalizeItemで行う。
type newsAPIResponse struct {
	Status   string `json:"status"`
	Articles []struct {
		Source struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"source"`
		Title       string  `json:"title"`
		Description string  `json:"description"`
		URL         string  `json:"url"`
		URLToImage  string  `json:"urlToImage"`
		PublishedAt string  `json:"publishedAt"`
		Sentiment   *struct {
			Score int    `json:"score"`
			Label string `json:"label"`
		} `json:"sentiment"`
		Categories []string `json:"categories"`
		Topics     []string `json:"topics"`
	} `json:"articles"`
}

// Search はキーワードでニュース記事を検索する。
func (a *NewsAPIAdapter) Search(ctx context.Context, keyword string) ([]model.SourceItem, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("レートリミッタの待機に失敗しました: %w", err)
	}

	endpoint := fmt.Sprintf("%s/everything?q=%s&pageSize=%d&sortBy=publishedAt",
		a.baseURL, url.QueryEscape(keyword), a.pageSize)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("リクエスト作成に失敗しました: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Api-Key", a.apiKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ニュース検索リクエストに失敗しました: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ニュース検索が非成功ステータスを返しました: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, a.maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	var parsed newsAPIResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("ニュース検索レスポンスの解析に失敗しました: %w", err)
	}

	items := make([]model.SourceItem, 0, len(parsed.Articles))
	for _, article := range parsed.Articles {
		raw := RawItem{
			Title:       article.Title,
			Description: article.Description,
			URL:         article.URL,
			SourceName:  article.Source.Name,
			Image:       article.URLToImage,
			Categories:  article.Categories,
			Topics:      article.Topics,
		}

		if article.PublishedAt != "" {
			if t, err := time.Parse(time.RFC3339, article.PublishedAt); err == nil {
				raw.PublishedAt = &t
			}
		}
		if article.Sentiment != nil {
			score := article.Sentiment.Score
			raw.SentimentScore = &score
			raw.SentimentLabel = article.Sentiment.Label
		}
		if payload, err := json.Marshal(article); err == nil {
			raw.Raw = payload
		}

		items = append(items, NormalizeItem(raw, a.Name(), a.sanitizer))
	}

	return items, nil
}

// compile-time interface check
var _ Adapter = (*NewsAPIAdapter)(nil)
