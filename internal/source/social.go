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

// SocialAdapter はソーシャル検索API（social-searcher互換）の
// プラットフォーム別アダプタ。プラットフォームごとに1インスタンス生成する。
type SocialAdapter struct {
	baseURL     string
	apiKey      string
	platform    string
	client      *http.Client
	limiter     *rate.Limiter
	sanitizer   security.TextSanitizerService
	maxBodySize int64
}

// SocialConfig はSocialAdapterの設定パラメータ。
type SocialConfig struct {
	BaseURL     string
	APIKey      string
	Platform    string
	Timeout     time.Duration
	MaxBodySize int64
	RateLimit   float64
}

// NewSocialAdapter はSocialAdapterの新しいインスタンスを生成する。
func NewSocialAdapter(cfg SocialConfig, guard security.SSRFGuardService, sanitizer security.TextSanitizerService) *SocialAdapter {
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 2.0
	}
	return &SocialAdapter{
		baseURL:     cfg.BaseURL,
		apiKey:      cfg.APIKey,
		platform:    cfg.Platform,
		client:      guard.NewSafeClient(cfg.Timeout),
		limiter:     rate.NewLimiter(rate.Limit(cfg.RateLimit), 1),
		sanitizer:   sanitizer,
		maxBodySize: cfg.MaxBodySize,
	}
}

// Name はプラットフォーム名を返す。
func (a *SocialAdapter) Name() string {
	return a.platform
}

// Kind はレコード種別を返す。
func (a *SocialAdapter) Kind() model.RecordKind {
	return model.RecordKindSocial
}

// socialSearchResponse はソーシャル検索APIのレスポンスボディ。
type socialSearchResponse struct {
	Posts []struct {
		ID        string `json:"postid"`
		Text      string `json:"text"`
		URL       string `json:"url"`
		Posted    string `json:"posted"`
		Network   string `json:"network"`
		Sentiment string `json:"sentiment"`
		Image     string `json:"image"`
		User      struct {
			Name  string `json:"name"`
			Image string `json:"image"`
		} `json:"user"`
		Popularity []struct {
			Name  string  `json:"name"`
			Count float64 `json:"count"`
		} `json:"popularity"`
		Tags []string `json:"tags"`
	} `json:"posts"`
}

// socialPostedLayout はposted列の日時フォーマット（例: "2026-08-30 14:05:00 +00000"）。
const socialPostedLayout = "2006-01-02 15:04:05 -07000"

// Search はキーワードでソーシャル投稿を検索する。
func (a *SocialAdapter) Search(ctx context.Context, keyword string) ([]model.SourceItem, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("レートリミッタの待機に失敗しました: %w", err)
	}

	endpoint := fmt.Sprintf("%s/search?q=%s&network=%s&key=%s",
		a.baseURL, url.QueryEscape(keyword), url.QueryEscape(a.platform), url.QueryEscape(a.apiKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("リクエスト作成に失敗しました: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ソーシャル検索リクエストに失敗しました: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ソーシャル検索が非成功ステータスを返しました: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, a.maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	var parsed socialSearchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("ソーシャル検索レスポンスの解析に失敗しました: %w", err)
	}

	items := make([]model.SourceItem, 0, len(parsed.Posts))
	for _, post := range parsed.Posts {
		raw := RawItem{
			ID:             post.ID,
			Title:          post.User.Name,
			Description:    post.Text,
			URL:            post.URL,
			SourceLogo:     post.User.Image,
			Image:          post.Image,
			SentimentLabel: post.Sentiment,
			Topics:         post.Tags,
		}

		if post.Posted != "" {
			if t, err := time.Parse(socialPostedLayout, post.Posted); err == nil {
				raw.PublishedAt = &t
			}
		}

		if len(post.Popularity) > 0 {
			raw.Engagement = make(map[string]float64, len(post.Popularity))
			for _, p := range post.Popularity {
				raw.Engagement[p.Name] = p.Count
			}
		}

		if payload, err := json.Marshal(post); err == nil {
			raw.Raw = payload
		}

		items = append(items, NormalizeItem(raw, a.Name(), a.sanitizer))
	}

	return items, nil
}

// compile-time interface check
var _ Adapter = (*SocialAdapter)(nil)
