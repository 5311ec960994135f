package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/mmcdole/gofeed"
	"golang.org/x/time/rate"

	"github.com/hitoshi/brandpulse/internal/model"
	"github.com/hitoshi/brandpulse/internal/security"
)

// RSSNewsAdapter はキーワード検索RSS（Google News互換）のニュースアダプタ。
// APIキー不要のフォールバックソースとして常に有効化される。
type RSSNewsAdapter struct {
	baseURL     string
	client      *http.Client
	limiter     *rate.Limiter
	sanitizer   security.TextSanitizerService
	maxBodySize int64
}

// RSSNewsConfig はRSSNewsAdapterの設定パラメータ。
type RSSNewsConfig struct {
	BaseURL     string
	Timeout     time.Duration
	MaxBodySize int64
	RateLimit   float64
}

// NewRSSNewsAdapter はRSSNewsAdapterの新しいインスタンスを生成する。
func NewRSSNewsAdapter(cfg RSSNewsConfig, guard security.SSRFGuardService, sanitizer security.TextSanitizerService) *RSSNewsAdapter {
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 2.0
	}
	return &RSSNewsAdapter{
		baseURL:     cfg.BaseURL,
		client:      guard.NewSafeClient(cfg.Timeout),
		limiter:     rate.NewLimiter(rate.Limit(cfg.RateLimit), 1),
		sanitizer:   sanitizer,
		maxBodySize: cfg.MaxBodySize,
	}
}

// Name はソース名を返す。
func (a *RSSNewsAdapter) Name() string {
	return "news-rss"
}

// Kind はレコード種別を返す。
func (a *RSSNewsAdapter) Kind() model.RecordKind {
	return model.RecordKindNews
}

// Search はキーワード検索RSSフィードを取得してパースする。
func (a *RSSNewsAdapter) Search(ctx context.Context, keyword string) ([]model.SourceItem, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("レートリミッタの待機に失敗しました: %w", err)
	}

	endpoint := fmt.Sprintf("%s/search?q=%s", a.baseURL, url.QueryEscape(keyword))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("リクエスト作成に失敗しました: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml, */*")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("RSS検索リクエストに失敗しました: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("RSS検索が非成功ステータスを返しました: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, a.maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	parser := gofeed.NewParser()
	feed, err := parser.ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("RSSフィードの解析に失敗しました: %w", err)
	}

	items := make([]model.SourceItem, 0, len(feed.Items))
	for _, entry := range feed.Items {
		if entry == nil {
			continue
		}

		raw := RawItem{
			ID:          entry.GUID,
			Title:       entry.Title,
			Description: entry.Description,
			URL:         entry.Link,
		}

		// RSS項目のソース名: エントリ固有のソースがあれば優先
		if entry.Custom != nil {
			if name, ok := entry.Custom["source"]; ok && name != "" {
				raw.SourceName = name
			}
		}
		if raw.SourceName == "" && feed.Title != "" {
			raw.SourceName = feed.Title
		}

		if entry.PublishedParsed != nil {
			t := *entry.PublishedParsed
			raw.PublishedAt = &t
		} else if entry.UpdatedParsed != nil {
			t := *entry.UpdatedParsed
			raw.PublishedAt = &t
		}

		if entry.Image != nil {
			raw.Image = entry.Image.URL
		}
		if len(entry.Categories) > 0 {
			raw.Categories = entry.Categories
		}

		items = append(items, NormalizeItem(raw, a.Name(), a.sanitizer))
	}

	return items, nil
}

// compile-time interface check
var _ Adapter = (*RSSNewsAdapter)(nil)
