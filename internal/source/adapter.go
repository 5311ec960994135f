// Package source はコンテンツソースアダプタを提供する。
// ニュース検索とソーシャル検索をキーワード単位の統一インターフェースで扱い、
// 欠損フィールドへのデフォルト適用（正規化）をこの境界で完結させる。
package source

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/brandpulse/internal/model"
	"github.com/hitoshi/brandpulse/internal/security"
)

// Adapter はコンテンツソースの統一フェッチインターフェース。
// 1つのニュースアダプタとN個のソーシャルプラットフォームアダプタが実装する。
type Adapter interface {
	// Name はソース/プラットフォーム名を返す（ログとメトリクスのラベルに使用）。
	Name() string

	// Kind はこのアダプタが返すレコード種別（news/social）を返す。
	Kind() model.RecordKind

	// Search はキーワードで検索し、正規化済みの結果一覧を返す。
	// 非成功レスポンスやネットワークエラーはエラーとして返し、
	// 空結果としての扱いは呼び出し側（コレクター）が行う。
	Search(ctx context.Context, keyword string) ([]model.SourceItem, error)
}

// RawItem はアダプタ固有のペイロードから抽出した正規化前の1件を表す。
// ポインタ/空値が欠損を表し、NormalizeItemでデフォルトが適用される。
type RawItem struct {
	ID             string
	Title          string
	Description    string
	URL            string
	PublishedAt    *time.Time
	SourceName     string
	SourceLogo     string
	Image          string
	SentimentScore *int
	SentimentLabel string
	Engagement     map[string]float64
	Categories     []string
	Topics         []string
	Raw            json.RawMessage
}

// NormalizeItem はRawItemにデフォルト値を適用してSourceItemへ変換する。
// 適用されるデフォルト:
//   - ExternalID: 欠損時はランダムトークン（uuid）を生成
//   - Title: 欠損時はプレースホルダー文字列
//   - PublishedAt: 欠損時は取得時刻
//   - SentimentScore: 欠損時はラベルから導出（positive=1, negative=-1, それ以外=0）
//   - SentimentLabel: 不正値・欠損時はneutral
//   - Engagement: 欠損時は空マップ
//   - Categories/Topics: 欠損時は空リスト
//
// タイトルと説明文はサニタイザーでHTMLを除去する。
// 欠損の可能性がある値はこの関数より先には伝播しない。
func NormalizeItem(raw RawItem, sourceName string, sanitizer security.TextSanitizerService) model.SourceItem {
	item := model.SourceItem{
		ExternalID:  raw.ID,
		Title:       sanitizer.SanitizeText(raw.Title),
		Description: sanitizer.SanitizeText(raw.Description),
		URL:         raw.URL,
		SourceName:  sourceName,
		SourceLogo:  raw.SourceLogo,
		Image:       raw.Image,
		Engagement:  raw.Engagement,
		Categories:  raw.Categories,
		Topics:      raw.Topics,
		RawPayload:  raw.Raw,
	}

	if raw.SourceName != "" {
		item.SourceName = raw.SourceName
	}
	if item.ExternalID == "" {
		item.ExternalID = uuid.NewString()
	}
	if item.Title == "" {
		item.Title = model.DefaultTitle
	}
	if raw.PublishedAt != nil {
		item.PublishedAt = *raw.PublishedAt
	} else {
		item.PublishedAt = time.Now().UTC()
	}

	item.SentimentLabel = normalizeSentimentLabel(raw.SentimentLabel)
	if raw.SentimentScore != nil {
		item.SentimentScore = *raw.SentimentScore
	} else {
		item.SentimentScore = scoreForLabel(item.SentimentLabel)
	}

	if item.Engagement == nil {
		item.Engagement = map[string]float64{}
	}
	if item.Categories == nil {
		item.Categories = []string{}
	}
	if item.Topics == nil {
		item.Topics = []string{}
	}

	return item
}

// normalizeSentimentLabel は外部ソースのラベルを正規のSentimentLabelへ変換する。
func normalizeSentimentLabel(label string) model.SentimentLabel {
	switch model.SentimentLabel(label) {
	case model.SentimentPositive:
		return model.SentimentPositive
	case model.SentimentNegative:
		return model.SentimentNegative
	default:
		return model.SentimentNeutral
	}
}

// scoreForLabel はスコア欠損時にラベルから代表スコアを導出する。
func scoreForLabel(label model.SentimentLabel) int {
	switch label {
	case model.SentimentPositive:
		return 1
	case model.SentimentNegative:
		return -1
	default:
		return 0
	}
}
