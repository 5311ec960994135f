package source

import (
	"testing"
	"time"

	"github.com/hitoshi/brandpulse/internal/model"
	"github.com/hitoshi/brandpulse/internal/security"
)

// TestNormalizeItem_AppliesDefaults は欠損フィールドへのデフォルト適用を検証する。
func TestNormalizeItem_AppliesDefaults(t *testing.T) {
	sanitizer := security.NewTextSanitizer()

	item := NormalizeItem(RawItem{}, "newsapi", sanitizer)

	if item.ExternalID == "" {
		t.Error("ExternalID should be generated when missing")
	}
	if item.Title != model.DefaultTitle {
		t.Errorf("Title = %q, want %q", item.Title, model.DefaultTitle)
	}
	if item.PublishedAt.IsZero() {
		t.Error("PublishedAt should default to fetch time")
	}
	if item.SentimentLabel != model.SentimentNeutral {
		t.Errorf("SentimentLabel = %s, want neutral", item.SentimentLabel)
	}
	if item.SentimentScore != 0 {
		t.Errorf("SentimentScore = %d, want 0", item.SentimentScore)
	}
	if item.Engagement == nil || item.Categories == nil || item.Topics == nil {
		t.Error("collections should default to empty, not nil")
	}
	if item.SourceName != "newsapi" {
		t.Errorf("SourceName = %s, want newsapi", item.SourceName)
	}
}

// TestNormalizeItem_PreservesProvidedValues は取得できた値がそのまま残ることを検証する。
func TestNormalizeItem_PreservesProvidedValues(t *testing.T) {
	sanitizer := security.NewTextSanitizer()
	published := time.Date(2026, 7, 15, 9, 0, 0, 0, time.UTC)
	score := -1

	item := NormalizeItem(RawItem{
		ID:             "ext-123",
		Title:          "Tesla recall announced",
		Description:    "Details of the recall",
		URL:            "https://example.com/recall",
		PublishedAt:    &published,
		SourceName:     "Example News",
		SentimentScore: &score,
		SentimentLabel: "negative",
		Engagement:     map[string]float64{"shares": 42},
	}, "newsapi", sanitizer)

	if item.ExternalID != "ext-123" {
		t.Errorf("ExternalID = %s, want ext-123", item.ExternalID)
	}
	if item.Title != "Tesla recall announced" {
		t.Errorf("Title = %q", item.Title)
	}
	if !item.PublishedAt.Equal(published) {
		t.Errorf("PublishedAt = %v, want %v", item.PublishedAt, published)
	}
	// アダプタのソース名より記事自身のソース名を優先する
	if item.SourceName != "Example News" {
		t.Errorf("SourceName = %s, want Example News", item.SourceName)
	}
	if item.SentimentScore != -1 || item.SentimentLabel != model.SentimentNegative {
		t.Errorf("sentiment = %d/%s, want -1/negative", item.SentimentScore, item.SentimentLabel)
	}
	if item.Engagement["shares"] != 42 {
		t.Errorf("Engagement[shares] = %f, want 42", item.Engagement["shares"])
	}
}

// TestNormalizeItem_SanitizesHTML はタイトルと説明文のHTML除去を検証する。
func TestNormalizeItem_SanitizesHTML(t *testing.T) {
	sanitizer := security.NewTextSanitizer()

	item := NormalizeItem(RawItem{
		Title:       "<b>Breaking</b> news",
		Description: `<script>alert("x")</script>plain text`,
	}, "newsapi", sanitizer)

	if item.Title != "Breaking news" {
		t.Errorf("Title = %q, want HTML stripped", item.Title)
	}
	if item.Description != "plain text" {
		t.Errorf("Description = %q, want script removed", item.Description)
	}
}

// TestNormalizeItem_ScoreDerivedFromLabel はスコア欠損時のラベル由来スコアを検証する。
func TestNormalizeItem_ScoreDerivedFromLabel(t *testing.T) {
	sanitizer := security.NewTextSanitizer()

	tests := []struct {
		label string
		want  int
	}{
		{"positive", 1},
		{"negative", -1},
		{"neutral", 0},
		{"garbage", 0},
		{"", 0},
	}

	for _, tt := range tests {
		item := NormalizeItem(RawItem{SentimentLabel: tt.label}, "newsapi", sanitizer)
		if item.SentimentScore != tt.want {
			t.Errorf("label %q: score = %d, want %d", tt.label, item.SentimentScore, tt.want)
		}
	}
}
