package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/brandpulse/internal/model"
)

// --- モック定義 ---

// mockComparisonService はComparisonServiceInterfaceのテスト用モック。
type mockComparisonService struct {
	compareFunc func(ctx context.Context, tenantID, brand, competitor string) (*model.ComparisonResult, error)
}

func (m *mockComparisonService) Compare(ctx context.Context, tenantID, brand, competitor string) (*model.ComparisonResult, error) {
	if m.compareFunc != nil {
		return m.compareFunc(ctx, tenantID, brand, competitor)
	}
	return nil, nil
}

func sampleComparisonResult() *model.ComparisonResult {
	return &model.ComparisonResult{
		TenantID: "tenant-1",
		Brand: model.KeywordAggregate{
			Keyword:       "tesla",
			TotalRecords:  12,
			PositiveCount: 7,
			NeutralCount:  3,
			NegativeCount: 2,
			AverageScore:  0.42,
			Distribution:  model.SentimentDistribution{Positive: 58.3, Neutral: 25.0, Negative: 16.7},
			Samples: []model.HistoricalRecord{
				{
					Title:          "article",
					URL:            "https://www.bbc.co.uk/news/1",
					SourceName:     "bbc",
					PublishedAt:    time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC),
					SentimentScore: 1,
					SentimentLabel: model.SentimentPositive,
					Reach: &model.EnrichedReach{
						MonthlyReach:         35_000_000,
						FinalEstimatedReach:  2_800_000,
						ReachRange:           model.ReachRange{Low: 2_240_000, High: 3_360_000},
						PercentageMultiplier: 0.08,
						VoiceOfShare:         12.5,
					},
				},
			},
		},
		Competitor: model.KeywordAggregate{
			Keyword:      "rivian",
			TotalRecords: 8,
			AverageScore: 0.10,
			Samples:      []model.HistoricalRecord{},
		},
		SentimentDifference: 0.32,
		OverallWinner:       "tesla",
		Confidence:          model.ConfidenceMedium,
		GeneratedAt:         time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC),
	}
}

// TestGetComparison はクエリパラメータがサービスへ渡り、比較結果が
// 期待する形で返ることを検証する。
func TestGetComparison(t *testing.T) {
	var gotBrand, gotCompetitor string
	svc := &mockComparisonService{
		compareFunc: func(ctx context.Context, tenantID, brand, competitor string) (*model.ComparisonResult, error) {
			gotBrand = brand
			gotCompetitor = competitor
			return sampleComparisonResult(), nil
		},
	}
	h := NewComparisonHandler(svc)

	rec := httptest.NewRecorder()
	h.GetComparison(rec, tenantRequest(http.MethodGet, "/api/comparison?brand=tesla&competitor=rivian", ""))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if gotBrand != "tesla" || gotCompetitor != "rivian" {
		t.Errorf("service received brand=%q competitor=%q", gotBrand, gotCompetitor)
	}

	var resp comparisonResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if resp.OverallWinner != "tesla" || resp.Confidence != "medium" {
		t.Errorf("winner = %q, confidence = %q", resp.OverallWinner, resp.Confidence)
	}
	if resp.Brand.TotalRecords != 12 || resp.Competitor.TotalRecords != 8 {
		t.Errorf("total records = %d/%d", resp.Brand.TotalRecords, resp.Competitor.TotalRecords)
	}
	if resp.Brand.Distribution["positive"] != 58.3 {
		t.Errorf("positive distribution = %v", resp.Brand.Distribution["positive"])
	}
	if len(resp.Brand.Samples) != 1 {
		t.Fatalf("samples = %d, want 1", len(resp.Brand.Samples))
	}
	if resp.Brand.Samples[0].Reach == nil || resp.Brand.Samples[0].Reach.VoiceOfShare != 12.5 {
		t.Errorf("sample reach = %+v", resp.Brand.Samples[0].Reach)
	}
}

// TestGetComparison_MissingParams はクエリパラメータの欠落が400で
// 拒否され、サービスが呼ばれないことを検証する。
func TestGetComparison_MissingParams(t *testing.T) {
	tests := []struct {
		name   string
		target string
	}{
		{name: "両方欠落", target: "/api/comparison"},
		{name: "competitor欠落", target: "/api/comparison?brand=tesla"},
		{name: "brand欠落", target: "/api/comparison?competitor=rivian"},
		{name: "空白のみ", target: "/api/comparison?brand=%20&competitor=rivian"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			svc := &mockComparisonService{
				compareFunc: func(ctx context.Context, tenantID, brand, competitor string) (*model.ComparisonResult, error) {
					called = true
					return nil, nil
				},
			}
			h := NewComparisonHandler(svc)

			rec := httptest.NewRecorder()
			h.GetComparison(rec, tenantRequest(http.MethodGet, tt.target, ""))

			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
			if called {
				t.Error("service should not be called")
			}
		})
	}
}

// TestGetComparison_ServiceError はサービス層のINVALID_COMPARISONが
// 400へ変換されることを検証する。
func TestGetComparison_ServiceError(t *testing.T) {
	svc := &mockComparisonService{
		compareFunc: func(ctx context.Context, tenantID, brand, competitor string) (*model.ComparisonResult, error) {
			return nil, model.NewInvalidComparisonError("brandとcompetitorは必須です")
		},
	}
	h := NewComparisonHandler(svc)

	rec := httptest.NewRecorder()
	h.GetComparison(rec, tenantRequest(http.MethodGet, "/api/comparison?brand=tesla&competitor=rivian", ""))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}
