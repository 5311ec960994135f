package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/brandpulse/internal/middleware"
	"github.com/hitoshi/brandpulse/internal/model"
)

// ComparisonServiceInterface は比較ハンドラーが必要とするサービスインターフェース。
type ComparisonServiceInterface interface {
	// Compare はブランド対競合のセンチメント比較結果を生成する。
	Compare(ctx context.Context, tenantID, brand, competitor string) (*model.ComparisonResult, error)
}

// ComparisonHandler はセンチメント比較のHTTPハンドラー。
type ComparisonHandler struct {
	service ComparisonServiceInterface
}

// NewComparisonHandler はComparisonHandlerを生成する。
func NewComparisonHandler(service ComparisonServiceInterface) *ComparisonHandler {
	return &ComparisonHandler{service: service}
}

// reachResponse はリーチ推定のAPIレスポンス。
type reachResponse struct {
	MonthlyReach         int64   `json:"monthly_reach"`
	FinalEstimatedReach  int64   `json:"final_estimated_reach"`
	ReachRangeLow        int64   `json:"reach_range_low"`
	ReachRangeHigh       int64   `json:"reach_range_high"`
	PercentageMultiplier float64 `json:"percentage_multiplier"`
	VoiceOfShare         float64 `json:"voice_of_share"`
}

// sampleResponse は比較結果の代表レコードのAPIレスポンス。
type sampleResponse struct {
	Title          string         `json:"title"`
	URL            string         `json:"url"`
	SourceName     string         `json:"source_name"`
	PublishedAt    string         `json:"published_at"`
	SentimentScore int            `json:"sentiment_score"`
	SentimentLabel string         `json:"sentiment_label"`
	Reach          *reachResponse `json:"reach,omitempty"`
}

// aggregateResponse は1キーワード分の集計APIレスポンス。
type aggregateResponse struct {
	Keyword       string             `json:"keyword"`
	TotalRecords  int                `json:"total_records"`
	PositiveCount int                `json:"positive_count"`
	NeutralCount  int                `json:"neutral_count"`
	NegativeCount int                `json:"negative_count"`
	AverageScore  float64            `json:"average_score"`
	Distribution  map[string]float64 `json:"distribution"`
	Samples       []sampleResponse   `json:"samples"`
}

// comparisonResponse は比較結果全体のAPIレスポンス。
type comparisonResponse struct {
	Brand               aggregateResponse `json:"brand"`
	Competitor          aggregateResponse `json:"competitor"`
	SentimentDifference float64           `json:"sentiment_difference"`
	OverallWinner       string            `json:"overall_winner"`
	Confidence          string            `json:"confidence"`
	GeneratedAt         string            `json:"generated_at"`
}

func toAggregateResponse(agg model.KeywordAggregate) aggregateResponse {
	resp := aggregateResponse{
		Keyword:       agg.Keyword,
		TotalRecords:  agg.TotalRecords,
		PositiveCount: agg.PositiveCount,
		NeutralCount:  agg.NeutralCount,
		NegativeCount: agg.NegativeCount,
		AverageScore:  agg.AverageScore,
		Distribution: map[string]float64{
			"positive": agg.Distribution.Positive,
			"neutral":  agg.Distribution.Neutral,
			"negative": agg.Distribution.Negative,
		},
		Samples: make([]sampleResponse, len(agg.Samples)),
	}
	for i, sample := range agg.Samples {
		sr := sampleResponse{
			Title:          sample.Title,
			URL:            sample.URL,
			SourceName:     sample.SourceName,
			PublishedAt:    sample.PublishedAt.UTC().Format(time.RFC3339),
			SentimentScore: sample.SentimentScore,
			SentimentLabel: string(sample.SentimentLabel),
		}
		if sample.Reach != nil {
			sr.Reach = &reachResponse{
				MonthlyReach:         sample.Reach.MonthlyReach,
				FinalEstimatedReach:  sample.Reach.FinalEstimatedReach,
				ReachRangeLow:        sample.Reach.ReachRange.Low,
				ReachRangeHigh:       sample.Reach.ReachRange.High,
				PercentageMultiplier: sample.Reach.PercentageMultiplier,
				VoiceOfShare:         sample.Reach.VoiceOfShare,
			}
		}
		resp.Samples[i] = sr
	}
	return resp
}

// GetComparison はブランド対競合の比較結果を返す。
// GET /api/comparison?brand=X&competitor=Y
func (h *ComparisonHandler) GetComparison(w http.ResponseWriter, r *http.Request) {
	tenantID, err := middleware.TenantIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewAuthenticationRequiredError())
		return
	}

	brand := strings.TrimSpace(r.URL.Query().Get("brand"))
	competitor := strings.TrimSpace(r.URL.Query().Get("competitor"))
	if brand == "" || competitor == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidComparisonError("brandとcompetitorの両方のクエリパラメータが必要です"))
		return
	}

	result, err := h.service.Compare(r.Context(), tenantID, brand, competitor)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, comparisonResponse{
		Brand:               toAggregateResponse(result.Brand),
		Competitor:          toAggregateResponse(result.Competitor),
		SentimentDifference: result.SentimentDifference,
		OverallWinner:       result.OverallWinner,
		Confidence:          string(result.Confidence),
		GeneratedAt:         result.GeneratedAt.UTC().Format(time.RFC3339),
	})
}
