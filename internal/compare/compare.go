// Package compare はブランドと競合キーワードのセンチメント比較を提供する。
package compare

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/hitoshi/brandpulse/internal/enrich"
	"github.com/hitoshi/brandpulse/internal/model"
	"github.com/hitoshi/brandpulse/internal/repository"
)

// KeywordMatcher は履歴レコードがキーワードに属するかの判定戦略。
// デフォルトは大文字小文字を無視した完全一致または部分一致。
type KeywordMatcher interface {
	// Matches はレコードのキーワードが対象キーワードに属する場合にtrueを返す。
	Matches(recordKeyword, targetKeyword string) bool
}

// DefaultMatcher は大文字小文字を無視し、完全一致または
// どちらかがもう一方を含む場合にマッチとする。
type DefaultMatcher struct{}

var _ KeywordMatcher = (*DefaultMatcher)(nil)

// Matches はKeywordMatcherの実装。
func (m *DefaultMatcher) Matches(recordKeyword, targetKeyword string) bool {
	r := strings.ToLower(strings.TrimSpace(recordKeyword))
	t := strings.ToLower(strings.TrimSpace(targetKeyword))
	if r == "" || t == "" {
		return false
	}
	return r == t || strings.Contains(r, t) || strings.Contains(t, r)
}

const (
	// recentRecordLimit は比較1回あたりの読み取り上限（種別ごと）。
	recentRecordLimit = 2000

	// maxSamples は片側あたりのUI表示用サンプル件数上限。
	maxSamples = 5

	// tieThreshold はこの閾値未満のスコア差を引き分けとみなす。
	tieThreshold = 0.01
)

// Engine はセンチメント比較エンジン。
type Engine struct {
	historicalRepo repository.HistoricalRepository
	matcher        KeywordMatcher
	now            func() time.Time
}

// NewEngine は比較エンジンを作成する。matcherがnilの場合はDefaultMatcherを使用する。
func NewEngine(historicalRepo repository.HistoricalRepository, matcher KeywordMatcher) *Engine {
	if matcher == nil {
		matcher = &DefaultMatcher{}
	}
	return &Engine{
		historicalRepo: historicalRepo,
		matcher:        matcher,
		now:            time.Now,
	}
}

// Compare はテナントの履歴レコードからブランド対競合の比較結果を生成する。
// 集計は対称: Compare(a, b)とCompare(b, a)は勝者と信頼度が一致し、
// SentimentDifferenceの符号のみ反転する。
func (e *Engine) Compare(ctx context.Context, tenantID, brand, competitor string) (*model.ComparisonResult, error) {
	if strings.TrimSpace(brand) == "" || strings.TrimSpace(competitor) == "" {
		return nil, model.NewInvalidComparisonError("brandとcompetitorは必須です")
	}

	records, err := e.loadRecent(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("履歴レコードの読み取りに失敗: %w", err)
	}

	brandAgg := e.aggregate(records, brand)
	competitorAgg := e.aggregate(records, competitor)

	diff := brandAgg.AverageScore - competitorAgg.AverageScore

	winner := model.ComparisonWinnerTie
	if math.Abs(diff) >= tieThreshold {
		if diff > 0 {
			winner = brand
		} else {
			winner = competitor
		}
	}

	return &model.ComparisonResult{
		TenantID:            tenantID,
		Brand:               brandAgg,
		Competitor:          competitorAgg,
		SentimentDifference: diff,
		OverallWinner:       winner,
		Confidence:          confidence(brandAgg, competitorAgg, diff),
		GeneratedAt:         e.now().UTC(),
	}, nil
}

// loadRecent はニュースとソーシャル両種別の直近レコードを読み取って結合する。
func (e *Engine) loadRecent(ctx context.Context, tenantID string) ([]model.HistoricalRecord, error) {
	news, err := e.historicalRepo.ListRecentByTenant(ctx, tenantID, model.RecordKindNews, recentRecordLimit)
	if err != nil {
		return nil, err
	}
	social, err := e.historicalRepo.ListRecentByTenant(ctx, tenantID, model.RecordKindSocial, recentRecordLimit)
	if err != nil {
		return nil, err
	}
	return append(news, social...), nil
}

// aggregate はキーワードにマッチするレコードを集計する。
// サンプルはリーチ指標を付与した上で最大maxSamples件を返す。
func (e *Engine) aggregate(records []model.HistoricalRecord, keyword string) model.KeywordAggregate {
	agg := model.KeywordAggregate{Keyword: keyword}

	var scoreSum int
	for _, record := range records {
		if !e.matcher.Matches(record.Keyword, keyword) {
			continue
		}
		agg.TotalRecords++
		scoreSum += record.SentimentScore

		switch record.SentimentLabel {
		case model.SentimentPositive:
			agg.PositiveCount++
		case model.SentimentNegative:
			agg.NegativeCount++
		default:
			agg.NeutralCount++
		}

		if len(agg.Samples) < maxSamples {
			agg.Samples = append(agg.Samples, enrich.Enrich(record))
		}
	}

	if agg.TotalRecords > 0 {
		total := float64(agg.TotalRecords)
		agg.AverageScore = float64(scoreSum) / total
		agg.Distribution = model.SentimentDistribution{
			Positive: float64(agg.PositiveCount) / total * 100.0,
			Neutral:  float64(agg.NeutralCount) / total * 100.0,
			Negative: float64(agg.NegativeCount) / total * 100.0,
		}
	}

	return agg
}

// confidence はサンプル数とスコア差から勝者判定の信頼度を導出する。
// 両側の集計順序に依存しないため、比較の対称性を壊さない。
func confidence(a, b model.KeywordAggregate, diff float64) model.ConfidenceLevel {
	minRecords := a.TotalRecords
	if b.TotalRecords < minRecords {
		minRecords = b.TotalRecords
	}

	// どちらかの側にレコードがほぼ無ければ判定不能
	if minRecords < 3 {
		return model.ConfidenceInsufficient
	}

	gap := math.Abs(diff)
	switch {
	case minRecords >= 30 && gap >= 0.3:
		return model.ConfidenceHigh
	case minRecords >= 10 && gap >= 0.1:
		return model.ConfidenceMedium
	default:
		return model.ConfidenceLow
	}
}
