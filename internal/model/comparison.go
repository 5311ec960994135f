// Package model はドメインモデルを定義する。
package model

import "time"

// ConfidenceLevel は比較結果の勝者判定の信頼度を表す。
type ConfidenceLevel string

const (
	// ConfidenceHigh はサンプル数とスコア差が十分に大きい場合の信頼度。
	ConfidenceHigh ConfidenceLevel = "high"
	// ConfidenceMedium は中程度の信頼度。
	ConfidenceMedium ConfidenceLevel = "medium"
	// ConfidenceLow はサンプル数またはスコア差が小さい場合の信頼度。
	ConfidenceLow ConfidenceLevel = "low"
	// ConfidenceInsufficient はサンプルがほぼ存在せず判定不能な場合。
	// 高信頼として黙って報告せず、明示的にこの値を返す。
	ConfidenceInsufficient ConfidenceLevel = "insufficient"
)

// SentimentDistribution はセンチメント分布を合計比のパーセンテージで表す。
type SentimentDistribution struct {
	Positive float64
	Neutral  float64
	Negative float64
}

// KeywordAggregate は1キーワードに対する履歴レコードの集計結果を表す。
type KeywordAggregate struct {
	Keyword       string
	TotalRecords  int
	PositiveCount int
	NeutralCount  int
	NegativeCount int
	AverageScore  float64
	Distribution  SentimentDistribution
	// Samples はUI表示用の代表レコード（最大5件）。
	Samples []HistoricalRecord
}

// ComparisonResult はブランド対競合のセンチメント比較結果を表す。
type ComparisonResult struct {
	TenantID   string
	Brand      KeywordAggregate
	Competitor KeywordAggregate
	// SentimentDifference はbrand平均スコア - competitor平均スコア。
	SentimentDifference float64
	// OverallWinner は平均スコアが高い側のキーワード。引き分け時は"tie"。
	OverallWinner string
	Confidence    ConfidenceLevel
	GeneratedAt   time.Time
}

// ComparisonWinnerTie は引き分けを表すOverallWinnerの値。
const ComparisonWinnerTie = "tie"
