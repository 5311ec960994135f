// Package model はドメインモデルを定義する。
package model

import (
	"encoding/json"
	"time"
)

// SentimentLabel はセンチメントの粗分類を表す。
type SentimentLabel string

const (
	// SentimentPositive はポジティブなセンチメント。
	SentimentPositive SentimentLabel = "positive"
	// SentimentNeutral はニュートラルなセンチメント。
	SentimentNeutral SentimentLabel = "neutral"
	// SentimentNegative はネガティブなセンチメント。
	SentimentNegative SentimentLabel = "negative"
)

// RecordKind は履歴レコードの種別（ニュース/ソーシャル）を表す。
type RecordKind string

const (
	// RecordKindNews はニュース記事の履歴レコード。
	RecordKindNews RecordKind = "news"
	// RecordKindSocial はソーシャル投稿の履歴レコード。
	RecordKindSocial RecordKind = "social"
)

// DefaultTitle はソースがタイトルを返さなかった場合のプレースホルダー。
const DefaultTitle = "(no title)"

// SourceItem はアダプタ境界で正規化された1件の取得結果を表す。
// 全フィールドにデフォルト値が適用済みで、欠損の可能性がある値は
// コレクターより先には伝播しない。
type SourceItem struct {
	ExternalID     string
	Title          string
	Description    string
	URL            string
	PublishedAt    time.Time
	SourceName     string
	SourceLogo     string
	Image          string
	SentimentScore int
	SentimentLabel SentimentLabel
	Engagement     map[string]float64
	Categories     []string
	Topics         []string
	RawPayload     json.RawMessage
}

// KeywordResult は1キーワードに対する全アダプタの取得結果を表す。
type KeywordResult struct {
	Keyword string
	News    []SourceItem
	Social  []SourceItem
}

// HistoricalRecord は永続化された1件のニュース記事またはソーシャル投稿を表す。
// インジェスターのみが作成し、作成後は不変。TTLなしで無期限保持される。
type HistoricalRecord struct {
	ID              string
	TenantID        string
	Keyword         string
	CollectionJobID string
	Kind            RecordKind
	ExternalID      string
	Title           string
	Description     string
	URL             string
	PublishedAt     time.Time
	SourceName      string
	SourceLogo      string
	Image           string
	SentimentScore  int
	SentimentLabel  SentimentLabel
	Engagement      map[string]float64
	Categories      []string
	Topics          []string
	RawPayload      json.RawMessage
	CollectedAt     time.Time

	// Reach は読み取り時に遅延計算されるリーチ推定。保存はされない。
	Reach *EnrichedReach
}

// ReachRange はリーチ推定の下限/上限バンドを表す。
type ReachRange struct {
	Low  int64
	High int64
}

// EnrichedReach は履歴レコードから導出されるリーチ指標を表す。
// VoiceOfShareが設定済みの場合、再計算はno-opとなる（冪等性の不変条件）。
type EnrichedReach struct {
	MonthlyReach         int64
	FinalEstimatedReach  int64
	ReachRange           ReachRange
	PercentageMultiplier float64
	VoiceOfShare         float64
}

// Snapshot はダッシュボード表示用のテナント最新取得結果を表す。
// インジェスト時に全体が上書きされ、マージはされない。
type Snapshot struct {
	TenantID    string
	Results     []KeywordResult
	CollectedAt time.Time
}
