// Package model はドメインモデルを定義する。
package model

import "time"

// KeywordKind はキーワードの種別（ブランド/競合）を表す。
type KeywordKind string

const (
	// KeywordKindBrand は自社ブランドのキーワード。
	KeywordKindBrand KeywordKind = "brand"
	// KeywordKindCompetitor は競合のキーワード。
	KeywordKindCompetitor KeywordKind = "competitor"
)

// Keyword は監視対象のキーワードを表す。
// 作成後は不変。作成・削除はテナント操作（外部コラボレータ）が行い、
// このサブシステムからは読み取り専用。
type Keyword struct {
	ID        string
	TenantID  string
	Value     string
	Kind      KeywordKind
	CreatedAt time.Time
}
