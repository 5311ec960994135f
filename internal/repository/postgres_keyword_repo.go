package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/brandpulse/internal/model"
)

// PostgresKeywordRepo はPostgreSQLを使用したキーワードリポジトリ。
// このサブシステムからは読み取り専用。
type PostgresKeywordRepo struct {
	db *sql.DB
}

// NewPostgresKeywordRepo はPostgresKeywordRepoを生成する。
func NewPostgresKeywordRepo(db *sql.DB) *PostgresKeywordRepo {
	return &PostgresKeywordRepo{db: db}
}

// ListByTenantID はテナントの全キーワードを作成順で返す。
func (r *PostgresKeywordRepo) ListByTenantID(ctx context.Context, tenantID string) ([]*model.Keyword, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, tenant_id, value, kind, created_at
		 FROM keywords
		 WHERE tenant_id = $1
		 ORDER BY created_at ASC`,
		tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("キーワード一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var keywords []*model.Keyword
	for rows.Next() {
		k := &model.Keyword{}
		if err := rows.Scan(&k.ID, &k.TenantID, &k.Value, &k.Kind, &k.CreatedAt); err != nil {
			return nil, fmt.Errorf("キーワードの読み取りに失敗しました: %w", err)
		}
		keywords = append(keywords, k)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("キーワードの走査に失敗しました: %w", err)
	}

	return keywords, nil
}

// compile-time interface check
var _ KeywordRepository = (*PostgresKeywordRepo)(nil)
