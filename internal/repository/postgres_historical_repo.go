package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/hitoshi/brandpulse/internal/model"
)

// PostgresHistoricalRepo はPostgreSQLを使用した履歴レコードリポジトリ。
// ニュースとソーシャルで別テーブル（historical_news / historical_social）に書き分ける。
type PostgresHistoricalRepo struct {
	db *sql.DB
}

// NewPostgresHistoricalRepo はPostgresHistoricalRepoを生成する。
func NewPostgresHistoricalRepo(db *sql.DB) *PostgresHistoricalRepo {
	return &PostgresHistoricalRepo{db: db}
}

// tableForKind はレコード種別から書き込み先テーブル名を返す。
func tableForKind(kind model.RecordKind) (string, error) {
	switch kind {
	case model.RecordKindNews:
		return "historical_news", nil
	case model.RecordKindSocial:
		return "historical_social", nil
	default:
		return "", fmt.Errorf("未知のレコード種別です: %s", kind)
	}
}

// Insert は1件の履歴レコードを挿入する。
func (r *PostgresHistoricalRepo) Insert(ctx context.Context, record *model.HistoricalRecord) error {
	table, err := tableForKind(record.Kind)
	if err != nil {
		return err
	}

	engagement, err := json.Marshal(record.Engagement)
	if err != nil {
		return fmt.Errorf("engagementのエンコードに失敗しました: %w", err)
	}
	categories, err := json.Marshal(record.Categories)
	if err != nil {
		return fmt.Errorf("categoriesのエンコードに失敗しました: %w", err)
	}
	topics, err := json.Marshal(record.Topics)
	if err != nil {
		return fmt.Errorf("topicsのエンコードに失敗しました: %w", err)
	}

	var rawPayload interface{}
	if len(record.RawPayload) > 0 {
		rawPayload = []byte(record.RawPayload)
	}

	// テーブル名はtableForKindが返す固定値のみ
	query := fmt.Sprintf(
		`INSERT INTO %s
		    (id, tenant_id, keyword, collection_job_id, external_id,
		     title, description, url, published_at,
		     source_name, source_logo, image,
		     sentiment_score, sentiment_label, engagement, categories, topics,
		     raw_payload, collected_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		table,
	)

	_, err = r.db.ExecContext(ctx, query,
		record.ID, record.TenantID, record.Keyword, record.CollectionJobID, record.ExternalID,
		record.Title, nullString(record.Description), record.URL, record.PublishedAt,
		record.SourceName, nullString(record.SourceLogo), nullString(record.Image),
		record.SentimentScore, record.SentimentLabel, engagement, categories, topics,
		rawPayload, record.CollectedAt,
	)
	if err != nil {
		return fmt.Errorf("履歴レコードの挿入に失敗しました: %w", err)
	}
	return nil
}

// ListRecentByTenant はテナントの履歴レコードをcollected_at降順で返す。
func (r *PostgresHistoricalRepo) ListRecentByTenant(ctx context.Context, tenantID string, kind model.RecordKind, limit int) ([]model.HistoricalRecord, error) {
	table, err := tableForKind(kind)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 2000
	}

	// テーブル名はtableForKindが返す固定値のみ
	query := fmt.Sprintf(
		`SELECT id, tenant_id, keyword, collection_job_id, external_id,
		        title, description, url, published_at,
		        source_name, source_logo, image,
		        sentiment_score, sentiment_label, engagement, categories, topics,
		        raw_payload, collected_at
		 FROM %s
		 WHERE tenant_id = $1
		 ORDER BY collected_at DESC
		 LIMIT $2`,
		table,
	)

	rows, err := r.db.QueryContext(ctx, query, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("履歴レコードの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var records []model.HistoricalRecord
	for rows.Next() {
		record, err := scanHistoricalRecord(rows, kind)
		if err != nil {
			return nil, err
		}
		records = append(records, *record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("履歴レコードの走査に失敗しました: %w", err)
	}

	return records, nil
}

// scanHistoricalRecord は1行をHistoricalRecordに読み取る。
func scanHistoricalRecord(rows *sql.Rows, kind model.RecordKind) (*model.HistoricalRecord, error) {
	record := &model.HistoricalRecord{Kind: kind}
	var description, sourceLogo, image sql.NullString
	var engagement, categories, topics, rawPayload []byte

	if err := rows.Scan(
		&record.ID, &record.TenantID, &record.Keyword, &record.CollectionJobID, &record.ExternalID,
		&record.Title, &description, &record.URL, &record.PublishedAt,
		&record.SourceName, &sourceLogo, &image,
		&record.SentimentScore, &record.SentimentLabel, &engagement, &categories, &topics,
		&rawPayload, &record.CollectedAt,
	); err != nil {
		return nil, fmt.Errorf("履歴レコードの読み取りに失敗しました: %w", err)
	}

	record.Description = nullStringValue(description)
	record.SourceLogo = nullStringValue(sourceLogo)
	record.Image = nullStringValue(image)

	if len(engagement) > 0 {
		if err := json.Unmarshal(engagement, &record.Engagement); err != nil {
			return nil, fmt.Errorf("engagementのデコードに失敗しました: %w", err)
		}
	}
	if record.Engagement == nil {
		record.Engagement = map[string]float64{}
	}
	if len(categories) > 0 {
		if err := json.Unmarshal(categories, &record.Categories); err != nil {
			return nil, fmt.Errorf("categoriesのデコードに失敗しました: %w", err)
		}
	}
	if record.Categories == nil {
		record.Categories = []string{}
	}
	if len(topics) > 0 {
		if err := json.Unmarshal(topics, &record.Topics); err != nil {
			return nil, fmt.Errorf("topicsのデコードに失敗しました: %w", err)
		}
	}
	if record.Topics == nil {
		record.Topics = []string{}
	}
	if len(rawPayload) > 0 {
		record.RawPayload = json.RawMessage(rawPayload)
	}

	return record, nil
}

// compile-time interface check
var _ HistoricalRepository = (*PostgresHistoricalRepo)(nil)
