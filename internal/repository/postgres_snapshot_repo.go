package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/hitoshi/brandpulse/internal/model"
)

// PostgresSnapshotRepo はPostgreSQLを使用したスナップショットリポジトリ。
// テナントごとに1行のJSONブロブを保持する。
type PostgresSnapshotRepo struct {
	db *sql.DB
}

// NewPostgresSnapshotRepo はPostgresSnapshotRepoを生成する。
func NewPostgresSnapshotRepo(db *sql.DB) *PostgresSnapshotRepo {
	return &PostgresSnapshotRepo{db: db}
}

// Overwrite はスナップショットを全体上書きする。
// UPSERTにより存在しない場合は作成、存在する場合はマージせず置き換える。
func (r *PostgresSnapshotRepo) Overwrite(ctx context.Context, snapshot *model.Snapshot) error {
	results, err := json.Marshal(snapshot.Results)
	if err != nil {
		return fmt.Errorf("スナップショットのエンコードに失敗しました: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO snapshots (tenant_id, results, collected_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (tenant_id) DO UPDATE SET
		    results = EXCLUDED.results,
		    collected_at = EXCLUDED.collected_at`,
		snapshot.TenantID, results, snapshot.CollectedAt,
	)
	if err != nil {
		return fmt.Errorf("スナップショットの上書きに失敗しました: %w", err)
	}
	return nil
}

// Get はテナントのスナップショットを取得する。存在しない場合はnilを返す。
func (r *PostgresSnapshotRepo) Get(ctx context.Context, tenantID string) (*model.Snapshot, error) {
	snapshot := &model.Snapshot{}
	var results []byte

	err := r.db.QueryRowContext(ctx,
		`SELECT tenant_id, results, collected_at FROM snapshots WHERE tenant_id = $1`,
		tenantID,
	).Scan(&snapshot.TenantID, &results, &snapshot.CollectedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("スナップショットの取得に失敗しました: %w", err)
	}

	if err := json.Unmarshal(results, &snapshot.Results); err != nil {
		return nil, fmt.Errorf("スナップショットのデコードに失敗しました: %w", err)
	}

	return snapshot, nil
}

// compile-time interface check
var _ SnapshotRepository = (*PostgresSnapshotRepo)(nil)
