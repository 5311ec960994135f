package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/brandpulse/internal/model"
)

// PostgresScheduleSettingsRepo はPostgreSQLを使用したスケジュール設定リポジトリ。
type PostgresScheduleSettingsRepo struct {
	db *sql.DB
}

// NewPostgresScheduleSettingsRepo はPostgresScheduleSettingsRepoを生成する。
func NewPostgresScheduleSettingsRepo(db *sql.DB) *PostgresScheduleSettingsRepo {
	return &PostgresScheduleSettingsRepo{db: db}
}

// GetOrCreate は指定テナントの設定を取得する。
// 存在しない場合はデフォルト値で作成して返す。
// ON CONFLICT DO NOTHINGにより同時作成でも片方の行が勝つ。
func (r *PostgresScheduleSettingsRepo) GetOrCreate(ctx context.Context, tenantID string) (*model.ScheduleSettings, error) {
	settings, err := r.find(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if settings != nil {
		return settings, nil
	}

	defaults := model.DefaultScheduleSettings(tenantID)
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO schedule_settings (tenant_id, enabled, interval_hours, timezone, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (tenant_id) DO NOTHING`,
		defaults.TenantID, defaults.Enabled, defaults.IntervalHours,
		defaults.Timezone, defaults.CreatedAt, defaults.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("スケジュール設定の作成に失敗しました: %w", err)
	}

	// 同時作成で負けた場合も既存行を読み直して返す
	settings, err = r.find(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if settings == nil {
		return nil, fmt.Errorf("スケジュール設定の作成直後の読み取りに失敗しました: tenant=%s", tenantID)
	}
	return settings, nil
}

// Update は設定を更新する。
func (r *PostgresScheduleSettingsRepo) Update(ctx context.Context, settings *model.ScheduleSettings) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE schedule_settings SET
		    enabled = $2, interval_hours = $3, timezone = $4, updated_at = now()
		 WHERE tenant_id = $1`,
		settings.TenantID, settings.Enabled, settings.IntervalHours, settings.Timezone,
	)
	if err != nil {
		return fmt.Errorf("スケジュール設定の更新に失敗しました: %w", err)
	}
	return nil
}

// ListEnabled はenabled=trueの全テナントの設定を返す。
func (r *PostgresScheduleSettingsRepo) ListEnabled(ctx context.Context) ([]*model.ScheduleSettings, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT tenant_id, enabled, interval_hours, timezone, created_at, updated_at
		 FROM schedule_settings
		 WHERE enabled = TRUE
		 ORDER BY tenant_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("有効なスケジュール設定の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var list []*model.ScheduleSettings
	for rows.Next() {
		s := &model.ScheduleSettings{}
		if err := rows.Scan(&s.TenantID, &s.Enabled, &s.IntervalHours, &s.Timezone, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("スケジュール設定の読み取りに失敗しました: %w", err)
		}
		list = append(list, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("スケジュール設定の走査に失敗しました: %w", err)
	}

	return list, nil
}

// find は指定テナントの設定を取得する。見つからない場合はnilを返す。
func (r *PostgresScheduleSettingsRepo) find(ctx context.Context, tenantID string) (*model.ScheduleSettings, error) {
	s := &model.ScheduleSettings{}
	err := r.db.QueryRowContext(ctx,
		`SELECT tenant_id, enabled, interval_hours, timezone, created_at, updated_at
		 FROM schedule_settings WHERE tenant_id = $1`,
		tenantID,
	).Scan(&s.TenantID, &s.Enabled, &s.IntervalHours, &s.Timezone, &s.CreatedAt, &s.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("スケジュール設定の取得に失敗しました: %w", err)
	}
	return s, nil
}

// compile-time interface check
var _ ScheduleSettingsRepository = (*PostgresScheduleSettingsRepo)(nil)
