package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/brandpulse/internal/model"
)

// ErrRunningJobExists は同一テナントにrunningジョブが既に存在する場合に返される。
// 部分一意インデックス uq_collection_jobs_running_per_tenant の違反を変換したもの。
var ErrRunningJobExists = errors.New("running collection job already exists for tenant")

// PostgresCollectionJobRepo はPostgreSQLを使用した収集ジョブリポジトリ。
type PostgresCollectionJobRepo struct {
	db *sql.DB
}

// NewPostgresCollectionJobRepo はPostgresCollectionJobRepoを生成する。
func NewPostgresCollectionJobRepo(db *sql.DB) *PostgresCollectionJobRepo {
	return &PostgresCollectionJobRepo{db: db}
}

// Create はジョブ行を挿入する。
// 同一テナントにrunningジョブが存在する場合はErrRunningJobExistsを返す。
func (r *PostgresCollectionJobRepo) Create(ctx context.Context, job *model.CollectionJob) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO collection_jobs
		    (id, tenant_id, status, started_at, completed_at,
		     total_keywords, processed_keywords, total_articles, total_social_posts, error_message)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		job.ID, job.TenantID, job.Status, job.StartedAt, nullTime(job.CompletedAt),
		job.TotalKeywords, job.ProcessedKeywords, job.TotalArticles, job.TotalSocialPosts,
		nullString(job.ErrorMessage),
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrRunningJobExists
		}
		return fmt.Errorf("収集ジョブの作成に失敗しました: %w", err)
	}
	return nil
}

// Finalize はジョブを終端状態へ更新する。
// WHERE句でstatus='running'を条件にすることで二重終端化を防ぐ。
func (r *PostgresCollectionJobRepo) Finalize(ctx context.Context, job *model.CollectionJob) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE collection_jobs SET
		    status = $2, completed_at = $3,
		    processed_keywords = $4, total_articles = $5, total_social_posts = $6,
		    error_message = $7
		 WHERE id = $1 AND status = 'running'`,
		job.ID, job.Status, nullTime(job.CompletedAt),
		job.ProcessedKeywords, job.TotalArticles, job.TotalSocialPosts,
		nullString(job.ErrorMessage),
	)
	if err != nil {
		return fmt.Errorf("収集ジョブの終端化に失敗しました: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("収集ジョブの終端化結果の確認に失敗しました: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("収集ジョブが実行中ではないため終端化できません: id=%s", job.ID)
	}
	return nil
}

// FindByID は指定IDのジョブを取得する。見つからない場合はnilを返す。
func (r *PostgresCollectionJobRepo) FindByID(ctx context.Context, id string) (*model.CollectionJob, error) {
	job := &model.CollectionJob{}
	var completedAt sql.NullTime
	var errorMessage sql.NullString

	err := r.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, status, started_at, completed_at,
		        total_keywords, processed_keywords, total_articles, total_social_posts, error_message
		 FROM collection_jobs WHERE id = $1`,
		id,
	).Scan(
		&job.ID, &job.TenantID, &job.Status, &job.StartedAt, &completedAt,
		&job.TotalKeywords, &job.ProcessedKeywords, &job.TotalArticles, &job.TotalSocialPosts,
		&errorMessage,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("収集ジョブの取得に失敗しました: %w", err)
	}

	job.CompletedAt = nullTimeValue(completedAt)
	job.ErrorMessage = nullStringValue(errorMessage)
	return job, nil
}

// ListByTenantID はテナントのジョブ履歴をstarted_at降順で返す。
func (r *PostgresCollectionJobRepo) ListByTenantID(ctx context.Context, tenantID string, limit int) ([]*model.CollectionJob, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, tenant_id, status, started_at, completed_at,
		        total_keywords, processed_keywords, total_articles, total_social_posts, error_message
		 FROM collection_jobs
		 WHERE tenant_id = $1
		 ORDER BY started_at DESC
		 LIMIT $2`,
		tenantID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("ジョブ履歴の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var jobs []*model.CollectionJob
	for rows.Next() {
		job := &model.CollectionJob{}
		var completedAt sql.NullTime
		var errorMessage sql.NullString

		if err := rows.Scan(
			&job.ID, &job.TenantID, &job.Status, &job.StartedAt, &completedAt,
			&job.TotalKeywords, &job.ProcessedKeywords, &job.TotalArticles, &job.TotalSocialPosts,
			&errorMessage,
		); err != nil {
			return nil, fmt.Errorf("ジョブ履歴の読み取りに失敗しました: %w", err)
		}

		job.CompletedAt = nullTimeValue(completedAt)
		job.ErrorMessage = nullStringValue(errorMessage)
		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ジョブ履歴の走査に失敗しました: %w", err)
	}

	return jobs, nil
}

// ReapStale はolderThanより前に開始され今もrunningのジョブをfailedに終端化する。
func (r *PostgresCollectionJobRepo) ReapStale(ctx context.Context, olderThan time.Time) (int, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE collection_jobs SET
		    status = 'failed',
		    completed_at = now(),
		    error_message = 'プロセス再起動時に実行中のまま残っていたため失敗として回収されました'
		 WHERE status = 'running' AND started_at < $1`,
		olderThan,
	)
	if err != nil {
		return 0, fmt.Errorf("滞留ジョブの回収に失敗しました: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("滞留ジョブの回収結果の確認に失敗しました: %w", err)
	}
	return int(affected), nil
}

// nullString は空文字列をsql.NullStringに変換する。
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullStringValue はsql.NullStringから文字列を取得する。
func nullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// nullTime は*time.Timeをsql.NullTimeに変換する。
func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// nullTimeValue はsql.NullTimeから*time.Timeを取得する。
func nullTimeValue(nt sql.NullTime) *time.Time {
	if nt.Valid {
		t := nt.Time
		return &t
	}
	return nil
}

// compile-time interface check
var _ CollectionJobRepository = (*PostgresCollectionJobRepo)(nil)
