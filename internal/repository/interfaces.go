// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/brandpulse/internal/model"
)

// ScheduleSettingsRepository はスケジュール設定の永続化インターフェース。
type ScheduleSettingsRepository interface {
	// GetOrCreate は指定テナントの設定を取得する。
	// 存在しない場合はデフォルト値（enabled=true, 24時間, UTC）で作成して返す。
	GetOrCreate(ctx context.Context, tenantID string) (*model.ScheduleSettings, error)

	// Update は設定を更新する。バリデーション済みの値のみ渡すこと。
	Update(ctx context.Context, settings *model.ScheduleSettings) error

	// ListEnabled はenabled=trueの全テナントの設定を返す。
	// スケジューラ起動時のタイマー登録に使用する。
	ListEnabled(ctx context.Context) ([]*model.ScheduleSettings, error)
}

// KeywordRepository はキーワードデータの読み取りインターフェース。
// キーワードの作成・削除は外部コラボレータが行うため、読み取り専用。
type KeywordRepository interface {
	// ListByTenantID はテナントの全キーワードを作成順で返す。
	ListByTenantID(ctx context.Context, tenantID string) ([]*model.Keyword, error)
}

// CollectionJobRepository は収集ジョブの永続化インターフェース。
type CollectionJobRepository interface {
	// Create はジョブ行を挿入する。
	// 同一テナントにrunningジョブが存在する場合は部分一意インデックス違反となり、
	// ErrRunningJobExistsを返す。
	Create(ctx context.Context, job *model.CollectionJob) error

	// Finalize はジョブを終端状態へ1回だけ更新する。
	// status、completed_at、各種カウント、error_messageを書き込む。
	Finalize(ctx context.Context, job *model.CollectionJob) error

	// FindByID は指定IDのジョブを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.CollectionJob, error)

	// ListByTenantID はテナントのジョブ履歴をstarted_at降順で返す。
	ListByTenantID(ctx context.Context, tenantID string, limit int) ([]*model.CollectionJob, error)

	// ReapStale はolderThanより前に開始され今もrunningのジョブをfailedに終端化する。
	// プロセスクラッシュでrunningのまま残ったジョブの起動時回収に使用する。
	ReapStale(ctx context.Context, olderThan time.Time) (int, error)
}

// HistoricalRepository は履歴レコードの永続化インターフェース。
// レコードは書き込み1回のみで、作成後は不変。
type HistoricalRepository interface {
	// Insert は1件の履歴レコードを挿入する。record.Kindでテーブルを振り分ける。
	Insert(ctx context.Context, record *model.HistoricalRecord) error

	// ListRecentByTenant はテナントの履歴レコードをcollected_at降順で返す。
	// 比較エンジンがメモリ上のマッチャーでキーワードを絞り込むための読み取り。
	ListRecentByTenant(ctx context.Context, tenantID string, kind model.RecordKind, limit int) ([]model.HistoricalRecord, error)
}

// SnapshotRepository はテナントの最新取得結果（スナップショット）の永続化インターフェース。
type SnapshotRepository interface {
	// Overwrite はスナップショットを全体上書きする（マージしない）。
	Overwrite(ctx context.Context, snapshot *model.Snapshot) error

	// Get はテナントのスナップショットを取得する。存在しない場合はnilを返す。
	Get(ctx context.Context, tenantID string) (*model.Snapshot, error)
}
