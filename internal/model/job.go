// Package model はドメインモデルを定義する。
package model

import "time"

// JobStatus は収集ジョブの状態を表す。
type JobStatus string

const (
	// JobStatusPending は実行待ちの収集ジョブ状態。
	// 単一プロセス構成では作成と開始が一体のため通常は経由しないが、
	// 外部ライターのために有効な列挙値として残している。
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning は実行中の収集ジョブ状態。
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted は正常終了した収集ジョブ状態。
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed は異常終了した収集ジョブ状態。
	JobStatusFailed JobStatus = "failed"
)

// IsTerminal はジョブが終端状態（completed/failed）かを返す。
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// CollectionJob はパイプラインの1回の実行を表す。
// 実行開始時に作成され、終了時に1回だけ終端状態へ更新される。
// 不変条件: 同一テナントでstatus=runningのジョブは常に高々1つ。
type CollectionJob struct {
	ID                string
	TenantID          string
	Status            JobStatus
	StartedAt         time.Time
	CompletedAt       *time.Time
	TotalKeywords     int
	ProcessedKeywords int
	TotalArticles     int
	TotalSocialPosts  int
	ErrorMessage      string
}
