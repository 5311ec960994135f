// Package model はドメインモデルを定義する。
package model

import "time"

// 収集間隔の許容範囲（時間単位）。
const (
	// MinIntervalHours は収集間隔の下限（1時間）。
	MinIntervalHours = 1
	// MaxIntervalHours は収集間隔の上限（168時間 = 7日）。
	MaxIntervalHours = 168
	// DefaultIntervalHours は初回読み取り時に適用されるデフォルト間隔（24時間）。
	DefaultIntervalHours = 24
	// DefaultTimezone は初回読み取り時に適用されるデフォルトタイムゾーン。
	DefaultTimezone = "UTC"
)

// ScheduleSettings はテナントごとの収集スケジュール設定を表す。
// 初回読み取り時にデフォルト値で遅延作成され、明示的な更新操作でのみ変更される。
type ScheduleSettings struct {
	TenantID      string
	Enabled       bool
	IntervalHours int
	Timezone      string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// DefaultScheduleSettings は指定テナントのデフォルト設定を生成する。
// enabled=true, intervalHours=24, timezone=UTC。
func DefaultScheduleSettings(tenantID string) *ScheduleSettings {
	now := time.Now()
	return &ScheduleSettings{
		TenantID:      tenantID,
		Enabled:       true,
		IntervalHours: DefaultIntervalHours,
		Timezone:      DefaultTimezone,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// IsValidIntervalHours は収集間隔が許容範囲[1,168]内かを判定する。
// バリデーションは設定更新の境界で行い、スケジューラ内部では行わない。
func IsValidIntervalHours(hours int) bool {
	return hours >= MinIntervalHours && hours <= MaxIntervalHours
}
